package hst

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
)

// DemoPageID is the id of the page created by SeedDemo.
const DemoPageID = "home"

// SeedDemo creates a demo page unless pages already exist.
func SeedDemo(ctx context.Context, store Store) error {
	pages, err := store.ListPages(ctx)
	if err != nil {
		return fmt.Errorf("listing pages: %w", err)
	}
	if len(pages) > 0 {
		return nil
	}

	item := func(label, body string) ComponentRecord {
		return ComponentRecord{ID: uuid.New().String(), Label: label, Body: body}
	}
	containers := []ContainerRecord{
		{
			ID: uuid.New().String(), Label: "Main", XType: "HST.vBox",
			Components: []ComponentRecord{
				item("Banner", "<h1>Welcome</h1>"),
				item("News list", "<ul><li>First story</li><li>Second story</li></ul>"),
				item("Events", "<p>No upcoming events.</p>"),
			},
		},
		{
			ID: uuid.New().String(), Label: "Sidebar", XType: "HST.vBox",
			Components: []ComponentRecord{
				item("Search", `<form><input type="search"></form>`),
			},
		},
		{
			ID: uuid.New().String(), Label: "Footer", XType: "HST.Span", LockedBy: "editor2",
			Components: []ComponentRecord{
				item("Copyright", "<small>© Example</small>"),
			},
		},
	}
	if err := store.CreatePage(ctx, Page{ID: DemoPageID, Title: "Home", ChannelID: "website"}, containers); err != nil {
		return fmt.Errorf("seeding demo page: %w", err)
	}
	log.Printf("hst: seeded demo page %q", DemoPageID)
	return nil
}

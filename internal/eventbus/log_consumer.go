package eventbus

import (
	"context"
	"log"

	"github.com/matthewbaird/pagecomposer/internal/event"
)

// LogConsumer logs all events for observability.
type LogConsumer struct{}

func NewLogConsumer() *LogConsumer { return &LogConsumer{} }

func (c *LogConsumer) HandleEvent(_ context.Context, evt event.Event) error {
	log.Printf("event: %s [%s] %s", evt.Name, evt.Source, evt.Payload)
	return nil
}

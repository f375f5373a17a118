package hst

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/matthewbaird/pagecomposer/internal/pagestructure"

	_ "modernc.org/sqlite"
)

// Store persists pages, containers and their items.
type Store interface {
	ListPages(ctx context.Context) ([]Page, error)
	GetPage(ctx context.Context, id string) (Page, []ContainerRecord, error)
	GetContainer(ctx context.Context, id string) (ContainerRecord, error)
	// UpdateContainer reorders a container to match rep. Items listed in
	// rep are moved into the container; items no longer listed are detached
	// until another container claims them.
	UpdateContainer(ctx context.Context, rep pagestructure.Representation, user string) (ContainerRecord, error)
	CreatePage(ctx context.Context, page Page, containers []ContainerRecord) error
}

const schema = `
CREATE TABLE IF NOT EXISTS pages (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	channel_id TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS containers (
	id            TEXT PRIMARY KEY,
	page_id       TEXT NOT NULL REFERENCES pages(id) ON DELETE CASCADE,
	position      INTEGER NOT NULL,
	label         TEXT NOT NULL,
	xtype         TEXT NOT NULL,
	locked_by     TEXT NOT NULL DEFAULT '',
	last_modified INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS components (
	id           TEXT PRIMARY KEY,
	container_id TEXT REFERENCES containers(id) ON DELETE SET NULL,
	position     INTEGER NOT NULL,
	label        TEXT NOT NULL,
	body         TEXT NOT NULL DEFAULT ''
);
`

// SQLStore implements Store on a SQLite database.
type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLStore opens dsn with the modernc SQLite driver and creates the
// schema if needed.
func OpenSQLStore(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)
	s, err := NewSQLStore(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore uses an already opened database.
func NewSQLStore(ctx context.Context, db *sql.DB) (*SQLStore, error) {
	// SQLite leaves foreign keys off unless enabled per connection.
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLStore{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) ListPages(ctx context.Context) ([]Page, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, channel_id FROM pages ORDER BY title`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var pages []Page
	for rows.Next() {
		var p Page
		if err := rows.Scan(&p.ID, &p.Title, &p.ChannelID); err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

func (s *SQLStore) GetPage(ctx context.Context, id string) (Page, []ContainerRecord, error) {
	var p Page
	err := s.db.QueryRowContext(ctx, `SELECT id, title, channel_id FROM pages WHERE id = ?`, id).
		Scan(&p.ID, &p.Title, &p.ChannelID)
	if errors.Is(err, sql.ErrNoRows) {
		return Page{}, nil, fmt.Errorf("%w: page %s", ErrNotFound, id)
	}
	if err != nil {
		return Page{}, nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM containers WHERE page_id = ? ORDER BY position`, id)
	if err != nil {
		return Page{}, nil, err
	}
	var ids []string
	for rows.Next() {
		var cid string
		if err := rows.Scan(&cid); err != nil {
			rows.Close()
			return Page{}, nil, err
		}
		ids = append(ids, cid)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Page{}, nil, err
	}

	containers := make([]ContainerRecord, 0, len(ids))
	for _, cid := range ids {
		c, err := s.GetContainer(ctx, cid)
		if err != nil {
			return Page{}, nil, err
		}
		containers = append(containers, c)
	}
	return p, containers, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *SQLStore) GetContainer(ctx context.Context, id string) (ContainerRecord, error) {
	return getContainer(ctx, s.db, id)
}

func getContainer(ctx context.Context, q queryer, id string) (ContainerRecord, error) {
	var c ContainerRecord
	err := q.QueryRowContext(ctx,
		`SELECT id, page_id, label, xtype, locked_by, last_modified FROM containers WHERE id = ?`, id).
		Scan(&c.ID, &c.PageID, &c.Label, &c.XType, &c.LockedBy, &c.LastModified)
	if errors.Is(err, sql.ErrNoRows) {
		return ContainerRecord{}, fmt.Errorf("%w: container %s", ErrNotFound, id)
	}
	if err != nil {
		return ContainerRecord{}, err
	}

	rows, err := q.QueryContext(ctx,
		`SELECT id, label, body FROM components WHERE container_id = ? ORDER BY position`, id)
	if err != nil {
		return ContainerRecord{}, err
	}
	defer rows.Close()
	c.Components = []ComponentRecord{}
	for rows.Next() {
		var comp ComponentRecord
		if err := rows.Scan(&comp.ID, &comp.Label, &comp.Body); err != nil {
			return ContainerRecord{}, err
		}
		c.Components = append(c.Components, comp)
	}
	return c, rows.Err()
}

func (s *SQLStore) UpdateContainer(ctx context.Context, rep pagestructure.Representation, user string) (ContainerRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ContainerRecord{}, err
	}
	defer tx.Rollback()

	current, err := getContainer(ctx, tx, rep.ID)
	if err != nil {
		return ContainerRecord{}, err
	}
	if current.LockedBy != "" && current.LockedBy != user {
		return ContainerRecord{}, fmt.Errorf("%w: %s is locked by %s", ErrLocked, rep.ID, current.LockedBy)
	}
	if rep.LastModified != 0 && rep.LastModified != current.LastModified {
		return ContainerRecord{}, fmt.Errorf("%w: %s", ErrStale, rep.ID)
	}

	for _, child := range rep.Children {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM components WHERE id = ?`, child).Scan(&exists)
		if err != nil {
			return ContainerRecord{}, err
		}
		if exists == 0 {
			return ContainerRecord{}, fmt.Errorf("%w: %s", ErrUnknownComponent, child)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE components SET container_id = NULL WHERE container_id = ?`, rep.ID); err != nil {
		return ContainerRecord{}, err
	}
	for i, child := range rep.Children {
		if _, err := tx.ExecContext(ctx,
			`UPDATE components SET container_id = ?, position = ? WHERE id = ?`, rep.ID, i, child); err != nil {
			return ContainerRecord{}, err
		}
	}

	modified := s.now().UnixMilli()
	if modified <= current.LastModified {
		modified = current.LastModified + 1
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE containers SET last_modified = ? WHERE id = ?`, modified, rep.ID); err != nil {
		return ContainerRecord{}, err
	}

	updated, err := getContainer(ctx, tx, rep.ID)
	if err != nil {
		return ContainerRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return ContainerRecord{}, err
	}
	return updated, nil
}

func (s *SQLStore) CreatePage(ctx context.Context, page Page, containers []ContainerRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO pages (id, title, channel_id) VALUES (?, ?, ?)`, page.ID, page.Title, page.ChannelID); err != nil {
		return fmt.Errorf("inserting page %s: %w", page.ID, err)
	}
	modified := s.now().UnixMilli()
	for i, c := range containers {
		lm := c.LastModified
		if lm == 0 {
			lm = modified
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO containers (id, page_id, position, label, xtype, locked_by, last_modified) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.ID, page.ID, i, c.Label, c.XType, c.LockedBy, lm); err != nil {
			return fmt.Errorf("inserting container %s: %w", c.ID, err)
		}
		for j, comp := range c.Components {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO components (id, container_id, position, label, body) VALUES (?, ?, ?, ?, ?)`,
				comp.ID, c.ID, j, comp.Label, comp.Body); err != nil {
				return fmt.Errorf("inserting component %s: %w", comp.ID, err)
			}
		}
	}
	return tx.Commit()
}

package replication

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	supabase "github.com/supabase-community/supabase-go"

	"github.com/thefalc/podcast-research-agent/pkg/db"
	"github.com/thefalc/podcast-research-agent/pkg/domain"
)

const briefTable = "research_brief"

var errNotConnected = errors.New("postgres DB not connected")

// archive is where replicated briefs land.
type archive interface {
	ensureSchema(ctx context.Context) error
	existingIDs(ctx context.Context, ids []string) (map[string]bool, error)
	insert(ctx context.Context, batch []domain.ResearchBundle) error
}

// restProvider is implemented by clients that can reach the archive through the
// Supabase REST API.
type restProvider interface {
	SDK() *supabase.Client
}

type dbErrProvider interface {
	DBErr() error
}

// openArchive prefers the direct connection and falls back to the Supabase REST
// API when only the SDK is available.
func openArchive(p db.DBProvider) (archive, error) {
	if d := p.DB(); d != nil {
		return &sqlArchive{db: d}, nil
	}
	if rp, ok := p.(restProvider); ok && rp.SDK() != nil {
		return &restArchive{client: rp.SDK()}, nil
	}
	if ep, ok := p.(dbErrProvider); ok && ep.DBErr() != nil {
		return nil, fmt.Errorf("%w: %w", errNotConnected, ep.DBErr())
	}
	return nil, errNotConnected
}

type sqlArchive struct {
	db *sql.DB
}

func (a *sqlArchive) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS research_brief (
  bundle_id TEXT PRIMARY KEY,
  guest_name TEXT NOT NULL DEFAULT '',
  company TEXT NOT NULL DEFAULT '',
  topic TEXT NOT NULL DEFAULT '',
  brief_html TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  replicated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`
	if _, err := a.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create research_brief table: %w", err)
	}
	return nil
}

func (a *sqlArchive) existingIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT bundle_id FROM research_brief WHERE bundle_id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query existing briefs: %w", err)
	}
	defer rows.Close()

	set := make(map[string]bool, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan bundle id: %w", err)
		}
		set[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return set, nil
}

func (a *sqlArchive) insert(ctx context.Context, batch []domain.ResearchBundle) error {
	tx, err := a.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO research_brief (bundle_id, guest_name, company, topic, brief_html, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (bundle_id) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, b := range batch {
		if _, err := stmt.ExecContext(ctx, b.ID, b.GuestName, b.Company, b.Topic, b.ResearchBriefText, b.CreatedAt); err != nil {
			return fmt.Errorf("insert brief bundle_id=%q: %w", b.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// restArchive writes through PostgREST. The table must already exist since
// the REST API cannot run DDL.
type restArchive struct {
	client *supabase.Client
}

type briefRow struct {
	BundleID  string     `json:"bundle_id"`
	GuestName string     `json:"guest_name"`
	Company   string     `json:"company"`
	Topic     string     `json:"topic"`
	BriefHTML string     `json:"brief_html"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

func (a *restArchive) ensureSchema(ctx context.Context) error {
	return nil
}

func (a *restArchive) existingIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	var rows []briefRow
	if _, err := a.client.From(briefTable).Select("bundle_id", "", false).In("bundle_id", ids).ExecuteTo(&rows); err != nil {
		return nil, fmt.Errorf("query existing briefs: %w", err)
	}
	set := make(map[string]bool, len(rows))
	for _, r := range rows {
		set[r.BundleID] = true
	}
	return set, nil
}

func (a *restArchive) insert(ctx context.Context, batch []domain.ResearchBundle) error {
	rows := make([]briefRow, len(batch))
	for i, b := range batch {
		rows[i] = briefRow{
			BundleID:  b.ID,
			GuestName: b.GuestName,
			Company:   b.Company,
			Topic:     b.Topic,
			BriefHTML: b.ResearchBriefText,
		}
		if !b.CreatedAt.IsZero() {
			created := b.CreatedAt
			rows[i].CreatedAt = &created
		}
	}
	if _, _, err := a.client.From(briefTable).Upsert(rows, "bundle_id", "minimal", "").Execute(); err != nil {
		return fmt.Errorf("upsert briefs: %w", err)
	}
	return nil
}

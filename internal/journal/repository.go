// Package journal persists resolved audio commands to the command_journal
// table so the panel can show what was changed, when, and whether the daemon
// accepted it.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/reset-core/internal/audio"
)

// Page size limits for List.
const (
	defaultLimit = 50
	maxLimit     = 200
)

// timeLayout is fixed-width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// Entry is a single journal row.
type Entry struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Category   string          `json:"category"`
	Target     uint32          `json:"target"`
	Outcome    string          `json:"outcome"`
	Error      string          `json:"error,omitempty"`
	DurationMS int64           `json:"duration_ms"`
	Command    json.RawMessage `json:"command"`
	CreatedAt  time.Time       `json:"created_at"`
}

// EntryFromRecord converts a resolved command into a journal row.
func EntryFromRecord(rec audio.CommandRecord) (Entry, error) {
	body, err := json.Marshal(rec.Command)
	if err != nil {
		return Entry{}, fmt.Errorf("marshalling command: %w", err)
	}
	category, target := rec.Command.Target()

	e := Entry{
		ID:         rec.ID,
		Kind:       rec.Command.Kind(),
		Category:   string(category),
		Target:     target,
		Outcome:    string(rec.Outcome),
		DurationMS: rec.Duration.Milliseconds(),
		Command:    body,
		CreatedAt:  rec.At,
	}
	if rec.Err != nil {
		e.Error = rec.Err.Error()
	}
	return e, nil
}

// Filter controls which entries List returns.
type Filter struct {
	Outcome string // optional: confirmed, rolled_back, failed, stale, rejected
	Kind    string // optional: set_volume, set_mute, ...
	Limit   int    // default 50, max 200
	Offset  int
}

// ListResult contains a page of entries, newest first.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository defines journal storage operations.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores journal entries in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts an entry. ID and CreatedAt are generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if len(e.Command) == 0 {
		e.Command = json.RawMessage("{}")
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO command_journal (id, kind, category, target, outcome, error, duration_ms, command, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Kind, e.Category, int64(e.Target), e.Outcome,
		nullableString(e.Error), e.DurationMS, string(e.Command),
		e.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting journal entry: %w", err)
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns entries matching the filter, newest first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.Outcome != "" {
		conditions = append(conditions, "outcome = ?")
		args = append(args, filter.Outcome)
	}
	if filter.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, filter.Kind)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM command_journal " + where //nolint:gosec // WHERE built from parameterised conditions
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting journal entries: %w", err)
	}

	query := "SELECT id, kind, category, target, outcome, error, duration_ms, command, created_at FROM command_journal " + //nolint:gosec // as above
		where + " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying journal: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var target int64
		var errText sql.NullString
		var command, createdAt string

		if err := rows.Scan(&e.ID, &e.Kind, &e.Category, &target, &e.Outcome,
			&errText, &e.DurationMS, &command, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning journal entry: %w", err)
		}
		e.Target = uint32(target) //nolint:gosec // stored from a uint32
		e.Error = errText.String
		e.Command = json.RawMessage(command)

		e.CreatedAt, err = time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing journal timestamp %q: %w", createdAt, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journal: %w", err)
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}

// ListRecent returns the newest limit entries.
func (r *SQLiteRepository) ListRecent(ctx context.Context, limit int) ([]Entry, error) {
	res, err := r.List(ctx, Filter{Limit: limit})
	if err != nil {
		return nil, err
	}
	return res.Entries, nil
}

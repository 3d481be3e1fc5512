package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/overwatch/ingestion-gateway/internal/event"
	"github.com/overwatch/ingestion-gateway/internal/logger"
)

// Sink is the capability the consumer needs from the analytics store:
// accept a routed batch and insert it, one bulk call per table
// (§4.7: "each sink call is a single bulk insert of the group").
type Sink interface {
	InsertBatch(ctx context.Context, table string, records []event.StorageRecord) error
	Close() error
}

// PQSink bulk-inserts routed batches via lib/pq's COPY protocol,
// standing in for the column store's native bulk-insert HTTP
// protocol named in §6.
type PQSink struct {
	db *sql.DB
}

// NewPQSink opens a connection to the analytics store.
func NewPQSink(dsn string) (*PQSink, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening store connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging store: %w", err)
	}
	return &PQSink{db: db}, nil
}

func (s *PQSink) Close() error { return s.db.Close() }

// DB exposes the underlying connection for callers that need to run
// store maintenance outside the Sink interface, such as the retention
// enforcer's partition sweeps.
func (s *PQSink) DB() *sql.DB { return s.db }

// columnSpec names one destination table's CopyIn column list and how
// to turn a storage record into its positional values, grounded on the
// destination store's own per-table schema rather than a single
// generic shape shared by every table.
type columnSpec struct {
	columns []string
	values  func(event.StorageRecord) []any
}

// tableSpecs holds the per-table column layouts named in §4.7: each
// sink table carries only the columns its event family actually
// populates (e.g. pageviews has no event_id and no JSON data blob),
// with the type-specific fields pulled out of the shared extras
// document via router.go's Extract* helpers.
var tableSpecs = map[string]columnSpec{
	TablePageviews: {
		columns: []string{
			"project_id", "session_id", "timestamp", "url", "path", "referrer",
			"user_agent", "device_type", "browser", "browser_version", "os",
			"country", "region", "city",
		},
		values: func(r event.StorageRecord) []any {
			return []any{
				r.ProjectID, r.SessionID, r.Timestamp, r.URL, r.Path, nullableString(r.Referrer),
				r.UserAgent, string(r.DeviceType), r.BrowserName, r.BrowserVersion, r.OS,
				r.Country, nullableString(r.Region), nullableString(r.City),
			}
		},
	},
	TableClicks: {
		columns: []string{"project_id", "session_id", "timestamp", "url", "x", "y", "selector", "target"},
		values: func(r event.StorageRecord) []any {
			c := ExtractClick(r)
			return []any{r.ProjectID, r.SessionID, r.Timestamp, r.URL, c.X, c.Y, nullIfEmpty(c.Selector), nullIfEmpty(c.Target)}
		},
	},
	TableScrollEvents: {
		columns: []string{"project_id", "session_id", "timestamp", "depth", "max_depth", "url"},
		values: func(r event.StorageRecord) []any {
			c := ExtractScroll(r)
			return []any{r.ProjectID, r.SessionID, r.Timestamp, c.Depth, c.MaxDepth, r.URL}
		},
	},
	TableMouseMoves: {
		columns: []string{"project_id", "session_id", "timestamp", "x", "y", "viewport_x", "viewport_y", "url"},
		values: func(r event.StorageRecord) []any {
			c := ExtractMouseMove(r)
			return []any{r.ProjectID, r.SessionID, r.Timestamp, c.X, c.Y, c.ViewportX, c.ViewportY, r.URL}
		},
	},
	TableFormEvents: {
		columns: []string{"project_id", "session_id", "timestamp", "form_id", "field_name", "event_type", "url"},
		values: func(r event.StorageRecord) []any {
			c := ExtractForm(r)
			return []any{r.ProjectID, r.SessionID, r.Timestamp, c.FormID, c.FieldName, string(r.EventType), r.URL}
		},
	},
	TableErrors: {
		columns: []string{"project_id", "session_id", "timestamp", "message", "stack", "url", "line", "column"},
		values: func(r event.StorageRecord) []any {
			c := ExtractError(r)
			return []any{r.ProjectID, r.SessionID, r.Timestamp, c.Message, c.Stack, r.URL, c.Line, c.Column}
		},
	},
	TablePerformance: {
		columns: []string{"project_id", "session_id", "timestamp", "lcp", "fid", "cls", "ttfb", "fcp", "url"},
		values: func(r event.StorageRecord) []any {
			c := ExtractPerformance(r)
			return []any{r.ProjectID, r.SessionID, r.Timestamp, c.LCP, c.FID, c.CLS, c.TTFB, c.FCP, r.URL}
		},
	},
	TableVisibility: {
		columns: []string{"project_id", "session_id", "timestamp", "state", "hidden_duration", "url"},
		values: func(r event.StorageRecord) []any {
			c := ExtractVisibility(r)
			return []any{r.ProjectID, r.SessionID, r.Timestamp, c.State, c.HiddenDuration, r.URL}
		},
	},
	TableResourceLoad: {
		columns: []string{"project_id", "session_id", "timestamp", "resource_url", "resource_type", "duration", "size", "url"},
		values: func(r event.StorageRecord) []any {
			c := ExtractResourceLoad(r)
			return []any{r.ProjectID, r.SessionID, r.Timestamp, c.ResourceURL, c.ResourceType, c.Duration, c.Size, r.URL}
		},
	},
	TableGeographic: {
		columns: []string{"project_id", "session_id", "timestamp", "country", "region", "city", "lat", "lng", "url"},
		values: func(r event.StorageRecord) []any {
			c := ExtractGeographic(r)
			return []any{r.ProjectID, r.SessionID, r.Timestamp, c.Country, nullIfEmpty(c.Region), nullIfEmpty(c.City), c.Lat, c.Lng, r.URL}
		},
	},
	TableCustomEvents: {
		columns: []string{"project_id", "session_id", "timestamp", "name", "properties", "url"},
		values: func(r event.StorageRecord) []any {
			name := ""
			if r.CustomName != nil {
				name = *r.CustomName
			}
			return []any{r.ProjectID, r.SessionID, r.Timestamp, name, extraRawJSON(r.Extras, "properties"), r.URL}
		},
	},
}

// genericColumns is the catch-all events table's column list (session
// lifecycle events and anything router.go doesn't special-case),
// matching the full legacy unified-events schema.
var genericColumns = columnSpec{
	columns: []string{
		"event_id", "project_id", "session_id", "user_id", "type", "timestamp",
		"url", "path", "referrer", "user_agent", "device_type", "browser",
		"browser_version", "os", "country", "region", "city", "data",
	},
	values: func(r event.StorageRecord) []any {
		return []any{
			r.EventID, r.ProjectID, r.SessionID, nullableString(r.UserID), string(r.EventType), r.Timestamp,
			r.URL, r.Path, nullableString(r.Referrer), r.UserAgent, string(r.DeviceType), r.BrowserName,
			r.BrowserVersion, r.OS, r.Country, nullableString(r.Region), nullableString(r.City), r.Extras,
		}
	},
}

func specFor(table string) columnSpec {
	if s, ok := tableSpecs[table]; ok {
		return s
	}
	return genericColumns
}

// InsertBatch performs one bulk insert of records into table via
// pq.CopyIn, using the column layout table's own schema requires
// rather than one fixed shape shared by every destination table.
func (s *PQSink) InsertBatch(ctx context.Context, table string, records []event.StorageRecord) error {
	if len(records) == 0 {
		return nil
	}
	spec := specFor(table)

	txn, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer txn.Rollback()

	stmt, err := txn.Prepare(pq.CopyIn(table, spec.columns...))
	if err != nil {
		return fmt.Errorf("prepare copy-in for %s: %w", table, err)
	}

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, spec.values(r)...); err != nil {
			return fmt.Errorf("copy-in row for %s: %w", table, err)
		}
	}

	if _, err := stmt.ExecContext(ctx); err != nil {
		return fmt.Errorf("flush copy-in for %s: %w", table, err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("close copy-in statement for %s: %w", table, err)
	}
	if err := txn.Commit(); err != nil {
		return fmt.Errorf("commit insert for %s: %w", table, err)
	}

	logger.Store().Debug().Str("table", table).Int("rows", len(records)).Msg("bulk insert complete")
	return nil
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

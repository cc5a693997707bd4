// Package clickhouse exports journal events to ClickHouse through the
// official native client. Suited to long retention and analytics queries
// over transition history.
package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/loykin/switchr/internal/journal"
)

// DefaultTable receives events when no table is configured.
const DefaultTable = "switchr_journal"

// Options configures the connection and target table.
type Options struct {
	Addr     []string
	Database string
	Username string
	Password string
	Table    string
}

// Sink sends journal events to ClickHouse.
type Sink struct {
	conn  driver.Conn
	table string
}

// New connects, pings and ensures the target table exists.
func New(opts Options) (*Sink, error) {
	if len(opts.Addr) == 0 {
		return nil, fmt.Errorf("clickhouse sink: no addresses")
	}
	if opts.Database == "" {
		opts.Database = "default"
	}
	if opts.Username == "" {
		opts.Username = "default"
	}
	if opts.Table == "" {
		opts.Table = DefaultTable
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: opts.Addr,
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}
	s := &Sink{conn: conn, table: opts.Table}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		occurred_at DateTime64(3),
		kind String,
		from_state String,
		to_state String,
		reason String,
		role String,
		run_id String,
		pid Int64,
		exit_code Nullable(Int64)
	) ENGINE = MergeTree() ORDER BY occurred_at`, s.table)
	if err := s.conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create ClickHouse table %s: %w", s.table, err)
	}
	return nil
}

// Send inserts one event row.
func (s *Sink) Send(ctx context.Context, e journal.Event) error {
	query := fmt.Sprintf(`INSERT INTO %s (occurred_at, kind, from_state, to_state, reason, role, run_id, pid, exit_code) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table)
	var exitCode *int64
	if e.ExitCode != nil {
		v := int64(*e.ExitCode)
		exitCode = &v
	}
	err := s.conn.Exec(ctx, query,
		e.At,
		string(e.Kind),
		e.From,
		e.To,
		e.Reason,
		e.Role,
		e.RunID,
		int64(e.PID),
		exitCode,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event into ClickHouse: %w", err)
	}
	return nil
}

// Close releases the connection.
func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

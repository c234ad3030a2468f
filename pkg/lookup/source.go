package lookup

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// Warehouse drivers. The driver in use is picked by configuration.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/stratushealth/concierge/pkg/tools"
)

// Config describes the lookup warehouse connection.
type Config struct {
	Catalog string
	Schema  string
	Driver  string
	DSN     string
}

// Source serves member, claim and provider lookups from catalog functions
// backed by a SQL warehouse.
type Source struct {
	cfg   Config
	db    *sql.DB
	tools []*lookupTool
}

func NewSource(cfg Config) (*Source, error) {
	if cfg.Driver == "" || cfg.DSN == "" {
		return nil, fmt.Errorf("lookup driver and dsn are required")
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open lookup database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Source{cfg: cfg, db: db}
	s.tools = buildTools(s)
	return s, nil
}

// NewSourceWithDB wraps an existing handle; used by tests.
func NewSourceWithDB(cfg Config, db *sql.DB) *Source {
	s := &Source{cfg: cfg, db: db}
	s.tools = buildTools(s)
	return s
}

func (s *Source) GetName() string { return "lookup" }
func (s *Source) GetType() string { return "warehouse" }

func (s *Source) DiscoverTools(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("lookup warehouse unreachable: %w", err)
	}
	return nil
}

func (s *Source) ListTools() []tools.ToolInfo {
	infos := make([]tools.ToolInfo, len(s.tools))
	for i, t := range s.tools {
		infos[i] = t.GetInfo()
	}
	return infos
}

func (s *Source) GetTool(name string) (tools.Tool, bool) {
	for _, t := range s.tools {
		if t.name == name {
			return t, true
		}
	}
	return nil, false
}

// HealthCheck reports whether the warehouse answers.
func (s *Source) HealthCheck(ctx context.Context) error {
	return s.DiscoverTools(ctx)
}

func (s *Source) Close() error {
	return s.db.Close()
}

// table returns the namespaced table name. SQLite has no catalog notion, so
// tables are referenced bare there.
func (s *Source) table(name string) string {
	if s.cfg.Driver == "sqlite3" || s.cfg.Catalog == "" || s.cfg.Schema == "" {
		return name
	}
	return fmt.Sprintf("%s.%s.%s", s.cfg.Catalog, s.cfg.Schema, name)
}

// bind returns the n-th placeholder for the configured driver.
func (s *Source) bind(n int) string {
	if s.cfg.Driver == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

var _ tools.ToolSource = (*Source)(nil)

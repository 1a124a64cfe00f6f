// Package migrations embeds the sqlite schema for validation history and API
// keys.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

//go:embed files/*.sql
var migrationFS embed.FS

type Option func(*config)

type config struct {
	log zerolog.Logger
}

// WithLogger sends goose progress lines to log instead of discarding them.
func WithLogger(log zerolog.Logger) Option {
	return func(c *config) { c.log = log }
}

// gooseLogger adapts zerolog to goose.Logger.
type gooseLogger struct {
	log zerolog.Logger
}

func (l gooseLogger) Printf(format string, v ...interface{}) {
	l.log.Info().Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) {
	l.log.Fatal().Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func setup(opts []Option) error {
	cfg := config{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	goose.SetBaseFS(migrationFS)
	goose.SetLogger(gooseLogger{log: cfg.log})
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	return nil
}

func Up(ctx context.Context, db *sql.DB, opts ...Option) error {
	if err := setup(opts); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, "files"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Version reports the latest applied migration.
func Version(ctx context.Context, db *sql.DB) (int64, error) {
	if err := setup(nil); err != nil {
		return 0, err
	}
	version, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return 0, fmt.Errorf("read migration version: %w", err)
	}
	return version, nil
}

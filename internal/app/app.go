package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/atvirokodosprendimai/mongovalidate/internal/adapters/events"
	"github.com/atvirokodosprendimai/mongovalidate/internal/adapters/httpapi"
	mongoadapter "github.com/atvirokodosprendimai/mongovalidate/internal/adapters/mongodb"
	"github.com/atvirokodosprendimai/mongovalidate/internal/adapters/schemaengine"
	sqliteadapter "github.com/atvirokodosprendimai/mongovalidate/internal/adapters/sqlite"
	"github.com/atvirokodosprendimai/mongovalidate/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/mongovalidate/internal/core/ports"
	"github.com/atvirokodosprendimai/mongovalidate/internal/core/usecase"
	"github.com/atvirokodosprendimai/mongovalidate/internal/observability/logging"
	"github.com/atvirokodosprendimai/mongovalidate/internal/observability/metrics"
	"github.com/atvirokodosprendimai/mongovalidate/migrations"
)

type Config struct {
	Addr           string
	MongoURI       string
	MongoDatabase  string
	ConnectTimeout time.Duration
	AllErrors      bool

	DBPath           string
	AuthDisabled     bool
	BootstrapAPIKey  string
	BootstrapKeyName string

	WebhookURL    string
	WebhookSecret string
}

type resourceCloser struct {
	closers []io.Closer
}

func (r resourceCloser) Close() error {
	var firstErr error
	for _, c := range r.closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

type mongoCloser struct {
	client *mongo.Client
}

func (c mongoCloser) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.client.Disconnect(ctx)
}

// Validator is an initialized DocumentValidator together with the client it
// reads from. Closing it disconnects the client.
type Validator struct {
	*usecase.DocumentValidator
	io.Closer
}

// OpenValidator connects to MongoDB and loads every collection schema of
// cfg.MongoDatabase.
func OpenValidator(ctx context.Context, cfg Config) (*Validator, error) {
	client, err := mongoadapter.Connect(ctx, cfg.MongoURI, cfg.ConnectTimeout)
	if err != nil {
		return nil, err
	}
	closer := mongoCloser{client: client}

	var engineOpts []schemaengine.Option
	if cfg.AllErrors {
		engineOpts = append(engineOpts, schemaengine.WithAllErrors())
	}
	validator := usecase.NewDocumentValidator(
		mongoadapter.NewCollectionLister(client.Database(cfg.MongoDatabase)),
		schemaengine.New(engineOpts...),
	)
	if err := validator.Initialize(ctx); err != nil {
		_ = closer.Close()
		return nil, fmt.Errorf("load collection schemas: %w", err)
	}
	return &Validator{DocumentValidator: validator, Closer: closer}, nil
}

func NewServer(ctx context.Context, cfg Config) (*http.Server, io.Closer, error) {
	log := logging.WithComponent("app")

	validator, err := OpenValidator(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	log.Info().
		Str("database", cfg.MongoDatabase).
		Strs("collections", validator.Collections()).
		Msg("collection schemas loaded")

	db, err := gormsqlite.Open(cfg.DBPath, logging.WithComponent("sqlite"))
	if err != nil {
		_ = validator.Close()
		return nil, nil, fmt.Errorf("open sqlite: %w", err)
	}
	closer := resourceCloser{closers: []io.Closer{db, validator}}

	writeSQLDB, err := db.WriteSQLDB()
	if err != nil {
		_ = closer.Close()
		return nil, nil, fmt.Errorf("resolve writer sql db: %w", err)
	}

	migrateCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := migrations.Up(migrateCtx, writeSQLDB, migrations.WithLogger(logging.WithComponent("migrations"))); err != nil {
		_ = closer.Close()
		return nil, nil, err
	}
	if version, err := migrations.Version(migrateCtx, writeSQLDB); err == nil {
		log.Info().Int64("version", version).Str("path", cfg.DBPath).Msg("sqlite schema ready")
	}

	collector := metrics.New(prometheus.DefaultRegisterer)
	collector.SetSchemasLoaded(len(validator.Collections()))

	history := usecase.NewValidationHistory(
		sqliteadapter.NewValidationRunRepository(db),
		usecase.WithPublisher(newPublisher(cfg, log)),
	)

	opts := []httpapi.HandlerOption{
		httpapi.WithHistory(history),
		httpapi.WithMetrics(collector, promhttp.Handler()),
		httpapi.WithLogger(logging.WithComponent("http")),
	}

	if !cfg.AuthDisabled {
		authService := usecase.NewAuthService(sqliteadapter.NewAPIKeyRepository(db))
		if cfg.BootstrapAPIKey != "" {
			bootstrapCtx, bootstrapCancel := context.WithTimeout(ctx, 5*time.Second)
			err := authService.Bootstrap(bootstrapCtx, cfg.BootstrapAPIKey, cfg.BootstrapKeyName)
			bootstrapCancel()
			if err != nil {
				_ = closer.Close()
				return nil, nil, fmt.Errorf("bootstrap api key: %w", err)
			}
		}
		opts = append(opts, httpapi.WithAuth(authService))
	} else {
		log.Warn().Msg("api key authentication disabled")
	}

	handler := httpapi.NewHandler(validator.DocumentValidator, opts...)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return server, closer, nil
}

func newPublisher(cfg Config, log zerolog.Logger) ports.RunPublisher {
	if cfg.WebhookURL == "" {
		return events.NewLogPublisher(log)
	}
	return events.NewWebhookPublisher(cfg.WebhookURL, cfg.WebhookSecret, 0)
}

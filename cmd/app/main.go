package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/atvirokodosprendimai/mongovalidate/internal/app"
	"github.com/atvirokodosprendimai/mongovalidate/internal/core/domain"
	"github.com/atvirokodosprendimai/mongovalidate/internal/observability/logging"
)

func main() {
	cmd := &cli.Command{
		Name:  "mongovalidate",
		Usage: "Validate documents against MongoDB collection $jsonSchema validators",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "mongo-uri",
				Value:   "mongodb://localhost:27017",
				Sources: cli.EnvVars("MONGOVALIDATE_MONGO_URI"),
				Usage:   "MongoDB connection string",
			},
			&cli.StringFlag{
				Name:     "database",
				Sources:  cli.EnvVars("MONGOVALIDATE_DATABASE"),
				Usage:    "Database whose collection validators are loaded",
				Required: true,
			},
			&cli.DurationFlag{
				Name:    "connect-timeout",
				Value:   10 * time.Second,
				Sources: cli.EnvVars("MONGOVALIDATE_CONNECT_TIMEOUT"),
				Usage:   "Server selection and ping timeout",
			},
			&cli.BoolFlag{
				Name:    "all-errors",
				Sources: cli.EnvVars("MONGOVALIDATE_ALL_ERRORS"),
				Usage:   "Report every violation instead of the first one",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   logging.DefaultConfig().Level,
				Sources: cli.EnvVars("MONGOVALIDATE_LOG_LEVEL"),
				Usage:   "debug, info, warn or error",
			},
			&cli.StringFlag{
				Name:    "log-format",
				Value:   logging.DefaultConfig().Format,
				Sources: cli.EnvVars("MONGOVALIDATE_LOG_FORMAT"),
				Usage:   "json or console",
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			logging.Init(logging.Config{Level: c.String("log-level"), Format: c.String("log-format")})
			return ctx, nil
		},
		Commands: []*cli.Command{
			serveCommand(),
			checkCommand(),
			schemasCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.ExitCode())
		}
		log.Fatal().Err(err).Msg("mongovalidate failed")
	}
}

func baseConfig(c *cli.Command) app.Config {
	return app.Config{
		MongoURI:       c.String("mongo-uri"),
		MongoDatabase:  c.String("database"),
		ConnectTimeout: c.Duration("connect-timeout"),
		AllErrors:      c.Bool("all-errors"),
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP validation API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Value:   ":8080",
				Sources: cli.EnvVars("MONGOVALIDATE_ADDR"),
				Usage:   "HTTP listen address",
			},
			&cli.StringFlag{
				Name:    "db-path",
				Value:   "./mongovalidate.sqlite",
				Sources: cli.EnvVars("MONGOVALIDATE_DB_PATH"),
				Usage:   "SQLite file for validation history and API keys",
			},
			&cli.BoolFlag{
				Name:    "auth-disabled",
				Sources: cli.EnvVars("MONGOVALIDATE_AUTH_DISABLED"),
				Usage:   "Serve /v1 routes without an API key",
			},
			&cli.StringFlag{
				Name:    "bootstrap-api-key",
				Sources: cli.EnvVars("MONGOVALIDATE_BOOTSTRAP_API_KEY"),
				Usage:   "Optional API key to upsert at startup",
			},
			&cli.StringFlag{
				Name:    "bootstrap-key-name",
				Value:   "bootstrap",
				Sources: cli.EnvVars("MONGOVALIDATE_BOOTSTRAP_KEY_NAME"),
				Usage:   "Name for bootstrap API key",
			},
			&cli.StringFlag{
				Name:    "webhook-url",
				Sources: cli.EnvVars("MONGOVALIDATE_WEBHOOK_URL"),
				Usage:   "Receiver for failed validation runs; runs are logged when empty",
			},
			&cli.StringFlag{
				Name:    "webhook-secret",
				Sources: cli.EnvVars("MONGOVALIDATE_WEBHOOK_SECRET"),
				Usage:   "HMAC-SHA256 signing secret for outbound webhook requests",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg := baseConfig(c)
			cfg.Addr = c.String("addr")
			cfg.DBPath = c.String("db-path")
			cfg.AuthDisabled = c.Bool("auth-disabled")
			cfg.BootstrapAPIKey = c.String("bootstrap-api-key")
			cfg.BootstrapKeyName = c.String("bootstrap-key-name")
			cfg.WebhookURL = c.String("webhook-url")
			cfg.WebhookSecret = c.String("webhook-secret")

			server, closer, err := app.NewServer(ctx, cfg)
			if err != nil {
				return fmt.Errorf("create server: %w", err)
			}
			defer func() {
				if closeErr := closer.Close(); closeErr != nil {
					log.Error().Err(closeErr).Msg("close resources")
				}
			}()

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("addr", cfg.Addr).Msg("listening")
				errCh <- server.ListenAndServe()
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			select {
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			case sig := <-sigCh:
				log.Info().Str("signal", sig.String()).Msg("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			}
		},
	}
}

func checkCommand() *cli.Command {
	return &cli.Command{
		Name:      "check",
		Usage:     "Validate a JSON document against a collection schema",
		ArgsUsage: "<collection> [file|-]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "pointer",
				Usage: "JSON pointer of a subschema to validate against, e.g. /properties/address",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			collection := c.Args().Get(0)
			if collection == "" {
				return cli.Exit("collection argument is required", 2)
			}
			document, err := readDocument(c.Args().Get(1))
			if err != nil {
				return err
			}

			validator, err := app.OpenValidator(ctx, baseConfig(c))
			if err != nil {
				return err
			}
			defer validator.Close()

			var result domain.ValidationResult
			if pointer := c.String("pointer"); pointer != "" {
				result, err = validator.ValidateRef(domain.SchemaRef{Ref: collection + "#" + pointer}, document)
			} else {
				result, err = validator.Validate(collection, document)
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return err
			}
			if !result.Valid {
				return cli.Exit("", 1)
			}
			return nil
		},
	}
}

func schemasCommand() *cli.Command {
	return &cli.Command{
		Name:  "schemas",
		Usage: "List collections that declare a $jsonSchema validator",
		Action: func(ctx context.Context, c *cli.Command) error {
			validator, err := app.OpenValidator(ctx, baseConfig(c))
			if err != nil {
				return err
			}
			defer validator.Close()

			names := validator.Collections()
			if len(names) == 0 {
				return nil
			}
			_, err = fmt.Fprintln(os.Stdout, strings.Join(names, "\n"))
			return err
		},
	}
}

func readDocument(path string) (json.RawMessage, error) {
	var (
		data []byte
		err  error
	)
	if path == "" || path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	if !json.Valid(data) {
		return nil, errors.New("document is not valid json")
	}
	return json.RawMessage(data), nil
}

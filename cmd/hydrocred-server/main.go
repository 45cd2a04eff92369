package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"

	"github.com/hydrocred/hydrocred/internal/config"
	"github.com/hydrocred/hydrocred/internal/database"
	"github.com/hydrocred/hydrocred/internal/logger"
	"github.com/hydrocred/hydrocred/internal/server"
	"github.com/hydrocred/hydrocred/internal/version"
	sqlfiles "github.com/hydrocred/hydrocred/sql"
)

//	@title			hydrocred-server
//	@description	hydrocred-server certifies green-hydrogen production and hands signed certifications to the
//	@description	credit ledger for minting.
//	@description
//	@description	## Workflow
//	@description	1. A verified producer submits a production request with its evidence bundle (`PENDING`).
//	@description	2. A certifying authority whose jurisdiction covers the producer certifies it (`CERTIFIED`) or rejects it (`REJECTED`).
//	@description	Certification signs an EIP-712 payload with the authority's key. Only one request per evidence batch can be certified.
//	@description	3. The producer claims the mint before the certification expires. The ledger confirms the settlement (`MINTED`).
//	@description
//	@description	## Common Error Responses
//	@description	All endpoints may return:
//	@description	- `413` Request body exceeds size limit
//	@description	- `429` Rate limit exceeded
//	@description	- `500` Internal server error
//	@description
//	@description	Individual endpoints document their specific business logic errors.
//	@description	Errors 7000-7999 are technical errors and 8000-8999 are workflow errors.
//	@description
//	@description	## Request Limits
//	@description	All endpoints are protected by:
//	@description	- **Rate limiting**: Configurable requests per second (see env vars) - default 100 rps (set to 0 to disable)
//	@description	- **Request size limits**: Configurable (see env vars) - default 1MB
//	@description
//	@description	Check the X-Max-Request-Size response header for the configured limit.
//	@description
//	@description	## Authentication
//	@description	The /v1 endpoints require a session token issued by the wallet login service, sent as
//	@description	`Authorization: Bearer <token>`. The token subject is the caller's wallet address.
//	@description
//	@license.name	MIT

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization

//	@servers.url			https://api.hydrocred.example
//	@servers.description	Production server
//	@servers.url			http://localhost:8080
//	@servers.description	Development server

//	@accept		json
//	@produce	json

//	@tag.name			Requests
//	@tag.description	Production request submission, certification and minting

//	@tag.name			Identities
//	@tag.description	Identity directory and verification

//	@tag.name			Common
//	@tag.description	Server API endpoints (health, readiness, version, signing domain)

//	@tag.name			Admin
//	@tag.description	Onboard identities. These endpoints are unprotected and for use in development and testing only.

func main() {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "hydrocred-server",
		Short: "HydroCred certification server",
		Long:  `hydrocred-server runs the production request certification and claim workflow`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply database migrations before starting")

	v := version.Get()
	cmd.Version = fmt.Sprintf("%s (built %s, commit %s)", v.Version, v.BuildDate, v.GitCommit)

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(migrate bool) error {
	cfg, err := config.NewServerConfig()
	if err != nil {
		log.Printf("failed to load configuration: %v", err.Error())
		os.Exit(1)
	}

	appLogger := logger.InitLogger(logger.ParseLogLevel(cfg.LogLevel), cfg.Environment)

	appLogger.Info("Configuration loaded",
		slog.String("ENVIRONMENT", cfg.Environment),
		slog.String("HOST", cfg.Host),
		slog.Int("PORT", cfg.Port),
		slog.String("LOG_LEVEL", cfg.LogLevel),
		slog.Int64("CHAIN_ID", cfg.ChainID),
		slog.String("VERIFYING_CONTRACT", cfg.VerifyingContract),
		slog.String("CERTIFIER_KEYS_DIR", cfg.CertifierKeysDir),
		slog.String("LEDGER_MODE", cfg.LedgerMode),
		slog.Duration("SETTLEMENT_TIMEOUT", cfg.SettlementTimeout),
		slog.String("SESSION_ISSUER", cfg.SessionIssuer),
		slog.Bool("ENABLE_ADMIN_API", cfg.EnableAdminAPI),
	)

	dbCtx, dbCancel := context.WithTimeout(context.Background(), cfg.DatabasePingTimeout)
	defer dbCancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		appLogger.Error("Failed to parse database URL", slog.String("error", err.Error()))
		os.Exit(1)
	}

	poolConfig.MaxConns = cfg.DBMaxConnections
	poolConfig.MinConns = cfg.DBMinConnections
	poolConfig.MaxConnLifetime = cfg.DBMaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.DBMaxConnIdleTime
	poolConfig.ConnConfig.ConnectTimeout = cfg.DBConnectTimeout

	pool, err := pgxpool.NewWithConfig(dbCtx, poolConfig)
	if err != nil {
		appLogger.Error("Unable to create connection pool", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err = pool.Ping(dbCtx); err != nil {
		appLogger.Error("Error pinging database via pool", slog.String("error", err.Error()))
		os.Exit(1)
	}

	appLogger.Info("connected to PostgreSQL")

	if migrate {
		if err := runMigrations(pool); err != nil {
			appLogger.Error("Failed to apply database migrations", slog.String("error", err.Error()))
			os.Exit(1)
		}
		appLogger.Info("database migrations applied")
	}

	// get the sqlc generated database queries
	queries := database.New(pool)

	appLogger.Info("Starting server", slog.String("version", version.Get().Version))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.NewServer(ctx, pool, queries, cfg, appLogger)
	if err != nil {
		appLogger.Error("Failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	defer srv.DatabaseShutdown()

	if err := srv.Start(ctx); err != nil {
		appLogger.Error("Server error", slog.String("error", err.Error()))
		return err
	}

	appLogger.Info("server shutdown complete")
	return nil
}

// runMigrations applies the embedded goose migrations.
func runMigrations(pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(sqlfiles.SchemaFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return goose.Up(db, sqlfiles.SchemaDir)
}

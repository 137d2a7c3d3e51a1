package main

import (
	"context"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"storefront/internal/config"
	"storefront/internal/db"
	"storefront/internal/migrate"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	app := &cli.App{
		Name:  "migrate",
		Usage: "apply or roll back the storefront schema",
		Commands: []*cli.Command{
			{
				Name:  "up",
				Usage: "apply every pending migration",
				Action: func(c *cli.Context) error {
					return withPool(c.Context, logger, func(ctx context.Context, pool *pgxpool.Pool) error {
						return migrate.Apply(ctx, pool, logger)
					})
				},
			},
			{
				Name:  "down",
				Usage: "revert every applied migration",
				Action: func(c *cli.Context) error {
					return withPool(c.Context, logger, func(ctx context.Context, pool *pgxpool.Pool) error {
						if err := migrate.Rollback(ctx, pool); err != nil {
							return err
						}
						logger.Info("migrations rolled back")
						return nil
					})
				},
			},
		},
		DefaultCommand: "up",
	}

	if err := app.RunContext(context.Background(), os.Args); err != nil {
		logger.Fatal("migrate failed", zap.Error(err))
	}
}

func withPool(ctx context.Context, logger *zap.Logger, fn func(context.Context, *pgxpool.Pool) error) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	pool, err := db.Connect(ctx, cfg.DBConnString, logger)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, pool)
}

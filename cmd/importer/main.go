package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"storefront/internal/config"
	"storefront/internal/db"
	"storefront/internal/importer"
	"storefront/internal/repository/product"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	app := &cli.App{
		Name:  "importer",
		Usage: "import or restock catalog products from a CSV file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "path to the product CSV",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "dsn",
				Usage:   "postgres connection string (defaults to DB_DSN)",
				EnvVars: []string{"IMPORT_DB_DSN"},
			},
		},
		Action: func(c *cli.Context) error {
			return run(c.Context, logger, c.String("file"), c.String("dsn"))
		},
	}

	if err := app.RunContext(context.Background(), os.Args); err != nil {
		logger.Fatal("import failed", zap.Error(err))
	}
}

func run(ctx context.Context, logger *zap.Logger, path, dsn string) error {
	if dsn == "" {
		cfg, err := config.FromEnv()
		if err != nil {
			return err
		}
		dsn = cfg.DBConnString
	}

	pool, err := db.Connect(ctx, dsn, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	imp := importer.NewCSVImporter(f, product.NewPostgres(pool, logger), logger)

	start := time.Now()
	res, err := imp.Run(ctx)
	if err != nil {
		return err
	}

	logger.Info("import finished",
		zap.Int("imported", res.Imported),
		zap.Int("skipped", res.Skipped),
		zap.Duration("took", time.Since(start).Truncate(time.Millisecond)))
	return nil
}

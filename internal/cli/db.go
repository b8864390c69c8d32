package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/HanTheDev/phish-guard/internal/db"
)

var errNoDatabase = errors.New("DATABASE_URL or --database-url is required")

// openDatabase connects to the configured Postgres instance.
func (e *environment) openDatabase(ctx context.Context) (*db.DB, error) {
	if e.globals.DatabaseURL == "" {
		return nil, errNoDatabase
	}
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	database, err := db.NewDB(connectCtx, e.globals.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return database, nil
}

// Execute implements the go-flags Commander interface for MigrateCommand.
func (c *MigrateCommand) Execute(args []string) error {
	ctx := context.Background()
	database, err := c.env.openDatabase(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		return err
	}
	fmt.Fprintln(c.env.stdout, "Migrations applied.")
	return nil
}

// Execute implements the go-flags Commander interface for PruneCommand.
func (c *PruneCommand) Execute(args []string) error {
	ctx := context.Background()
	database, err := c.env.openDatabase(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	n, err := database.DeleteExpiredURLCache(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("prune url_cache: %w", err)
	}

	if c.env.globals.JSON {
		fmt.Fprintf(c.env.stdout, "{\"deleted\":%d}\n", n)
		return nil
	}
	fmt.Fprintf(c.env.stdout, "Deleted %d expired cache entries.\n", n)
	return nil
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	dbfs "github.com/garnizeh/triad/db"
	"github.com/garnizeh/triad/internal/config"
	"github.com/garnizeh/triad/internal/db"
	"github.com/garnizeh/triad/internal/repository/sqlite"
	"github.com/garnizeh/triad/pkg/models"
)

func main() {
	name := flag.String("name", "", "Display name for a new profile")
	role := flag.String("role", string(models.RoleMentee), "Role for a new profile")
	flag.Parse()

	if err := run(context.Background(), *name, *role); err != nil {
		fmt.Fprintf(os.Stderr, "db_init: %v\n", err)
		os.Exit(1)
	}
}

// run migrates the configured database and creates the profile if none exists.
// An existing profile is left untouched.
func run(ctx context.Context, name, role string) error {
	r, err := models.ParseRole(role)
	if err != nil {
		return err
	}
	cfg, err := config.LoadConfig("")
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	database, err := db.New(ctx, cfg.DatabasePath, nil)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.Migrate(ctx, database, dbfs.Migrations, dbfs.SeedFiles); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	p, err := sqlite.New(database, nil).CreateProfileIfAbsent(ctx, name, r)
	if err != nil {
		return fmt.Errorf("profile: %w", err)
	}

	fmt.Printf("%s ready: profile %s (%s)\n", cfg.DatabasePath, p.ID, p.CurrentRole.DisplayName())
	return nil
}

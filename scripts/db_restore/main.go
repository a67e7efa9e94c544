package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	dbfs "github.com/garnizeh/triad/db"
	"github.com/garnizeh/triad/internal/backup"
	"github.com/garnizeh/triad/internal/config"
	"github.com/garnizeh/triad/internal/db"
	"github.com/garnizeh/triad/internal/repository/sqlite"
)

func main() {
	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	src := flag.String("in", cfg.Backup.Path, "Backup file to restore, plain or zstd")
	flag.Parse()

	ctx := context.Background()
	doc, err := backup.ReadFile(*src)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Restore error: %v\n", err)
		os.Exit(1)
	}

	database, err := db.New(ctx, cfg.DatabasePath, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Restore error: %v\n", err)
		os.Exit(1)
	}
	defer database.Close()
	if err := db.Migrate(ctx, database, dbfs.Migrations, dbfs.SeedFiles); err != nil {
		fmt.Fprintf(os.Stderr, "Restore error: %v\n", err)
		os.Exit(1)
	}

	// The import replaces every collection in one transaction; a bad file leaves the store as it was.
	if err := backup.New(sqlite.New(database, nil), nil, nil).ImportAll(ctx, doc); err != nil {
		fmt.Fprintf(os.Stderr, "Restore error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Database restore completed.")
}

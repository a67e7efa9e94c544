package main

import (
	"context"
	"flag"
	"fmt"
	"os"

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
	dst := flag.String("out", cfg.Backup.Path, "Backup file; a .zst suffix compresses it")
	flag.Parse()

	ctx := context.Background()
	database, err := db.New(ctx, cfg.DatabasePath, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Backup error: %v\n", err)
		os.Exit(1)
	}
	defer database.Close()

	doc, err := backup.New(sqlite.New(database, nil), nil, nil).ExportAll(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Backup error: %v\n", err)
		os.Exit(1)
	}
	if err := backup.WriteFile(*dst, doc); err != nil {
		fmt.Fprintf(os.Stderr, "Backup error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Database backup written to %s.\n", *dst)
}

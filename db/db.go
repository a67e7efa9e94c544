// Package db embeds the schema migrations and the default settings seeded on first run.
package db

import "embed"

// Migrations are applied in file name order and recorded in schema_migrations.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// SeedFiles hold default settings; a seeded key never overwrites a stored one.
//
//go:embed seed/*.json
var SeedFiles embed.FS

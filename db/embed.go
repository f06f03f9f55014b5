// Package db provides the embedded database schema and catalog seed data.
package db

import _ "embed"

// Schema contains the DDL statements for all application tables. Every
// statement is idempotent so the schema can be applied on each startup.
//
//go:embed migrations/001_schema.sql
var Schema string

// SeedProducts contains the fixed toy catalog as JSON.
//
//go:embed seed/products.json
var SeedProducts []byte

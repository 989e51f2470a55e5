// Package db provides the embedded database schema and catalog seed data.
package db

import _ "embed"

// Schema contains the DDL statements for all application tables.
//
//go:embed migrations/001_schema.sql
var Schema string

// SeedProducts is the default product catalog as a JSON array.
//
//go:embed seed/products.json
var SeedProducts []byte

// SeedPromotions is the default promotion set as a JSON array.
//
//go:embed seed/promotions.json
var SeedPromotions []byte

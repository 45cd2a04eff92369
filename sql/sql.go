// Package sqlfiles embeds the goose migrations so the server binary can apply them with --migrate.
package sqlfiles

import "embed"

//go:embed schema/*.sql
var SchemaFS embed.FS

// SchemaDir is the directory within SchemaFS that holds the migrations.
const SchemaDir = "schema"

package store

import "embed"

//go:embed migration
var migrationFS embed.FS

// latestSchemaFileName is the full schema applied to fresh installations.
const latestSchemaFileName = "LATEST.sql"

// Package migrations ships the SQL schema with the server binary.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

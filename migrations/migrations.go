// Package migrations holds the Postgres schema applied by the server when
// postgres.migrate is set.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

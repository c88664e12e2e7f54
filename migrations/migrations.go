// Package migrations embeds the schema for every supported driver so binaries and tests share one source.
package migrations

import "embed"

//go:embed postgres/*.sql sqlite3/*.sql
var FS embed.FS

// Package todo embeds the goose migrations for the todos table.
package todo

import "embed"

// FS holds every *.sql migration in this directory.
//
//go:embed *.sql
var FS embed.FS

// Package schemas holds the JSON Schema documents for the job token payload and the
// progress envelope returned by the phylogeny API.
package schemas

import "embed"

// FS contains every *.schema.json file in this directory.
//
//go:embed *.schema.json
var FS embed.FS

// Package web embeds the demo client: a single page that exercises the full
// session, challenge, and verify flow against a running server.
package web

import (
	"embed"
	"io/fs"
)

//go:embed static
var static embed.FS

// Static is the embedded demo client, rooted so index.html sits at /.
var Static fs.FS

func init() {
	var err error
	Static, err = fs.Sub(static, "static")
	if err != nil {
		panic(err)
	}
}

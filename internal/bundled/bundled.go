// Package bundled exposes the artifacts compiled into the binary as a
// repository the resolver consults after its cache.
package bundled

import (
	"embed"
	"io/fs"
)

//go:embed repository
var files embed.FS

// Repository returns the bundled artifacts rooted at the repository
// directory.
func Repository() fs.FS {
	sub, err := fs.Sub(files, "repository")
	if err != nil {
		panic(err)
	}
	return sub
}

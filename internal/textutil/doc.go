// Package textutil provides filename-safe key helpers and small string
// utilities shared by the CLI and the download pipeline.
package textutil

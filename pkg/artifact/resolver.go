package artifact

import (
	"log/slog"
	"os"
	"path/filepath"
)

// Default artifact directories.
const (
	DefaultPrimaryDir    = "./data"
	DefaultDeprecatedDir = "./app/data"
)

// Resolver finds artifact files in the primary directory, falling back to the
// deprecated directory. Falling back is always logged.
type Resolver struct {
	Primary    string
	Deprecated string
	Logger     *slog.Logger
}

// NewResolver returns a Resolver over the two directories. Empty primary uses
// DefaultPrimaryDir; an empty deprecated dir disables the fallback.
func NewResolver(primary, deprecated string, log *slog.Logger) *Resolver {
	if primary == "" {
		primary = DefaultPrimaryDir
	}
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{Primary: primary, Deprecated: deprecated, Logger: log}
}

// Resolve returns the path of the first regular file named filename in
// Primary, then Deprecated.
func (r *Resolver) Resolve(filename string) (string, bool) {
	if filename == "" {
		return "", false
	}
	if p := filepath.Join(r.Primary, filename); isFile(p) {
		return p, true
	}
	if r.Deprecated == "" {
		return "", false
	}
	p := filepath.Join(r.Deprecated, filename)
	if !isFile(p) {
		return "", false
	}
	r.logger().Warn("using deprecated artifact path, please move files to the primary directory",
		"path", p, "primary", r.Primary)
	return p, true
}

func (r *Resolver) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

func isFile(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi.Mode().IsRegular()
}

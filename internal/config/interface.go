package config

import "context"

// Loader is the interface for a format-specific definition loader.
type Loader interface {
	// Load reads every definition file of the loader's format found under
	// the given paths (files or directories) and returns the merged model.
	Load(ctx context.Context, paths ...string) (*Model, error)
}

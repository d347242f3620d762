package settings

import (
	"context"
	"fmt"
	"path/filepath"
)

// Store drivers accepted by NewBackend.
const (
	DriverJSON   = "json"
	DriverSQLite = "sqlite"
)

// BackendConfig selects and configures a backend.
type BackendConfig struct {
	Driver      string
	Path        string
	WAL         *bool
	BusyTimeout int
}

// NewBackend opens the backend named by cfg.Driver. An empty path resolves
// to the driver's default file inside dataDir.
func NewBackend(ctx context.Context, cfg BackendConfig, dataDir string) (Backend, error) {
	switch cfg.Driver {
	case "", DriverJSON:
		path := cfg.Path
		if path == "" {
			path = filepath.Join(dataDir, DefaultJSONFile)
		}
		return NewJSONFile(path), nil
	case DriverSQLite:
		path := cfg.Path
		if path == "" {
			path = filepath.Join(dataDir, DefaultSQLiteFile)
		}
		db, err := OpenSQLite(ctx, SQLiteConfig{Path: path, WAL: cfg.WAL, BusyTimeout: cfg.BusyTimeout})
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"directory/internal/config"
	"directory/internal/profile"
)

// OpenProfiles opens the profile backend named by STORE_BACKEND. The returned
// close func releases whatever the backend holds.
func OpenProfiles(ctx context.Context, cfg config.App, log *zap.Logger) (profile.Store, func(), error) {
	switch cfg.StoreBackend {
	case "postgres":
		db, err := NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		pg, err := profile.NewPostgresStore(ctx, db.Client)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		log.Info("profile store ready", zap.String("backend", "postgres"))
		return pg, func() { _ = db.Close() }, nil
	case "file", "":
		fs, err := profile.OpenFileStore(cfg.DataFile)
		if err != nil {
			return nil, nil, err
		}
		log.Info("profile store ready", zap.String("backend", "file"), zap.String("path", cfg.DataFile))
		return fs, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
}

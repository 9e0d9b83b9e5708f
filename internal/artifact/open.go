package artifact

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Config selects the artifact backend. S3 wins over Postgres, Postgres over
// a local directory.
type Config struct {
	Dir         string   `yaml:"dir"`
	DatabaseURL string   `yaml:"database_url"`
	S3          S3Config `yaml:"s3"`
}

// Open builds the configured store wrapped in a CachedStore. It returns
// ErrNotConfigured when no backend is set.
func Open(cfg Config, logger *zap.Logger) (*CachedStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var origin Store
	switch {
	case cfg.S3.Complete():
		s3, err := NewS3Store(cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("artifact: %w", err)
		}
		logger.Info("artifact store", zap.String("backend", "s3"), zap.String("bucket", cfg.S3.Bucket))
		origin = s3
	case strings.TrimSpace(cfg.DatabaseURL) != "":
		pg, err := OpenPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		logger.Info("artifact store", zap.String("backend", "postgres"))
		origin = pg
	case strings.TrimSpace(cfg.Dir) != "":
		logger.Info("artifact store", zap.String("backend", "disk"), zap.String("dir", cfg.Dir))
		origin = NewDiskStore(cfg.Dir)
	default:
		return nil, ErrNotConfigured
	}
	return NewCachedStore(origin, DefaultCacheConfig()), nil
}

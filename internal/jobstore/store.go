// Package jobstore provides the key-addressed object store shared by all
// answering agents and the coordination process. It serves as both the work
// queue (question jobs) and the append log (answers, audit events). No
// transactional guarantees are assumed across keys; visibility is
// at-least-once and eventually consistent.
package jobstore

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/arbiter-labs/verdict-cli/internal/config"
)

// Store is the key-object contract every driver implements.
//
// Get returns (nil, nil) for an absent key so callers can distinguish
// "not there" from a transport failure.
type Store interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// escapeLikePrefix escapes LIKE metacharacters so a key prefix matches
// literally in the SQL drivers. Request contexts are opaque strings and
// routinely contain underscores.
func escapeLikePrefix(prefix string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
}

// Open selects a driver from configuration.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "memory":
		return NewMemory(), nil
	case "sqlite":
		st, err := NewSQLite(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, err
		}
		return st, nil
	case "postgres":
		st, err := NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, err
		}
		return st, nil
	case "s3":
		return NewS3(ctx, cfg.Bucket, cfg.Region, cfg.KeyPrefix)
	default:
		return nil, eris.Errorf("jobstore: unknown driver %q", cfg.Driver)
	}
}

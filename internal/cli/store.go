package cli

import (
	"encoding/base64"
	"fmt"
	"os"

	"github.com/aretw0/appflow/pkg/adapters/redis"
	"github.com/aretw0/appflow/pkg/persistence"
	"github.com/aretw0/appflow/pkg/persistence/file"
	"github.com/aretw0/appflow/pkg/persistence/middleware"
)

// StoreKeyEnv names the variable holding the base64 AES-256 key that
// encrypts stored snapshots.
const StoreKeyEnv = "APPFLOW_STORE_KEY"

// Store is the snapshot store a Config selects.
type Store struct {
	persistence.Store
	// Redis is the publisher behind Store when it is Redis-backed.
	Redis *redis.Publisher
}

// Close releases the Redis connection, if any.
func (s *Store) Close() error {
	if s.Redis == nil {
		return nil
	}
	return s.Redis.Close()
}

// OpenStore returns the snapshot store cfg selects: Redis when RedisAddr is
// set, else the StoreDir directory. It returns nil when neither is set. The
// store is wrapped with PII masking and, if StoreKeyEnv is set, encryption.
func OpenStore(cfg Config) (*Store, error) {
	s := &Store{}
	switch {
	case cfg.RedisAddr != "":
		s.Redis = redis.New(cfg.RedisAddr, "", 0)
		s.Store = s.Redis
	case cfg.StoreDir != "":
		s.Store = file.New(cfg.StoreDir)
	default:
		return nil, nil
	}

	mws, err := storeMiddleware(cfg)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.Store = middleware.Chain(s.Store, mws...)
	return s, nil
}

func storeMiddleware(cfg Config) ([]middleware.Middleware, error) {
	var mws []middleware.Middleware
	if len(cfg.MaskKeys) > 0 {
		pii, err := middleware.NewPII(cfg.MaskKeys)
		if err != nil {
			return nil, err
		}
		mws = append(mws, pii)
	}
	if encoded := os.Getenv(StoreKeyEnv); encoded != "" {
		key, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", StoreKeyEnv, err)
		}
		enc, err := middleware.NewEncryption(middleware.EncryptionConfig{ActiveKey: key})
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", StoreKeyEnv, err)
		}
		mws = append(mws, enc)
	}
	return mws, nil
}

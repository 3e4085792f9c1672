package index

import (
	"fmt"
	"time"

	"github.com/compintel/cibot/config"
	"github.com/compintel/cibot/internal/index/memory"
	"github.com/compintel/cibot/internal/index/pinecone"
	"github.com/compintel/cibot/internal/index/redisindex"
)

// NewVectorStore builds the configured backend. One store handle is
// shared process-wide; isolation comes from per-request namespaces.
func NewVectorStore(cfg config.IndexConfig) (VectorStore, error) {
	switch cfg.Backend {
	case "", "memory":
		return memory.NewStore(), nil
	case "redis":
		return redisindex.NewStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL), nil
	case "pinecone":
		return pinecone.NewStore(cfg.Pinecone.APIKey, cfg.Pinecone.IndexHost, 30*time.Second), nil
	default:
		return nil, fmt.Errorf("unsupported index backend: %s", cfg.Backend)
	}
}

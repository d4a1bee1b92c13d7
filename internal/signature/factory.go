package signature

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/calebjordan/gca-chat-core/internal/config"
)

// BuildStore selects and constructs the durable L2 backend named by
// cfg.Backend, defaulting to the file store when empty. Grounded on
// cmd/server/main.go's "prefer the Postgres store when configured,
// otherwise fall back to local files" if/else chain, narrowed to this
// module's two backends (no git/object-store alternatives) and to the
// signature cache's own Store interface rather than the teacher's
// config/token store.
func BuildStore(ctx context.Context, cfg config.SignatureCacheConfig, authDir string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "file":
		dir := cfg.Dir
		if dir == "" {
			dir = filepath.Join(authDir, "signature-cache")
		}
		return NewFileStore(dir)
	case "postgres":
		return NewPostgresStore(ctx, PostgresStoreConfig{DSN: cfg.DSN})
	default:
		return nil, fmt.Errorf("signature: unknown backend %q", cfg.Backend)
	}
}

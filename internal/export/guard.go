package export

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Guard admits one export per key at a time.
type Guard interface {
	// Acquire returns ErrBusy when key is already held. The release function
	// must be called exactly once.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

func guardKey(viewer string) string {
	viewer = strings.ToLower(strings.TrimSpace(viewer))
	if viewer == "" {
		return "anonymous"
	}
	return viewer
}

// MemoryGuard is a process-local Guard.
type MemoryGuard struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewMemoryGuard constructs a MemoryGuard.
func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{held: make(map[string]struct{})}
}

// Acquire implements Guard.
func (g *MemoryGuard) Acquire(_ context.Context, key string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.held[key]; ok {
		return nil, ErrBusy
	}
	g.held[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.held, key)
			g.mu.Unlock()
		})
	}, nil
}

// releaseScript deletes the lock only when it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisGuard shares the busy state between replicas. Locks expire after ttl
// so a crashed replica cannot block a viewer forever.
type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisGuard constructs a RedisGuard.
func NewRedisGuard(client *redis.Client, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisGuard{client: client, ttl: ttl, prefix: "resumail:export:lock:"}
}

// Acquire implements Guard.
func (g *RedisGuard) Acquire(ctx context.Context, key string) (func(), error) {
	redisKey := g.prefix + key
	token := uuid.NewString()
	ok, err := g.client.SetNX(ctx, redisKey, token, g.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrBusy
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = releaseScript.Run(releaseCtx, g.client, []string{redisKey}, token).Err()
		})
	}, nil
}

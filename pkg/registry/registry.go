// Package registry binds a resolver identity to a swap id. The binding is
// first-registration-wins and permanent for the life of the intent, which is
// what prevents two resolvers racing to fill the same swap and double-spending
// their destination-side liquidity.
package registry

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/crossmesh/fusion/pkg/ledger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
)

var ErrAlreadyRegistered = errors.New("swap already has a registered resolver")

type Registry interface {
	// Register binds the resolver to the swap. Fails with a state error when a
	// resolver is already bound, whether or not it is the same one.
	Register(ctx context.Context, swapID common.Hash, resolver string) error

	// Resolver returns the bound resolver, or ok=false when none is bound.
	Resolver(ctx context.Context, swapID common.Hash) (string, bool, error)
}

type memory struct {
	mu        sync.Mutex
	resolvers map[common.Hash]string
}

// NewInMemory returns a process-local registry, used by the local daemon mode
// and tests.
func NewInMemory() Registry {
	return &memory{resolvers: map[common.Hash]string{}}
}

func (m *memory) Register(ctx context.Context, swapID common.Hash, resolver string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if bound, ok := m.resolvers[swapID]; ok {
		return ledger.Statef("registry.Register", "%w: %v bound to %v", ErrAlreadyRegistered, swapID, bound)
	}
	m.resolvers[swapID] = resolver
	return nil
}

func (m *memory) Resolver(ctx context.Context, swapID common.Hash) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	resolver, ok := m.resolvers[swapID]
	return resolver, ok, nil
}

type redisRegistry struct {
	client *redis.Client
}

// NewRedis returns a registry shared between resolver processes. SET NX gives
// the first-registration-wins answer atomically on the redis side.
func NewRedis(redisURL string) (Registry, error) {
	parsedURL, err := url.Parse(redisURL)
	if err != nil {
		return nil, err
	}
	redisPassword, _ := parsedURL.User.Password()
	client := redis.NewClient(&redis.Options{
		Addr:     parsedURL.Host,
		Password: redisPassword,
		DB:       0, // Use default DB.
	})
	return &redisRegistry{client: client}, nil
}

func (r *redisRegistry) Register(ctx context.Context, swapID common.Hash, resolver string) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	ok, err := r.client.SetNX(ctx, resolverKey(swapID), resolver, 0).Result()
	if err != nil {
		return ledger.Transientf("registry.Register", "redis: %v", err)
	}
	if !ok {
		bound, _ := r.client.Get(ctx, resolverKey(swapID)).Result()
		return ledger.Statef("registry.Register", "%w: %v bound to %v", ErrAlreadyRegistered, swapID, bound)
	}
	return nil
}

func (r *redisRegistry) Resolver(ctx context.Context, swapID common.Hash) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	resolver, err := r.client.Get(ctx, resolverKey(swapID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, ledger.Transientf("registry.Resolver", "redis: %v", err)
	}
	return resolver, true, nil
}

func resolverKey(swapID common.Hash) string {
	return fmt.Sprintf("resolver-%v", swapID.Hex())
}

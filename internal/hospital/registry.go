package hospital

import (
	"context"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/medinet/federation-api/internal/model"
	"github.com/medinet/federation-api/internal/repository"
)

// ClientFactory builds a client for one hospital. Overridable in tests.
type ClientFactory func(hosp *model.Hospital) Client

// Registry resolves hospital IDs to clients, backed by the hospital
// directory with a short-TTL cache. Clients are built once per hospital
// and reused so circuit breaker state survives across queries.
type Registry struct {
	repo    repository.HospitalRepository
	dir     *gocache.Cache
	factory ClientFactory
	logger  zerolog.Logger

	mu      sync.RWMutex
	clients map[string]Client
}

type RegistryConfig struct {
	DirectoryCacheTTL time.Duration
	ClientConfig      HTTPClientConfig
}

func NewRegistry(repo repository.HospitalRepository, cfg RegistryConfig, logger zerolog.Logger) *Registry {
	r := &Registry{
		repo:    repo,
		dir:     gocache.New(cfg.DirectoryCacheTTL, 2*cfg.DirectoryCacheTTL),
		clients: make(map[string]Client),
		logger:  logger,
	}
	r.factory = func(hosp *model.Hospital) Client {
		return NewHTTPClient(hosp, cfg.ClientConfig, logger)
	}
	return r
}

// SetFactory replaces the client constructor. Used by tests to inject
// fakes.
func (r *Registry) SetFactory(factory ClientFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factory = factory
	r.clients = make(map[string]Client)
}

// Hospital returns the directory entry for id, from cache when fresh.
func (r *Registry) Hospital(ctx context.Context, id string) (*model.Hospital, error) {
	if cached, ok := r.dir.Get(id); ok {
		return cached.(*model.Hospital), nil
	}

	hosp, err := r.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve hospital %s: %w", id, err)
	}

	r.dir.SetDefault(id, hosp)
	return hosp, nil
}

// List returns all active hospitals in the directory.
func (r *Registry) List(ctx context.Context) ([]*model.Hospital, error) {
	return r.repo.List(ctx)
}

// ClientFor returns the client for a hospital, building it on first use.
func (r *Registry) ClientFor(ctx context.Context, hospitalID string) (Client, error) {
	r.mu.RLock()
	client, ok := r.clients[hospitalID]
	r.mu.RUnlock()
	if ok {
		return client, nil
	}

	hosp, err := r.Hospital(ctx, hospitalID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if client, ok := r.clients[hospitalID]; ok {
		return client, nil
	}

	client = r.factory(hosp)
	r.clients[hospitalID] = client
	return client, nil
}

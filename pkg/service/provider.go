//nolint:whitespace //can't make both the linter and editor happy :(
package service

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/enduroplan/fueltrace-service-go/pkg/model"
	"github.com/enduroplan/fueltrace-service-go/pkg/repository/provider"
	"github.com/enduroplan/fueltrace-service-go/pkg/utils"
	"github.com/enduroplan/fueltrace-service-go/pkg/utils/cache"
	"github.com/enduroplan/fueltrace-service-go/pkg/utils/cache/loadercache"
)

type ProviderService struct {
	pool *pgxpool.Pool
}

func InitProviderService(pool *pgxpool.Pool) *ProviderService {
	providerService := ProviderService{pool: pool}
	return &providerService
}

// CreateProvider issues a fresh API key for the named provider.
// The plain key is returned exactly once, only its hash is stored.
func (s *ProviderService) CreateProvider(
	ctx context.Context,
	name string,
) (*model.DbProvider, string, error) {
	apiKey := uuid.Must(uuid.NewV4()).String()
	entry := &model.DbProvider{
		Name:       name,
		APIKeyHash: utils.HashAPIKey(apiKey),
		Active:     true,
	}
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := provider.Create(ctx, tx.Conn(), entry)
		return err
	})
	if err != nil {
		return nil, "", err
	}
	return entry, apiKey, nil
}

func (s *ProviderService) GetProviders(
	ctx context.Context,
) ([]*model.DbProvider, error) {
	return provider.LoadAll(ctx, s.pool)
}

func (s *ProviderService) SetActive(
	ctx context.Context,
	id uuid.UUID,
	active bool,
) (int, error) {
	return provider.SetActive(ctx, s.pool, id, active)
}

func (s *ProviderService) DeleteProvider(
	ctx context.Context,
	id uuid.UUID,
) (int, error) {
	return provider.DeleteById(ctx, s.pool, id)
}

// NewProviderCache builds the lookup cache used by the auth middleware.
// Key changes (revoked or recreated providers) take effect after ttl.
func NewProviderCache(
	pool *pgxpool.Pool,
	ttl time.Duration,
) cache.Cache[string, model.DbProvider] {
	return loadercache.New[string, model.DbProvider](
		loadercache.WithLoader[string, model.DbProvider](
			func(ctx context.Context, keyHash string) (*model.DbProvider, error) {
				return provider.LoadByKeyHash(ctx, pool, keyHash)
			}),
		loadercache.WithExpiration[string, model.DbProvider](ttl))
}

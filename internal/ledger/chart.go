package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const chartCacheKey = "ledger:chart:accounts"

// AccountRepository provides read-only chart lookups.
type AccountRepository interface {
	ListAccounts(ctx context.Context) ([]Account, error)
}

// ChartService resolves general-ledger accounts by code. The chart is fixed
// reference data, so reads go through an optional Redis cache and concurrent
// cold loads collapse into one repository query.
type ChartService struct {
	repo  AccountRepository
	cache *redis.Client
	ttl   time.Duration
	group singleflight.Group
}

// NewChartService constructs the chart lookup. The cache client may be nil.
func NewChartService(repo AccountRepository, cache *redis.Client, ttl time.Duration) *ChartService {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &ChartService{repo: repo, cache: cache, ttl: ttl}
}

// AccountsByCode returns every account indexed by its chart code.
func (s *ChartService) AccountsByCode(ctx context.Context) (map[string]Account, error) {
	v, err, _ := s.group.Do(chartCacheKey, func() (any, error) {
		return s.load(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]Account), nil
}

// AccountByCode resolves a single account.
func (s *ChartService) AccountByCode(ctx context.Context, code string) (Account, error) {
	accounts, err := s.AccountsByCode(ctx)
	if err != nil {
		return Account{}, err
	}
	account, ok := accounts[code]
	if !ok {
		return Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, code)
	}
	return account, nil
}

// Invalidate drops the cached chart, e.g. after seeding.
func (s *ChartService) Invalidate(ctx context.Context) {
	if s.cache != nil {
		_ = s.cache.Del(ctx, chartCacheKey).Err()
	}
}

func (s *ChartService) load(ctx context.Context) (map[string]Account, error) {
	if s.cache != nil {
		raw, err := s.cache.Get(ctx, chartCacheKey).Bytes()
		if err == nil {
			var accounts []Account
			if err := json.Unmarshal(raw, &accounts); err == nil {
				return indexByCode(accounts), nil
			}
		}
	}
	accounts, err := s.repo.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger: list accounts: %w", err)
	}
	if s.cache != nil {
		if raw, err := json.Marshal(accounts); err == nil {
			_ = s.cache.Set(ctx, chartCacheKey, raw, s.ttl).Err()
		}
	}
	return indexByCode(accounts), nil
}

func indexByCode(accounts []Account) map[string]Account {
	index := make(map[string]Account, len(accounts))
	for _, account := range accounts {
		index[account.Code] = account
	}
	return index
}

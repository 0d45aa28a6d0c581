// internal/cache/catalog.go
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/jason-s-yu/arcade/internal/database"
	"github.com/jason-s-yu/arcade/internal/models"
)

const (
	keyActiveGames = "games:active"
	prefixGame     = "game:"
	prefixRating   = "rating:"
	prefixReviews  = "reviews:"
)

// Catalog is a read-through cache in front of a Store. Reads of games and
// ratings are served from memory for ttl; concurrent misses on one key share
// a single store query. Writes go straight to the store and evict what they
// touch.
type Catalog struct {
	database.Store

	ttl   time.Duration
	cache *gocache.Cache
	group singleflight.Group
}

// NewCatalog wraps store. A zero ttl disables caching.
func NewCatalog(store database.Store, ttl time.Duration) *Catalog {
	cleanup := 2 * ttl
	if cleanup <= 0 {
		cleanup = time.Minute
	}
	return &Catalog{
		Store: store,
		ttl:   ttl,
		cache: gocache.New(ttl, cleanup),
	}
}

func getOrFetch[T any](c *Catalog, ctx context.Context, key string, fetch func(context.Context) (T, error)) (T, error) {
	var zero T
	if c.ttl <= 0 {
		return fetch(ctx)
	}
	if v, found := c.cache.Get(key); found {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if cached, found := c.cache.Get(key); found {
			if typed, ok := cached.(T); ok {
				return typed, nil
			}
		}
		fetched, err := fetch(ctx)
		if err != nil {
			return zero, err
		}
		c.cache.Set(key, fetched, c.ttl)
		return fetched, nil
	})
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected type in cache for key %s", key)
	}
	return typed, nil
}

// GetGame returns a copy of the cached entry; callers may mutate it.
func (c *Catalog) GetGame(ctx context.Context, id int) (*models.Game, error) {
	g, err := getOrFetch(c, ctx, fmt.Sprintf("%s%d", prefixGame, id), func(ctx context.Context) (models.Game, error) {
		g, err := c.Store.GetGame(ctx, id)
		if err != nil {
			return models.Game{}, err
		}
		return *g, nil
	})
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (c *Catalog) ListActiveGames(ctx context.Context) ([]models.Game, error) {
	games, err := getOrFetch(c, ctx, keyActiveGames, c.Store.ListActiveGames)
	if err != nil {
		return nil, err
	}
	return append([]models.Game(nil), games...), nil
}

func (c *Catalog) CreateGame(ctx context.Context, g *models.Game) error {
	if err := c.Store.CreateGame(ctx, g); err != nil {
		return err
	}
	c.cache.Delete(keyActiveGames)
	c.cache.Delete(fmt.Sprintf("%s%d", prefixGame, g.ID))
	return nil
}

func (c *Catalog) GetRating(ctx context.Context, gameID int) (models.Rating, error) {
	return getOrFetch(c, ctx, fmt.Sprintf("%s%d", prefixRating, gameID), func(ctx context.Context) (models.Rating, error) {
		return c.Store.GetRating(ctx, gameID)
	})
}

func (c *Catalog) RecentReviews(ctx context.Context, gameID, limit int) ([]models.Review, error) {
	key := fmt.Sprintf("%s%d:%d", prefixReviews, gameID, limit)
	revs, err := getOrFetch(c, ctx, key, func(ctx context.Context) ([]models.Review, error) {
		return c.Store.RecentReviews(ctx, gameID, limit)
	})
	if err != nil {
		return nil, err
	}
	return append([]models.Review(nil), revs...), nil
}

func (c *Catalog) AddReview(ctx context.Context, r *models.Review) error {
	if err := c.Store.AddReview(ctx, r); err != nil {
		return err
	}
	c.cache.Delete(fmt.Sprintf("%s%d", prefixRating, r.GameID))
	c.deleteByPrefix(fmt.Sprintf("%s%d:", prefixReviews, r.GameID))
	return nil
}

func (c *Catalog) deleteByPrefix(prefix string) {
	for key := range c.cache.Items() {
		if strings.HasPrefix(key, prefix) {
			c.cache.Delete(key)
		}
	}
}

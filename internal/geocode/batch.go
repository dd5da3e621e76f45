package geocode

import (
	"context"
	"log/slog"
	"sync"

	"github.com/foodfinderyyc/smsbot/internal/models"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// DefaultBatchRate is the provider's request limit per second.
const DefaultBatchRate = 50

// FreeformGeocoder geocodes full addresses without accuracy restriction.
type FreeformGeocoder interface {
	GeocodeFreeform(ctx context.Context, text string) (models.Coordinate, error)
}

// BatchGeocoder geocodes many addresses concurrently while staying under the
// provider's request rate.
type BatchGeocoder struct {
	geocoder    FreeformGeocoder
	limiter     *rate.Limiter
	concurrency int
}

// NewBatchGeocoder creates a batch geocoder allowing perSecond requests per second.
func NewBatchGeocoder(g FreeformGeocoder, perSecond int) *BatchGeocoder {
	if perSecond <= 0 {
		perSecond = DefaultBatchRate
	}
	return &BatchGeocoder{
		geocoder:    g,
		limiter:     rate.NewLimiter(rate.Limit(perSecond), perSecond),
		concurrency: perSecond,
	}
}

// BatchResult holds the coordinates that resolved and the errors of those that did not.
type BatchResult struct {
	Coordinates map[string]models.Coordinate
	Failures    map[string]error
}

// GeocodeAll geocodes every non-empty address in addresses, keyed like the input.
// Individual failures are collected; only context cancellation aborts the batch.
func (b *BatchGeocoder) GeocodeAll(ctx context.Context, addresses map[string]string) (BatchResult, error) {
	res := BatchResult{
		Coordinates: make(map[string]models.Coordinate, len(addresses)),
		Failures:    make(map[string]error),
	}
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for key, address := range addresses {
		if address == "" {
			continue
		}
		g.Go(func() error {
			if err := b.limiter.Wait(ctx); err != nil {
				return err
			}
			coord, err := b.geocoder.GeocodeFreeform(ctx, address)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				slog.Warn("BatchGeocoder: geocode failed", "key", key, "error", err)
				res.Failures[key] = err
				return nil
			}
			res.Coordinates[key] = coord
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	slog.Info("BatchGeocoder.GeocodeAll finished", "resolved", len(res.Coordinates), "failed", len(res.Failures))
	return res, nil
}

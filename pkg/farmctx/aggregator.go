// Package farmctx builds the per-request ContextBundle for a farmer by
// querying the advisory, weather, price and scheme stores concurrently.
package farmctx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kisansetu/voicecore/pkg/core"
	"github.com/kisansetu/voicecore/pkg/core/types"
)

// Sources looked up for every bundle.
const (
	SourceAdvisory = "advisory"
	SourceWeather  = "weather"
	SourcePrices   = "prices"
	SourceSchemes  = "schemes"
)

// DefaultLookupTimeout bounds each individual lookup.
const DefaultLookupTimeout = 3 * time.Second

// ErrFarmerNotFound is returned when a farmer id or phone is unknown.
var ErrFarmerNotFound = &core.Error{Type: core.ErrUnknownCaller, Message: "farmer not found"}

// FarmerStore reads farmer profiles. Implementations return ErrFarmerNotFound
// for unknown ids.
type FarmerStore interface {
	FarmerByID(ctx context.Context, id string) (*types.FarmerProfile, error)
}

// AdvisoryStore returns the rule for crop and soil. An empty soil matches
// any rule for the crop, preferring a generic one. It returns nil, nil when
// no rule matches.
type AdvisoryStore interface {
	Advisory(ctx context.Context, crop, soil string) (*types.Advisory, error)
}

// WeatherStore returns the latest cached weather for a district, or nil.
type WeatherStore interface {
	LatestWeather(ctx context.Context, district string) (*types.WeatherSnapshot, error)
}

// PriceStore returns the most recent quotes for crop in state.
type PriceStore interface {
	LatestPrices(ctx context.Context, crop, state string, limit int) ([]types.MarketPrice, error)
}

// SchemeStore returns active schemes the farmer is eligible for.
type SchemeStore interface {
	EligibleSchemes(ctx context.Context, q SchemeQuery) ([]types.SchemeSummary, error)
}

// SchemeQuery filters schemes by eligibility.
type SchemeQuery struct {
	State            string
	Crop             string
	LandHoldingAcres float64
	Limit            int
}

// Observer is told about every lookup.
type Observer interface {
	ObserveLookup(source string, ok bool, d time.Duration)
}

// Stores groups the collaborators. Any of them may be nil, which leaves the
// matching bundle field empty.
type Stores struct {
	Farmers  FarmerStore
	Advisory AdvisoryStore
	Weather  WeatherStore
	Prices   PriceStore
	Schemes  SchemeStore
}

// Aggregator assembles ContextBundles.
type Aggregator struct {
	stores   Stores
	timeout  time.Duration
	observer Observer
	logger   *slog.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLookupTimeout overrides the per-lookup timeout. Zero disables it.
func WithLookupTimeout(d time.Duration) Option {
	return func(a *Aggregator) { a.timeout = d }
}

// WithObserver sets the lookup observer.
func WithObserver(o Observer) Option {
	return func(a *Aggregator) { a.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) { a.logger = l }
}

// New creates an Aggregator.
func New(stores Stores, opts ...Option) *Aggregator {
	a := &Aggregator{stores: stores, timeout: DefaultLookupTimeout}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a
}

// Farmer loads a profile by id.
func (a *Aggregator) Farmer(ctx context.Context, farmerID string) (*types.FarmerProfile, error) {
	if a.stores.Farmers == nil {
		return nil, core.NewUnconfiguredError("farmers")
	}
	f, err := a.stores.Farmers.FarmerByID(ctx, farmerID)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, ErrFarmerNotFound
	}
	return f, nil
}

// ForFarmerID loads the profile and then builds its bundle.
func (a *Aggregator) ForFarmerID(ctx context.Context, farmerID string) (*types.ContextBundle, error) {
	f, err := a.Farmer(ctx, farmerID)
	if err != nil {
		return nil, err
	}
	return a.Build(ctx, *f), nil
}

// Build runs the four lookups concurrently. A failed, timed out or panicking
// lookup leaves its field empty and never affects the others. Build itself
// cannot fail.
func (a *Aggregator) Build(ctx context.Context, farmer types.FarmerProfile) *types.ContextBundle {
	bundle := &types.ContextBundle{Farmer: farmer}

	// Each branch writes only its own field and always returns nil, so the
	// group never cancels a sibling.
	var g errgroup.Group
	g.Go(func() error {
		a.lookup(ctx, farmer.ID, SourceAdvisory, func(ctx context.Context) error {
			adv, err := a.advisory(ctx, farmer)
			if err != nil {
				return err
			}
			bundle.Advisory = adv
			return nil
		})
		return nil
	})
	g.Go(func() error {
		a.lookup(ctx, farmer.ID, SourceWeather, func(ctx context.Context) error {
			if a.stores.Weather == nil {
				return errNoStore
			}
			w, err := a.stores.Weather.LatestWeather(ctx, farmer.District)
			if err != nil {
				return err
			}
			bundle.Weather = w
			return nil
		})
		return nil
	})
	g.Go(func() error {
		a.lookup(ctx, farmer.ID, SourcePrices, func(ctx context.Context) error {
			if a.stores.Prices == nil {
				return errNoStore
			}
			p, err := a.stores.Prices.LatestPrices(ctx, farmer.PrimaryCrop, farmer.State, types.MaxContextPrices)
			if err != nil {
				return err
			}
			if len(p) > types.MaxContextPrices {
				p = p[:types.MaxContextPrices]
			}
			bundle.Prices = p
			return nil
		})
		return nil
	})
	g.Go(func() error {
		a.lookup(ctx, farmer.ID, SourceSchemes, func(ctx context.Context) error {
			if a.stores.Schemes == nil {
				return errNoStore
			}
			s, err := a.stores.Schemes.EligibleSchemes(ctx, SchemeQuery{
				State:            farmer.State,
				Crop:             farmer.PrimaryCrop,
				LandHoldingAcres: farmer.LandHoldingAcres,
				Limit:            types.MaxContextSchemes,
			})
			if err != nil {
				return err
			}
			if len(s) > types.MaxContextSchemes {
				s = s[:types.MaxContextSchemes]
			}
			bundle.Schemes = s
			return nil
		})
		return nil
	})
	_ = g.Wait()
	return bundle
}

// advisory tries crop+soil first and relaxes to crop only.
func (a *Aggregator) advisory(ctx context.Context, farmer types.FarmerProfile) (*types.Advisory, error) {
	if a.stores.Advisory == nil {
		return nil, errNoStore
	}
	if farmer.PrimaryCrop == "" {
		return nil, nil
	}
	if farmer.SoilType != "" {
		adv, err := a.stores.Advisory.Advisory(ctx, farmer.PrimaryCrop, farmer.SoilType)
		if err != nil || adv != nil {
			return adv, err
		}
	}
	return a.stores.Advisory.Advisory(ctx, farmer.PrimaryCrop, "")
}

var errNoStore = errors.New("store not configured")

// lookup runs fn with its own timeout and contains errors and panics.
func (a *Aggregator) lookup(ctx context.Context, farmerID, source string, fn func(context.Context) error) {
	start := time.Now()
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("lookup panicked: %v", r)
			}
		}()
		return fn(ctx)
	}()

	d := time.Since(start)
	if a.observer != nil {
		a.observer.ObserveLookup(source, err == nil, d)
	}
	if err != nil && !errors.Is(err, errNoStore) {
		a.logger.Warn("context source unavailable",
			"source", source,
			"farmer_id", farmerID,
			"error_type", string(core.ErrPartialData),
			"duration_ms", d.Milliseconds(),
			"error", err,
		)
	}
}

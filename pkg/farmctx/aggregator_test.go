package farmctx

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/kisansetu/voicecore/pkg/core/types"
)

type advisoryFunc func(ctx context.Context, crop, soil string) (*types.Advisory, error)

func (f advisoryFunc) Advisory(ctx context.Context, crop, soil string) (*types.Advisory, error) {
	return f(ctx, crop, soil)
}

type weatherFunc func(ctx context.Context, district string) (*types.WeatherSnapshot, error)

func (f weatherFunc) LatestWeather(ctx context.Context, district string) (*types.WeatherSnapshot, error) {
	return f(ctx, district)
}

type priceFunc func(ctx context.Context, crop, state string, limit int) ([]types.MarketPrice, error)

func (f priceFunc) LatestPrices(ctx context.Context, crop, state string, limit int) ([]types.MarketPrice, error) {
	return f(ctx, crop, state, limit)
}

type schemeFunc func(ctx context.Context, q SchemeQuery) ([]types.SchemeSummary, error)

func (f schemeFunc) EligibleSchemes(ctx context.Context, q SchemeQuery) ([]types.SchemeSummary, error) {
	return f(ctx, q)
}

type farmerMap map[string]types.FarmerProfile

func (m farmerMap) FarmerByID(_ context.Context, id string) (*types.FarmerProfile, error) {
	f, ok := m[id]
	if !ok {
		return nil, ErrFarmerNotFound
	}
	return &f, nil
}

type recordingObserver struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (o *recordingObserver) ObserveLookup(source string, ok bool, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.seen == nil {
		o.seen = map[string]bool{}
	}
	o.seen[source] = ok
}

var testFarmer = types.FarmerProfile{
	ID:               "farmer-1",
	Name:             "Ramesh",
	Language:         types.LangHindi,
	PrimaryCrop:      "wheat",
	SoilType:         "black",
	LandHoldingAcres: 2.5,
	District:         "Indore",
	State:            "Madhya Pradesh",
}

var (
	testAdvisory = &types.Advisory{Crop: "wheat", SoilType: "black", Fertilizer: "DAP 50kg/acre", MSP: 2275}
	testWeather  = &types.WeatherSnapshot{District: "Indore", TempC: 31, Description: "clear"}
	testSchemes  = []types.SchemeSummary{{Name: "PM-KISAN", Benefit: "Rs 6000 per year"}}
)

func healthyStores() Stores {
	return Stores{
		Farmers: farmerMap{"farmer-1": testFarmer},
		Advisory: advisoryFunc(func(_ context.Context, crop, soil string) (*types.Advisory, error) {
			return testAdvisory, nil
		}),
		Weather: weatherFunc(func(context.Context, string) (*types.WeatherSnapshot, error) {
			return testWeather, nil
		}),
		Prices: priceFunc(func(context.Context, string, string, int) ([]types.MarketPrice, error) {
			return []types.MarketPrice{{Crop: "wheat", Market: "Indore", ModalPrice: 2400}}, nil
		}),
		Schemes: schemeFunc(func(_ context.Context, q SchemeQuery) ([]types.SchemeSummary, error) {
			return testSchemes, nil
		}),
	}
}

func TestBuild_PriceFailureLeavesOtherFieldsPopulated(t *testing.T) {
	stores := healthyStores()
	stores.Prices = priceFunc(func(context.Context, string, string, int) ([]types.MarketPrice, error) {
		return nil, errors.New("connection refused")
	})
	obs := &recordingObserver{}

	b := New(stores, WithObserver(obs)).Build(t.Context(), testFarmer)

	if b.Prices != nil {
		t.Errorf("Prices = %v, want nil", b.Prices)
	}
	if b.Advisory != testAdvisory || b.Weather != testWeather {
		t.Errorf("advisory/weather not populated: %+v", b)
	}
	if diff := cmp.Diff(testSchemes, b.Schemes); diff != "" {
		t.Errorf("schemes mismatch (-want +got):\n%s", diff)
	}
	want := map[string]bool{SourceAdvisory: true, SourceWeather: true, SourcePrices: false, SourceSchemes: true}
	if diff := cmp.Diff(want, obs.seen); diff != "" {
		t.Errorf("observer mismatch (-want +got):\n%s", diff)
	}
}

func TestBuild_PanicIsContained(t *testing.T) {
	stores := healthyStores()
	stores.Weather = weatherFunc(func(context.Context, string) (*types.WeatherSnapshot, error) {
		panic("nil redis client")
	})

	b := New(stores).Build(t.Context(), testFarmer)
	if b.Weather != nil {
		t.Error("Weather should be nil after a panic")
	}
	if b.Advisory == nil || len(b.Prices) != 1 || len(b.Schemes) != 1 {
		t.Errorf("siblings affected by panic: %+v", b)
	}
}

func TestBuild_SlowLookupDoesNotCancelSiblings(t *testing.T) {
	stores := healthyStores()
	stores.Schemes = schemeFunc(func(ctx context.Context, _ SchemeQuery) ([]types.SchemeSummary, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	start := time.Now()
	b := New(stores, WithLookupTimeout(40*time.Millisecond)).Build(t.Context(), testFarmer)
	if time.Since(start) > time.Second {
		t.Fatalf("Build waited %v for a hung lookup", time.Since(start))
	}
	if b.Schemes != nil {
		t.Error("Schemes should be empty after timeout")
	}
	if b.Advisory == nil || b.Weather == nil || len(b.Prices) != 1 {
		t.Errorf("siblings affected by timeout: %+v", b)
	}
}

func TestBuild_AdvisoryRelaxesToCropOnly(t *testing.T) {
	var calls []string
	var mu sync.Mutex
	stores := healthyStores()
	stores.Advisory = advisoryFunc(func(_ context.Context, crop, soil string) (*types.Advisory, error) {
		mu.Lock()
		calls = append(calls, crop+"/"+soil)
		mu.Unlock()
		if soil != "" {
			return nil, nil
		}
		return &types.Advisory{Crop: crop, Irrigation: "every 10 days"}, nil
	})

	b := New(stores).Build(t.Context(), testFarmer)
	if b.Advisory == nil || b.Advisory.Irrigation != "every 10 days" {
		t.Fatalf("Advisory = %+v, want crop-only rule", b.Advisory)
	}
	if diff := cmp.Diff([]string{"wheat/black", "wheat/"}, calls); diff != "" {
		t.Errorf("advisory lookups mismatch (-want +got):\n%s", diff)
	}
}

// ruleTable answers advisory lookups the way the store does: an empty soil
// matches any rule for the crop, generic rows first.
type ruleTable []types.Advisory

func (rt ruleTable) Advisory(_ context.Context, crop, soil string) (*types.Advisory, error) {
	var match *types.Advisory
	for i := range rt {
		r := &rt[i]
		if !strings.EqualFold(r.Crop, crop) {
			continue
		}
		if soil != "" {
			if strings.EqualFold(r.SoilType, soil) {
				return r, nil
			}
			continue
		}
		if r.SoilType == "" {
			return r, nil
		}
		if match == nil {
			match = r
		}
	}
	return match, nil
}

func TestBuild_AdvisoryFallsBackToSoilSpecificRule(t *testing.T) {
	stores := healthyStores()
	stores.Advisory = ruleTable{
		{Crop: "wheat", SoilType: "alluvial", Fertilizer: "NPK 12:32:16"},
		{Crop: "rice", SoilType: "", Fertilizer: "urea"},
	}

	b := New(stores).Build(t.Context(), testFarmer)
	if b.Advisory == nil || b.Advisory.Fertilizer != "NPK 12:32:16" {
		t.Fatalf("Advisory = %+v, want the only wheat rule", b.Advisory)
	}
	if !b.Has(types.TopicAdvisory) {
		t.Error("bundle should report advisory data")
	}
}

func TestBuild_CapsPrices(t *testing.T) {
	stores := healthyStores()
	stores.Prices = priceFunc(func(context.Context, string, string, int) ([]types.MarketPrice, error) {
		return make([]types.MarketPrice, 9), nil
	})
	b := New(stores).Build(t.Context(), testFarmer)
	if len(b.Prices) != types.MaxContextPrices {
		t.Errorf("len(Prices) = %d, want %d", len(b.Prices), types.MaxContextPrices)
	}
}

func TestBuild_MissingStoresLeaveFieldsEmpty(t *testing.T) {
	b := New(Stores{}).Build(t.Context(), testFarmer)
	if b.Advisory != nil || b.Weather != nil || b.Prices != nil || b.Schemes != nil {
		t.Errorf("bundle = %+v, want only the farmer", b)
	}
	if b.Farmer.ID != "farmer-1" {
		t.Errorf("Farmer = %+v", b.Farmer)
	}
}

func TestForFarmerID(t *testing.T) {
	agg := New(healthyStores())
	b, err := agg.ForFarmerID(t.Context(), "farmer-1")
	if err != nil {
		t.Fatalf("ForFarmerID() error = %v", err)
	}
	if b.Farmer.District != "Indore" {
		t.Errorf("Farmer = %+v", b.Farmer)
	}

	if _, err := agg.ForFarmerID(t.Context(), "nobody"); !errors.Is(err, ErrFarmerNotFound) {
		t.Errorf("ForFarmerID(unknown) error = %v, want ErrFarmerNotFound", err)
	}
}

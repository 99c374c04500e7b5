package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kisansetu/voicecore/pkg/core/types"
	"github.com/kisansetu/voicecore/pkg/farmctx"
)

// Advisory implements farmctx.AdvisoryStore. An empty soil matches any rule
// for the crop, preferring the generic row.
func (s *Store) Advisory(ctx context.Context, crop, soil string) (*types.Advisory, error) {
	var a types.Advisory
	err := s.db.QueryRow(ctx, `
		SELECT crop, soil_type, fertilizer, irrigation, pest_control, sowing, harvest, msp
		FROM advisory_rules
		WHERE lower(crop) = lower($1) AND ($2 = '' OR lower(soil_type) = lower($2))
		ORDER BY (soil_type = '') DESC, id
		LIMIT 1`, crop, soil).
		Scan(&a.Crop, &a.SoilType, &a.Fertilizer, &a.Irrigation, &a.PestControl, &a.Sowing, &a.Harvest, &a.MSP)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load advisory %s/%s: %w", crop, soil, err)
	}
	return &a, nil
}

// LatestPrices implements farmctx.PriceStore, newest first.
func (s *Store) LatestPrices(ctx context.Context, crop, state string, limit int) ([]types.MarketPrice, error) {
	rows, err := s.db.Query(ctx, `
		SELECT crop, market, state, min_price, max_price, modal_price, price_date
		FROM market_prices
		WHERE lower(crop) = lower($1) AND lower(state) = lower($2)
		ORDER BY price_date DESC, id DESC
		LIMIT $3`, crop, state, limit)
	if err != nil {
		return nil, fmt.Errorf("query prices: %w", err)
	}
	prices, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.MarketPrice, error) {
		var p types.MarketPrice
		var date time.Time
		err := row.Scan(&p.Crop, &p.Market, &p.State, &p.MinPrice, &p.MaxPrice, &p.ModalPrice, &date)
		p.Date = date
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan prices: %w", err)
	}
	return prices, nil
}

// EligibleSchemes implements farmctx.SchemeStore.
func (s *Store) EligibleSchemes(ctx context.Context, q farmctx.SchemeQuery) ([]types.SchemeSummary, error) {
	rows, err := s.db.Query(ctx, `
		SELECT name, benefit, eligibility, how_to_apply
		FROM schemes
		WHERE active
		  AND (cardinality(states) = 0 OR EXISTS (SELECT 1 FROM unnest(states) st WHERE lower(st) = lower($1)))
		  AND (cardinality(crops) = 0 OR EXISTS (SELECT 1 FROM unnest(crops) c WHERE lower(c) = lower($2)))
		  AND (max_land_acres IS NULL OR $3 <= max_land_acres)
		ORDER BY priority DESC, name
		LIMIT $4`, q.State, q.Crop, q.LandHoldingAcres, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("query schemes: %w", err)
	}
	schemes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.SchemeSummary, error) {
		var sc types.SchemeSummary
		err := row.Scan(&sc.Name, &sc.Benefit, &sc.Eligibility, &sc.HowToApply)
		return sc, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan schemes: %w", err)
	}
	return schemes, nil
}

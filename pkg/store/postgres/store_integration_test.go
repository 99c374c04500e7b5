//go:build integration

package postgres

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kisansetu/voicecore/pkg/core/types"
	"github.com/kisansetu/voicecore/pkg/farmctx"
)

// Runs against an empty database named by VOICECORE_TEST_DATABASE_URL.
func openTestStore(t *testing.T) (*Store, *pgxpool.Pool) {
	t.Helper()
	url := os.Getenv("VOICECORE_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("VOICECORE_TEST_DATABASE_URL not set")
	}
	ctx := t.Context()
	pool, err := Open(ctx, url)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(pool.Close)
	if err := Migrate(ctx, pool, nil); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	for _, table := range []string{"alert_logs", "scheduled_alerts", "schemes", "market_prices", "advisory_rules", "admins", "farmers"} {
		if _, err := pool.Exec(ctx, "TRUNCATE "+table); err != nil {
			t.Fatalf("truncate %s: %v", table, err)
		}
	}
	return New(pool, nil), pool
}

func seed(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	stmts := []string{
		`INSERT INTO farmers (id, name, phone, language, primary_crop, soil_type, land_holding_acres, district, state, opt_sms, opt_whatsapp)
		 VALUES ('f1', 'Ramesh', '+919876543210', 'hi', 'wheat', 'black', 2.5, 'Indore', 'Madhya Pradesh', true, true),
		        ('f2', 'Sita', '+919876543211', 'mr', 'onion', 'red', 8, 'Nashik', 'Maharashtra', true, false)`,
		`INSERT INTO admins (id, name, phone) VALUES ('a1', 'Officer', '+919800000001')`,
		`INSERT INTO advisory_rules (crop, soil_type, fertilizer) VALUES ('wheat', 'black', 'DAP'), ('wheat', '', 'urea'), ('onion', 'red', 'potash')`,
		`INSERT INTO market_prices (crop, market, state, min_price, max_price, modal_price, price_date)
		 VALUES ('wheat', 'Indore', 'Madhya Pradesh', 2200, 2500, 2400, '2026-03-01'),
		        ('wheat', 'Dewas', 'Madhya Pradesh', 2100, 2450, 2350, '2026-03-02')`,
		`INSERT INTO schemes (name, benefit, states, max_land_acres, priority)
		 VALUES ('PM-KISAN', 'Rs 6000 per year', '{}', NULL, 10),
		        ('MP Small Farmer Aid', 'Seed subsidy', '{Madhya Pradesh}', 5, 5),
		        ('Large Farm Scheme', 'Equipment loan', '{}', 1, 1)`,
	}
	for _, s := range stmts {
		if _, err := pool.Exec(t.Context(), s); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func TestStore(t *testing.T) {
	s, pool := openTestStore(t)
	seed(t, pool)
	ctx := t.Context()

	f, err := s.FarmerByID(ctx, "f1")
	if err != nil || f.District != "Indore" || !f.OptIns.WhatsApp {
		t.Fatalf("FarmerByID() = %+v, %v", f, err)
	}
	if _, err := s.FarmerByID(ctx, "missing"); !errors.Is(err, farmctx.ErrFarmerNotFound) {
		t.Errorf("FarmerByID(missing) error = %v", err)
	}

	c, err := s.ResolveCaller(ctx, "98000 00001")
	if err != nil || c.Role != types.RoleAdmin {
		t.Errorf("ResolveCaller(admin) = %+v, %v", c, err)
	}
	c, err = s.ResolveCaller(ctx, "9876543211")
	if err != nil || c.Role != types.RoleFarmer || c.Farmer.ID != "f2" {
		t.Errorf("ResolveCaller(farmer) = %+v, %v", c, err)
	}

	adv, err := s.Advisory(ctx, "Wheat", "black")
	if err != nil || adv == nil || adv.Fertilizer != "DAP" {
		t.Errorf("Advisory(wheat, black) = %+v, %v", adv, err)
	}
	adv, _ = s.Advisory(ctx, "wheat", "")
	if adv == nil || adv.Fertilizer != "urea" {
		t.Errorf("Advisory(wheat) = %+v, want the generic rule", adv)
	}
	adv, err = s.Advisory(ctx, "onion", "black")
	if err != nil || adv != nil {
		t.Errorf("Advisory(onion, black) = %+v, %v, want no rule", adv, err)
	}
	adv, err = s.Advisory(ctx, "onion", "")
	if err != nil || adv == nil || adv.Fertilizer != "potash" {
		t.Errorf("Advisory(onion) = %+v, %v, want the soil-specific rule", adv, err)
	}

	prices, err := s.LatestPrices(ctx, "wheat", "madhya pradesh", 5)
	if err != nil || len(prices) != 2 || prices[0].Market != "Dewas" {
		t.Errorf("LatestPrices() = %+v, %v", prices, err)
	}

	schemes, err := s.EligibleSchemes(ctx, farmctx.SchemeQuery{State: "Madhya Pradesh", Crop: "wheat", LandHoldingAcres: 2.5, Limit: 5})
	if err != nil || len(schemes) != 2 || schemes[0].Name != "PM-KISAN" {
		t.Errorf("EligibleSchemes() = %+v, %v", schemes, err)
	}

	rs, err := s.RecipientsByDistrict(ctx, "nashik")
	if err != nil || len(rs) != 1 || rs[0].FarmerID != "f2" || rs[0].Language != types.LangMarathi {
		t.Errorf("RecipientsByDistrict() = %+v, %v", rs, err)
	}
}

func TestAlertHistory(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := t.Context()
	now := time.Now().UTC().Truncate(time.Second)

	alert := types.AlertDescriptor{ID: "al1", Type: types.AlertPest, Severity: types.SeverityWarning,
		Title: "Aphids", Message: "Spray neem oil", Channels: []types.Channel{types.ChannelSMS}, CreatedAt: now}
	log := &types.AlertLog{Alert: alert, Report: types.DeliveryReport{Sent: 3, Failed: 1}, Status: types.DeliveryPartial, FinishedAt: now}
	if err := s.SaveAlertLog(ctx, log); err != nil {
		t.Fatalf("SaveAlertLog() error = %v", err)
	}
	st, err := s.DailyStats(ctx)
	if err != nil || st.AlertsToday != 1 || st.DeliveredToday != 3 {
		t.Errorf("DailyStats() = %+v, %v", st, err)
	}

	sched := &types.ScheduledAlert{ID: "s1", Alert: alert, DueAt: now.Add(-time.Minute)}
	if err := s.ScheduleAlert(ctx, sched); err != nil {
		t.Fatalf("ScheduleAlert() error = %v", err)
	}
	due, err := s.DueAlerts(ctx, now, 10)
	if err != nil || len(due) != 1 || due[0].Alert.Title != "Aphids" {
		t.Fatalf("DueAlerts() = %+v, %v", due, err)
	}
	ok, err := s.ClaimAlert(ctx, "s1", now)
	if err != nil || !ok {
		t.Fatalf("ClaimAlert() = %v, %v", ok, err)
	}
	if ok, _ := s.ClaimAlert(ctx, "s1", now); ok {
		t.Error("alert claimed twice")
	}
}

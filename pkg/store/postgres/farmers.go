package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/kisansetu/voicecore/pkg/core/types"
	"github.com/kisansetu/voicecore/pkg/farmctx"
)

const farmerColumns = `id, name, phone, language, primary_crop, soil_type, land_holding_acres,
	district, state, lat, lon, opt_sms, opt_whatsapp, opt_voice, opt_push`

func scanFarmer(row pgx.Row) (*types.FarmerProfile, error) {
	var (
		f        types.FarmerProfile
		lang     string
		lat, lon *float64
	)
	err := row.Scan(&f.ID, &f.Name, &f.Phone, &lang, &f.PrimaryCrop, &f.SoilType, &f.LandHoldingAcres,
		&f.District, &f.State, &lat, &lon, &f.OptIns.SMS, &f.OptIns.WhatsApp, &f.OptIns.Voice, &f.OptIns.Push)
	if err != nil {
		return nil, err
	}
	f.Language = types.LanguageOr(lang, types.DefaultLanguage)
	if lat != nil && lon != nil {
		f.Location = &types.GeoPoint{Lat: *lat, Lon: *lon}
	}
	return &f, nil
}

// FarmerByID implements farmctx.FarmerStore.
func (s *Store) FarmerByID(ctx context.Context, id string) (*types.FarmerProfile, error) {
	f, err := scanFarmer(s.db.QueryRow(ctx, `SELECT `+farmerColumns+` FROM farmers WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, farmctx.ErrFarmerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load farmer %s: %w", id, err)
	}
	return f, nil
}

// FarmerByPhone looks a farmer up by E.164 phone number.
func (s *Store) FarmerByPhone(ctx context.Context, phone string) (*types.FarmerProfile, error) {
	f, err := scanFarmer(s.db.QueryRow(ctx, `SELECT `+farmerColumns+` FROM farmers WHERE phone = $1`, types.NormalizePhone(phone)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, farmctx.ErrFarmerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load farmer by phone: %w", err)
	}
	return f, nil
}

// ResolveCaller implements ivr.CallerDirectory. Admin numbers take precedence.
func (s *Store) ResolveCaller(ctx context.Context, phone string) (*types.Caller, error) {
	phone = types.NormalizePhone(phone)
	var a types.AdminProfile
	err := s.db.QueryRow(ctx, `SELECT id, name, phone, state FROM admins WHERE phone = $1`, phone).
		Scan(&a.ID, &a.Name, &a.Phone, &a.State)
	switch {
	case err == nil:
		return &types.Caller{Role: types.RoleAdmin, Admin: &a}, nil
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, fmt.Errorf("load admin by phone: %w", err)
	}

	f, err := s.FarmerByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}
	return &types.Caller{Role: types.RoleFarmer, Farmer: f}, nil
}

// RecipientsByDistrict implements broadcast.RecipientStore.
func (s *Store) RecipientsByDistrict(ctx context.Context, district string) ([]types.Recipient, error) {
	rows, err := s.db.Query(ctx, `SELECT `+farmerColumns+` FROM farmers WHERE lower(district) = lower($1) ORDER BY id`, district)
	if err != nil {
		return nil, fmt.Errorf("list farmers in %s: %w", district, err)
	}
	recipients, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.Recipient, error) {
		f, err := scanFarmer(row)
		if err != nil {
			return types.Recipient{}, err
		}
		return types.RecipientFromProfile(*f), nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan farmers in %s: %w", district, err)
	}
	return recipients, nil
}

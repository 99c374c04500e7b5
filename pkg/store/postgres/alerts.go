package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kisansetu/voicecore/pkg/core/types"
)

// SaveAlertLog implements broadcast.LogStore.
func (s *Store) SaveAlertLog(ctx context.Context, l *types.AlertLog) error {
	results, err := json.Marshal(l.Report.Results)
	if err != nil {
		return fmt.Errorf("encode delivery results: %w", err)
	}
	channels := make([]string, len(l.Alert.Channels))
	for i, c := range l.Alert.Channels {
		channels[i] = string(c)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO alert_logs (id, type, severity, title, message, district, channels, created_by,
			created_at, recipients, sent, failed, status, results, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		l.Alert.ID, string(l.Alert.Type), string(l.Alert.Severity), l.Alert.Title, l.Alert.Message,
		l.Alert.District, channels, l.Alert.CreatedBy, l.Alert.CreatedAt, len(l.Alert.Recipients),
		l.Report.Sent, l.Report.Failed, string(l.Status), results, l.FinishedAt)
	if err != nil {
		return fmt.Errorf("insert alert log %s: %w", l.Alert.ID, err)
	}
	return nil
}

// ScheduleAlert queues an alert for the scheduled scan.
func (s *Store) ScheduleAlert(ctx context.Context, a *types.ScheduledAlert) error {
	body, err := json.Marshal(a.Alert)
	if err != nil {
		return fmt.Errorf("encode scheduled alert: %w", err)
	}
	_, err = s.db.Exec(ctx, `INSERT INTO scheduled_alerts (id, alert, due_at) VALUES ($1, $2, $3)`, a.ID, body, a.DueAt)
	if err != nil {
		return fmt.Errorf("insert scheduled alert %s: %w", a.ID, err)
	}
	return nil
}

// DueAlerts returns undispatched alerts due at or before now, oldest first.
func (s *Store) DueAlerts(ctx context.Context, now time.Time, limit int) ([]types.ScheduledAlert, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, alert, due_at FROM scheduled_alerts
		WHERE dispatched_at IS NULL AND due_at <= $1
		ORDER BY due_at
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("query due alerts: %w", err)
	}
	due, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.ScheduledAlert, error) {
		var (
			a    types.ScheduledAlert
			body []byte
		)
		if err := row.Scan(&a.ID, &body, &a.DueAt); err != nil {
			return a, err
		}
		if err := json.Unmarshal(body, &a.Alert); err != nil {
			return a, fmt.Errorf("decode scheduled alert %s: %w", a.ID, err)
		}
		return a, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan due alerts: %w", err)
	}
	return due, nil
}

// ClaimAlert marks a scheduled alert dispatched. It reports false when
// another scan already claimed it.
func (s *Store) ClaimAlert(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `UPDATE scheduled_alerts SET dispatched_at = $2 WHERE id = $1 AND dispatched_at IS NULL`, id, at)
	if err != nil {
		return false, fmt.Errorf("claim scheduled alert %s: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// DailyStats implements ivr.StatsSource. The day starts at midnight in the
// database's time zone.
func (s *Store) DailyStats(ctx context.Context) (*types.DailyStats, error) {
	var st types.DailyStats
	err := s.db.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM farmers),
			(SELECT count(*) FROM alert_logs WHERE created_at >= date_trunc('day', now())),
			(SELECT coalesce(sum(sent), 0) FROM alert_logs WHERE created_at >= date_trunc('day', now()))`).
		Scan(&st.Farmers, &st.AlertsToday, &st.DeliveredToday)
	if err != nil {
		return nil, fmt.Errorf("load daily stats: %w", err)
	}
	return &st, nil
}

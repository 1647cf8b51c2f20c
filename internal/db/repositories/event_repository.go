// event_repository.go implements EventRepository, the collector's storage
// layer: durable event appends with atomic counter upserts, recent-event
// queries, counter reads, and the fleet-wide analysis aggregates.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/medgate/medgate/internal/db/models"
)

// RecentLimit caps how many events a recent-history query returns.
const RecentLimit = 7

// EventRepository handles telemetry event database operations
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository creates a new EventRepository
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Record appends the event to api_logs and bumps the principal's rolling
// counters in one transaction. Both writes commit together or neither does.
// The counter update is a single atomic upsert, never a read-then-write, so
// concurrent records for the same principal cannot lose increments.
func (r *EventRepository) Record(ctx context.Context, event *models.TelemetryEvent) error {
	successInc, errorInc := 0, 1
	if event.IsSuccess() {
		successInc, errorInc = 1, 0
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record: %w", err)
	}

	insertLog := `
		INSERT INTO api_logs (principal_id, method, endpoint, path, client_ip, date, time, resp_time, status_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	if _, err := tx.ExecContext(ctx, insertLog,
		event.PrincipalID,
		event.Method,
		event.Endpoint,
		event.Path,
		event.ClientIP,
		event.Date,
		event.Time,
		event.RespTime,
		event.StatusCode,
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert api_log for principal %s: %w", event.PrincipalID, err)
	}

	upsertCount := `
		INSERT INTO request_count (principal_id, total_req, success_resp, error_resp)
		VALUES ($1, 1, $2, $3)
		ON CONFLICT (principal_id) DO UPDATE
		SET total_req = request_count.total_req + 1,
		    success_resp = request_count.success_resp + EXCLUDED.success_resp,
		    error_resp = request_count.error_resp + EXCLUDED.error_resp
	`
	if _, err := tx.ExecContext(ctx, upsertCount, event.PrincipalID, successInc, errorInc); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("upsert request_count for principal %s: %w", event.PrincipalID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit record: %w", err)
	}
	return nil
}

// GetRecent returns the principal's most recent events, newest first, capped
// at RecentLimit. An empty slice is a valid outcome, not an error.
func (r *EventRepository) GetRecent(ctx context.Context, principalID string) ([]*models.TelemetryEvent, error) {
	query := `
		SELECT principal_id, method, endpoint, path, client_ip,
		       to_char(date, 'YYYY-MM-DD') AS date, to_char(time, 'HH24:MI:SS') AS time,
		       resp_time, status_code
		FROM api_logs
		WHERE principal_id = $1
		ORDER BY date DESC, time DESC
		LIMIT $2
	`
	events := make([]*models.TelemetryEvent, 0, RecentLimit)
	if err := r.db.SelectContext(ctx, &events, query, principalID, RecentLimit); err != nil {
		return nil, fmt.Errorf("get recent events for principal %s: %w", principalID, err)
	}
	return events, nil
}

// GetCounters returns the principal's rolling counters. Principals that have
// never produced an event get all-zero counters, never an error.
func (r *EventRepository) GetCounters(ctx context.Context, principalID string) (*models.CounterState, error) {
	var cs models.CounterState
	query := `
		SELECT principal_id, total_req, success_resp, error_resp
		FROM request_count
		WHERE principal_id = $1
	`
	if err := r.db.GetContext(ctx, &cs, query, principalID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.CounterState{PrincipalID: principalID}, nil
		}
		return nil, fmt.Errorf("get counters for principal %s: %w", principalID, err)
	}
	return &cs, nil
}

// GetAnalysis computes the fleet-wide aggregates fresh on every call: mean
// latency over all events, the busiest hour of day, and the busiest endpoint.
func (r *EventRepository) GetAnalysis(ctx context.Context) (*models.Analysis, error) {
	a := &models.Analysis{}

	var avg sql.NullFloat64
	if err := r.db.GetContext(ctx, &avg, `SELECT AVG(resp_time) FROM api_logs`); err != nil {
		return nil, fmt.Errorf("analysis avg latency: %w", err)
	}
	a.AvgResponseTime = avg.Float64

	var peak struct {
		Hour  int   `db:"hour"`
		Count int64 `db:"count"`
	}
	peakQuery := `
		SELECT EXTRACT(hour FROM time)::int AS hour, COUNT(*) AS count
		FROM api_logs
		GROUP BY hour
		ORDER BY count DESC
		LIMIT 1
	`
	if err := r.db.GetContext(ctx, &peak, peakQuery); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("analysis peak hour: %w", err)
		}
	} else {
		a.PeakHour = fmt.Sprintf("%d:00", peak.Hour)
		a.RequestsInPeakHour = peak.Count
	}

	var top struct {
		Endpoint string `db:"endpoint"`
		Count    int64  `db:"count"`
	}
	topQuery := `
		SELECT endpoint, COUNT(*) AS count
		FROM api_logs
		GROUP BY endpoint
		ORDER BY count DESC
		LIMIT 1
	`
	if err := r.db.GetContext(ctx, &top, topQuery); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("analysis top endpoint: %w", err)
		}
	} else {
		a.TopEndpoint = top.Endpoint
		a.RequestsToTopEndpoint = top.Count
	}

	return a, nil
}

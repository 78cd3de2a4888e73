package queries

import (
	"context"
	"database/sql"
	"time"

	"github.com/quantrail/autoscaler/pkg/models"
)

type ScalingEventRepository struct {
	db *sql.DB
}

func NewScalingEventRepository(db *sql.DB) *ScalingEventRepository {
	return &ScalingEventRepository{db: db}
}

const scalingEventColumns = `id, service, timestamp, rule_id, direction,
	   previous_instances, new_instances, success, error, reason,
	   duration_ms, status, rollback_of`

// Insert persists an audit record. Events are written synchronously before
// any compensating action so a crash mid-rollback still leaves the failed
// attempt on record.
func (r *ScalingEventRepository) Insert(ctx context.Context, event *models.ScalingEvent) error {
	query := `
		INSERT INTO scaling_events
			(id, service, timestamp, rule_id, direction, previous_instances,
			 new_instances, success, error, reason, duration_ms, status, rollback_of)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		event.Service,
		event.Timestamp,
		nullString(event.RuleID),
		string(event.Direction),
		event.PreviousInstances,
		event.NewInstances,
		event.Success,
		nullString(event.Error),
		event.Reason,
		event.Duration.Milliseconds(),
		string(event.Status),
		nullString(event.RollbackOf),
	)
	return err
}

func (r *ScalingEventRepository) GetByService(ctx context.Context, service string, from, to time.Time, limit int) ([]models.ScalingEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT ` + scalingEventColumns + `
		FROM scaling_events
		WHERE service = $1 AND timestamp >= $2 AND timestamp <= $3
		ORDER BY timestamp DESC
		LIMIT $4`

	rows, err := r.db.QueryContext(ctx, query, service, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanScalingEvents(rows)
}

func (r *ScalingEventRepository) GetRecent(ctx context.Context, limit int) ([]models.ScalingEvent, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT ` + scalingEventColumns + `
		FROM scaling_events
		ORDER BY timestamp DESC
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanScalingEvents(rows)
}

// GetRollbacks returns every compensating event for the given original event.
func (r *ScalingEventRepository) GetRollbacks(ctx context.Context, eventID string) ([]models.ScalingEvent, error) {
	query := `
		SELECT ` + scalingEventColumns + `
		FROM scaling_events
		WHERE rollback_of = $1
		ORDER BY timestamp DESC`

	rows, err := r.db.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanScalingEvents(rows)
}

type ScalingStats struct {
	Service        string    `json:"service"`
	From           time.Time `json:"from"`
	To             time.Time `json:"to"`
	ScaleUpCount   int       `json:"scale_up_count"`
	ScaleDownCount int       `json:"scale_down_count"`
	SuccessCount   int       `json:"success_count"`
	FailedCount    int       `json:"failed_count"`
	RejectedCount  int       `json:"rejected_count"`
	RollbackCount  int       `json:"rollback_count"`
}

func (r *ScalingEventRepository) GetStats(ctx context.Context, service string, from, to time.Time) (*ScalingStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE direction = 'scale_up') AS scale_up_count,
			COUNT(*) FILTER (WHERE direction = 'scale_down') AS scale_down_count,
			COUNT(*) FILTER (WHERE status = 'success') AS success_count,
			COUNT(*) FILTER (WHERE status = 'failed') AS failed_count,
			COUNT(*) FILTER (WHERE status = 'rejected') AS rejected_count,
			COUNT(*) FILTER (WHERE status = 'rolled_back') AS rollback_count
		FROM scaling_events
		WHERE service = $1 AND timestamp >= $2 AND timestamp <= $3`

	var stats ScalingStats
	err := r.db.QueryRowContext(ctx, query, service, from, to).Scan(
		&stats.ScaleUpCount, &stats.ScaleDownCount,
		&stats.SuccessCount, &stats.FailedCount,
		&stats.RejectedCount, &stats.RollbackCount,
	)
	if err != nil {
		return nil, err
	}

	stats.Service = service
	stats.From = from
	stats.To = to

	return &stats, nil
}

func scanScalingEvents(rows *sql.Rows) ([]models.ScalingEvent, error) {
	var events []models.ScalingEvent
	for rows.Next() {
		var (
			e          models.ScalingEvent
			ruleID     sql.NullString
			errMsg     sql.NullString
			rollbackOf sql.NullString
			direction  string
			status     string
			durationMs int64
		)
		err := rows.Scan(
			&e.ID, &e.Service, &e.Timestamp, &ruleID, &direction,
			&e.PreviousInstances, &e.NewInstances, &e.Success, &errMsg,
			&e.Reason, &durationMs, &status, &rollbackOf,
		)
		if err != nil {
			return nil, err
		}
		e.RuleID = ruleID.String
		e.Error = errMsg.String
		e.RollbackOf = rollbackOf.String
		e.Direction = models.ScaleDirection(direction)
		e.Status = models.ScalingEventStatus(status)
		e.Duration = time.Duration(durationMs) * time.Millisecond
		events = append(events, e)
	}

	return events, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

package attempts

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// PostgresRepo stores records in the call_attempts table.
// The table is INSERT-only; nothing here updates or deletes rows.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

// EnsureSchema creates the table and index when missing.
func (r *PostgresRepo) EnsureSchema(ctx context.Context) error {
	if r.db == nil {
		return errors.New("attempts: db is nil")
	}
	if _, err := r.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("attempts: ensure schema: %w", err)
	}
	return nil
}

func (r *PostgresRepo) Append(ctx context.Context, rec Record) error {
	const q = `
INSERT INTO call_attempts (
  id, workspace_id, campaign_id, kind, round, role, destination, leg_id, peer_leg_id, outcome, reason, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
)
`
	_, err := r.db.ExecContext(ctx, q,
		rec.ID,
		rec.WorkspaceID,
		rec.CampaignID,
		rec.Kind,
		rec.Round,
		rec.Role,
		rec.Destination,
		rec.LegID,
		rec.PeerLegID,
		rec.Outcome,
		rec.Reason,
		rec.CreatedAt,
	)
	return err
}

func (r *PostgresRepo) ListByCampaign(ctx context.Context, workspaceID, campaignID string) ([]Record, error) {
	const q = `
SELECT id, workspace_id, campaign_id, kind, round, role, destination, leg_id, peer_leg_id, outcome, reason, created_at
FROM call_attempts
WHERE workspace_id = $1 AND campaign_id = $2
ORDER BY created_at ASC
`
	rows, err := r.db.QueryContext(ctx, q, workspaceID, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Record, 0)
	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.ID,
			&rec.WorkspaceID,
			&rec.CampaignID,
			&rec.Kind,
			&rec.Round,
			&rec.Role,
			&rec.Destination,
			&rec.LegID,
			&rec.PeerLegID,
			&rec.Outcome,
			&rec.Reason,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

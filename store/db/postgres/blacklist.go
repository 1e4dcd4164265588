package postgres

import (
	"context"
	"fmt"
)

func (d *DB) AddBlacklistEntity(ctx context.Context, entityID int64) (bool, error) {
	query := `INSERT INTO blacklist (entity_id) VALUES ($1) ON CONFLICT (entity_id) DO NOTHING`
	res, err := d.db.ExecContext(ctx, query, entityID)
	if err != nil {
		return false, fmt.Errorf("failed to add blacklist entity: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}

func (d *DB) RemoveBlacklistEntity(ctx context.Context, entityID int64) (bool, error) {
	query := `DELETE FROM blacklist WHERE entity_id = $1`
	res, err := d.db.ExecContext(ctx, query, entityID)
	if err != nil {
		return false, fmt.Errorf("failed to remove blacklist entity: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}

func (d *DB) IsBlacklistedEntity(ctx context.Context, entityID int64) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM blacklist WHERE entity_id = $1)`
	var blocked bool
	if err := d.db.QueryRowContext(ctx, query, entityID).Scan(&blocked); err != nil {
		return false, fmt.Errorf("failed to check blacklist: %w", err)
	}
	return blocked, nil
}

func (d *DB) ListBlacklistEntities(ctx context.Context) ([]int64, error) {
	query := `SELECT entity_id FROM blacklist ORDER BY entity_id`
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list blacklist: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan blacklist entity: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read blacklist: %w", err)
	}
	return ids, nil
}

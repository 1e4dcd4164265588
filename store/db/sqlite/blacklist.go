package sqlite

import (
	"context"
	"fmt"
)

func (d *DB) AddBlacklistEntity(ctx context.Context, entityID int64) (bool, error) {
	query := `INSERT INTO blacklist (entity_id) VALUES (?) ON CONFLICT (entity_id) DO NOTHING`
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
	query := `DELETE FROM blacklist WHERE entity_id = ?`
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
	query := `SELECT EXISTS (SELECT 1 FROM blacklist WHERE entity_id = ?)`
	var exists bool
	if err := d.db.QueryRowContext(ctx, query, entityID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check blacklist entity: %w", err)
	}
	return exists, nil
}

func (d *DB) ListBlacklistEntities(ctx context.Context) ([]int64, error) {
	query := `SELECT entity_id FROM blacklist ORDER BY entity_id`
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list blacklist entities: %w", err)
	}
	defer rows.Close()

	var list []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan blacklist entity: %w", err)
		}
		list = append(list, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read blacklist entities: %w", err)
	}
	return list, nil
}

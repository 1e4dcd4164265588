package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const (
	rawQueryMaxRows  = 50
	rawQueryMaxChars = 3500
)

// RunRawQuery executes an operator-supplied statement. With fetch the result
// set is rendered as text, otherwise only the affected row count is reported.
func (d *DB) RunRawQuery(ctx context.Context, query string, fetch bool) (string, error) {
	if !fetch {
		result, err := d.db.ExecContext(ctx, query)
		if err != nil {
			return "", fmt.Errorf("failed to execute query: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return "OK", nil
		}
		return fmt.Sprintf("OK, %d row(s) affected", affected), nil
	}

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return "", fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()
	return renderRows(rows)
}

func renderRows(rows *sql.Rows) (string, error) {
	columns, err := rows.Columns()
	if err != nil {
		return "", fmt.Errorf("failed to read columns: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(strings.Join(columns, " | "))
	sb.WriteString("\n")

	count := 0
	truncated := false
	for rows.Next() {
		if count >= rawQueryMaxRows || sb.Len() >= rawQueryMaxChars {
			truncated = true
			break
		}
		values := make([]sql.NullString, len(columns))
		dest := make([]any, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return "", fmt.Errorf("failed to scan row: %w", err)
		}
		cells := make([]string, len(values))
		for i, v := range values {
			if v.Valid {
				cells[i] = v.String
			} else {
				cells[i] = "NULL"
			}
		}
		sb.WriteString(strings.Join(cells, " | "))
		sb.WriteString("\n")
		count++
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("failed to read rows: %w", err)
	}

	if count == 0 {
		return "(no rows)", nil
	}
	out := sb.String()
	if len(out) > rawQueryMaxChars {
		out = out[:rawQueryMaxChars]
		truncated = true
	}
	if truncated {
		out = strings.TrimRight(out, "\n") + "\n… truncated"
	}
	return out, nil
}

package marketnames

import (
	"context"
	"database/sql"
)

// PostgresRepo lê a tabela market_names(sport, market_id, name)
type PostgresRepo struct {
	DB *sql.DB
}

func (r *PostgresRepo) ListNames(ctx context.Context) ([]Entry, error) {
	const q = `
		SELECT sport, market_id, name
		FROM market_names
		ORDER BY sport, market_id;
	`
	rows, err := r.DB.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Sport, &e.MarketID, &e.Name); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

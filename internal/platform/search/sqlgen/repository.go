package sqlgen

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Querier is the subset of *pgxpool.Pool, *pgxpool.Conn and pgx.Tx that the
// repository needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Page is one page of matching resource ids.
type Page struct {
	IDs   []string `json:"ids"`
	Total int      `json:"total"`
}

// Repository runs translated queries against Postgres.
type Repository struct {
	db Querier
}

// NewRepository creates a Repository over db.
func NewRepository(db Querier) *Repository {
	return &Repository{db: db}
}

// Search returns the fhir ids selected by q together with the total count.
func (r *Repository) Search(ctx context.Context, q *Query, limit, offset int) (*Page, error) {
	var total int
	if err := r.db.QueryRow(ctx, q.CountSQL(), q.CountArgs()...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count %s: %w", q.Table(), err)
	}

	rows, err := r.db.Query(ctx, q.DataSQL(limit, offset), q.DataArgs(limit, offset)...)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", q.Table(), err)
	}
	defer rows.Close()

	page := &Page{Total: total, IDs: []string{}}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan %s: %w", q.Table(), err)
		}
		page.IDs = append(page.IDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search %s: %w", q.Table(), err)
	}
	return page, nil
}

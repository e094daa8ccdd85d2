package store

import (
	"context"
	"database/sql"
	"errors"

	pkgerrors "github.com/pkg/errors"

	"github.com/delimatsuo/headhunter-sub011/internal/models"
)

// ErrTenantNotFound is returned when a tenant ID has no row.
var ErrTenantNotFound = errors.New("tenant not found")

const tenantQuery = `
SELECT id, name, active
FROM search.tenants
WHERE id = $1`

// GetTenant loads one tenant. Unknown IDs return ErrTenantNotFound.
func (s *Store) GetTenant(ctx context.Context, tenantID string) (*models.TenantContext, error) {
	conn, err := s.acquireConn(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	var row struct {
		ID     string `db:"id"`
		Name   string `db:"name"`
		Active bool   `db:"active"`
	}
	err = conn.GetContext(ctx, &row, tenantQuery, tenantID)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrTenantNotFound
		}
		return nil, pkgerrors.Wrap(err, "tenant lookup failed")
	}
	return &models.TenantContext{ID: row.ID, Name: row.Name, Active: row.Active}, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

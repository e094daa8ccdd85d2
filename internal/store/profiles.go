package store

import (
	"context"
	"encoding/json"

	"github.com/lib/pq"
	"github.com/pkg/errors"
)

// Profile is one materialized candidate row.
type Profile struct {
	CandidateID string          `db:"candidate_id"`
	TenantID    string          `db:"tenant_id"`
	Summary     string          `db:"summary"`
	Highlights  pq.StringArray  `db:"highlights"`
	Payload     json.RawMessage `db:"profile"`
}

const profilesQuery = `
SELECT candidate_id, tenant_id, summary, highlights, profile
FROM search.candidate_profiles
WHERE tenant_id = $1
  AND candidate_id = ANY($2)`

const archivedProfileQuery = `
SELECT candidate_id, tenant_id, summary, highlights, profile
FROM search.candidate_profiles_archive
WHERE tenant_id = $1
  AND candidate_id = $2`

// FetchProfiles batch-loads candidate profiles, keyed by candidate ID.
// Missing IDs are simply absent from the map; the caller decides whether to
// fall back or drop them.
func (s *Store) FetchProfiles(ctx context.Context, tenantID string, candidateIDs []string) (map[string]Profile, error) {
	if len(candidateIDs) == 0 {
		return map[string]Profile{}, nil
	}

	conn, err := s.acquireConn(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	var rows []Profile
	err = conn.SelectContext(ctx, &rows, profilesQuery, tenantID, pq.Array(candidateIDs))
	if err != nil {
		return nil, errors.Wrap(err, "profile fetch failed")
	}

	profiles := make(map[string]Profile, len(rows))
	for _, p := range rows {
		profiles[p.CandidateID] = p
	}
	return profiles, nil
}

// FetchArchivedProfile looks up a single candidate in the archive store, the
// secondary source for profiles the primary table has not caught up on.
// Returns (nil, nil) when absent.
func (s *Store) FetchArchivedProfile(ctx context.Context, tenantID, candidateID string) (*Profile, error) {
	conn, err := s.acquireConn(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	var p Profile
	err = conn.GetContext(ctx, &p, archivedProfileQuery, tenantID, candidateID)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "archived profile fetch failed")
	}
	return &p, nil
}

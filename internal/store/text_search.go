package store

import (
	"context"

	"github.com/pkg/errors"
)

// textSearchQuery ranks with ts_rank_cd normalization 32, which maps raw
// rank r to r/(r+1) so scores land in [0,1) like the vector branch.
const textSearchQuery = `
SELECT candidate_id,
       ts_rank_cd(search_document, query, 32) AS score
FROM search.candidate_profiles,
     plainto_tsquery('english', $1) query
WHERE tenant_id = $2
  AND search_document @@ query
ORDER BY score DESC, candidate_id
LIMIT $3`

// TextSearch returns the lexical matches for textQuery within one tenant,
// ordered by descending rank. An empty query returns an empty slate.
func (s *Store) TextSearch(ctx context.Context, tenantID, textQuery string, limit int) ([]ScoredID, error) {
	if textQuery == "" {
		return nil, nil
	}

	conn, err := s.acquireConn(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	var results []ScoredID
	err = conn.SelectContext(ctx, &results, textSearchQuery, textQuery, tenantID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "text search failed")
	}
	return results, nil
}

package store

import (
	"context"

	"github.com/pkg/errors"
)

// vectorSearchQuery orders by cosine distance and reports similarity
// 1 - distance, which pgvector keeps in [0,1] for normalized embeddings.
const vectorSearchQuery = `
SELECT entity_id AS candidate_id,
       1 - (embedding <=> $1::vector) AS score
FROM search.candidate_embeddings
WHERE tenant_id = $2
ORDER BY embedding <=> $1::vector
LIMIT $3`

// VectorSearch returns the nearest candidates to queryEmbedding for one
// tenant, ordered by descending similarity. The session knob for the active
// index variant is set on the pinned connection before the query runs.
func (s *Store) VectorSearch(ctx context.Context, tenantID string, queryEmbedding []float32, limit int) ([]ScoredID, error) {
	if len(queryEmbedding) == 0 {
		return nil, nil
	}

	conn, err := s.acquireConn(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.ExecContext(ctx, s.sessionKnob()); err != nil {
		return nil, errors.Wrapf(err, "failed to set %s session knob", s.config.IndexType)
	}

	var results []ScoredID
	err = conn.SelectContext(ctx, &results, vectorSearchQuery, vectorLiteral(queryEmbedding), tenantID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "vector search failed")
	}
	return results, nil
}

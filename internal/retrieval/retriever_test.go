package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/delimatsuo/headhunter-sub011/internal/cache"
	"github.com/delimatsuo/headhunter-sub011/internal/config"
	"github.com/delimatsuo/headhunter-sub011/internal/observability"
	"github.com/delimatsuo/headhunter-sub011/internal/store"
)

type fakeStore struct {
	vectorHits []store.ScoredID
	vectorErr  error
	textHits   []store.ScoredID
	textErr    error
	profiles   map[string]store.Profile
	archive    map[string]store.Profile

	vectorCalls int
	textCalls   int
}

func (f *fakeStore) VectorSearch(ctx context.Context, tenantID string, emb []float32, limit int) ([]store.ScoredID, error) {
	f.vectorCalls++
	return f.vectorHits, f.vectorErr
}

func (f *fakeStore) TextSearch(ctx context.Context, tenantID, q string, limit int) ([]store.ScoredID, error) {
	f.textCalls++
	if q == "" {
		return nil, nil
	}
	return f.textHits, f.textErr
}

func (f *fakeStore) FetchProfiles(ctx context.Context, tenantID string, ids []string) (map[string]store.Profile, error) {
	out := map[string]store.Profile{}
	for _, id := range ids {
		if p, ok := f.profiles[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (f *fakeStore) FetchArchivedProfile(ctx context.Context, tenantID, id string) (*store.Profile, error) {
	if p, ok := f.archive[id]; ok {
		return &p, nil
	}
	return nil, nil
}

// memoryCache is a map-backed Cache for exercising the cache wrap without
// Redis.
type memoryCache struct {
	data map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: map[string][]byte{}}
}

func (m *memoryCache) key(layer cache.Layer, tenantID, id string) string {
	return string(layer) + ":" + tenantID + ":" + id
}

func (m *memoryCache) Get(ctx context.Context, layer cache.Layer, tenantID, id string) ([]byte, error) {
	if v, ok := m.data[m.key(layer, tenantID, id)]; ok {
		return v, nil
	}
	return nil, cache.ErrCacheMiss
}

func (m *memoryCache) Set(ctx context.Context, layer cache.Layer, tenantID, id string, value []byte) error {
	m.data[m.key(layer, tenantID, id)] = value
	return nil
}

func (m *memoryCache) Delete(ctx context.Context, layer cache.Layer, tenantID, id string) error {
	delete(m.data, m.key(layer, tenantID, id))
	return nil
}

func (m *memoryCache) GetJSON(ctx context.Context, layer cache.Layer, tenantID, id string, dest interface{}) error {
	v, err := m.Get(ctx, layer, tenantID, id)
	if err != nil {
		return err
	}
	return json.Unmarshal(v, dest)
}

func (m *memoryCache) SetJSON(ctx context.Context, layer cache.Layer, tenantID, id string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return nil
	}
	return m.Set(ctx, layer, tenantID, id, data)
}

func (m *memoryCache) InvalidateTenantLayer(ctx context.Context, layer cache.Layer, tenantID string) (int, error) {
	n := 0
	prefix := string(layer) + ":" + tenantID + ":"
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func (m *memoryCache) Stats() cache.Stats                          { return cache.Stats{} }
func (m *memoryCache) Status(ctx context.Context) cache.Status     { return cache.StatusHealthy }
func (m *memoryCache) Close() error                                { return nil }

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, tenantID, text string) ([]float32, error) {
	return f.vec, f.err
}

func profileFor(ids ...string) map[string]store.Profile {
	out := make(map[string]store.Profile, len(ids))
	for _, id := range ids {
		out[id] = store.Profile{CandidateID: id, TenantID: "tenant-1", Summary: "summary " + id}
	}
	return out
}

func newTestRetriever(st *fakeStore, emb *fakeEmbedder) *Retriever {
	return New(st, emb, cache.NewNoopCache(), cache.NewFlight(),
		config.RetrievalConfig{OverRetrievalFactor: 3, RRFK: 60, MaterializeConcurrency: 4},
		observability.NewNoopLogger(), nil)
}

func TestRetrieveHybrid(t *testing.T) {
	st := &fakeStore{
		vectorHits: scored("c1", 0.9, "c2", 0.8),
		textHits:   scored("c2", 0.7, "c3", 0.6),
		profiles:   profileFor("c1", "c2", "c3"),
	}
	r := newTestRetriever(st, &fakeEmbedder{vec: []float32{0.1, 0.2}})

	result, err := r.Retrieve(context.Background(), "tenant-1", Query{
		JobDescription: "Senior Go backend",
		Limit:          10,
		DisableCache:   true,
	})
	require.NoError(t, err)
	require.Len(t, result.Candidates, 3)

	// c2 appears in both branches and wins the fusion.
	assert.Equal(t, "c2", result.Candidates[0].CandidateID)
	assert.Equal(t, "summary c2", result.Candidates[0].Summary)
	assert.Greater(t, result.Candidates[0].RRFScore, result.Candidates[1].RRFScore)
}

func TestRetrieveEmbedFailureDegradesToLexical(t *testing.T) {
	st := &fakeStore{
		textHits: scored("c1", 0.8),
		profiles: profileFor("c1"),
	}
	r := newTestRetriever(st, &fakeEmbedder{err: errors.New("embed provider down")})

	result, err := r.Retrieve(context.Background(), "tenant-1", Query{
		JobDescription: "Go developer",
		Limit:          5,
		DisableCache:   true,
	})
	require.NoError(t, err)
	require.Len(t, result.Candidates, 1)
	assert.Equal(t, "c1", result.Candidates[0].CandidateID)
}

func TestRetrieveBothInputsEmpty(t *testing.T) {
	st := &fakeStore{}
	r := newTestRetriever(st, &fakeEmbedder{})

	result, err := r.Retrieve(context.Background(), "tenant-1", Query{
		JobDescription: "",
		Limit:          5,
		DisableCache:   true,
	})
	require.NoError(t, err)
	assert.Empty(t, result.Candidates)
	assert.Zero(t, st.vectorCalls)
}

func TestRetrieveOneBranchFails(t *testing.T) {
	st := &fakeStore{
		vectorHits: scored("c1", 0.9, "c2", 0.8),
		textErr:    errors.New("statement timeout"),
		profiles:   profileFor("c1", "c2"),
	}
	r := newTestRetriever(st, &fakeEmbedder{vec: []float32{0.3}})

	result, err := r.Retrieve(context.Background(), "tenant-1", Query{
		JobDescription: "Go developer",
		Limit:          5,
		DisableCache:   true,
	})
	require.NoError(t, err)
	require.Len(t, result.Candidates, 2)
	assert.Equal(t, "c1", result.Candidates[0].CandidateID)
}

func TestRetrieveBothBranchesFail(t *testing.T) {
	st := &fakeStore{
		vectorErr: errors.New("pool exhausted"),
		textErr:   errors.New("statement timeout"),
	}
	r := newTestRetriever(st, &fakeEmbedder{vec: []float32{0.3}})

	_, err := r.Retrieve(context.Background(), "tenant-1", Query{
		JobDescription: "Go developer",
		Limit:          5,
		DisableCache:   true,
	})
	assert.Error(t, err)
}

func TestRetrieveArchiveFallback(t *testing.T) {
	st := &fakeStore{
		vectorHits: scored("c1", 0.9, "c2", 0.8),
		profiles:   profileFor("c1"),
		archive:    profileFor("c2"),
	}
	r := newTestRetriever(st, &fakeEmbedder{vec: []float32{0.3}})

	result, err := r.Retrieve(context.Background(), "tenant-1", Query{
		JobDescription: "Go developer",
		Limit:          5,
		DisableCache:   true,
	})
	require.NoError(t, err)
	require.Len(t, result.Candidates, 2)
}

func TestRetrieveDropsMissingProfiles(t *testing.T) {
	st := &fakeStore{
		vectorHits: scored("c1", 0.9, "ghost", 0.8),
		profiles:   profileFor("c1"),
	}
	r := newTestRetriever(st, &fakeEmbedder{vec: []float32{0.3}})

	result, err := r.Retrieve(context.Background(), "tenant-1", Query{
		JobDescription: "Go developer",
		Limit:          5,
		DisableCache:   true,
	})
	require.NoError(t, err)
	require.Len(t, result.Candidates, 1)
	assert.Equal(t, "c1", result.Candidates[0].CandidateID)
}

func TestRetrieveCacheHitOnSecondCall(t *testing.T) {
	st := &fakeStore{
		vectorHits: scored("c1", 0.9),
		profiles:   profileFor("c1"),
	}
	mc := newMemoryCache()
	r := New(st, &fakeEmbedder{vec: []float32{0.3}}, mc, cache.NewFlight(),
		config.RetrievalConfig{}, observability.NewNoopLogger(), nil)

	q := Query{JobDescription: "Go developer", Limit: 5}
	first, err := r.Retrieve(context.Background(), "tenant-1", q)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	second, err := r.Retrieve(context.Background(), "tenant-1", q)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Candidates, second.Candidates)
	assert.Equal(t, 1, st.vectorCalls)
}

func TestRetrieveVectorOnlyKeepsVectorOrder(t *testing.T) {
	ids := []string{"c1", "c2", "c3", "c4", "c5", "c6", "c7", "c8", "c9", "c10"}
	pairs := make([]interface{}, 0, len(ids)*2)
	for i, id := range ids {
		pairs = append(pairs, id, 0.95-float64(i)*0.05)
	}
	st := &fakeStore{
		vectorHits: scored(pairs...),
		profiles:   profileFor(ids...),
	}
	r := newTestRetriever(st, &fakeEmbedder{vec: []float32{0.3}})

	result, err := r.Retrieve(context.Background(), "tenant-1", Query{
		JobDescription: "Go developer",
		Limit:          5,
		DisableCache:   true,
	})
	require.NoError(t, err)

	// With an empty text branch the fusion reduces to the vector ranking.
	require.Len(t, result.Candidates, 5)
	for i := 0; i < 5; i++ {
		assert.Equal(t, ids[i], result.Candidates[i].CandidateID)
	}
}

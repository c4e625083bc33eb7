package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeText struct {
	docs    []map[string]interface{}
	err     error
	delay   time.Duration
	filters map[string]string
}

func (f *fakeText) Search(ctx context.Context, _ string, topK int, filters map[string]string, _ []string) ([]map[string]interface{}, error) {
	f.filters = filters
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if len(f.docs) > topK {
		return f.docs[:topK], nil
	}
	return f.docs, nil
}

type fakeVector struct {
	docs  []map[string]interface{}
	err   error
	calls int
}

func (f *fakeVector) VectorSearch(_ context.Context, _ []float32, topK int, _ map[string]string) ([]map[string]interface{}, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.docs) > topK {
		return f.docs[:topK], nil
	}
	return f.docs, nil
}

func doc(id, dept, role string) map[string]interface{} {
	return map[string]interface{}{"id": id, "department": dept, "role": role, "full_name": "Employee " + id}
}

func ids(docs []map[string]interface{}) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d["id"].(string)
	}
	return out
}

func TestTextSearchDegradesToEmpty(t *testing.T) {
	c := NewClient(&fakeText{err: errors.New("connection refused")}, nil, time.Second)

	docs := c.TextSearch(context.Background(), "python", 5, Filter{})
	assert.NotNil(t, docs)
	assert.Empty(t, docs)
}

func TestTextSearchTimesOut(t *testing.T) {
	c := NewClient(&fakeText{delay: time.Second, docs: []map[string]interface{}{doc("1", "IT", "Developer")}}, nil, 20*time.Millisecond)

	start := time.Now()
	docs := c.TextSearch(context.Background(), "python", 5, Filter{})
	assert.Empty(t, docs)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestTextSearchFilters(t *testing.T) {
	text := &fakeText{docs: []map[string]interface{}{
		doc("1", "IT", "Senior Developer"),
		doc("2", "IT", "Manager"),
		doc("3", "Sales", "Developer"),
	}}
	c := NewClient(text, nil, time.Second)

	docs := c.TextSearch(context.Background(), "developer", 5, Filter{Department: "IT", Role: "Developer"})
	assert.Equal(t, []string{"1"}, ids(docs))
	assert.Equal(t, map[string]string{"department": "IT"}, text.filters)
}

func TestVectorSearchSkipsZeroVector(t *testing.T) {
	vec := &fakeVector{docs: []map[string]interface{}{doc("1", "IT", "Lead")}}
	c := NewClient(nil, vec, time.Second)

	assert.Empty(t, c.VectorSearch(context.Background(), make([]float32, 8), 5, Filter{}))
	assert.Equal(t, 0, vec.calls)

	assert.Len(t, c.VectorSearch(context.Background(), []float32{0, 1}, 5, Filter{}), 1)
	assert.Equal(t, 1, vec.calls)
}

func TestHybridSearchFusesAndScores(t *testing.T) {
	text := &fakeText{docs: []map[string]interface{}{doc("a", "IT", "Developer"), doc("b", "IT", "Developer"), doc("c", "IT", "Developer")}}
	vec := &fakeVector{docs: []map[string]interface{}{doc("c", "IT", "Developer"), doc("a", "IT", "Developer"), doc("d", "IT", "Developer")}}
	c := NewClient(text, vec, time.Second)

	docs := c.HybridSearch(context.Background(), "developer", []float32{0.3}, 3, Filter{})
	require.Len(t, docs, 3)
	// a: 1/61+1/62, c: 1/63+1/61, b: 1/62
	assert.Equal(t, []string{"a", "c", "b"}, ids(docs))
	for i := 1; i < len(docs); i++ {
		assert.GreaterOrEqual(t, docs[i-1][RerankScoreKey].(float64), docs[i][RerankScoreKey].(float64))
	}
}

func TestHybridSearchWithVectorFailureKeepsTextResults(t *testing.T) {
	text := &fakeText{docs: []map[string]interface{}{doc("a", "IT", "Developer")}}
	c := NewClient(text, &fakeVector{err: errors.New("down")}, time.Second)

	docs := c.HybridSearch(context.Background(), "developer", []float32{1}, 5, Filter{})
	assert.Equal(t, []string{"a"}, ids(docs))
	assert.Contains(t, docs[0], RerankScoreKey)
}

func TestHybridSearchMergesBackendsByEmployeeID(t *testing.T) {
	text := &fakeText{docs: []map[string]interface{}{
		{"id": "emp_1", "employee_id": "1", "full_name": "Asha Rao", "combined_text": "Asha Rao | Developer"},
		{"id": "emp_2", "employee_id": "2", "full_name": "Ben Ortiz"},
	}}
	vec := &fakeVector{docs: []map[string]interface{}{
		{"id": "1", "employee_id": "1", "full_name": "Asha Rao"},
	}}
	c := NewClient(text, vec, time.Second)

	docs := c.HybridSearch(context.Background(), "developer", []float32{0.5}, 5, Filter{})
	require.Len(t, docs, 2)
	assert.Equal(t, "1", docs[0]["employee_id"])
	assert.Equal(t, "emp_1", docs[0]["id"])
	assert.InDelta(t, 2.0/61, docs[0][RerankScoreKey], 1e-12)
	assert.Equal(t, "2", docs[1]["employee_id"])
}

func TestFuseRRFDropsUnkeyedAndDoesNotMutateInput(t *testing.T) {
	in := []map[string]interface{}{{"employee_id": "E9"}, {"full_name": "no id"}}
	out := FuseRRF([][]map[string]interface{}{in}, 0)

	require.Len(t, out, 1)
	assert.NotContains(t, in[0], RerankScoreKey)
	assert.InDelta(t, 1.0/61, out[0][RerankScoreKey], 1e-12)
}

func TestNormalizePlurals(t *testing.T) {
	assert.Equal(t, "find developer and manager in it", NormalizePlurals("Find Developers and Managers in IT"))
	assert.Equal(t, "team lead", NormalizePlurals("team leads"))
	assert.Equal(t, "", NormalizePlurals(""))
}

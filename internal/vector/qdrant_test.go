package vector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeQdrant implements the handful of REST endpoints the adapter uses.
type fakeQdrant struct {
	t          *testing.T
	mu         sync.Mutex
	exists     bool
	size       int
	indexed    bool
	apiKeySeen string
	points     map[string]struct {
		vector  []float32
		payload map[string]any
	}
}

func newFakeQdrant(t *testing.T, exists bool, size int) (*fakeQdrant, *httptest.Server) {
	f := &fakeQdrant{t: t, exists: exists, size: size, points: map[string]struct {
		vector  []float32
		payload map[string]any
	}{}}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeQdrant) reply(w http.ResponseWriter, result any) {
	_ = json.NewEncoder(w).Encode(map[string]any{"result": result, "status": "ok", "time": 0.001})
}

func (f *fakeQdrant) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apiKeySeen = r.Header.Get("api-key")

	var body map[string]any
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/collections/items":
		if !f.exists {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"status":{"error":"Not found: Collection items doesn't exist!"}}`))
			return
		}
		f.reply(w, map[string]any{"config": map[string]any{"params": map[string]any{
			"vectors": map[string]any{"size": f.size, "distance": "Cosine"},
		}}})

	case r.Method == http.MethodPut && r.URL.Path == "/collections/items":
		vectors := body["vectors"].(map[string]any)
		assert.Equal(f.t, "Cosine", vectors["distance"])
		f.size = int(vectors["size"].(float64))
		f.exists = true
		f.reply(w, true)

	case r.Method == http.MethodPut && r.URL.Path == "/collections/items/index":
		assert.Equal(f.t, "owner", body["field_name"])
		f.indexed = true
		f.reply(w, map[string]any{"status": "acknowledged"})

	case r.Method == http.MethodPut && r.URL.Path == "/collections/items/points":
		assert.Equal(f.t, "wait=true", r.URL.RawQuery)
		for _, p := range body["points"].([]any) {
			pm := p.(map[string]any)
			var vec []float32
			for _, v := range pm["vector"].([]any) {
				vec = append(vec, float32(v.(float64)))
			}
			f.points[pm["id"].(string)] = struct {
				vector  []float32
				payload map[string]any
			}{vec, pm["payload"].(map[string]any)}
		}
		f.reply(w, map[string]any{"status": "acknowledged"})

	case r.Method == http.MethodPost && r.URL.Path == "/collections/items/points/search":
		var q []float32
		for _, v := range body["vector"].([]any) {
			q = append(q, float32(v.(float64)))
		}
		must := body["filter"].(map[string]any)["must"].([]any)[0].(map[string]any)
		owner := must["match"].(map[string]any)["value"].(string)

		var hits []map[string]any
		for id, p := range f.points {
			if p.payload["owner"] != owner {
				continue
			}
			hits = append(hits, map[string]any{"id": id, "score": cosine(q, p.vector), "payload": p.payload})
		}
		f.reply(w, hits)

	case r.Method == http.MethodPost && r.URL.Path == "/collections/items/points/delete":
		for _, id := range body["points"].([]any) {
			delete(f.points, id.(string))
		}
		f.reply(w, map[string]any{"status": "acknowledged"})

	default:
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":{"error":"unexpected request"}}`))
	}
}

func TestQdrantIndexCreatesCollection(t *testing.T) {
	fake, srv := newFakeQdrant(t, false, 0)

	idx, err := NewQdrantIndex(context.Background(), QdrantConfig{URL: srv.URL + "/", Collection: "items", Dimension: 3, APIKey: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "qdrant", idx.Name())
	assert.True(t, fake.exists)
	assert.True(t, fake.indexed)
	assert.Equal(t, 3, fake.size)
	assert.Equal(t, "secret", fake.apiKeySeen)

	exerciseIndex(t, idx)
}

func TestQdrantIndexRejectsWrongDimension(t *testing.T) {
	_, srv := newFakeQdrant(t, true, 768)

	_, err := NewQdrantIndex(context.Background(), QdrantConfig{URL: srv.URL, Collection: "items", Dimension: 3})
	require.Error(t, err)
	assert.True(t, IsCode(err, OperationErrorValidation))
	assert.Contains(t, err.Error(), "expected=3 actual=768")
}

func TestQdrantIndexValidation(t *testing.T) {
	_, err := NewQdrantIndex(context.Background(), QdrantConfig{Collection: "items", Dimension: 3})
	assert.True(t, IsCode(err, OperationErrorValidation))

	_, err = NewQdrantIndex(context.Background(), QdrantConfig{URL: "http://127.0.0.1:1", Collection: "items", Dimension: 3})
	assert.True(t, IsCode(err, OperationErrorTransportFailed) || IsCode(err, OperationErrorTimeout))
}

func TestPointIDDeterministic(t *testing.T) {
	assert.Equal(t, pointID("item-1"), pointID("item-1"))
	assert.NotEqual(t, pointID("item-1"), pointID("item-2"))
}

func TestParseEnvelopeStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`"ok"`, ""},
		{``, ""},
		{`null`, ""},
		{`"pending"`, `qdrant status="pending"`},
		{`{"error":"boom"}`, "boom"},
		{`42`, "qdrant status=42"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseEnvelopeStatus(json.RawMessage(tt.raw)), tt.raw)
	}
}

package crawler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestVectorIndexUpsertBatches(t *testing.T) {
	var batches []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/vectors/upsert" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Api-Key") != "pk-test" {
			t.Errorf("api key header = %q", r.Header.Get("Api-Key"))
		}
		var body struct {
			Vectors []Vector `json:"vectors"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		batches = append(batches, len(body.Vectors))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	idx := NewVectorIndex(VectorIndexConfig{BaseURL: srv.URL, APIKey: "pk-test"})
	vectors := make([]Vector, 150)
	for i := range vectors {
		vectors[i] = Vector{ID: vectorID("https://docs.example.com/p", i), Values: []float32{0.1}}
	}
	if err := idx.Upsert(context.Background(), vectors); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if len(batches) != 2 || batches[0] != 100 || batches[1] != 50 {
		t.Errorf("batches = %v", batches)
	}
}

func TestVectorIndexUpsertError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusForbidden)
	}))
	defer srv.Close()

	idx := NewVectorIndex(VectorIndexConfig{BaseURL: srv.URL, APIKey: "pk"})
	err := idx.Upsert(context.Background(), []Vector{{ID: "a"}})
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestVectorID(t *testing.T) {
	id := vectorID("https://docs.example.com/path/page?x=1&y=2", 3)
	if strings.ContainsAny(id, "/:?&=") {
		t.Errorf("id not sanitized: %q", id)
	}
	if !strings.HasSuffix(id, "_3") {
		t.Errorf("id missing chunk index: %q", id)
	}

	long := vectorID("https://docs.example.com/"+strings.Repeat("a", 200), 0)
	if len(long) > 100 {
		t.Errorf("id length = %d", len(long))
	}
}

func TestBuildVectorClipsMetadata(t *testing.T) {
	p := &Page{
		URL:         "https://docs.example.com/p",
		Title:       strings.Repeat("t", 600),
		Section:     strings.Repeat("s", 300),
		LastUpdated: strings.Repeat("d", 60),
	}
	v := buildVector(p, 2, strings.Repeat("x", 1500), []float32{0.5})
	if len(v.Metadata["title"].(string)) != 500 {
		t.Errorf("title length = %d", len(v.Metadata["title"].(string)))
	}
	if len(v.Metadata["section"].(string)) != 200 {
		t.Errorf("section length = %d", len(v.Metadata["section"].(string)))
	}
	if len(v.Metadata["text"].(string)) != 1000 {
		t.Errorf("text length = %d", len(v.Metadata["text"].(string)))
	}
	if v.Metadata["chunk_index"] != 2 {
		t.Errorf("chunk_index = %v", v.Metadata["chunk_index"])
	}
}

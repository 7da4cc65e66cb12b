package dataapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"irfetch/internal"
	"irfetch/utils"
)

// chunkServer serves chunk files by name
func chunkServer(t *testing.T, files map[string]string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/chunks/")
		body, ok := files[name]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte("NoSuchKey"))
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func manifestFor(base string, names ...string) map[string]interface{} {
	list := make([]interface{}, len(names))
	for i, name := range names {
		list[i] = name
	}
	return map[string]interface{}{
		"base_download_url": base + "/chunks/",
		"chunk_file_names":  list,
		"rows":              json.Number("3"),
	}
}

type countingProgress struct {
	total    int
	done     atomic.Int64
	bytes    atomic.Int64
	finished atomic.Bool
}

func (p *countingProgress) ChunkDone(size int64) {
	p.done.Add(1)
	p.bytes.Add(size)
}

func (p *countingProgress) Finish() *utils.FetchSummary {
	p.finished.Store(true)
	return &utils.FetchSummary{Chunks: p.done.Load(), TotalBytes: p.bytes.Load()}
}

func TestAssemble_ConcatenatesInOrder(t *testing.T) {
	server := chunkServer(t, map[string]string{
		"a.json": `[1,2]`,
		"b.json": `[3]`,
	})

	assembler := NewChunkAssembler(utils.NewHTTPClient(), 1)
	got, err := assembler.Assemble(context.Background(), manifestFor(server.URL, "a.json", "b.json"))
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if mustJSON(t, got) != `[1,2,3]` {
		t.Errorf("Assemble() = %s, want [1,2,3]", mustJSON(t, got))
	}
}

func TestAssemble_EmptyManifests(t *testing.T) {
	assembler := NewChunkAssembler(utils.NewHTTPClient(), 2)

	tests := []struct {
		name     string
		manifest interface{}
	}{
		{"nil", nil},
		{"list", []interface{}{}},
		{"string", "none"},
		{"false", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := assembler.Assemble(context.Background(), tt.manifest)
			if err != nil {
				t.Fatalf("Assemble() error = %v", err)
			}
			if got == nil || len(got) != 0 {
				t.Errorf("expected a non-nil empty list, got %#v", got)
			}
		})
	}
}

func TestAssemble_NoChunkFiles(t *testing.T) {
	assembler := NewChunkAssembler(utils.NewHTTPClient(), 2)
	got, err := assembler.Assemble(context.Background(), manifestFor("http://unused.invalid"))
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no items, got %v", got)
	}
}

func TestAssemble_PreservesOrderUnderConcurrency(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			seen := maxInFlight.Load()
			if n <= seen || maxInFlight.CompareAndSwap(seen, n) {
				break
			}
		}

		var index int
		fmt.Sscanf(strings.TrimPrefix(r.URL.Path, "/chunks/"), "%d.json", &index)
		// Earlier chunks answer later
		time.Sleep(time.Duration(8-index) * 5 * time.Millisecond)
		fmt.Fprintf(w, "[%d,%d]", index*10, index*10+1)
	}))
	defer server.Close()

	names := make([]string, 8)
	want := make([]int, 0, 16)
	for i := range names {
		names[i] = fmt.Sprintf("%d.json", i)
		want = append(want, i*10, i*10+1)
	}

	assembler := NewChunkAssembler(utils.NewHTTPClient(), 3)
	got, err := assembler.Assemble(context.Background(), manifestFor(server.URL, names...))
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	if mustJSON(t, got) != mustJSON(t, want) {
		t.Errorf("Assemble() = %s, want %s", mustJSON(t, got), mustJSON(t, want))
	}
	if maxInFlight.Load() > 3 {
		t.Errorf("concurrency limit exceeded: %d requests in flight", maxInFlight.Load())
	}
}

func TestAssemble_ChunkFailures(t *testing.T) {
	server := chunkServer(t, map[string]string{
		"ok.json":     `[1]`,
		"bad.json":    `[1,`,
		"object.json": `{"a":1}`,
	})

	tests := []struct {
		name  string
		names []string
		code  int
	}{
		{"missing_chunk", []string{"ok.json", "gone.json"}, http.StatusNotFound},
		{"malformed_json", []string{"bad.json"}, 0},
		{"not_a_list", []string{"ok.json", "object.json"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assembler := NewChunkAssembler(utils.NewHTTPClient(), 2)
			got, err := assembler.Assemble(context.Background(), manifestFor(server.URL, tt.names...))
			if !internal.IsType(err, internal.ErrChunkFetch) {
				t.Fatalf("expected chunk fetch error, got %v", err)
			}
			if got != nil {
				t.Errorf("no partial result expected, got %v", got)
			}

			var apiErr *internal.APIError
			errors.As(err, &apiErr)
			if apiErr.Code != tt.code {
				t.Errorf("Code = %d, want %d", apiErr.Code, tt.code)
			}
		})
	}
}

func TestAssemble_ConnectionFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	base := server.URL
	server.Close()

	assembler := NewChunkAssembler(utils.NewHTTPClient(), 1)
	_, err := assembler.Assemble(context.Background(), manifestFor(base, "a.json"))
	if !internal.IsType(err, internal.ErrChunkFetch) {
		t.Fatalf("expected chunk fetch error, got %v", err)
	}
	if !internal.IsType(errors.Unwrap(err), internal.ErrConnection) {
		t.Errorf("chunk error should wrap the transport failure, got %v", errors.Unwrap(err))
	}
}

func TestAssemble_Canceled(t *testing.T) {
	server := chunkServer(t, map[string]string{"a.json": `[1]`})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assembler := NewChunkAssembler(utils.NewHTTPClient(), 2)
	_, err := assembler.Assemble(ctx, manifestFor(server.URL, "a.json"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestAssemble_NoSessionHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Error("chunk requests must not carry an Authorization header")
		}
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	assembler := NewChunkAssembler(utils.NewHTTPClient(), 1)
	if _, err := assembler.Assemble(context.Background(), manifestFor(server.URL, "a.json")); err != nil {
		t.Fatal(err)
	}
}

func TestAssemble_Progress(t *testing.T) {
	server := chunkServer(t, map[string]string{
		"a.json": `[1,2]`,
		"b.json": `[3]`,
	})

	var mutex sync.Mutex
	var progress *countingProgress

	assembler := NewChunkAssembler(utils.NewHTTPClient(), 2)
	assembler.SetProgress(func(total int) ChunkProgress {
		mutex.Lock()
		defer mutex.Unlock()
		progress = &countingProgress{total: total}
		return progress
	})

	if _, err := assembler.Assemble(context.Background(), manifestFor(server.URL, "a.json", "b.json")); err != nil {
		t.Fatal(err)
	}

	if progress == nil {
		t.Fatal("progress factory was not called")
	}
	if progress.total != 2 || progress.done.Load() != 2 {
		t.Errorf("progress = total %d done %d", progress.total, progress.done.Load())
	}
	if progress.bytes.Load() != int64(len(`[1,2]`)+len(`[3]`)) {
		t.Errorf("progress bytes = %d", progress.bytes.Load())
	}
	if !progress.finished.Load() {
		t.Error("progress should be finished")
	}
}

func TestNewChunkAssembler_ClampsConcurrency(t *testing.T) {
	if got := NewChunkAssembler(utils.NewHTTPClient(), 0).concurrency; got != 1 {
		t.Errorf("concurrency = %d, want 1", got)
	}
}

func TestParseManifest(t *testing.T) {
	manifest, err := ParseManifest(manifestFor("https://cdn.example.com", "a.json", "b.json"))
	if err != nil {
		t.Fatal(err)
	}
	urls := manifest.URLs()
	if len(urls) != 2 || urls[0] != "https://cdn.example.com/chunks/a.json" || urls[1] != "https://cdn.example.com/chunks/b.json" {
		t.Errorf("URLs() = %v", urls)
	}

	bad := []map[string]interface{}{
		{"chunk_file_names": []interface{}{"a"}},
		{"base_download_url": "https://x/"},
		{"base_download_url": "https://x/", "chunk_file_names": "a"},
		{"base_download_url": "https://x/", "chunk_file_names": []interface{}{1}},
	}
	for i, obj := range bad {
		if _, err := ParseManifest(obj); !internal.IsType(err, internal.ErrInvalidResponse) {
			t.Errorf("case %d: expected invalid response, got %v", i, err)
		}
	}
}

func TestChunkInfo(t *testing.T) {
	info := map[string]interface{}{"base_download_url": "x"}
	resource := map[string]interface{}{
		"chunk_info": info,
		"data":       map[string]interface{}{"chunk_info": "nested"},
	}

	if got := ChunkInfo(resource); mustJSON(t, got) != mustJSON(t, info) {
		t.Errorf("ChunkInfo() = %v", got)
	}
	if got := ChunkInfo(resource, "data"); got != "nested" {
		t.Errorf("ChunkInfo(data) = %v", got)
	}
	if got := ChunkInfo(resource, "missing"); got != nil {
		t.Errorf("ChunkInfo(missing) = %v, want nil", got)
	}
	if got := ChunkInfo([]interface{}{}); got != nil {
		t.Errorf("ChunkInfo(list) = %v, want nil", got)
	}

	path := make([]string, 1, 4)
	path[0] = "data"
	ChunkInfo(resource, path...)
	if path[:2][1] != "" {
		t.Error("ChunkInfo must not write into the caller's path slice")
	}
}

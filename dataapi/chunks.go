package dataapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/sync/errgroup"

	"irfetch/internal"
	"irfetch/utils"
)

// ChunkProgress receives one call per downloaded chunk
type ChunkProgress interface {
	ChunkDone(size int64)
	Finish() *utils.FetchSummary
}

// ChunkAssembler downloads the files of a chunked result set and concatenates
// them in manifest order.
type ChunkAssembler struct {
	httpClient  *utils.HTTPClient
	concurrency int
	newProgress func(total int) ChunkProgress
}

// NewChunkAssembler creates an assembler fetching up to concurrency chunks at once
func NewChunkAssembler(httpClient *utils.HTTPClient, concurrency int) *ChunkAssembler {
	if concurrency < 1 {
		concurrency = 1
	}
	return &ChunkAssembler{
		httpClient:  httpClient,
		concurrency: concurrency,
	}
}

// SetProgress installs a factory called once per Assemble with the chunk count
func (a *ChunkAssembler) SetProgress(newProgress func(total int) ChunkProgress) {
	a.newProgress = newProgress
}

// chunkJob is one file of a manifest
type chunkJob struct {
	Index int
	URL   string
}

// ParseManifest reads a chunk_info object
func ParseManifest(obj map[string]interface{}) (*internal.ChunkManifest, error) {
	base, ok := obj["base_download_url"].(string)
	if !ok {
		return nil, internal.NewAPIError(0, "chunk manifest has no base_download_url", internal.ErrInvalidResponse)
	}

	rawNames, ok := obj["chunk_file_names"].([]interface{})
	if !ok {
		return nil, internal.NewAPIError(0, "chunk manifest has no chunk_file_names list", internal.ErrInvalidResponse)
	}

	names := make([]string, 0, len(rawNames))
	for i, raw := range rawNames {
		name, ok := raw.(string)
		if !ok {
			return nil, internal.NewAPIError(0, fmt.Sprintf("chunk file name %d is %T, not a string", i, raw), internal.ErrInvalidResponse)
		}
		names = append(names, name)
	}

	return &internal.ChunkManifest{BaseDownloadURL: base, ChunkFileNames: names}, nil
}

// ChunkInfo digs the chunk manifest out of a resolved payload. With no path it
// reads payload["chunk_info"]; with path "data" it reads payload["data"]["chunk_info"].
// It returns nil when any step is missing.
func ChunkInfo(resource interface{}, path ...string) interface{} {
	keys := append(append([]string{}, path...), "chunk_info")

	current := resource
	for _, key := range keys {
		obj, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		current = obj[key]
	}
	return current
}

// Assemble fetches every chunk named by manifest and returns the concatenated
// items. A manifest that is not an object means an empty result set.
// Any chunk failure fails the whole call; no partial result is returned.
func (a *ChunkAssembler) Assemble(ctx context.Context, manifest interface{}) ([]interface{}, error) {
	obj, ok := manifest.(map[string]interface{})
	if !ok {
		return []interface{}{}, nil
	}

	parsed, err := ParseManifest(obj)
	if err != nil {
		return nil, err
	}

	jobs := planChunks(parsed)
	results := make([][]interface{}, len(jobs))

	var progress ChunkProgress
	if a.newProgress != nil {
		progress = a.newProgress(len(jobs))
		defer progress.Finish()
	}

	internal.LogDebug("Fetching %d chunks with concurrency %d", len(jobs), a.concurrency)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for _, job := range jobs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			items, size, err := a.fetchChunk(gctx, job, len(jobs))
			if err != nil {
				return err
			}
			results[job.Index] = items
			if progress != nil {
				progress.ChunkDone(size)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	total := 0
	for _, items := range results {
		total += len(items)
	}
	output := make([]interface{}, 0, total)
	for _, items := range results {
		output = append(output, items...)
	}
	return output, nil
}

func planChunks(manifest *internal.ChunkManifest) []chunkJob {
	urls := manifest.URLs()
	jobs := make([]chunkJob, len(urls))
	for i, u := range urls {
		jobs[i] = chunkJob{Index: i, URL: u}
	}
	return jobs
}

// fetchChunk downloads one chunk without session headers; chunk URLs are pre-signed
func (a *ChunkAssembler) fetchChunk(ctx context.Context, job chunkJob, total int) ([]interface{}, int64, error) {
	label := fmt.Sprintf("chunk %d of %d", job.Index+1, total)

	resp, err := a.httpClient.Get(ctx, job.URL, nil)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, 0, err
		}
		return nil, 0, internal.WrapAPIError(err, label+" could not be fetched", internal.ErrChunkFetch).WithURL(job.URL)
	}
	body, err := utils.ReadBody(resp)
	if err != nil {
		return nil, 0, internal.WrapAPIError(err, label+" could not be read", internal.ErrChunkFetch).WithURL(job.URL)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, 0, internal.NewAPIError(resp.StatusCode,
			fmt.Sprintf("%s returned status %d", label, resp.StatusCode), internal.ErrChunkFetch).
			WithURL(job.URL).
			WithBody(body)
	}

	var items []interface{}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&items); err != nil {
		return nil, 0, internal.WrapAPIError(err, label+" is not a JSON list", internal.ErrChunkFetch).
			WithURL(job.URL).
			WithBody(body)
	}
	if items == nil {
		items = []interface{}{}
	}

	internal.LogDebug("Fetched %s: %d items", label, len(items))
	return items, int64(len(body)), nil
}

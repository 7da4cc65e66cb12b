package utils

import (
	"bytes"
	"strings"
	"sync"
	"testing"
)

func TestProgressTracker_BasicFunctionality(t *testing.T) {
	var out bytes.Buffer
	tracker := NewProgressTrackerWithWriter(4, true, &out)
	if tracker.bar != nil {
		t.Error("quiet tracker should not start a progress bar")
	}

	tracker.ChunkDone(100)
	tracker.ChunkDone(300)

	summary := tracker.Finish()
	if summary == nil {
		t.Fatal("Expected summary to be returned")
	}
	if summary.Chunks != 2 {
		t.Errorf("Expected 2 chunks, got %d", summary.Chunks)
	}
	if summary.TotalBytes != 400 {
		t.Errorf("Expected 400 bytes, got %d", summary.TotalBytes)
	}
	if summary.TotalTime <= 0 {
		t.Error("Total time should be positive")
	}
	if out.Len() != 0 {
		t.Errorf("quiet tracker should print nothing, got %q", out.String())
	}
}

func TestProgressTracker_ConcurrentChunks(t *testing.T) {
	tracker := NewProgressTracker(50, true)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.ChunkDone(10)
		}()
	}
	wg.Wait()

	summary := tracker.Finish()
	if summary.Chunks != 50 || summary.TotalBytes != 500 {
		t.Errorf("unexpected summary %+v", summary)
	}
}

func TestProgressTracker_NonQuietMode(t *testing.T) {
	var out bytes.Buffer
	tracker := NewProgressTrackerWithWriter(3, false, &out)

	if tracker.bar == nil {
		t.Error("Expected a progress bar")
	}

	tracker.ChunkDone(1024)
	tracker.ChunkDone(1024)
	tracker.ChunkDone(1024)

	summary := tracker.Finish()
	if summary == nil {
		t.Fatal("Expected summary to be returned")
	}
	if !strings.Contains(out.String(), "Fetched 3/3 chunks (3.0 KB)") {
		t.Errorf("summary line missing from output: %q", out.String())
	}
}

func TestProgressTracker_ZeroChunks(t *testing.T) {
	tracker := NewProgressTracker(0, true)

	if summary := tracker.Finish(); summary.Chunks != 0 {
		t.Errorf("Expected 0 chunks, got %d", summary.Chunks)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1048576, "1.0 MB"},
		{1073741824, "1.0 GB"},
		{5368709120, "5.0 GB"},
	}

	for _, test := range tests {
		result := formatBytes(test.bytes)
		if result != test.expected {
			t.Errorf("formatBytes(%d) = %s, expected %s", test.bytes, result, test.expected)
		}
	}
}

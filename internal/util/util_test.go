package util

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/paulmach/orb/maptile"
)

func TestTileKey(t *testing.T) {
	if got := TileKey(maptile.New(100, 200, 10)); got != "10/100/200" {
		t.Errorf("TileKey() = %q, want 10/100/200", got)
	}
}

func TestEnsureDirExists(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b", "c")
	if err := EnsureDirExists(dir); err != nil {
		t.Fatalf("EnsureDirExists: %v", err)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("directory %s not created", dir)
	}
	if err := EnsureDirExists(dir); err != nil {
		t.Errorf("EnsureDirExists on existing dir: %v", err)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{3 * 1024 * 1024, "3.00 MB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.n); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{errors.New("Get \"https://x\": context deadline exceeded"), "timeout"},
		{errors.New("dial tcp: connection refused"), "connection refused"},
		{errors.New("dial tcp: lookup x: no such host"), "DNS lookup failed"},
		{errors.New("HTTP 401 Unauthorized"), "HTTP 401 unauthorized (check api key)"},
		{errors.New("HTTP 404 Not Found"), "HTTP 404 not found"},
		{errors.New("HTTP 503 Service Unavailable"), "HTTP 5xx server error"},
		{errors.New("short"), "short"},
	}

	for _, tt := range tests {
		if got := ClassifyError(tt.err); got != tt.want {
			t.Errorf("ClassifyError(%q) = %q, want %q", tt.err, got, tt.want)
		}
	}

	long := errors.New("this error message is definitely longer than fifty characters in total")
	if got := ClassifyError(long); len(got) != 53 {
		t.Errorf("ClassifyError(long) = %q, want 50 chars plus ellipsis", got)
	}
}

func TestErrorStats(t *testing.T) {
	es := NewErrorStats()
	if es.HasErrors() {
		t.Fatal("new ErrorStats reports errors")
	}

	es.RecordError(nil)
	if es.HasErrors() {
		t.Fatal("RecordError(nil) counted an error")
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			es.RecordError(fmt.Errorf("tile %d: HTTP 404 Not Found", i))
		}(i)
	}
	wg.Wait()

	stats := es.GetErrorStats()
	if stats["HTTP 404 not found"] != 20 {
		t.Errorf("stats = %v, want 20 x HTTP 404", stats)
	}

	stats["HTTP 404 not found"] = 0
	if es.GetErrorStats()["HTTP 404 not found"] != 20 {
		t.Error("GetErrorStats returned the internal map instead of a copy")
	}
}

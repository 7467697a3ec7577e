package cache

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/paulmach/orb/maptile"
)

func TestFilesystemCachePath(t *testing.T) {
	c := NewFilesystemCache("/tmp/tiles")
	got := c.Path(maptile.New(100, 200, 10))
	want := filepath.Join("/tmp/tiles", "10", "100", "200.png")
	if got != want {
		t.Errorf("Path() = %q, want %q", got, want)
	}
}

func TestFilesystemCacheSetAndHas(t *testing.T) {
	c := NewFilesystemCache(t.TempDir())
	tile := maptile.New(3, 5, 4)

	ok, err := c.Has(tile)
	if err != nil || ok {
		t.Fatalf("Has() before Set = (%v, %v), want (false, nil)", ok, err)
	}

	data := []byte("\x89PNG tile bytes")
	if err := c.Set(tile, data); err != nil {
		t.Fatalf("Set: %v", err)
	}

	ok, err = c.Has(tile)
	if err != nil || !ok {
		t.Fatalf("Has() after Set = (%v, %v), want (true, nil)", ok, err)
	}

	got, err := os.ReadFile(c.Path(tile))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("stored bytes = %q, want %q", got, data)
	}
}

func TestFilesystemCacheLeavesNoTempFiles(t *testing.T) {
	c := NewFilesystemCache(t.TempDir())
	tile := maptile.New(1, 1, 1)
	if err := c.Set(tile, []byte("a")); err != nil {
		t.Fatalf("Set: %v", err)
	}

	entries, err := os.ReadDir(filepath.Dir(c.Path(tile)))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "1.png" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("directory holds %v, want [1.png]", names)
	}
}

func TestFilesystemCacheConcurrentSet(t *testing.T) {
	c := NewFilesystemCache(t.TempDir())
	tile := maptile.New(7, 7, 5)
	payload := bytes.Repeat([]byte("x"), 64*1024)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Set(tile, payload); err != nil {
				t.Errorf("Set: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := os.ReadFile(c.Path(tile))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(got) != len(payload) {
		t.Errorf("stored %d bytes, want %d", len(got), len(payload))
	}
}

func TestMapCache(t *testing.T) {
	c := NewMapCache()
	tile := maptile.New(1, 2, 3)

	if ok, _ := c.Has(tile); ok {
		t.Fatal("empty MapCache reported a hit")
	}
	if err := c.Set(tile, []byte("data")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if ok, _ := c.Has(tile); !ok {
		t.Error("MapCache missed a stored tile")
	}
	if v, ok := c.Get(tile); !ok || string(v) != "data" {
		t.Errorf("Get() = (%q, %v), want (data, true)", v, ok)
	}
}

package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/paulmach/orb/maptile"

	"github.com/geoyee/regiontiles/internal/util"
)

// FilesystemCache lays tiles out as root/z/x/y.png.
type FilesystemCache struct {
	root string
}

var _ TileCache = (*FilesystemCache)(nil)

func NewFilesystemCache(root string) *FilesystemCache {
	return &FilesystemCache{root: root}
}

func (c *FilesystemCache) Root() string {
	return c.root
}

func (c *FilesystemCache) Path(t maptile.Tile) string {
	return filepath.Join(c.root, strconv.Itoa(int(t.Z)), strconv.Itoa(int(t.X)), strconv.Itoa(int(t.Y))+".png")
}

func (c *FilesystemCache) Has(t maptile.Tile) (bool, error) {
	_, err := os.Stat(c.Path(t))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Set writes to a temp file beside the target and renames it into place, so
// a reader never sees a partial tile.
func (c *FilesystemCache) Set(t maptile.Tile, data []byte) error {
	path := c.Path(t)
	dir := filepath.Dir(path)
	if err := util.EnsureDirExists(dir); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tile-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write tile: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("failed to chmod tile: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to save file: %w", err)
	}
	return nil
}

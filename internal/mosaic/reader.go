package mosaic

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"

	"github.com/disintegration/imaging"
	// webp tiles decode through the standard image registry
	_ "golang.org/x/image/webp"
)

// Reader enumerates the tile source and hands out its unprocessed entries.
type Reader struct {
	path    string
	cell    image.Point
	total   int
	pending []string
}

// Open lists the regular files under path as tile entries, sorted by name. A missing
// path or a path that is not a directory is an error.
func Open(path string, cell image.Point) (*Reader, error) {
	if cell.X <= 0 || cell.Y <= 0 {
		return nil, fmt.Errorf("invalid cell size %dx%d", cell.X, cell.Y)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open tile source: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("tile source %s is not a directory", path)
	}

	dirEntries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tile source: %w", err)
	}

	var entries []string
	for _, e := range dirEntries {
		if !e.Type().IsRegular() {
			continue
		}
		entries = append(entries, filepath.Join(path, e.Name()))
	}
	sort.Strings(entries)

	return &Reader{path: path, cell: cell, total: len(entries), pending: entries}, nil
}

// Len is the total number of tile entries found at open.
func (r *Reader) Len() int {
	return r.total
}

// UnprocessedLen is the number of entries not yet handed to a chunk.
func (r *Reader) UnprocessedLen() int {
	return len(r.pending)
}

func (r *Reader) CellSize() image.Point {
	return r.cell
}

// Split partitions the unprocessed entries into exactly n chunks of U/n entries each,
// the last chunk taking the remainder. Chunks may be empty when U < n. n <= 0 is
// treated as 1. After Split the reader has no unprocessed entries left.
func (r *Reader) Split(n int) []*Chunk {
	if n <= 0 {
		n = 1
	}
	size := len(r.pending) / n
	chunks := make([]*Chunk, n)
	for i := range n {
		start := i * size
		end := start + size
		if i == n-1 {
			end = len(r.pending)
		}
		chunks[i] = &Chunk{cell: r.cell, entries: r.pending[start:end:end]}
	}
	r.pending = nil
	return chunks
}

// BuildFromSplit merges every successfully processed tile, in chunk order, into a new
// dictionary. The chunks must not be used afterwards.
func (r *Reader) BuildFromSplit(chunks []*Chunk) *TileDictionary {
	n := 0
	for _, c := range chunks {
		n += len(c.tiles)
	}
	tiles := make([]Tile, 0, n)
	for _, c := range chunks {
		tiles = append(tiles, c.tiles...)
	}
	return &TileDictionary{cell: r.cell, tiles: tiles}
}

// Chunk is one builder worker's share of the tile source. It is processed strictly
// sequentially and is not safe for concurrent use.
type Chunk struct {
	cell    image.Point
	entries []string
	next    int
	tiles   []Tile
	failed  int
}

// Len is the number of entries assigned to the chunk.
func (c *Chunk) Len() int {
	return len(c.entries)
}

// Processed is the number of tiles that loaded successfully so far.
func (c *Chunk) Processed() int {
	return len(c.tiles)
}

// Failed is the number of entries that could not be loaded so far.
func (c *Chunk) Failed() int {
	return c.failed
}

// ErrTile wraps every per-entry processing failure.
var ErrTile = errors.New("tile could not be processed")

// ProcessOne loads the next entry. It reports exhausted once every entry has been
// consumed. A failing entry is consumed as well and its error returned.
func (c *Chunk) ProcessOne() (exhausted bool, err error) {
	if c.next >= len(c.entries) {
		return true, nil
	}
	path := c.entries[c.next]
	c.next++

	tile, err := loadTile(path, c.cell)
	if err != nil {
		c.failed++
		return false, fmt.Errorf("%w: %s: %v", ErrTile, filepath.Base(path), err)
	}
	c.tiles = append(c.tiles, tile)
	return false, nil
}

func loadTile(path string, cell image.Point) (Tile, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return Tile{}, err
	}
	resized := imaging.Fill(img, cell.X, cell.Y, imaging.Center, imaging.Lanczos)
	return Tile{Name: filepath.Base(path), Image: resized, Mean: meanColor(resized)}, nil
}

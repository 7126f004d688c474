// Package mosaic holds the tile library and the composition that rebuilds an image
// out of library tiles.
//
// A TileDictionary is immutable once built. Tiles, their images and the dictionary's
// index are never written after construction, so a single *TileDictionary can be read
// from any number of goroutines without locking.
package mosaic

import (
	"image"
	"image/color"
)

// Tile is one processed library entry: the image resampled to the cell size and its
// mean colour.
type Tile struct {
	Name  string
	Image *image.NRGBA
	Mean  color.NRGBA
}

type TileDictionary struct {
	cell  image.Point
	tiles []Tile
}

// NewTileDictionary copies tiles into a new dictionary.
func NewTileDictionary(cell image.Point, tiles []Tile) *TileDictionary {
	own := make([]Tile, len(tiles))
	copy(own, tiles)
	return &TileDictionary{cell: cell, tiles: own}
}

func (d *TileDictionary) Len() int {
	return len(d.tiles)
}

func (d *TileDictionary) CellSize() image.Point {
	return d.cell
}

func (d *TileDictionary) Tile(i int) Tile {
	return d.tiles[i]
}

// Nearest returns the index of the tile whose mean colour is closest to c, or -1 when
// the dictionary is empty. Ties go to the lower index.
func (d *TileDictionary) Nearest(c color.NRGBA) int {
	best := -1
	bestDist := int64(-1)
	for i := range d.tiles {
		dist := colorDistance(c, d.tiles[i].Mean)
		if best == -1 || dist < bestDist {
			best = i
			bestDist = dist
		}
	}
	return best
}

func colorDistance(a, b color.NRGBA) int64 {
	dr := int64(a.R) - int64(b.R)
	dg := int64(a.G) - int64(b.G)
	db := int64(a.B) - int64(b.B)
	return dr*dr + dg*dg + db*db
}

func meanColor(img *image.NRGBA) color.NRGBA {
	b := img.Bounds()
	n := uint64(b.Dx() * b.Dy())
	if n == 0 {
		return color.NRGBA{}
	}
	var r, g, bl, a uint64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := img.NRGBAAt(x, y)
			r += uint64(c.R)
			g += uint64(c.G)
			bl += uint64(c.B)
			a += uint64(c.A)
		}
	}
	return color.NRGBA{R: uint8(r / n), G: uint8(g / n), B: uint8(bl / n), A: uint8(a / n)}
}

package mosaic

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
)

var ErrEmptyDictionary = errors.New("tile dictionary is empty")

// Compose replaces every pixel of src with the dictionary tile closest to its colour.
// The result is src's size scaled by the dictionary's cell size.
func Compose(dict *TileDictionary, src image.Image) (*image.NRGBA, error) {
	if dict == nil || dict.Len() == 0 {
		return nil, ErrEmptyDictionary
	}
	b := src.Bounds()
	cell := dict.CellSize()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx()*cell.X, b.Dy()*cell.Y))

	nrgba, _ := src.(*image.NRGBA)
	picked := make(map[color.NRGBA]int)

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			var c color.NRGBA
			if nrgba != nil {
				c = nrgba.NRGBAAt(x, y)
			} else {
				c = color.NRGBAModel.Convert(src.At(x, y)).(color.NRGBA)
			}
			c.A = 0xff

			idx, ok := picked[c]
			if !ok {
				idx = dict.Nearest(c)
				picked[c] = idx
			}

			tile := dict.tiles[idx].Image
			ox := (x - b.Min.X) * cell.X
			oy := (y - b.Min.Y) * cell.Y
			dst := image.Rect(ox, oy, ox+cell.X, oy+cell.Y)
			draw.Draw(out, dst, tile, tile.Bounds().Min, draw.Src)
		}
	}
	return out, nil
}

package transformation

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	// Register the decoders image.Decode can dispatch to. imaging already pulls in
	// jpeg, png, gif, bmp and tiff.
	_ "golang.org/x/image/webp"

	"github.com/disintegration/imaging"
	"github.com/mahirjain10/photomosaic-bot/internal/mosaic"
)

// Stage names the step of the transform that failed.
type Stage string

const (
	StageDecode  Stage = "decode"
	StageCompose Stage = "compose"
	StageEncode  Stage = "encode"
)

// TransformError is a job-scoped failure of the transform.
type TransformError struct {
	Stage Stage
	Err   error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform failed at %s: %v", e.Stage, e.Err)
}

func (e *TransformError) Unwrap() error {
	return e.Err
}

type Options struct {
	// Size is the side of the square working image.
	Size int
	// Quality is the JPEG quality of the encoded result.
	Quality int
}

func DefaultOptions() Options {
	return Options{Size: 100, Quality: 85}
}

// Transform decodes buffer, fills it to the working size, rebuilds it out of dict's tiles
// and returns the result as JPEG bytes. It is a pure function of its inputs.
func Transform(buffer []byte, dict *mosaic.TileDictionary, opts Options) ([]byte, error) {
	if opts.Size <= 0 || opts.Quality <= 0 {
		def := DefaultOptions()
		if opts.Size <= 0 {
			opts.Size = def.Size
		}
		if opts.Quality <= 0 {
			opts.Quality = def.Quality
		}
	}

	// 1. Decode the image
	img, err := imaging.Decode(bytes.NewReader(buffer), imaging.AutoOrientation(true))
	if err != nil {
		return nil, &TransformError{Stage: StageDecode, Err: err}
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, &TransformError{Stage: StageDecode, Err: errors.New("image has no pixels")}
	}

	// 2. Fill: scale and centre-crop to the working size whatever the aspect ratio
	working := imaging.Fill(img, opts.Size, opts.Size, imaging.Center, imaging.Linear)

	// 3. Rebuild out of library tiles
	composed, err := mosaic.Compose(dict, working)
	if err != nil {
		return nil, &TransformError{Stage: StageCompose, Err: err}
	}

	// 4. Encode to a new buffer
	buf := new(bytes.Buffer)
	if err = imaging.Encode(buf, composed, imaging.JPEG, imaging.JPEGQuality(opts.Quality)); err != nil {
		return nil, &TransformError{Stage: StageEncode, Err: err}
	}
	return buf.Bytes(), nil
}

// OutputSize is the size of the image Transform encodes.
func OutputSize(dict *mosaic.TileDictionary, opts Options) image.Point {
	cell := dict.CellSize()
	return image.Pt(opts.Size*cell.X, opts.Size*cell.Y)
}

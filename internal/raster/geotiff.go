// Package raster decodes georeferenced GeoTIFF files into overlay images.
//
// Pixels are decoded with golang.org/x/image/tiff. The georeference comes
// from the ModelPixelScale and ModelTiepoint tags of the first IFD, read
// with the goexif TIFF directory parser. Coordinates are taken as-is
// (EPSG:4326 is assumed); there is no reprojection.
package raster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"

	"github.com/paulmach/orb"
	tiffdir "github.com/rwcarlsen/goexif/tiff"
	"golang.org/x/image/tiff"
)

// GeoTIFF tag numbers.
const (
	TagModelPixelScale = 33550
	TagModelTiepoint   = 33922
)

// DefaultMaxPixels caps the declared raster size when Decoder.MaxPixels
// is zero.
const DefaultMaxPixels = 64 << 20

var (
	// ErrNotTIFF is returned when the input is not a readable TIFF.
	ErrNotTIFF = errors.New("raster: not a TIFF file")

	// ErrNotGeoreferenced is returned when the TIFF carries no usable
	// pixel scale and tiepoint tags.
	ErrNotGeoreferenced = errors.New("raster: missing georeference tags")

	// ErrTooLarge is returned when the declared dimensions exceed the
	// pixel cap.
	ErrTooLarge = errors.New("raster: image too large")
)

// Image is a decoded raster ready to be laid over the map.
type Image struct {
	Bound  orb.Bound
	Width  int
	Height int
	PNG    []byte // PNG rendition of the pixels for the browser overlay
}

// Decoder decodes GeoTIFF streams. MaxBytes caps the input size; zero
// means no limit. MaxPixels caps width times height as declared in the
// header, checked before any pixel is decoded; zero means DefaultMaxPixels.
type Decoder struct {
	MaxBytes  int64
	MaxPixels int64
}

// Decode reads a GeoTIFF from r.
func (d Decoder) Decode(ctx context.Context, r io.Reader) (*Image, error) {
	if d.MaxBytes > 0 {
		r = io.LimitReader(r, d.MaxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading raster: %w", err)
	}
	if d.MaxBytes > 0 && int64(len(data)) > d.MaxBytes {
		return nil, fmt.Errorf("raster larger than %d bytes", d.MaxBytes)
	}

	tags, err := readGeoTags(data)
	if err != nil {
		return nil, err
	}

	cfg, err := tiff.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding tiff header: %w", err)
	}
	if limit := d.maxPixels(); int64(cfg.Width)*int64(cfg.Height) > limit {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrTooLarge, cfg.Width, cfg.Height, limit)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := tiff.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding tiff: %w", err)
	}
	size := img.Bounds().Size()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding png: %w", err)
	}

	return &Image{
		Bound:  tags.bound(size),
		Width:  size.X,
		Height: size.Y,
		PNG:    buf.Bytes(),
	}, nil
}

type geoTags struct {
	scale    []float64
	tiepoint []float64
}

// bound maps the raster corners to model space using the first tiepoint.
func (g geoTags) bound(size image.Point) orb.Bound {
	i, j := g.tiepoint[0], g.tiepoint[1]
	x, y := g.tiepoint[3], g.tiepoint[4]
	sx, sy := g.scale[0], g.scale[1]

	minX := x - i*sx
	maxY := y + j*sy
	return orb.Bound{
		Min: orb.Point{minX, maxY - float64(size.Y)*sy},
		Max: orb.Point{minX + float64(size.X)*sx, maxY},
	}
}

func (d Decoder) maxPixels() int64 {
	if d.MaxPixels > 0 {
		return d.MaxPixels
	}
	return DefaultMaxPixels
}

func readGeoTags(data []byte) (geoTags, error) {
	tf, err := tiffdir.Decode(bytes.NewReader(data))
	if err != nil {
		return geoTags{}, fmt.Errorf("%w: %v", ErrNotTIFF, err)
	}
	if len(tf.Dirs) == 0 {
		return geoTags{}, ErrNotTIFF
	}

	var tags geoTags
	for _, tag := range tf.Dirs[0].Tags {
		switch tag.Id {
		case TagModelPixelScale:
			tags.scale = doubles(tag)
		case TagModelTiepoint:
			tags.tiepoint = doubles(tag)
		}
	}

	if len(tags.scale) < 2 || len(tags.tiepoint) < 6 {
		return geoTags{}, ErrNotGeoreferenced
	}
	return tags, nil
}

// doubles returns the tag's values, or nil when they are not floating point.
func doubles(tag *tiffdir.Tag) []float64 {
	if tag.Format() != tiffdir.FloatVal {
		return nil
	}
	vals := make([]float64, tag.Count)
	for i := range vals {
		v, err := tag.Float(i)
		if err != nil {
			return nil
		}
		vals[i] = v
	}
	return vals
}

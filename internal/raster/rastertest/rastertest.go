// Package rastertest builds small GeoTIFF files for tests.
package rastertest

import (
	"bytes"
	"encoding/binary"
	"image"
	"math"
	"sort"

	"github.com/paulmach/orb"
)

type entry struct {
	tag, typ uint16
	count    uint32
	value    uint32 // inline value or offset
}

// GeoTIFF encodes an uncompressed little-endian 8-bit grayscale GeoTIFF
// whose pixels cover b, with the tiepoint at the top-left corner.
func GeoTIFF(img *image.Gray, b orb.Bound) []byte {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	scale := []float64{(b.Max[0] - b.Min[0]) / float64(w), (b.Max[1] - b.Min[1]) / float64(h), 0}
	tiepoint := []float64{0, 0, 0, b.Min[0], b.Max[1], 0}
	return encode(img, scale, tiepoint)
}

// PlainTIFF encodes img without any georeference tags.
func PlainTIFF(img *image.Gray) []byte {
	return encode(img, nil, nil)
}

func encode(img *image.Gray, scale, tiepoint []float64) []byte {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()

	entries := []entry{
		{256, 4, 1, uint32(w)},
		{257, 4, 1, uint32(h)},
		{258, 3, 1, 8},
		{259, 3, 1, 1},
		{262, 3, 1, 1},
		{273, 4, 1, 0}, // strip offset, patched below
		{277, 3, 1, 1},
		{278, 4, 1, uint32(h)},
		{279, 4, 1, uint32(w * h)},
	}
	if scale != nil {
		entries = append(entries, entry{33550, 12, uint32(len(scale)), 0})
	}
	if tiepoint != nil {
		entries = append(entries, entry{33922, 12, uint32(len(tiepoint)), 0})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	ifdLen := 2 + len(entries)*12 + 4
	next := uint32(8 + ifdLen)

	var extra bytes.Buffer
	for i := range entries {
		switch entries[i].tag {
		case 33550:
			entries[i].value = next + uint32(extra.Len())
			writeDoubles(&extra, scale)
		case 33922:
			entries[i].value = next + uint32(extra.Len())
			writeDoubles(&extra, tiepoint)
		}
	}
	pixels := next + uint32(extra.Len())
	for i := range entries {
		if entries[i].tag == 273 {
			entries[i].value = pixels
		}
	}

	le := binary.LittleEndian
	var buf bytes.Buffer
	buf.WriteString("II")
	binary.Write(&buf, le, uint16(42))
	binary.Write(&buf, le, uint32(8))
	binary.Write(&buf, le, uint16(len(entries)))
	for _, e := range entries {
		binary.Write(&buf, le, e.tag)
		binary.Write(&buf, le, e.typ)
		binary.Write(&buf, le, e.count)
		if e.typ == 3 {
			binary.Write(&buf, le, uint16(e.value))
			binary.Write(&buf, le, uint16(0))
		} else {
			binary.Write(&buf, le, e.value)
		}
	}
	binary.Write(&buf, le, uint32(0))
	buf.Write(extra.Bytes())

	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w]
		buf.Write(row)
	}
	return buf.Bytes()
}

func writeDoubles(buf *bytes.Buffer, vals []float64) {
	for _, v := range vals {
		binary.Write(buf, binary.LittleEndian, math.Float64bits(v))
	}
}

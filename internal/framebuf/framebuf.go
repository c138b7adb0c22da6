// Package framebuf implements the packed 4-bit-per-pixel frame buffer consumed
// by the ACeP 7.3" panel.
//
// Each byte holds two colour indices: the high nibble is the even-x (left)
// pixel, the low nibble the odd-x (right) pixel. Rows are stored top to
// bottom with a stride of Width/2 bytes.
package framebuf

import (
	"fmt"
	"image"
	"image/color"
	"strings"
)

// Panel geometry (Waveshare 7.3" E, 800x480).
const (
	Width  = 800
	Height = 480
	Stride = Width / 2
	Size   = Stride * Height // 192000
)

// Index is a device colour index (0-15, only the low nibble is used).
type Index uint8

// Colour indices recognised by the panel. 4 and 7-15 are reserved.
const (
	Black  Index = 0x0
	White  Index = 0x1
	Yellow Index = 0x2
	Red    Index = 0x3
	Blue   Index = 0x5
	Green  Index = 0x6
)

var indexNames = map[Index]string{
	Black:  "black",
	White:  "white",
	Yellow: "yellow",
	Red:    "red",
	Blue:   "blue",
	Green:  "green",
}

func (i Index) String() string {
	if n, ok := indexNames[i&0x0F]; ok {
		return n
	}
	return fmt.Sprintf("index(%d)", uint8(i&0x0F))
}

// ParseIndex maps a colour name (as used in the config file) to its index.
func ParseIndex(name string) (Index, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for idx, s := range indexNames {
		if s == n {
			return idx, nil
		}
	}
	return 0, fmt.Errorf("framebuf: unknown colour %q", name)
}

// ValidationError is returned by the strict variants when an argument is
// outside of what the panel can represent.
type ValidationError struct {
	Field string
	Value any
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("framebuf: invalid %s %v: %s", e.Field, e.Value, e.Msg)
}

// Buffer is a full-panel packed frame.
type Buffer struct {
	pix []byte
}

// New allocates a zeroed (all black) frame of exactly Size bytes.
func New() *Buffer {
	return &Buffer{pix: make([]byte, Size)}
}

// PackTwo packs two colour indices into one byte (left pixel in the high nibble).
func PackTwo(left, right Index) byte {
	return byte((left&0x0F)<<4 | (right & 0x0F))
}

// Unpack is the inverse of PackTwo.
func Unpack(b byte) (left, right Index) {
	return Index(b >> 4), Index(b & 0x0F)
}

// pixOffset returns the byte offset and nibble shift for (x, y).
// Even x uses the high nibble (shift 4), odd x the low nibble (shift 0).
func pixOffset(x, y int) (offset int, shift uint) {
	offset = y*Stride + x/2
	shift = uint(4 * (1 - (x & 1)))
	return
}

func inBounds(x, y int) bool {
	return x >= 0 && x < Width && y >= 0 && y < Height
}

// SetPixel writes idx at (x, y). Out of range coordinates are ignored.
func (b *Buffer) SetPixel(x, y int, idx Index) {
	if !inBounds(x, y) {
		return
	}
	offset, shift := pixOffset(x, y)
	b.pix[offset] = (b.pix[offset] &^ (0x0F << shift)) | (byte(idx&0x0F) << shift)
}

// SetPixelStrict is SetPixel with out of range coordinates reported as a
// *ValidationError instead of being dropped.
func (b *Buffer) SetPixelStrict(x, y int, idx Index) error {
	if !inBounds(x, y) {
		return &ValidationError{
			Field: "pixel",
			Value: image.Pt(x, y),
			Msg:   fmt.Sprintf("outside %dx%d", Width, Height),
		}
	}
	b.SetPixel(x, y, idx)
	return nil
}

// PixelAt returns the index stored at (x, y), or 0 when out of range.
func (b *Buffer) PixelAt(x, y int) Index {
	if !inBounds(x, y) {
		return 0
	}
	offset, shift := pixOffset(x, y)
	return Index(b.pix[offset]>>shift) & 0x0F
}

// Fill sets every pixel to idx.
func (b *Buffer) Fill(idx Index) {
	packed := PackTwo(idx, idx)
	for i := range b.pix {
		b.pix[i] = packed
	}
}

// Bytes exposes the backing slice for transfer. Callers must not resize it.
func (b *Buffer) Bytes() []byte {
	return b.pix
}

// Len is the backing slice length, Size for buffers from New.
func (b *Buffer) Len() int {
	return len(b.pix)
}

// Palette is the approximate on-panel appearance of each index. Reserved
// slots are rendered as white so that image/draw never picks them.
var Palette = color.Palette{
	Black:  color.NRGBA{0x00, 0x00, 0x00, 0xFF},
	White:  color.NRGBA{0xFF, 0xFF, 0xFF, 0xFF},
	Yellow: color.NRGBA{0xFF, 0xFF, 0x00, 0xFF},
	Red:    color.NRGBA{0xFF, 0x00, 0x00, 0xFF},
	4:      color.NRGBA{0xFF, 0xFF, 0xFF, 0xFF},
	Blue:   color.NRGBA{0x00, 0x00, 0xFF, 0xFF},
	Green:  color.NRGBA{0x00, 0xFF, 0x00, 0xFF},
}

// usable lists the indices image/draw is allowed to quantise to.
var usable = color.Palette{
	Palette[Black], Palette[White], Palette[Yellow],
	Palette[Red], Palette[Blue], Palette[Green],
}

var usableIndex = []Index{Black, White, Yellow, Red, Blue, Green}

// Nearest returns the usable index closest to c.
func Nearest(c color.Color) Index {
	return usableIndex[usable.Index(c)]
}

// ColorModel implements image.Image.
func (b *Buffer) ColorModel() color.Model {
	return color.ModelFunc(func(c color.Color) color.Color {
		return Palette[Nearest(c)]
	})
}

// Bounds implements image.Image.
func (b *Buffer) Bounds() image.Rectangle {
	return image.Rect(0, 0, Width, Height)
}

// At implements image.Image.
func (b *Buffer) At(x, y int) color.Color {
	return ColorOf(b.PixelAt(x, y))
}

// ColorOf returns the preview colour for idx. Reserved indices map to white.
func ColorOf(idx Index) color.Color {
	if int(idx) >= len(Palette) {
		return Palette[White]
	}
	return Palette[idx]
}

// Set implements draw.Image, quantising c to the nearest panel colour.
func (b *Buffer) Set(x, y int, c color.Color) {
	b.SetPixel(x, y, Nearest(c))
}

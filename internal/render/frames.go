package render

import (
	"errors"
	"fmt"

	"epdacep/internal/framebuf"
)

// ErrAllocation is returned when a frame buffer could not be obtained.
var ErrAllocation = errors.New("render: frame buffer allocation failed")

// Allocator hands out fresh frame buffers. Frames are never reused.
type Allocator func() (*framebuf.Buffer, error)

// HeapAllocator is the default Allocator.
func HeapAllocator() (*framebuf.Buffer, error) {
	return framebuf.New(), nil
}

// Line is one row of the text frame.
type Line struct {
	Text  string
	Color framebuf.Index
}

// Placement is where Layout decided to draw a line.
type Placement struct {
	Line
	X, Y int
}

// DefaultLines is the demonstration content: each line names the colour it
// is drawn in.
func DefaultLines() []Line {
	return []Line{
		{Text: "Dit is rood (in het rood)", Color: framebuf.Red},
		{Text: "Dit is blauw (in het blauw)", Color: framebuf.Blue},
		{Text: "Dit is groen (in het groen)", Color: framebuf.Green},
		{Text: "Dit is geel (in het geel)", Color: framebuf.Yellow},
	}
}

// Layout centres the lines as a block vertically and each line horizontally.
// Integer division may leave the block one pixel off centre.
func Layout(lines []Line, scale int) []Placement {
	lh := LineHeight(scale)
	startY := (framebuf.Height - lh*len(lines)) / 2

	out := make([]Placement, 0, len(lines))
	for i, l := range lines {
		out = append(out, Placement{
			Line: l,
			X:    (framebuf.Width - TextPixelWidth(l.Text, scale)) / 2,
			Y:    startY + i*lh,
		})
	}
	return out
}

// BuildColoredTextFrame renders lines on a white background.
func BuildColoredTextFrame(alloc Allocator, lines []Line, scale int) (*framebuf.Buffer, error) {
	if err := ValidateScale(scale); err != nil {
		return nil, err
	}
	buf, err := allocate(alloc)
	if err != nil {
		return nil, err
	}

	buf.Fill(framebuf.White)
	for _, p := range Layout(lines, scale) {
		DrawText(buf, p.X, p.Y, p.Text, p.Color, scale)
	}
	return buf, nil
}

// BuildColoredTextFrameStrict is BuildColoredTextFrame that rejects the
// frame when any line does not fit on the panel.
func BuildColoredTextFrameStrict(alloc Allocator, lines []Line, scale int) (*framebuf.Buffer, error) {
	if err := ValidateScale(scale); err != nil {
		return nil, err
	}
	buf, err := allocate(alloc)
	if err != nil {
		return nil, err
	}

	buf.Fill(framebuf.White)
	for _, p := range Layout(lines, scale) {
		if _, err := DrawTextStrict(buf, p.X, p.Y, p.Text, p.Color, scale); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// stripeColors is the left-to-right order of the vertical test bands.
var stripeColors = [6]framebuf.Index{
	framebuf.Black,
	framebuf.Yellow,
	framebuf.Red,
	framebuf.Blue,
	framebuf.Green,
	framebuf.White,
}

// StripeIndex returns the band colour for a byte column.
func StripeIndex(byteColumn int) framebuf.Index {
	return stripeColors[(byteColumn*len(stripeColors))/framebuf.Stride]
}

// BuildStripeTestFrame fills the panel with six vertical colour bands,
// computed per byte column so each byte carries the same index twice.
func BuildStripeTestFrame(alloc Allocator) (*framebuf.Buffer, error) {
	buf, err := allocate(alloc)
	if err != nil {
		return nil, err
	}

	var row [framebuf.Stride]byte
	for bx := range row {
		idx := StripeIndex(bx)
		row[bx] = framebuf.PackTwo(idx, idx)
	}
	pix := buf.Bytes()
	for y := 0; y < framebuf.Height; y++ {
		copy(pix[y*framebuf.Stride:], row[:])
	}
	return buf, nil
}

func allocate(alloc Allocator) (*framebuf.Buffer, error) {
	if alloc == nil {
		alloc = HeapAllocator
	}
	buf, err := alloc()
	if err != nil {
		return nil, errors.Join(ErrAllocation, err)
	}
	if buf == nil {
		return nil, ErrAllocation
	}
	if n := buf.Len(); n != framebuf.Size {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrAllocation, n, framebuf.Size)
	}
	return buf, nil
}

// Package render draws scaled bitmap text and test patterns into a packed
// frame buffer.
package render

import (
	"errors"
	"fmt"

	"epdacep/internal/font"
	"epdacep/internal/framebuf"
)

// DefaultScale is the glyph scale used by the default text frame.
const DefaultScale = 6

// ErrInvalidScale is returned by ValidateScale for scales below 1.
var ErrInvalidScale = errors.New("render: scale must be >= 1")

// ValidateScale rejects scales that would make the glyph math degenerate.
func ValidateScale(scale int) error {
	if scale < 1 {
		return fmt.Errorf("%w (got %d)", ErrInvalidScale, scale)
	}
	return nil
}

// Advance is the horizontal cursor step for one character: the glyph width
// plus one column of spacing, both scaled.
func Advance(scale int) int {
	return font.GlyphWidth*scale + scale
}

// LineHeight is the vertical step between stacked lines of text.
func LineHeight(scale int) int {
	return font.GlyphHeight*scale + scale
}

// TextPixelWidth returns the width in pixels s occupies at scale, including
// the trailing spacing column of the last character. Text is laid out one
// cell per byte, so a two-byte UTF-8 character takes two blank cells.
func TextPixelWidth(s string, scale int) int {
	return len(s) * Advance(scale)
}

// DrawChar draws r with its top-left corner at (x, y). Set glyph bits become
// scale x scale blocks of idx; clear bits leave the buffer untouched.
// A scale below 1 draws nothing.
func DrawChar(buf *framebuf.Buffer, x, y int, r rune, idx framebuf.Index, scale int) {
	_ = drawChar(x, y, r, scale, func(px, py int) error {
		buf.SetPixel(px, py, idx)
		return nil
	})
}

// DrawCharStrict is DrawChar that stops at the first pixel falling outside
// the panel and returns its *framebuf.ValidationError.
func DrawCharStrict(buf *framebuf.Buffer, x, y int, r rune, idx framebuf.Index, scale int) error {
	return drawChar(x, y, r, scale, func(px, py int) error {
		return buf.SetPixelStrict(px, py, idx)
	})
}

func drawChar(x, y int, r rune, scale int, set func(px, py int) error) error {
	if scale < 1 {
		return nil
	}
	g := font.GlyphFor(r)
	for col := 0; col < font.GlyphWidth; col++ {
		for row := 0; row < font.GlyphHeight; row++ {
			if !g.On(col, row) {
				continue
			}
			for sx := 0; sx < scale; sx++ {
				for sy := 0; sy < scale; sy++ {
					if err := set(x+col*scale+sx, y+row*scale+sy); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// DrawText draws s left to right starting at (x, y) with no wrapping and
// returns the cursor position after the last character. Each byte of s is
// one character cell; bytes outside the font draw as spaces.
func DrawText(buf *framebuf.Buffer, x, y int, s string, idx framebuf.Index, scale int) int {
	if scale < 1 {
		return x
	}
	cursor := x
	for i := 0; i < len(s); i++ {
		DrawChar(buf, cursor, y, rune(s[i]), idx, scale)
		cursor += Advance(scale)
	}
	return cursor
}

// DrawTextStrict is DrawText that fails on the first clipped pixel.
func DrawTextStrict(buf *framebuf.Buffer, x, y int, s string, idx framebuf.Index, scale int) (int, error) {
	if err := ValidateScale(scale); err != nil {
		return x, err
	}
	cursor := x
	for i := 0; i < len(s); i++ {
		if err := DrawCharStrict(buf, cursor, y, rune(s[i]), idx, scale); err != nil {
			return cursor, fmt.Errorf("render: text %q at byte %d: %w", s, i, err)
		}
		cursor += Advance(scale)
	}
	return cursor, nil
}

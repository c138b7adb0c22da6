// Package font provides the fixed 5x7 bitmap font used for panel text.
package font

const (
	// GlyphWidth is the number of columns in a glyph.
	GlyphWidth = 5
	// GlyphHeight is the number of rows used in each column byte.
	GlyphHeight = 7
)

// Glyph is one character: one byte per column, bit 0 is the top row.
type Glyph [GlyphWidth]byte

// On reports whether the pixel at (col, row) is set.
func (g Glyph) On(col, row int) bool {
	if col < 0 || col >= GlyphWidth || row < 0 || row >= GlyphHeight {
		return false
	}
	return (g[col]>>row)&0x01 != 0
}

var space = Glyph{0x00, 0x00, 0x00, 0x00, 0x00}

// letters holds 'A'..'Z'.
var letters = [26]Glyph{
	{0x7C, 0x12, 0x11, 0x12, 0x7C}, // A
	{0x7F, 0x49, 0x49, 0x49, 0x36}, // B
	{0x3E, 0x41, 0x41, 0x41, 0x22}, // C
	{0x7F, 0x41, 0x41, 0x22, 0x1C}, // D
	{0x7F, 0x49, 0x49, 0x49, 0x41}, // E
	{0x7F, 0x09, 0x09, 0x09, 0x01}, // F
	{0x3E, 0x41, 0x49, 0x49, 0x7A}, // G
	{0x7F, 0x08, 0x08, 0x08, 0x7F}, // H
	{0x00, 0x41, 0x7F, 0x41, 0x00}, // I
	{0x20, 0x40, 0x41, 0x3F, 0x01}, // J
	{0x7F, 0x08, 0x14, 0x22, 0x41}, // K
	{0x7F, 0x40, 0x40, 0x40, 0x40}, // L
	{0x7F, 0x02, 0x0C, 0x02, 0x7F}, // M
	{0x7F, 0x04, 0x08, 0x10, 0x7F}, // N
	{0x3E, 0x41, 0x41, 0x41, 0x3E}, // O
	{0x7F, 0x09, 0x09, 0x09, 0x06}, // P
	{0x3E, 0x41, 0x51, 0x21, 0x5E}, // Q
	{0x7F, 0x09, 0x19, 0x29, 0x46}, // R
	{0x46, 0x49, 0x49, 0x49, 0x31}, // S
	{0x01, 0x01, 0x7F, 0x01, 0x01}, // T
	{0x3F, 0x40, 0x40, 0x40, 0x3F}, // U
	{0x1F, 0x20, 0x40, 0x20, 0x1F}, // V
	{0x3F, 0x40, 0x38, 0x40, 0x3F}, // W
	{0x63, 0x14, 0x08, 0x14, 0x63}, // X
	{0x07, 0x08, 0x70, 0x08, 0x07}, // Y
	{0x61, 0x51, 0x49, 0x45, 0x43}, // Z
}

var (
	parenOpen  = Glyph{0x00, 0x1C, 0x22, 0x41, 0x00}
	parenClose = Glyph{0x00, 0x41, 0x22, 0x1C, 0x00}
)

// GlyphFor returns the glyph for r. Lower case letters share the upper case
// glyphs; anything without a glyph (digits included) renders as a space.
func GlyphFor(r rune) Glyph {
	if g, ok := lookup(r); ok {
		return g
	}
	return space
}

// Supported reports whether r has its own glyph rather than the space fallback.
func Supported(r rune) bool {
	_, ok := lookup(r)
	return ok
}

func lookup(r rune) (Glyph, bool) {
	switch {
	case r == ' ':
		return space, true
	case r >= 'A' && r <= 'Z':
		return letters[r-'A'], true
	case r >= 'a' && r <= 'z':
		return letters[r-'a'], true
	case r == '(':
		return parenOpen, true
	case r == ')':
		return parenClose, true
	}
	return Glyph{}, false
}

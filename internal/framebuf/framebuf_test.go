package framebuf

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
	"testing"
)

func TestNewSize(t *testing.T) {
	b := New()
	if b.Len() != Size || len(b.Bytes()) != 192000 {
		t.Fatalf("Len() = %d, want %d", b.Len(), 192000)
	}
	if b.Bounds() != image.Rect(0, 0, 800, 480) {
		t.Errorf("Bounds() = %v", b.Bounds())
	}
}

func TestPackTwo(t *testing.T) {
	tests := []struct {
		name        string
		left, right Index
		want        byte
	}{
		{"white white", White, White, 0x11},
		{"black yellow", Black, Yellow, 0x02},
		{"green red", Green, Red, 0x63},
		{"masked", Index(0x1F), Index(0xF5), 0xF5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PackTwo(tt.left, tt.right)
			if got != tt.want {
				t.Fatalf("PackTwo(%d, %d) = %#02x, want %#02x", tt.left, tt.right, got, tt.want)
			}
			l, r := Unpack(got)
			if l != tt.left&0x0F || r != tt.right&0x0F {
				t.Errorf("Unpack(%#02x) = (%d, %d), want (%d, %d)", got, l, r, tt.left&0x0F, tt.right&0x0F)
			}
		})
	}
}

func TestSetPixelRoundTrip(t *testing.T) {
	points := []image.Point{
		{0, 0}, {1, 0}, {798, 0}, {799, 0},
		{0, 479}, {799, 479}, {400, 240}, {401, 240},
	}
	for _, p := range points {
		for idx := 0; idx < 16; idx++ {
			b := New()
			b.Fill(White)

			b.SetPixel(p.X, p.Y, Index(idx))

			if got := b.PixelAt(p.X, p.Y); got != Index(idx) {
				t.Fatalf("PixelAt(%v) = %d, want %d", p, got, idx)
			}
			sibling := p.X ^ 1
			if got := b.PixelAt(sibling, p.Y); got != White {
				t.Fatalf("sibling of %v changed to %d", p, got)
			}
		}
	}
}

func TestSetPixelNibbleLayout(t *testing.T) {
	b := New()
	b.SetPixel(2, 1, Red)
	b.SetPixel(3, 1, Blue)

	want := byte(0x35)
	if got := b.Bytes()[1*Stride+1]; got != want {
		t.Errorf("byte = %#02x, want %#02x", got, want)
	}
}

func TestSetPixelMasksIndex(t *testing.T) {
	b := New()
	b.SetPixel(0, 0, Index(0xF3))
	if got := b.PixelAt(0, 0); got != Red {
		t.Errorf("PixelAt = %d, want %d", got, Red)
	}
	if got := b.Bytes()[0]; got != 0x30 {
		t.Errorf("byte = %#02x, want 0x30", got)
	}
}

func TestSetPixelOutOfRange(t *testing.T) {
	b := New()
	b.Fill(Green)
	before := append([]byte(nil), b.Bytes()...)

	for _, p := range []image.Point{{-1, 0}, {0, -1}, {800, 0}, {0, 480}, {-5, 900}, {1 << 20, 1 << 20}} {
		b.SetPixel(p.X, p.Y, Red)
	}

	for i := range before {
		if before[i] != b.Bytes()[i] {
			t.Fatalf("byte %d changed by out of range write", i)
		}
	}
	if got := b.PixelAt(-1, -1); got != 0 {
		t.Errorf("PixelAt out of range = %d, want 0", got)
	}
}

func TestSetPixelStrict(t *testing.T) {
	b := New()
	if err := b.SetPixelStrict(10, 10, Yellow); err != nil {
		t.Fatalf("in range: %v", err)
	}
	if b.PixelAt(10, 10) != Yellow {
		t.Error("strict write did not land")
	}

	err := b.SetPixelStrict(800, 10, Yellow)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want *ValidationError", err)
	}
	if ve.Field != "pixel" {
		t.Errorf("Field = %q", ve.Field)
	}
}

func TestFill(t *testing.T) {
	b := New()
	b.Fill(Blue)
	for i, v := range b.Bytes() {
		if v != 0x55 {
			t.Fatalf("byte %d = %#02x, want 0x55", i, v)
		}
	}
}

func TestParseIndex(t *testing.T) {
	tests := []struct {
		in      string
		want    Index
		wantErr bool
	}{
		{"red", Red, false},
		{" Blue ", Blue, false},
		{"GREEN", Green, false},
		{"white", White, false},
		{"orange", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseIndex(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseIndex(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
	if Red.String() != "red" || Index(9).String() != "index(9)" {
		t.Errorf("String() = %q, %q", Red.String(), Index(9).String())
	}
}

func TestDrawImageQuantises(t *testing.T) {
	b := New()
	src := image.NewUniform(color.NRGBA{0xF0, 0x10, 0x10, 0xFF})
	draw.Draw(b, image.Rect(0, 0, 4, 2), src, image.Point{}, draw.Src)

	if got := b.PixelAt(3, 1); got != Red {
		t.Errorf("PixelAt = %v, want red", got)
	}
	if got := b.PixelAt(4, 0); got != Black {
		t.Errorf("outside draw rect = %v, want black", got)
	}
	if got := b.At(3, 1); got != Palette[Red] {
		t.Errorf("At = %v", got)
	}
}

func TestColorOfReserved(t *testing.T) {
	if ColorOf(Index(12)) != Palette[White] {
		t.Error("reserved index should preview as white")
	}
}

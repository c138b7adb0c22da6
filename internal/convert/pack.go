package convert

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/image/bmp"

	"epdacep/internal/framebuf"
)

// Dump file names written by Dump.
const (
	RawName = "frame.bin"
	PNGName = "frame.png"
	BMPName = "frame.bmp"
)

// ToNRGBA expands a packed frame into an 800x480 NRGBA image.
//
// Packing 규칙 (framebuf 와 동일):
//
//	byteIndex = y*Stride + x/2
//	even x → high nibble, odd x → low nibble
//
// Reserved indices render as white, the same way the panel shows them.
func ToNRGBA(buf *framebuf.Buffer) *image.NRGBA {
	return FromBytes(buf.Bytes())
}

// FromBytes is ToNRGBA for a raw frame. Short input leaves the missing
// pixels transparent; extra bytes are ignored.
func FromBytes(pix []byte) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, framebuf.Width, framebuf.Height))

	// Palette lookup once per index instead of per pixel.
	var lut [16]color.NRGBA
	for i := range lut {
		lut[i] = color.NRGBAModel.Convert(framebuf.ColorOf(framebuf.Index(i))).(color.NRGBA)
	}

	for y := 0; y < framebuf.Height; y++ {
		rowOff := y * img.Stride
		for bx := 0; bx < framebuf.Stride; bx++ {
			src := y*framebuf.Stride + bx
			if src >= len(pix) {
				return img
			}
			left, right := framebuf.Unpack(pix[src])
			i := rowOff + bx*2*4
			setNRGBA(img.Pix[i:i+4], lut[left])
			setNRGBA(img.Pix[i+4:i+8], lut[right])
		}
	}
	return img
}

func setNRGBA(dst []byte, c color.NRGBA) {
	dst[0], dst[1], dst[2], dst[3] = c.R, c.G, c.B, c.A
}

// WritePNG encodes the preview of buf as PNG.
func WritePNG(w io.Writer, buf *framebuf.Buffer) error {
	if err := png.Encode(w, ToNRGBA(buf)); err != nil {
		return fmt.Errorf("convert: png encode: %w", err)
	}
	return nil
}

// WriteBMP encodes the preview of buf as a 24-bit BMP.
func WriteBMP(w io.Writer, buf *framebuf.Buffer) error {
	if err := bmp.Encode(w, ToNRGBA(buf)); err != nil {
		return fmt.Errorf("convert: bmp encode: %w", err)
	}
	return nil
}

// Dump writes the raw frame plus PNG and BMP previews into dir.
// It returns the paths written.
func Dump(dir string, buf *framebuf.Buffer) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("convert: create dump dir: %w", err)
	}

	raw := filepath.Join(dir, RawName)
	if err := os.WriteFile(raw, buf.Bytes(), 0o644); err != nil {
		return nil, fmt.Errorf("convert: write raw frame: %w", err)
	}
	written := []string{raw}

	for _, f := range []struct {
		name   string
		encode func(io.Writer, *framebuf.Buffer) error
	}{
		{PNGName, WritePNG},
		{BMPName, WriteBMP},
	} {
		path := filepath.Join(dir, f.name)
		if err := writeFile(path, buf, f.encode); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

func writeFile(path string, buf *framebuf.Buffer, encode func(io.Writer, *framebuf.Buffer) error) error {
	fh, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("convert: create %s: %w", path, err)
	}
	if err := encode(fh, buf); err != nil {
		fh.Close()
		return err
	}
	return fh.Close()
}

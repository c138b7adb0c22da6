package epd

import (
	"bytes"
	"errors"
	"testing"
)

func TestSendCommandAndData(t *testing.T) {
	r := newRig()
	tx := NewTransport(r, r)

	if err := tx.SendCommand(0x12); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if err := tx.SendData(0x00); err != nil {
		t.Fatalf("SendData: %v", err)
	}

	want := []csFrame{{Low, []byte{0x12}}, {High, []byte{0x00}}}
	if len(r.frames) != len(want) {
		t.Fatalf("frames = %d, want %d", len(r.frames), len(want))
	}
	for i, f := range want {
		if r.frames[i].dc != f.dc || !bytes.Equal(r.frames[i].data, f.data) {
			t.Errorf("frame %d = %+v, want %+v", i, r.frames[i], f)
		}
	}

	// CS low, DC, CS high per byte.
	wantWrites := []lineWrite{
		{RoleCS, Low}, {RoleDC, Low}, {RoleCS, High},
		{RoleCS, Low}, {RoleDC, High}, {RoleCS, High},
	}
	if len(r.writes) != len(wantWrites) {
		t.Fatalf("writes = %v", r.writes)
	}
	for i := range wantWrites {
		if r.writes[i] != wantWrites[i] {
			t.Errorf("write %d = %+v, want %+v", i, r.writes[i], wantWrites[i])
		}
	}
}

func TestSendBytesChunking(t *testing.T) {
	tests := []struct {
		name  string
		n     int
		chunk int
		sizes []int
	}{
		{"empty", 0, 256, nil},
		{"single byte", 1, 256, []int{1}},
		{"exact", 512, 256, []int{256, 256}},
		{"remainder", 600, 256, []int{256, 256, 88}},
		{"frame chunk", 2500, 1024, []int{1024, 1024, 452}},
		{"zero chunk falls back", 300, 0, []int{256, 44}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig()
			tx := NewTransport(r, r)
			p := make([]byte, tt.n)
			for i := range p {
				p[i] = byte(i)
			}
			if err := tx.SendDataChunked(p, tt.chunk); err != nil {
				t.Fatalf("SendDataChunked: %v", err)
			}
			if len(r.frames) != len(tt.sizes) {
				t.Fatalf("frames = %d, want %d", len(r.frames), len(tt.sizes))
			}
			var got []byte
			for i, f := range r.frames {
				if len(f.data) != tt.sizes[i] {
					t.Errorf("frame %d len = %d, want %d", i, len(f.data), tt.sizes[i])
				}
				if f.dc != High {
					t.Errorf("frame %d sent with DC low", i)
				}
				got = append(got, f.data...)
			}
			if !bytes.Equal(got, p) {
				t.Error("payload altered by chunking")
			}
		})
	}
}

func TestSendBytesUsesDataChunk(t *testing.T) {
	r := newRig()
	tx := NewTransport(r, r)
	if err := tx.SendBytes(make([]byte, DataChunk*3)); err != nil {
		t.Fatal(err)
	}
	if len(r.frames) != 3 {
		t.Errorf("frames = %d, want 3", len(r.frames))
	}
}

func TestTransferErrorReleasesCS(t *testing.T) {
	r := newRig()
	r.failTransferAt = 1
	tx := NewTransport(r, r)

	err := tx.SendCommand(0x04)
	var be *BusError
	if !errors.As(err, &be) {
		t.Fatalf("err = %v, want *BusError", err)
	}
	if !errors.Is(err, errWire) {
		t.Errorf("err does not wrap cause: %v", err)
	}
	if r.levels[RoleCS] != High {
		t.Error("CS left asserted after failed transfer")
	}
}

func TestLineWriteErrorIsBusError(t *testing.T) {
	r := newRig()
	r.failWrite[RoleDC] = errWire
	tx := NewTransport(r, r)

	err := tx.SendData(0x01)
	var be *BusError
	if !errors.As(err, &be) {
		t.Fatalf("err = %v, want *BusError", err)
	}
	if r.transfers != 0 {
		t.Errorf("transferred %d bytes after DC failure", r.transfers)
	}
	if r.levels[RoleCS] != High {
		t.Error("CS left asserted")
	}
}

func TestBusErrNoDoubleWrap(t *testing.T) {
	inner := busErr("a", errWire)
	outer := busErr("b", inner)
	if outer != inner {
		t.Errorf("busErr re-wrapped an existing BusError: %v", outer)
	}
	if busErr("x", nil) != nil {
		t.Error("busErr(nil) != nil")
	}
}

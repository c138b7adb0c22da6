package epd

// DataChunk is the chip-select frame size used by SendBytes.
const DataChunk = 256

// Transport frames command and data bytes on the bus. Every transaction is
// delimited by its own chip-select pulse; the panel latches on CS edges, so
// long payloads are re-framed per chunk rather than sent under one CS.
type Transport struct {
	lines Lines
	bus   Bus
}

func NewTransport(lines Lines, bus Bus) *Transport {
	return &Transport{lines: lines, bus: bus}
}

// SendCommand sends one command byte (DC low).
func (t *Transport) SendCommand(cmd byte) error {
	return t.frame(Low, "command", func() error {
		_, err := t.bus.TransferByte(cmd)
		return err
	})
}

// SendData sends one data byte (DC high).
func (t *Transport) SendData(b byte) error {
	return t.frame(High, "data", func() error {
		_, err := t.bus.TransferByte(b)
		return err
	})
}

// SendBytes sends p as data in DataChunk-sized CS frames.
func (t *Transport) SendBytes(p []byte) error {
	return t.SendDataChunked(p, DataChunk)
}

// SendDataChunked sends p as data, one CS frame per chunk bytes.
// A non-positive chunk falls back to DataChunk.
func (t *Transport) SendDataChunked(p []byte, chunk int) error {
	if chunk <= 0 {
		chunk = DataChunk
	}
	for sent := 0; sent < len(p); {
		n := min(chunk, len(p)-sent)
		part := p[sent : sent+n]
		if err := t.frame(High, "data chunk", func() error {
			return t.bus.Transfer(part)
		}); err != nil {
			return err
		}
		sent += n
	}
	return nil
}

// frame runs tx with CS asserted and DC at dc. On failure CS is released
// before the error is returned.
func (t *Transport) frame(dc Level, op string, tx func() error) error {
	if err := t.lines.Write(RoleCS, Low); err != nil {
		return busErr(op+": cs low", err)
	}
	if err := t.lines.Write(RoleDC, dc); err != nil {
		_ = t.lines.Write(RoleCS, High)
		return busErr(op+": dc", err)
	}
	if err := tx(); err != nil {
		_ = t.lines.Write(RoleCS, High)
		return busErr(op+": transfer", err)
	}
	if err := t.lines.Write(RoleCS, High); err != nil {
		return busErr(op+": cs high", err)
	}
	return nil
}

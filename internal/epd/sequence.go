package epd

// Controller commands. Names follow the AC073TC1 datasheet.
const (
	cmdPSR   = 0x00 // panel setting
	cmdPWR   = 0x01 // power setting
	cmdPOFS  = 0x03 // power off sequence
	cmdBTST1 = 0x05 // booster soft start 1
	cmdBTST2 = 0x06 // booster soft start 2
	cmdBTST3 = 0x08 // booster soft start 3
	cmdPLL   = 0x30
	cmdCDI   = 0x50 // VCOM and data interval
	cmdTCON  = 0x60
	cmdTRES  = 0x61 // resolution 0x0320 x 0x01E0
	cmdTVDCS = 0x84
	cmdCMDH  = 0xAA
	cmdPWS   = 0xE3

	CmdPowerOff  = 0x02
	CmdPowerOn   = 0x04
	CmdDeepSleep = 0x07
	CmdDataStart = 0x10
	CmdRefresh   = 0x12

	deepSleepCheck = 0xA5
)

// Register is one command followed by its data bytes.
type Register struct {
	Cmd  byte
	Data []byte
}

// InitSequence brings the controller out of reset. It is sent verbatim,
// every data byte in its own CS frame.
var InitSequence = []Register{
	{cmdCMDH, []byte{0x49, 0x55, 0x20, 0x08, 0x09, 0x18}},
	{cmdPWR, []byte{0x3F}},
	{cmdPSR, []byte{0x5F, 0x69}},
	{cmdPOFS, []byte{0x00, 0x54, 0x00, 0x44}},
	{cmdBTST1, []byte{0x40, 0x1F, 0x1F, 0x2C}},
	{cmdBTST2, []byte{0x6F, 0x1F, 0x17, 0x49}},
	{cmdBTST3, []byte{0x6F, 0x1F, 0x1F, 0x22}},
	{cmdPLL, []byte{0x03}},
	{cmdCDI, []byte{0x3F}},
	{cmdTCON, []byte{0x02, 0x00}},
	{cmdTRES, []byte{0x03, 0x20, 0x01, 0xE0}},
	{cmdTVDCS, []byte{0x01}},
	{cmdPWS, []byte{0x2F}},
}

// sendRegisters writes regs through t.
func sendRegisters(t *Transport, regs []Register) error {
	for _, r := range regs {
		if err := t.SendCommand(r.Cmd); err != nil {
			return err
		}
		for _, b := range r.Data {
			if err := t.SendData(b); err != nil {
				return err
			}
		}
	}
	return nil
}

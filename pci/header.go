package pci

// Config register offsets within a type 0 header. Each names the 32-bit
// register containing it; partial accesses are resolved by ConvRead and
// ConvWrite.
const (
	CfgID       = 0x00 // device ID high word, vendor ID low word (R)
	CfgCmdStat  = 0x04 // status high word, command low word (RW)
	CfgClassRev = 0x08 // class code and revision (R)
	CfgMisc     = 0x0C // BIST, header type, latency, cache line size (R)
	CfgBAR0     = 0x10 // base address register 0 (RW)
)

// Header is the common part of a type 0 configuration header. Devices
// embed it and serve ConfigRead/ConfigWrite through it.
//
// BAR0 is the only base address register implemented: writes are
// filtered through BAR0Mask, which both pins the window alignment and
// answers the firmware's all-ones size probe, and are reported through
// the BARChanged hook.
type Header struct {
	VendorID  uint16
	DeviceID  uint16
	ClassRev  uint32
	CacheLnSz uint8

	Command uint16
	Status  uint16

	BAR0     uint32
	BAR0Mask uint32

	// BARChanged, if set, is called after a write alters a base address
	// register.
	BARChanged func(barNum int)
}

func (h *Header) regRead(reg uint32) uint32 {
	switch reg &^ 3 {
	case CfgID:
		return uint32(h.DeviceID)<<16 | uint32(h.VendorID)
	case CfgCmdStat:
		return uint32(h.Status)<<16 | uint32(h.Command)
	case CfgClassRev:
		return h.ClassRev
	case CfgMisc:
		return uint32(h.CacheLnSz)
	case CfgBAR0:
		return h.BAR0
	default:
		return 0
	}
}

// ConfigRead implements the Device read contract for the header
// registers. Unimplemented registers read as zero.
func (h *Header) ConfigRead(reg uint32, acc AccessInfo) uint32 {
	return ConvRead(h.regRead(reg), acc)
}

// ConfigWrite implements the Device write contract for the header
// registers. ID, class and cache line size are read-only; writes to
// them are dropped.
func (h *Header) ConfigWrite(reg uint32, value uint32, acc AccessInfo) {
	switch reg &^ 3 {
	case CfgCmdStat:
		h.Command = uint16(ConvWrite(h.regRead(reg), value, acc))

	case CfgBAR0:
		old := h.BAR0
		h.BAR0 = ConvWrite(old, value, acc) & h.BAR0Mask
		if h.BAR0 != old && h.BARChanged != nil {
			h.BARChanged(0)
		}
	}
}

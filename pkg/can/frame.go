package can

import "fmt"

// Frame size and identifier limits.
const (
	MaxClassicLen = 8
	MaxFDLen      = 64

	MaxStdID = 0x7FF
	MaxExtID = 0x1FFFFFFF
)

var dlcToLen = [16]uint8{0, 1, 2, 3, 4, 5, 6, 7, 8, 12, 16, 20, 24, 32, 48, 64}

// DLCToLen converts a data length code to a byte count.
func DLCToLen(dlc uint8) int {
	return int(dlcToLen[dlc&0x0f])
}

// LenToDLC returns the smallest data length code holding n bytes.
func LenToDLC(n int) uint8 {
	for dlc, l := range dlcToLen {
		if int(l) >= n {
			return uint8(dlc)
		}
	}
	return 15
}

// PadLen rounds n up to the next length a frame can carry.
func PadLen(n int) int {
	return DLCToLen(LenToDLC(n))
}

// Frame is a classical or FD data frame.
type Frame struct {
	ID       uint32
	Extended bool
	FD       bool
	Len      uint8
	Data     [MaxFDLen]byte
}

// NewFrame builds a frame carrying data. Data longer than a classic
// frame makes an FD frame padded with zeros to a valid FD length.
func NewFrame(id uint32, extended bool, data []byte) (Frame, error) {
	if len(data) > MaxFDLen {
		return Frame{}, ErrInvalidLen
	}
	f := Frame{ID: id, Extended: extended, FD: len(data) > MaxClassicLen}
	f.Len = uint8(PadLen(len(data)))
	copy(f.Data[:], data)
	return f, f.Validate()
}

// Payload returns the data bytes.
func (f Frame) Payload() []byte {
	return f.Data[:f.Len]
}

// Validate checks identifier range and data length.
func (f Frame) Validate() error {
	maxID := uint32(MaxStdID)
	if f.Extended {
		maxID = MaxExtID
	}
	if f.ID > maxID {
		return ErrInvalidID
	}
	if f.FD {
		if f.Len > MaxFDLen || PadLen(int(f.Len)) != int(f.Len) {
			return ErrInvalidLen
		}
	} else if f.Len > MaxClassicLen {
		return ErrInvalidLen
	}
	return nil
}

// String implements fmt.Stringer.
func (f Frame) String() string {
	id := fmt.Sprintf("%03X", f.ID)
	if f.Extended {
		id = fmt.Sprintf("%08X", f.ID)
	}
	return fmt.Sprintf("%s [%d] % X", id, f.Len, f.Data[:f.Len])
}

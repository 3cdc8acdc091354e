package socketcan

import (
	"encoding/binary"
	"errors"

	"github.com/robotalks/orb.go/pkg/can"
)

// struct can_frame / struct canfd_frame, see linux/can.h.
const (
	classicMTU = 16
	fdMTU      = 72

	effFlag = 0x80000000
	rtrFlag = 0x40000000
	errFlag = 0x20000000
	sffMask = 0x000007FF
	effMask = 0x1FFFFFFF

	fdFlagBRS = 0x01
	fdFlagFDF = 0x04
)

// Error frame classes and controller status, see linux/can/error.h.
const (
	errClassCrtl      = 0x0004
	errClassBusOff    = 0x0040
	errClassRestarted = 0x0100
	errClassCnt       = 0x0200

	errCrtlRxWarning = 0x04
	errCrtlTxWarning = 0x08
	errCrtlRxPassive = 0x10
	errCrtlTxPassive = 0x20
	errCrtlActive    = 0x40
)

var errShortFrame = errors.New("socketcan: short frame")

func rawID(frame *can.Frame) uint32 {
	if frame.Extended {
		return frame.ID&effMask | effFlag
	}
	return frame.ID & sffMask
}

// marshalFrame writes frame in kernel layout and returns the byte count.
// The kernel uses host byte order, all supported targets are little endian.
func marshalFrame(frame *can.Frame, buf []byte) int {
	size := classicMTU
	if frame.FD {
		size = fdMTU
	}
	for n := range buf[:size] {
		buf[n] = 0
	}
	binary.LittleEndian.PutUint32(buf[0:4], rawID(frame))
	buf[4] = frame.Len
	if frame.FD {
		buf[5] = fdFlagBRS | fdFlagFDF
	}
	copy(buf[8:size], frame.Data[:frame.Len])
	return size
}

// unmarshalFrame parses a data frame, errFrame is set for error frames
// which carry the raw identifier and 8 data bytes.
func unmarshalFrame(buf []byte) (frame can.Frame, errFrame bool, err error) {
	if len(buf) != classicMTU && len(buf) != fdMTU {
		return frame, false, errShortFrame
	}
	id := binary.LittleEndian.Uint32(buf[0:4])
	frame.FD = len(buf) == fdMTU
	maxLen := can.MaxClassicLen
	if frame.FD {
		maxLen = can.MaxFDLen
	}
	frame.Len = buf[4]
	if int(frame.Len) > maxLen {
		frame.Len = uint8(maxLen)
	}
	copy(frame.Data[:], buf[8:8+int(frame.Len)])
	switch {
	case id&errFlag != 0:
		frame.ID = id & effMask
		return frame, true, nil
	case id&effFlag != 0:
		frame.ID = id & effMask
		frame.Extended = true
	default:
		frame.ID = id & sffMask
	}
	if id&rtrFlag != 0 {
		frame.Len = 0
	}
	return frame, false, nil
}

// errorState derives the bus state from an error frame, ok is false when
// the frame doesn't change the state.
func errorState(frame *can.Frame, prev can.BusState) (state can.BusState, counters can.ErrorCounters, hasCounters, ok bool) {
	class := frame.ID
	if class&errClassCnt != 0 {
		counters = can.ErrorCounters{TxErrors: frame.Data[6], RxErrors: frame.Data[7]}
		hasCounters = true
	}
	switch {
	case class&errClassBusOff != 0:
		return can.BusOff, counters, hasCounters, true
	case class&errClassRestarted != 0:
		return can.BusErrorActive, counters, hasCounters, true
	case class&errClassCrtl != 0:
		crtl := frame.Data[1]
		switch {
		case crtl&(errCrtlRxPassive|errCrtlTxPassive) != 0:
			return can.BusErrorPassive, counters, hasCounters, true
		case crtl&(errCrtlRxWarning|errCrtlTxWarning) != 0:
			return can.BusErrorWarning, counters, hasCounters, true
		case crtl&errCrtlActive != 0:
			return can.BusErrorActive, counters, hasCounters, true
		}
	}
	return prev, counters, hasCounters, false
}

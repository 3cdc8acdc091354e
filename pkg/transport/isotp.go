package transport

import (
	"context"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/orb.go/pkg/can"
	"github.com/robotalks/orb.go/pkg/mcu/codec"
)

// N_PCI types, the high nibble of the first byte of an ISO-TP frame.
const (
	pciSingle      = 0x00
	pciFirst       = 0x10
	pciConsecutive = 0x20
	pciFlowControl = 0x30

	// MaxSegmentedSize bounds a reassembled message.
	MaxSegmentedSize = codec.MaxEncodedSize

	maxWaitFrames = 20
	maxSTmin      = 127 * time.Millisecond
)

// FlowStatus is carried by flow control frames.
type FlowStatus uint8

// Flow status values.
const (
	FlowContinue FlowStatus = 0
	FlowWait     FlowStatus = 1
	FlowOverflow FlowStatus = 2
)

// pdu is a parsed ISO-TP frame.
type pdu struct {
	pci  byte
	size int
	seq  uint8
	data []byte

	status    FlowStatus
	blockSize int
	stMin     time.Duration
}

func parsePDU(payload []byte) (pdu, error) {
	if len(payload) == 0 {
		return pdu{}, errMalformedPDU
	}
	p := pdu{pci: payload[0] & 0xf0}
	switch p.pci {
	case pciSingle:
		n, off := int(payload[0]&0x0f), 1
		if n == 0 {
			// escaped length, CAN FD only
			if len(payload) < 2 {
				return p, errMalformedPDU
			}
			n, off = int(payload[1]), 2
		}
		if n == 0 || off+n > len(payload) {
			return p, errMalformedPDU
		}
		p.size, p.data = n, payload[off:off+n]
	case pciFirst:
		if len(payload) < 2 {
			return p, errMalformedPDU
		}
		p.size = int(payload[0]&0x0f)<<8 | int(payload[1])
		if p.size == 0 {
			// 32 bit lengths are far beyond MaxSegmentedSize.
			return p, errMessageTooLong
		}
		p.data = payload[2:]
	case pciConsecutive:
		p.seq, p.data = payload[0]&0x0f, payload[1:]
	case pciFlowControl:
		if len(payload) < 3 {
			return p, errMalformedPDU
		}
		p.status = FlowStatus(payload[0] & 0x0f)
		p.blockSize = int(payload[1])
		p.stMin = decodeSTmin(payload[2])
	default:
		return p, errMalformedPDU
	}
	return p, nil
}

// singleFrame returns the single frame carrying data, false when data
// must be segmented on frames of maxLen bytes.
func singleFrame(data []byte, maxLen int) ([]byte, bool) {
	n := len(data)
	switch {
	case n <= 7:
		return append([]byte{pciSingle | byte(n)}, data...), true
	case maxLen > can.MaxClassicLen && n+2 <= maxLen:
		return append([]byte{pciSingle, byte(n)}, data...), true
	}
	return nil, false
}

// firstFrame returns the first frame of data and how many bytes it carries.
func firstFrame(data []byte, maxLen int) ([]byte, int) {
	n := min(len(data), maxLen-2)
	size := len(data)
	return append([]byte{pciFirst | byte(size>>8)&0x0f, byte(size)}, data[:n]...), n
}

// consecutiveFrame returns the next consecutive frame of data and how many
// bytes it carries.
func consecutiveFrame(data []byte, seq uint8, maxLen int) ([]byte, int) {
	n := min(len(data), maxLen-1)
	return append([]byte{pciConsecutive | seq&0x0f}, data[:n]...), n
}

func flowControl(status FlowStatus, blockSize int, stMin time.Duration) []byte {
	return []byte{pciFlowControl | byte(status), byte(blockSize), encodeSTmin(stMin)}
}

func encodeSTmin(d time.Duration) byte {
	switch {
	case d <= 0:
		return 0
	case d < 900*time.Microsecond:
		return 0xf0 + byte((d+99*time.Microsecond)/(100*time.Microsecond))
	case d <= maxSTmin:
		return byte((d + time.Millisecond - 1) / time.Millisecond)
	}
	return 0x7f
}

func decodeSTmin(b byte) time.Duration {
	switch {
	case b <= 0x7f:
		return time.Duration(b) * time.Millisecond
	case b >= 0xf1 && b <= 0xf9:
		return time.Duration(b-0xf0) * 100 * time.Microsecond
	}
	// reserved values mean the longest separation
	return maxSTmin
}

// sendFunc puts one frame on the bus and returns once it is sent.
type sendFunc func(ctx context.Context, frame can.Frame) error

func sendPDU(ctx context.Context, addr Address, payload []byte, send sendFunc) error {
	frame, err := can.NewFrame(uint32(addr.ID), addr.Extended, payload)
	if err != nil {
		return err
	}
	return send(ctx, frame)
}

// sendSegmented sends data to addr as a single frame, or as a first frame
// followed by consecutive frames paced by the receiver's flow control.
func (c *Context) sendSegmented(ctx context.Context, addr Address, data []byte, send sendFunc) error {
	maxLen := c.dev.MaxDataLen()
	if sf, ok := singleFrame(data, maxLen); ok {
		return sendPDU(ctx, addr, sf, send)
	}

	// one flow control channel, one segmented transfer at a time
	c.segLock.Lock()
	defer c.segLock.Unlock()
	c.takeFlowControl()

	ff, off := firstFrame(data, maxLen)
	if err := sendPDU(ctx, addr, ff, send); err != nil {
		return err
	}
	for seq := uint8(1); off < len(data); {
		fc, err := c.awaitFlowControl(ctx)
		if err != nil {
			return err
		}
		for block := 0; off < len(data) && (fc.blockSize == 0 || block < fc.blockSize); block++ {
			if block > 0 && fc.stMin > 0 {
				if err := sleepCtx(ctx, fc.stMin); err != nil {
					return err
				}
			}
			cf, n := consecutiveFrame(data[off:], seq, maxLen)
			if err := sendPDU(ctx, addr, cf, send); err != nil {
				return err
			}
			off += n
			seq = (seq + 1) & 0x0f
		}
	}
	return nil
}

func (c *Context) awaitFlowControl(ctx context.Context) (pdu, error) {
	timer := time.NewTimer(c.cfg.FlowControlTimeout)
	defer timer.Stop()
	for waits := 0; ; {
		select {
		case <-ctx.Done():
			return pdu{}, ctx.Err()
		case <-timer.C:
			return pdu{}, ErrFlowControlTimeout
		case fc := <-c.fcCh:
			switch fc.status {
			case FlowContinue:
				return fc, nil
			case FlowWait:
				if waits++; waits > maxWaitFrames {
					return pdu{}, ErrFlowControlTimeout
				}
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(c.cfg.FlowControlTimeout)
			default:
				return pdu{}, ErrOverflow
			}
		}
	}
}

// offerFlowControl hands a flow control frame to the sender, replacing
// one not consumed yet. It never blocks the RX loop.
func (c *Context) offerFlowControl(fc pdu) {
	for {
		select {
		case c.fcCh <- fc:
			return
		default:
		}
		c.takeFlowControl()
	}
}

func (c *Context) takeFlowControl() {
	select {
	case <-c.fcCh:
	default:
	}
}

// reassembly collects the consecutive frames of one message.
type reassembly struct {
	data     []byte
	size     int
	seq      uint8
	block    int
	deadline time.Time
}

// receiveSegment processes an ISO-TP frame on the RX loop. It returns the
// encoded message once complete, nil while a message is in progress.
func (c *Context) receiveSegment(ctx context.Context, frame *can.Frame) ([]byte, error) {
	id := can.Identifier(frame.ID)
	p, err := parsePDU(frame.Payload())
	if err != nil {
		if !id.IsDestination() {
			return nil, err
		}
		if err == errMessageTooLong {
			c.sendFlowControl(ctx, id, FlowOverflow)
		}
		c.abortReassembly(id.Source(), err)
		return nil, err
	}
	if !id.IsDestination() {
		if p.pci != pciFlowControl {
			return nil, errUnexpectedPDU
		}
		c.offerFlowControl(p)
		return nil, nil
	}

	src := id.Source()
	switch p.pci {
	case pciSingle:
		c.abortReassembly(src, errUnexpectedPDU)
		return p.data, nil
	case pciFirst:
		c.abortReassembly(src, errUnexpectedPDU)
		if p.size > MaxSegmentedSize {
			c.sendFlowControl(ctx, id, FlowOverflow)
			return nil, errMessageTooLong
		}
		if len(p.data) >= p.size {
			return p.data[:p.size], nil
		}
		c.sessions[src] = &reassembly{
			data:     append(make([]byte, 0, p.size), p.data...),
			size:     p.size,
			seq:      1,
			deadline: time.Now().Add(c.cfg.FlowControlTimeout),
		}
		c.sendFlowControl(ctx, id, FlowContinue)
		return nil, nil
	case pciConsecutive:
		r := c.sessions[src]
		if r == nil {
			return nil, errUnexpectedPDU
		}
		switch {
		case time.Now().After(r.deadline):
			delete(c.sessions, src)
			return nil, errSegmentTimeout
		case p.seq != r.seq:
			delete(c.sessions, src)
			return nil, errSequence
		}
		r.data = append(r.data, p.data[:min(len(p.data), r.size-len(r.data))]...)
		if len(r.data) == r.size {
			delete(c.sessions, src)
			return r.data, nil
		}
		r.seq = (r.seq + 1) & 0x0f
		r.deadline = time.Now().Add(c.cfg.FlowControlTimeout)
		if r.block++; c.cfg.BlockSize > 0 && r.block == c.cfg.BlockSize {
			r.block = 0
			c.sendFlowControl(ctx, id, FlowContinue)
		}
		return nil, nil
	}
	return nil, errUnexpectedPDU
}

func (c *Context) abortReassembly(src can.NodeID, reason error) {
	if r := c.sessions[src]; r != nil {
		delete(c.sessions, src)
		c.stats.rxDropped.Add(1)
		glog.Warningf("transport: rx from %d: %d of %d bytes dropped: %v", src, len(r.data), r.size, reason)
	}
}

// sendFlowControl answers the sender of id. Flow control goes on the
// source identifier of the pair and bypasses the TX queue.
func (c *Context) sendFlowControl(ctx context.Context, id can.Identifier, status FlowStatus) {
	addr := Address{ID: id &^ can.AddrIsDest}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.FlowControlTimeout)
	defer cancel()
	if err := sendPDU(ctx, addr, flowControl(status, c.cfg.BlockSize, c.cfg.STmin), c.dev.Send); err != nil {
		glog.Warningf("transport: flow control to %s: %v", addr, err)
	}
}

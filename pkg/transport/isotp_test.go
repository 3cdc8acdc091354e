package transport

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/orb.go/pkg/can"
	"github.com/robotalks/orb.go/pkg/mcu/codec"
	"github.com/robotalks/orb.go/pkg/mcu/msgs"
	"github.com/robotalks/orb.go/pkg/queue"
)

func TestParsePDU(t *testing.T) {
	escaped := append([]byte{0x00, 8}, bytes.Repeat([]byte{0xaa}, 8)...)
	cases := []struct {
		name    string
		payload []byte
		want    pdu
		err     error
	}{
		{"single", []byte{0x03, 1, 2, 3, 0xcc}, pdu{pci: pciSingle, size: 3, data: []byte{1, 2, 3}}, nil},
		{"single escaped", escaped, pdu{pci: pciSingle, size: 8, data: escaped[2:]}, nil},
		{"first", []byte{0x10, 0x14, 1, 2, 3, 4, 5, 6}, pdu{pci: pciFirst, size: 20, data: []byte{1, 2, 3, 4, 5, 6}}, nil},
		{"consecutive", []byte{0x2a, 7, 8}, pdu{pci: pciConsecutive, seq: 10, data: []byte{7, 8}}, nil},
		{"flow control", []byte{0x31, 4, 0xf2}, pdu{pci: pciFlowControl, status: FlowWait, blockSize: 4, stMin: 200 * time.Microsecond}, nil},
		{"empty", nil, pdu{}, errMalformedPDU},
		{"single short", []byte{0x05, 1}, pdu{}, errMalformedPDU},
		{"single zero", []byte{0x00, 0x00}, pdu{}, errMalformedPDU},
		{"first short", []byte{0x10}, pdu{}, errMalformedPDU},
		{"first 32 bit length", []byte{0x10, 0x00, 0, 0, 1, 0}, pdu{}, errMessageTooLong},
		{"flow control short", []byte{0x30, 1}, pdu{}, errMalformedPDU},
		{"unknown", []byte{0x40, 1}, pdu{}, errMalformedPDU},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := parsePDU(tc.payload)
			if tc.err != nil {
				require.Equal(t, tc.err, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, p)
		})
	}
}

func TestSingleFrame(t *testing.T) {
	sf, ok := singleFrame([]byte{1, 2, 3, 4, 5, 6, 7}, can.MaxClassicLen)
	require.True(t, ok)
	require.Equal(t, []byte{0x07, 1, 2, 3, 4, 5, 6, 7}, sf)

	_, ok = singleFrame(make([]byte, 8), can.MaxClassicLen)
	require.False(t, ok)

	sf, ok = singleFrame(make([]byte, 8), can.MaxFDLen)
	require.True(t, ok)
	require.Equal(t, []byte{0x00, 8}, sf[:2])
	require.Len(t, sf, 10)

	_, ok = singleFrame(make([]byte, 62), can.MaxFDLen)
	require.True(t, ok)
	_, ok = singleFrame(make([]byte, 63), can.MaxFDLen)
	require.False(t, ok)
}

func TestSegmentFrames(t *testing.T) {
	data := make([]byte, 300)
	for i := range data {
		data[i] = byte(i)
	}
	ff, n := firstFrame(data, can.MaxClassicLen)
	require.Equal(t, 6, n)
	require.Equal(t, []byte{0x11, 0x2c, 0, 1, 2, 3, 4, 5}, ff)

	cf, n := consecutiveFrame(data[294:], 15, can.MaxClassicLen)
	require.Equal(t, 6, n)
	require.Equal(t, append([]byte{0x2f}, data[294:]...), cf)

	require.Equal(t, []byte{0x32, 0, 0}, flowControl(FlowOverflow, 0, 0))
	require.Equal(t, []byte{0x30, 8, 5}, flowControl(FlowContinue, 8, 5*time.Millisecond))
}

func TestSTmin(t *testing.T) {
	encoded := []struct {
		d    time.Duration
		want byte
	}{
		{0, 0},
		{100 * time.Microsecond, 0xf1},
		{150 * time.Microsecond, 0xf2},
		{899 * time.Microsecond, 0xf9},
		{900 * time.Microsecond, 1},
		{time.Millisecond, 1},
		{1500 * time.Microsecond, 2},
		{127 * time.Millisecond, 0x7f},
		{time.Second, 0x7f},
	}
	for _, tc := range encoded {
		require.Equal(t, tc.want, encodeSTmin(tc.d), "%v", tc.d)
	}

	require.Equal(t, 5*time.Millisecond, decodeSTmin(0x05))
	require.Equal(t, 300*time.Microsecond, decodeSTmin(0xf3))
	require.Equal(t, maxSTmin, decodeSTmin(0x80))
	require.Equal(t, maxSTmin, decodeSTmin(0xf0))
	require.Equal(t, maxSTmin, decodeSTmin(0xfa))
}

func payloads(frames []can.Frame) [][]byte {
	out := make([][]byte, 0, len(frames))
	for _, f := range frames {
		out = append(out, f.Payload())
	}
	return out
}

func flowControls(frames []can.Frame) [][]byte {
	var out [][]byte
	for _, p := range payloads(frames) {
		if p[0]&0xf0 == pciFlowControl {
			out = append(out, p)
		}
	}
	return out
}

func longLog() *msgs.Message {
	return msgs.New(&msgs.Log{Log: strings.Repeat("l", msgs.MaxLogLength)})
}

func TestClassicSegmentedSendBlocking(t *testing.T) {
	env := newTestEnvOn(t, can.MaxClassicLen, nil)
	start(t, env.host)
	start(t, env.mcu)
	m := msgs.New(&msgs.Versions{Primary: &msgs.FirmwareVersion{Major: 1, Minor: 2, Patch: 3, CommitHash: 0xdeadbeef}})
	require.NoError(t, env.mcu.SendBlocking(context.Background(), m, 0))
	require.Equal(t, m, env.hostRx.next(t))

	sent := payloads(env.mcuDev.Sent())
	require.Len(t, sent, 3)
	require.Equal(t, []byte{0x10, 15}, sent[0][:2])
	require.Equal(t, byte(0x21), sent[1][0])
	require.Equal(t, byte(0x22), sent[2][0])
	for _, f := range env.mcuDev.Sent() {
		require.Equal(t, uint32(can.MakeDestinationID(DefaultLocalNode, DefaultRemoteNode)), f.ID)
	}
	require.Equal(t, [][]byte{{0x30, 8, 0}}, flowControls(env.hostDev.Sent()))
	require.Equal(t, uint32(can.MakeSourceID(DefaultLocalNode, DefaultRemoteNode)), env.hostDev.Sent()[0].ID)
	require.Equal(t, uint64(1), env.mcu.Stats().TxSent)
}

func TestClassicSegmentedQueued(t *testing.T) {
	env := newTestEnvOn(t, can.MaxClassicLen, nil)
	start(t, env.host)
	start(t, env.mcu)
	long, short := longLog(), msgs.New(&msgs.FanSpeed{Percentage: 30})
	require.NoError(t, env.mcu.EnqueueTx(long))
	require.NoError(t, env.mcu.EnqueueTx(short))
	require.Equal(t, long, env.hostRx.next(t))
	require.Equal(t, short, env.hostRx.next(t))

	sent := payloads(env.mcuDev.Sent())
	require.Len(t, sent, 8)
	require.Equal(t, []byte{0x10, 44}, sent[0][:2])
	for i, p := range sent[1:7] {
		require.Equal(t, byte(pciConsecutive|(i+1)), p[0])
	}
	require.Equal(t, pciSingle, int(sent[7][0]&0xf0))
	require.Equal(t, uint64(2), env.host.Stats().RxDelivered)
}

func TestSegmentedBlockSize(t *testing.T) {
	env := newTestEnvOn(t, can.MaxClassicLen, nil)
	env.host.cfg.BlockSize = 2
	env.host.cfg.STmin = 2 * time.Millisecond
	start(t, env.host)
	start(t, env.mcu)
	m := longLog()
	began := time.Now()
	require.NoError(t, env.mcu.SendBlocking(context.Background(), m, time.Second))
	require.GreaterOrEqual(t, time.Since(began), 3*2*time.Millisecond)
	require.Equal(t, m, env.hostRx.next(t))
	require.Equal(t, [][]byte{{0x30, 2, 2}, {0x30, 2, 2}, {0x30, 2, 2}}, flowControls(env.hostDev.Sent()))
}

func TestSegmentedFlowControlTimeout(t *testing.T) {
	env := newTestEnvOn(t, can.MaxClassicLen, func(cfg *Config) {
		cfg.FlowControlTimeout = 30 * time.Millisecond
	})
	start(t, env.mcu)

	err := env.mcu.SendBlocking(context.Background(), longLog(), 0)
	require.True(t, errors.Is(err, ErrFlowControlTimeout))
	var txErr *TxError
	require.True(t, errors.As(err, &txErr))
	require.Equal(t, msgs.KindLog, txErr.Kind)

	require.NoError(t, env.mcu.EnqueueTx(longLog()))
	require.Eventually(t, func() bool { return env.mcu.Stats().TxFailed == 2 }, waitTimeout, time.Millisecond)
	require.Equal(t, 0, env.fatal.count())
	require.Equal(t, Idle, env.mcu.State())
}

// listen returns the frames peer receives through filter.
func listen(t *testing.T, peer *can.LoopbackDevice, filter can.Filter) *queue.Bounded[can.Frame] {
	q := queue.NewBounded[can.Frame](32)
	require.NoError(t, peer.AddRxFilter(filter, q))
	return q
}

func nextFrame(t *testing.T, q *queue.Bounded[can.Frame]) can.Frame {
	frame, err := q.PopBlocking(context.Background(), waitTimeout)
	require.NoError(t, err)
	return frame
}

func sendBlockingAsync(c *Context, m *msgs.Message) chan error {
	done := make(chan error, 1)
	go func() { done <- c.SendBlocking(context.Background(), m, time.Second) }()
	return done
}

func TestSegmentedReceiverOverflow(t *testing.T) {
	env := newTestEnvOn(t, can.MaxClassicLen, nil)
	start(t, env.mcu)
	peer := rawPeer(t, env.bus)
	rx := listen(t, peer, can.FilterFor(DefaultRemoteNode))

	done := sendBlockingAsync(env.mcu, longLog())
	ff := nextFrame(t, rx)
	require.Equal(t, byte(pciFirst), ff.Data[0])
	sendRaw(t, peer, can.MakeSourceID(DefaultLocalNode, DefaultRemoteNode), false, flowControl(FlowOverflow, 0, 0))
	err := <-done
	require.True(t, errors.Is(err, ErrOverflow))
	require.Equal(t, 0, rx.Len())
}

func TestSegmentedWaitThenContinue(t *testing.T) {
	env := newTestEnvOn(t, can.MaxClassicLen, nil)
	start(t, env.mcu)
	peer := rawPeer(t, env.bus)
	rx := listen(t, peer, can.FilterFor(DefaultRemoteNode))
	fcID := can.MakeSourceID(DefaultLocalNode, DefaultRemoteNode)

	m := longLog()
	done := sendBlockingAsync(env.mcu, m)
	ff, err := parsePDU(nextFrame(t, rx).Payload())
	require.NoError(t, err)
	require.Equal(t, pciFirst, int(ff.pci))
	data := append([]byte(nil), ff.data...)

	sendRaw(t, peer, fcID, false, flowControl(FlowWait, 0, 0))
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 0, rx.Len())
	sendRaw(t, peer, fcID, false, flowControl(FlowContinue, 0, 0))
	for seq := uint8(1); len(data) < ff.size; seq++ {
		cf, err := parsePDU(nextFrame(t, rx).Payload())
		require.NoError(t, err)
		require.Equal(t, seq, cf.seq)
		data = append(data, cf.data...)
	}
	require.NoError(t, <-done)
	got, err := codec.Decode(data[:ff.size])
	require.NoError(t, err)
	require.Equal(t, m, got)
}

func TestSegmentedSequenceError(t *testing.T) {
	env := newTestEnv(t, nil)
	start(t, env.host)
	peer := rawPeer(t, env.bus)
	fc := listen(t, peer, can.FlowControlFilterFor(9))
	to := can.MakeDestinationID(9, DefaultRemoteNode)

	sendRaw(t, peer, to, false, []byte{0x10, 20, 1, 2, 3, 4, 5, 6})
	require.Equal(t, []byte{0x30, 8, 0}, nextFrame(t, fc).Payload()[:3])
	sendRaw(t, peer, to, false, []byte{0x22, 7, 8, 9, 10, 11, 12, 13})
	require.Eventually(t, func() bool { return env.host.Stats().RxDropped == 1 }, waitTimeout, time.Millisecond)

	m := msgs.New(&msgs.PowerButton{Pressed: true})
	sendRaw(t, peer, to, false, encodeSF(t, m))
	require.Equal(t, m, env.hostRx.next(t))
	env.hostRx.none(t, 50*time.Millisecond)
}

func TestSegmentedTooLongRejected(t *testing.T) {
	env := newTestEnv(t, nil)
	start(t, env.host)
	peer := rawPeer(t, env.bus)
	fc := listen(t, peer, can.FlowControlFilterFor(9))

	sendRaw(t, peer, can.MakeDestinationID(9, DefaultRemoteNode), false, []byte{0x10, MaxSegmentedSize + 1, 1, 2, 3, 4, 5, 6})
	frame := nextFrame(t, fc)
	require.Equal(t, uint32(can.MakeSourceID(9, DefaultRemoteNode)), frame.ID)
	require.Equal(t, byte(0x32), frame.Payload()[0])
	require.Eventually(t, func() bool { return env.host.Stats().RxDropped == 1 }, waitTimeout, time.Millisecond)
}

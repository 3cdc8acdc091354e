package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/orb.go/pkg/can"
	"github.com/robotalks/orb.go/pkg/mcu/codec"
	"github.com/robotalks/orb.go/pkg/mcu/msgs"
)

// rawPeer sends hand-built frames to the node under test.
func rawPeer(t *testing.T, bus *can.LoopbackBus) *can.LoopbackDevice {
	dev := bus.Open(can.MaxFDLen)
	require.NoError(t, dev.Start())
	return dev
}

func sendRaw(t *testing.T, dev *can.LoopbackDevice, id can.Identifier, extended bool, payload []byte) {
	frame, err := can.NewFrame(uint32(id), extended, payload)
	require.NoError(t, err)
	require.NoError(t, dev.Send(context.Background(), frame))
}

// encode returns m size-prefixed, as carried by plain identifiers.
func encode(t *testing.T, m *msgs.Message) []byte {
	var buf [can.MaxFDLen]byte
	n, err := codec.EncodeDelimited(m, buf[:])
	require.NoError(t, err)
	return buf[:n]
}

// encodeSF returns m in an ISO-TP single frame.
func encodeSF(t *testing.T, m *msgs.Message) []byte {
	data, err := codec.Marshal(m)
	require.NoError(t, err)
	sf, ok := singleFrame(data, can.MaxFDLen)
	require.True(t, ok)
	return sf
}

func TestRxDecodeFailureDropped(t *testing.T) {
	env := newTestEnv(t, nil)
	start(t, env.host)
	peer := rawPeer(t, env.bus)
	to := can.MakeDestinationID(1, DefaultRemoteNode)

	sendRaw(t, peer, to, false, []byte{0x05, 0x2a})
	sendRaw(t, peer, to, false, []byte{0x03, 0x82, 0x01, 0x00})
	m := msgs.New(&msgs.PowerButton{Pressed: true})
	sendRaw(t, peer, to, false, encodeSF(t, m))

	require.Equal(t, m, env.hostRx.next(t))
	env.hostRx.none(t, 50*time.Millisecond)
	require.Equal(t, uint64(2), env.host.Stats().RxDropped)
	require.Equal(t, uint64(1), env.host.Stats().RxDelivered)
}

func TestRxFilteredByDestination(t *testing.T) {
	env := newTestEnv(t, nil)
	start(t, env.host)
	peer := rawPeer(t, env.bus)
	m := msgs.New(&msgs.Shutdown{DelayS: 1})

	sendRaw(t, peer, can.MakeDestinationID(1, 5), false, encodeSF(t, m))
	sendRaw(t, peer, can.MakeSourceID(1, DefaultRemoteNode), false, encodeSF(t, m))
	env.hostRx.none(t, 50*time.Millisecond)
	require.Equal(t, uint64(0), env.host.Stats().RxDropped)

	sendRaw(t, peer, can.MakeDestinationID(9, DefaultRemoteNode), false, encodeSF(t, m))
	require.Equal(t, m, env.hostRx.next(t))
}

func TestRxExtraFilters(t *testing.T) {
	const mcuToMcu = 0x123
	env := newTestEnv(t, func(cfg *Config) {
		cfg.ExtraRxFilters = []can.Filter{can.PlainFilter(mcuToMcu)}
	})
	rx := newCollector()
	require.NoError(t, env.mcu.RegisterRxHandler(rx))
	start(t, env.mcu)
	peer := rawPeer(t, env.bus)

	a := msgs.New(&msgs.UserLedsBrightness{Brightness: 10})
	b := msgs.New(&msgs.DistributorLedsBrightness{Brightness: 20})
	sendRaw(t, peer, can.MakeDestinationID(0, DefaultLocalNode), false, encodeSF(t, a))
	sendRaw(t, peer, mcuToMcu, true, encode(t, b))
	sendRaw(t, peer, mcuToMcu+1, true, encode(t, b))
	require.Equal(t, a, rx.next(t))
	require.Equal(t, b, rx.next(t))
	rx.none(t, 50*time.Millisecond)
}

func TestRxWithoutHandler(t *testing.T) {
	env := newTestEnv(t, nil)
	start(t, env.mcu)
	peer := rawPeer(t, env.bus)
	sendRaw(t, peer, can.MakeDestinationID(0, DefaultLocalNode), false, encodeSF(t, msgs.New(&msgs.Heartbeat{})))
	require.Eventually(t, func() bool { return env.mcu.Stats().RxDropped == 1 }, waitTimeout, time.Millisecond)
}

func TestRegisterRxHandlerOnce(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, env.mcu.RegisterRxHandler(newCollector()))
	require.Equal(t, ErrHandlerRegistered, env.mcu.RegisterRxHandler(newCollector()))
	require.Equal(t, ErrHandlerRegistered, env.host.RegisterRxHandler(newCollector()))
}

func TestRxSoftwareFilter(t *testing.T) {
	env := newTestEnv(t, nil)
	rx := newCollector()
	require.NoError(t, env.mcu.RegisterRxHandler(rx))
	frame, err := can.NewFrame(uint32(can.MakeDestinationID(0, 7)), false, encodeSF(t, msgs.New(&msgs.Heartbeat{})))
	require.NoError(t, err)
	env.mcu.receive(context.Background(), &frame)
	rx.none(t, 10*time.Millisecond)
	require.Equal(t, uint64(1), env.mcu.Stats().RxDropped)
}

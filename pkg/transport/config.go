package transport

import (
	"fmt"
	"time"

	"github.com/robotalks/orb.go/pkg/can"
)

// Default node addresses.
const (
	DefaultLocalNode  can.NodeID = 0x1
	DefaultRemoteNode can.NodeID = 0x0

	DefaultPlainTxAddr uint32 = 0x80
	DefaultPlainRxAddr uint32 = 0x01
)

// Config configures a Context.
type Config struct {
	// Local is this node, Remote the default destination.
	Local  can.NodeID
	Remote can.NodeID
	// ISOTP selects ISO-TP-like identifiers, otherwise messages are sent to
	// PlainTxAddr and received on PlainRxAddr as extended identifiers.
	ISOTP       bool
	PlainTxAddr uint32
	PlainRxAddr uint32
	// ExtraRxFilters are installed on the RX queue besides the default one.
	ExtraRxFilters []can.Filter

	// BlockSize is the number of consecutive frames this node accepts
	// between flow control frames, 0 for no limit.
	BlockSize int
	// STmin is the separation time between consecutive frames this node
	// requests as a receiver.
	STmin time.Duration
	// FlowControlTimeout bounds the wait for flow control as a sender and
	// for the next consecutive frame as a receiver.
	FlowControlTimeout time.Duration

	TxQueueSize int
	RxQueueSize int

	// TxPopTimeout bounds a single wait of the TX loop for a message.
	TxPopTimeout time.Duration
	// CompletionTimeout is the longest wait for a transmit completion
	// before the bus is considered stuck.
	CompletionTimeout time.Duration
	// BlockingTimeout is the default timeout of SendBlocking.
	BlockingTimeout time.Duration

	MonitorInterval      time.Duration
	MonitorErrorInterval time.Duration
	RecoveryDelay        time.Duration
	RecoverTimeout       time.Duration
	MaxBusOffRecoveries  int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Local:                DefaultLocalNode,
		Remote:               DefaultRemoteNode,
		ISOTP:                true,
		PlainTxAddr:          DefaultPlainTxAddr,
		PlainRxAddr:          DefaultPlainRxAddr,
		BlockSize:            8,
		FlowControlTimeout:   time.Second,
		TxQueueSize:          8,
		RxQueueSize:          5,
		TxPopTimeout:         10 * time.Second,
		CompletionTimeout:    5 * time.Second,
		BlockingTimeout:      time.Second,
		MonitorInterval:      10 * time.Second,
		MonitorErrorInterval: 2 * time.Second,
		RecoveryDelay:        500 * time.Millisecond,
		RecoverTimeout:       2 * time.Second,
		MaxBusOffRecoveries:  10,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Local > can.MaxNodeID || c.Remote > can.MaxNodeID {
		return fmt.Errorf("node id out of range: local %d remote %d", c.Local, c.Remote)
	}
	if c.TxQueueSize < 2 || c.RxQueueSize < 2 {
		return fmt.Errorf("queue size too small: tx %d rx %d", c.TxQueueSize, c.RxQueueSize)
	}
	if c.CompletionTimeout <= 0 {
		return fmt.Errorf("invalid completion timeout %v", c.CompletionTimeout)
	}
	if c.BlockSize < 0 || c.BlockSize > 0xff {
		return fmt.Errorf("invalid block size %d", c.BlockSize)
	}
	if c.STmin < 0 || c.STmin > maxSTmin {
		return fmt.Errorf("invalid separation time %v", c.STmin)
	}
	if c.ISOTP && c.FlowControlTimeout <= 0 {
		return fmt.Errorf("invalid flow control timeout %v", c.FlowControlTimeout)
	}
	return nil
}

// DefaultRemote returns the address of the default destination.
func (c *Config) DefaultRemote() Address {
	if c.ISOTP {
		return ISOTPAddress(c.Local, c.Remote)
	}
	return PlainAddress(c.PlainTxAddr)
}

// RxFilters returns all receive filters.
func (c *Config) RxFilters() []can.Filter {
	filters := make([]can.Filter, 0, len(c.ExtraRxFilters)+2)
	if c.ISOTP {
		filters = append(filters, can.FilterFor(c.Local), can.FlowControlFilterFor(c.Local))
	} else {
		filters = append(filters, can.PlainFilter(c.PlainRxAddr))
	}
	return append(filters, c.ExtraRxFilters...)
}

// Address is the identifier a message is sent with.
type Address struct {
	ID       can.Identifier
	Extended bool
}

// ISOTPAddress addresses dest from src.
func ISOTPAddress(src, dest can.NodeID) Address {
	return Address{ID: can.MakeDestinationID(src, dest)}
}

// PlainAddress addresses a raw configured address.
func PlainAddress(addr uint32) Address {
	return Address{ID: can.Identifier(addr), Extended: true}
}

// Segmented tells if messages to a are carried as ISO-TP N_PDUs.
func (a Address) Segmented() bool {
	return !a.Extended && a.ID.IsISOTP()
}

// String implements fmt.Stringer.
func (a Address) String() string {
	if a.Extended {
		return fmt.Sprintf("%08X", uint32(a.ID))
	}
	if a.ID.IsISOTP() {
		return fmt.Sprintf("%03X(%d->%d)", uint32(a.ID), a.ID.Source(), a.ID.Destination())
	}
	return fmt.Sprintf("%03X", uint32(a.ID))
}

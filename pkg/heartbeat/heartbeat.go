package heartbeat

import (
	"errors"
	"time"

	can "github.com/samsamfire/gocanopen-master/pkg/can"
	"github.com/samsamfire/gocanopen-master/pkg/nmt"
)

const (
	ServiceId      = 0x700
	DefaultTimeout = 20 * time.Millisecond
)

// Heartbeat byte
//
//	bit      7     6 ... 0
//	      | toggle | state |
const (
	stateMask   = 0x7F
	toggleShift = 7
)

// Last toggle value before any heartbeat was received, neither 0 nor 1
const toggleUnknown uint8 = 0xFF

var (
	ErrStaleHeartbeat = errors.New("heartbeat toggle bit not altered")
	ErrTimeout        = errors.New("timeout heartbeat response")
	ErrNoCompletion   = errors.New("heartbeat started without a completion")
)

// Remote request asking the node for its heartbeat
func EncodeRequest(nodeId uint8) can.Frame {
	return can.NewFrame((ServiceId+uint32(nodeId))|can.RtrFlag, 0, 0)
}

// Split a heartbeat byte into the NMT state and the toggle bit
func Decode(b byte) (nmt.State, uint8) {
	return nmt.State(b & stateMask), b >> toggleShift
}

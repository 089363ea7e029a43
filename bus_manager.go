package canopen

import (
	"sync"

	can "github.com/samsamfire/gocanopen-master/pkg/can"
	log "github.com/sirupsen/logrus"
)

// Bus manager is a wrapper around the CAN bus interface
// Used by the CANopen stack to send frames and to dispatch
// received frames to the listeners of specific IDs.
// It acts as the receive filter of each node.
type BusManager struct {
	mu             sync.Mutex
	bus            can.Bus // Bus interface that can be adapted
	frameListeners map[uint32][]*subscription
}

type subscription struct {
	listener can.FrameListener
}

// Implements the FrameListener interface
// This handles all received CAN frames from Bus.
// Listeners are called without the manager lock held so that they
// may subscribe or unsubscribe from within their handler
func (bm *BusManager) Handle(frame can.Frame) {
	bm.mu.Lock()
	subscriptions := bm.frameListeners[frame.ID]
	listeners := make([]can.FrameListener, 0, len(subscriptions))
	for _, sub := range subscriptions {
		listeners = append(listeners, sub.listener)
	}
	bm.mu.Unlock()
	for _, listener := range listeners {
		listener.Handle(frame)
	}
}

// Set bus
func (bm *BusManager) SetBus(bus can.Bus) {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	bm.bus = bus
}

func (bm *BusManager) Bus() can.Bus {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	return bm.bus
}

// Send a CAN message
// Limited error handling
func (bm *BusManager) Send(frame can.Frame) error {
	bus := bm.Bus()
	if bus == nil {
		log.Warnf("[CAN] no bus, dropping frame x%x", frame.ID)
		return ErrNoBus
	}
	err := bus.Send(frame)
	if err != nil {
		log.Warnf("[CAN] %v", err)
	}
	return err
}

// Subscribe to a specific CAN ID
// The returned function cancels the subscription, it can be called more than once
func (bm *BusManager) Subscribe(ident uint32, mask uint32, rtr bool, callback can.FrameListener) (cancel func(), err error) {
	if callback == nil {
		return nil, ErrIllegalArgument
	}
	bm.mu.Lock()
	defer bm.mu.Unlock()
	ident = ident & mask & can.SffMask
	if rtr {
		ident |= can.RtrFlag
	}
	// Iterate over all callbacks and verify that we are not adding the same one twice
	for _, sub := range bm.frameListeners[ident] {
		if sub.listener == callback {
			log.Warnf("[CAN] callback for frame id x%x already added", ident)
			return func() { bm.unsubscribe(ident, sub) }, nil
		}
	}
	sub := &subscription{listener: callback}
	bm.frameListeners[ident] = append(bm.frameListeners[ident], sub)
	return func() { bm.unsubscribe(ident, sub) }, nil
}

func (bm *BusManager) unsubscribe(ident uint32, sub *subscription) {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	subscriptions := bm.frameListeners[ident]
	for i, s := range subscriptions {
		if s == sub {
			bm.frameListeners[ident] = append(subscriptions[:i:i], subscriptions[i+1:]...)
			break
		}
	}
	if len(bm.frameListeners[ident]) == 0 {
		delete(bm.frameListeners, ident)
	}
}

// Number of listeners for a given CAN ID
func (bm *BusManager) Listeners(ident uint32) int {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	return len(bm.frameListeners[ident])
}

func NewBusManager(bus can.Bus) *BusManager {
	bm := &BusManager{
		bus:            bus,
		frameListeners: make(map[uint32][]*subscription),
	}
	return bm
}

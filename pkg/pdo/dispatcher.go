package pdo

import (
	can "github.com/samsamfire/gocanopen-master/pkg/can"
	log "github.com/sirupsen/logrus"
)

// Called for every PDO received from the node, data has the received length
type Listener func(channel uint8, data []byte)

type Outcome struct {
	listener Listener
	Channel  uint8
	Data     []byte
}

func (o Outcome) Deliver() {
	if o.listener != nil {
		o.listener(o.Channel, o.Data)
	}
}

// Dispatcher sends PDOs to a node and notifies the PDOs it receives from it.
// Neither direction is confirmed.
type Dispatcher struct {
	bm       can.Sender
	nodeId   uint8
	listener Listener
}

func NewDispatcher(bm can.Sender, nodeId uint8) *Dispatcher {
	return &Dispatcher{bm: bm, nodeId: nodeId}
}

// Send a PDO, invalid channel or length is rejected before transmission
func (d *Dispatcher) Send(channel uint8, data []byte) error {
	frame, err := Encode(d.nodeId, channel, data)
	if err != nil {
		return err
	}
	log.Debugf("[PDO][TX][x%x] channel %v : %v", d.nodeId, channel, data)
	return d.bm.Send(frame)
}

// Register the listener for received PDOs, nil unregisters
func (d *Dispatcher) SetListener(listener Listener) {
	d.listener = listener
}

// Handle a PDO frame from the node, dropped if nobody listens
func (d *Dispatcher) OnFrame(frame can.Frame) (Outcome, bool) {
	if d.listener == nil || frame.IsRemote() {
		return Outcome{}, false
	}
	channel := DecodeChannel(frame.Ident())
	return Outcome{listener: d.listener, Channel: channel, Data: frame.Payload()}, true
}

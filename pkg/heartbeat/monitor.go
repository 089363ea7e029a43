package heartbeat

import (
	"errors"
	"time"

	"github.com/samsamfire/gocanopen-master/internal/timer"
	can "github.com/samsamfire/gocanopen-master/pkg/can"
	"github.com/samsamfire/gocanopen-master/pkg/nmt"
	log "github.com/sirupsen/logrus"
)

// Called with the state reported by the node or an error, once per response or timeout
type Completion func(state nmt.State, err error)

type Outcome struct {
	completion Completion
	State      nmt.State
	Err        error
}

func (o Outcome) Deliver() {
	if o.completion != nil {
		o.completion(o.State, o.Err)
	}
}

// Monitor polls the heartbeat of a single node and checks that the toggle bit
// alternates between responses. There is a single request slot, starting a new
// request while one is pending simply re-arms the timeout.
// Cyclic heartbeats received with no request pending are delivered as is,
// their toggle bit is always 0 and is not checked.
// Monitor is not safe for concurrent use, the owner serializes calls.
type Monitor struct {
	bm         can.Sender
	nodeId     uint8
	timer      timer.Timer
	timeout    time.Duration
	completion Completion
	lastToggle uint8
	round      uint64
	pending    bool
}

func NewMonitor(bm can.Sender, nodeId uint8, timeout time.Duration, t timer.Timer) (*Monitor, error) {
	if bm == nil || t == nil {
		return nil, errors.New("heartbeat monitor needs a sender and a timer")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Monitor{
		bm:         bm,
		nodeId:     nodeId,
		timer:      t,
		timeout:    timeout,
		lastToggle: toggleUnknown,
	}, nil
}

// Request a heartbeat. completion is kept for the following requests,
// nil re-uses the previous one.
func (m *Monitor) Start(completion Completion) error {
	if completion != nil {
		m.completion = completion
	}
	if m.completion == nil {
		return ErrNoCompletion
	}
	if m.pending {
		m.timer.Disarm(m.round)
	}
	m.round++
	m.pending = false
	log.Debugf("[HB][TX][x%x] request", m.nodeId)
	err := m.bm.Send(EncodeRequest(m.nodeId))
	if err != nil {
		return err
	}
	m.pending = true
	m.timer.Arm(m.timeout, m.round)
	return nil
}

// Token of the pending request, false if none
func (m *Monitor) Pending() (uint64, bool) {
	return m.round, m.pending
}

// Handle a heartbeat frame from the node
func (m *Monitor) OnResponse(frame can.Frame) (Outcome, bool) {
	if frame.DLC != 1 || frame.IsRemote() {
		return Outcome{}, false
	}
	if m.completion == nil {
		return Outcome{}, false
	}
	state, toggle := Decode(frame.Data[0])
	outcome := Outcome{completion: m.completion, State: state}
	if !m.pending {
		log.Debugf("[HB][RX][x%x] %v (cyclic)", m.nodeId, state)
		return outcome, true
	}
	m.timer.Disarm(m.round)
	m.pending = false
	if toggle == m.lastToggle {
		log.Warnf("[HB][RX][x%x] toggle bit not altered (%v)", m.nodeId, toggle)
		outcome.Err = ErrStaleHeartbeat
	} else {
		log.Debugf("[HB][RX][x%x] %v", m.nodeId, state)
	}
	m.lastToggle = toggle
	return outcome, true
}

// Handle the expiry of the timer armed with token
func (m *Monitor) OnTimeout(token uint64) (Outcome, bool) {
	if !m.pending || token != m.round {
		return Outcome{}, false
	}
	m.pending = false
	log.Warnf("[HB][x%x] timeout waiting for heartbeat", m.nodeId)
	return Outcome{completion: m.completion, State: nmt.StateUnknown, Err: ErrTimeout}, true
}

// Disarm the pending request, no completion will be called for it
func (m *Monitor) Cancel() {
	if m.pending {
		m.timer.Disarm(m.round)
		m.pending = false
	}
}

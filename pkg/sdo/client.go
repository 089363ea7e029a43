package sdo

import (
	"errors"
	"time"

	"github.com/samsamfire/gocanopen-master/internal/fifo"
	"github.com/samsamfire/gocanopen-master/internal/timer"
	can "github.com/samsamfire/gocanopen-master/pkg/can"
	log "github.com/sirupsen/logrus"
)

// Called exactly once with the outcome of an SDO exchange
// data is nil whenever err is not nil
type Completion func(data []byte, err error)

type Result struct {
	Data []byte
	Err  error
}

// Oneshot channel continuation, the channel is buffered so delivery never blocks
func ResultChannel() (Completion, <-chan Result) {
	results := make(chan Result, 1)
	return func(data []byte, err error) {
		results <- Result{Data: data, Err: err}
	}, results
}

// A pending SDO exchange
type Item struct {
	frame      can.Frame
	expected   ServerCommand
	completion Completion
	token      uint64
}

func NewDownloadItem(nodeId uint8, index uint16, subindex uint8, data []byte, completion Completion) (*Item, error) {
	frame, err := EncodeDownloadInitiate(nodeId, index, subindex, data)
	if err != nil {
		return nil, err
	}
	return &Item{frame: frame, expected: ServerDownloadInitResponse, completion: completion}, nil
}

func NewUploadItem(nodeId uint8, index uint16, subindex uint8, completion Completion) *Item {
	frame := EncodeUploadInitiate(nodeId, index, subindex)
	return &Item{frame: frame, expected: ServerUploadInitResponse, completion: completion}
}

func (item *Item) Frame() can.Frame {
	return item.frame
}

func (item *Item) Expected() ServerCommand {
	return item.expected
}

// Pending completion of a finished item, returned by the queue
// so that the owner can deliver it outside of its critical section
type Outcome struct {
	completion Completion
	Data       []byte
	Err        error
}

func (o Outcome) Deliver() {
	if o.completion != nil {
		o.completion(o.Data, o.Err)
	}
}

// Queue of SDO exchanges with one node, at most one of them is on the bus.
// The head of the queue is the exchange in flight, it is transmitted as soon
// as it becomes head and it is removed on response or on timeout.
// Queue is not safe for concurrent use, the owner serializes calls.
type Queue struct {
	bm        can.Sender
	nodeId    uint8
	items     *fifo.Fifo[*Item]
	timer     timer.Timer
	timeout   time.Duration
	nextToken uint64
}

func NewQueue(bm can.Sender, nodeId uint8, capacity uint16, timeout time.Duration, t timer.Timer) (*Queue, error) {
	if bm == nil || t == nil {
		return nil, errors.New("sdo queue needs a sender and a timer")
	}
	if capacity == 0 {
		capacity = DefaultQueueSize
	}
	if timeout <= 0 {
		timeout = DefaultClientTimeout
	}
	return &Queue{
		bm:      bm,
		nodeId:  nodeId,
		items:   fifo.NewFifo[*Item](capacity),
		timer:   t,
		timeout: timeout,
	}, nil
}

// Number of pending exchanges, including the one in flight
func (q *Queue) Len() int {
	return q.items.GetOccupied()
}

// Token of the exchange in flight, false if idle
func (q *Queue) InFlight() (uint64, bool) {
	head, ok := q.items.Peek()
	if !ok {
		return 0, false
	}
	return head.token, true
}

// Add an exchange to the queue, it is sent immediately if the queue was idle.
// On error, the queue is left unchanged and the completion will never be called.
func (q *Queue) Enqueue(item *Item) error {
	q.nextToken++
	item.token = q.nextToken
	if !q.items.Push(item) {
		log.Warnf("[SDO][x%x] queue full (%v items)", q.nodeId, q.items.GetOccupied())
		return ErrQueueFull
	}
	if q.items.GetOccupied() > 1 {
		return nil
	}
	err := q.emit()
	if err != nil {
		q.timer.Disarm(item.token)
		q.items.PopBack()
		return err
	}
	return nil
}

// Transmit the head and arm the response timer
func (q *Queue) emit() error {
	head, ok := q.items.Peek()
	if !ok {
		return nil
	}
	log.Debugf("[SDO][TX][x%x] %v", q.nodeId, head.frame.Data)
	err := q.bm.Send(head.frame)
	q.timer.Arm(q.timeout, head.token)
	return err
}

// Promote the next exchange after the head was removed
func (q *Queue) promote() {
	err := q.emit()
	if err != nil {
		log.Warnf("[SDO][x%x] failed to send next request, waiting for timeout : %v", q.nodeId, err)
	}
}

// Handle an SDO response. The next exchange is sent before the outcome of
// the finished one is returned. Responses received while idle are ignored.
func (q *Queue) OnResponse(response Response) (Outcome, bool) {
	item, ok := q.items.Pop()
	if !ok {
		log.Debugf("[SDO][RX][x%x] unsolicited response ignored", q.nodeId)
		return Outcome{}, false
	}
	q.timer.Disarm(item.token)
	q.promote()

	outcome := Outcome{completion: item.completion}
	received := response.Command()
	switch {
	case received != item.expected:
		outcome.Err = &ProtocolMismatchError{Expected: item.expected, Received: received}
	case received == ServerUploadInitResponse &&
		(!response.Header.Expedited() || !response.Header.SizeIndicated()):
		outcome.Err = ErrUnsupportedLength
	default:
		outcome.Data = response.Payload()
	}
	if outcome.Err != nil {
		log.Debugf("[SDO][RX][x%x] x%x:x%x %v", q.nodeId, response.Index, response.Subindex, outcome.Err)
	} else {
		log.Debugf("[SDO][RX][x%x] x%x:x%x %v", q.nodeId, response.Index, response.Subindex, outcome.Data)
	}
	return outcome, true
}

// Handle the expiry of the response timer armed with token.
// Expiries for an exchange that is no longer in flight are ignored.
func (q *Queue) OnTimeout(token uint64) (Outcome, bool) {
	head, ok := q.items.Peek()
	if !ok || head.token != token {
		return Outcome{}, false
	}
	q.items.Pop()
	log.Warnf("[SDO][x%x] timeout waiting for response to %v", q.nodeId, head.frame.Data)
	q.promote()
	return Outcome{completion: head.completion, Err: ErrTimeout}, true
}

// Drop every pending exchange without calling their completions
func (q *Queue) Cancel() {
	if head, ok := q.items.Peek(); ok {
		q.timer.Disarm(head.token)
	}
	if n := q.items.GetOccupied(); n > 0 {
		log.Debugf("[SDO][x%x] cancelling %v pending requests", q.nodeId, n)
	}
	q.items.Reset()
}

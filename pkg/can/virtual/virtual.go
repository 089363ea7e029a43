package virtual

import (
	"errors"
	"sync"

	can "github.com/samsamfire/gocanopen-master/pkg/can"
	log "github.com/sirupsen/logrus"
)

// Virtual CAN bus implementation, primarily used for testing
// All buses created with the same channel name share the same medium
// inside the process, so a simulated remote node can be attached to it.
// Like a real interface, reception happens on a separate goroutine.

func init() {
	can.RegisterInterface("virtual", NewVirtualCanBus)
	can.RegisterInterface("virtualcan", NewVirtualCanBus)
}

var ErrNotConnected = errors.New("error : no active connection, abort send")

type medium struct {
	mu    sync.Mutex
	buses map[*Bus]struct{}
}

var (
	mediumsMu sync.Mutex
	mediums   = map[string]*medium{}
)

func getMedium(channel string) *medium {
	mediumsMu.Lock()
	defer mediumsMu.Unlock()
	m, ok := mediums[channel]
	if !ok {
		m = &medium{buses: map[*Bus]struct{}{}}
		mediums[channel] = m
	}
	return m
}

type Bus struct {
	mu           sync.Mutex
	channel      string
	medium       *medium
	receiveOwn   bool
	framehandler can.FrameListener
	connected    bool
	sendErr      error
	sent         []can.Frame
	filters      map[uint32]struct{}
	rx           chan can.Frame
	wg           sync.WaitGroup
}

const rxQueueSize = 1024

func NewVirtualCanBus(channel string) (can.Bus, error) {
	return &Bus{channel: channel, medium: getMedium(channel)}, nil
}

// "Connect" to the shared medium
func (b *Bus) Connect(...any) error {
	b.mu.Lock()
	if b.connected {
		b.mu.Unlock()
		return nil
	}
	b.connected = true
	b.rx = make(chan can.Frame, rxQueueSize)
	b.wg.Add(1)
	go b.handleReception(b.rx)
	b.mu.Unlock()

	b.medium.mu.Lock()
	b.medium.buses[b] = struct{}{}
	b.medium.mu.Unlock()
	return nil
}

// "Disconnect" from the shared medium
// Frames already queued for reception are still handled before returning
func (b *Bus) Disconnect() error {
	b.medium.mu.Lock()
	delete(b.medium.buses, b)
	b.medium.mu.Unlock()

	b.mu.Lock()
	if !b.connected {
		b.mu.Unlock()
		return nil
	}
	b.connected = false
	close(b.rx)
	b.rx = nil
	b.mu.Unlock()
	b.wg.Wait()
	return nil
}

// "Send" implementation of Bus interface
// Frames are queued for reception on every other bus of the medium
func (b *Bus) Send(frame can.Frame) error {
	b.mu.Lock()
	if !b.connected {
		b.mu.Unlock()
		return ErrNotConnected
	}
	if b.sendErr != nil {
		err := b.sendErr
		b.mu.Unlock()
		return err
	}
	b.sent = append(b.sent, frame)
	receiveOwn := b.receiveOwn
	b.mu.Unlock()

	b.medium.mu.Lock()
	peers := make([]*Bus, 0, len(b.medium.buses))
	for peer := range b.medium.buses {
		if peer != b || receiveOwn {
			peers = append(peers, peer)
		}
	}
	b.medium.mu.Unlock()

	for _, peer := range peers {
		peer.deliver(frame)
	}
	return nil
}

func (b *Bus) deliver(frame can.Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rx == nil {
		return
	}
	if _, ok := b.filters[frame.ID]; len(b.filters) > 0 && !ok {
		return
	}
	select {
	case b.rx <- frame:
	default:
		log.Warnf("[VIRTUAL][%v] reception overflow, dropping frame x%x", b.channel, frame.ID)
	}
}

// Handle incoming traffic
func (b *Bus) handleReception(rx <-chan can.Frame) {
	defer b.wg.Done()
	for frame := range rx {
		b.mu.Lock()
		handler := b.framehandler
		b.mu.Unlock()
		if handler == nil {
			log.Debugf("[VIRTUAL][%v] no handler, dropping frame x%x", b.channel, frame.ID)
			continue
		}
		handler.Handle(frame)
	}
}

// "Subscribe" implementation of Bus interface
func (b *Bus) Subscribe(framehandler can.FrameListener) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.framehandler = framehandler
	return nil
}

// Only receive frames with the given identifiers, an empty list receives everything
func (b *Bus) SetFilters(idents []uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.filters = make(map[uint32]struct{}, len(idents))
	for _, ident := range idents {
		b.filters[ident] = struct{}{}
	}
	return nil
}

func (b *Bus) SetReceiveOwn(receiveOwn bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.receiveOwn = receiveOwn
}

// Make every following Send fail with err, nil restores normal operation
func (b *Bus) SetSendError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sendErr = err
}

// Frames successfully sent by this bus, oldest first
func (b *Bus) Sent() []can.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	sent := make([]can.Frame, len(b.sent))
	copy(sent, b.sent)
	return sent
}

// Forget the sent frames history
func (b *Bus) ClearSent() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = nil
}

package socketcanv2

import (
	"context"
	"fmt"
	"net"
	"sync"

	can "github.com/samsamfire/gocanopen-master/pkg/can"
	log "github.com/sirupsen/logrus"
	einride "go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"
)

// SocketCAN bus based on https://github.com/einride/can-go
// Unlike socketcan, frames are written with a context and the
// connection is only opened on Connect.

func init() {
	can.RegisterInterface("socketcanv2", NewSocketCanBus)
}

type SocketcanBus struct {
	mu         sync.Mutex
	channel    string
	conn       net.Conn
	tx         *socketcan.Transmitter
	rxCallback can.FrameListener
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// Create a new SocketCAN bus. This expects the CAN channel to be up.
// e.g. running "ip a" should show can0 or something similar.
func NewSocketCanBus(channel string) (can.Bus, error) {
	return &SocketcanBus{channel: channel}, nil
}

// "Connect" implementation of Bus interface
func (s *SocketcanBus) Connect(...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return nil
	}
	var ctx context.Context
	ctx, s.cancel = context.WithCancel(context.Background())
	conn, err := socketcan.DialContext(ctx, "can", s.channel)
	if err != nil {
		s.cancel()
		return fmt.Errorf("socketcan dial: %w", err)
	}
	s.conn = conn
	s.tx = socketcan.NewTransmitter(conn)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.processIncoming(ctx, socketcan.NewReceiver(conn))
	}()
	return nil
}

// "Disconnect" implementation of Bus interface
func (s *SocketcanBus) Disconnect() error {
	s.mu.Lock()
	if s.conn == nil {
		s.mu.Unlock()
		return nil
	}
	s.cancel()
	err := s.conn.Close()
	s.conn = nil
	s.tx = nil
	s.mu.Unlock()
	s.wg.Wait()
	return err
}

// "Send" implementation of Bus interface
func (s *SocketcanBus) Send(frame can.Frame) error {
	s.mu.Lock()
	tx := s.tx
	s.mu.Unlock()
	if tx == nil {
		return fmt.Errorf("socketcan %v : not connected", s.channel)
	}
	return tx.TransmitFrame(context.Background(), toEinride(frame))
}

// process incoming frames. This is meant to be run inside of a goroutine
func (s *SocketcanBus) processIncoming(ctx context.Context, rx *socketcan.Receiver) {
	for rx.Receive() {
		if rx.HasErrorFrame() {
			continue
		}
		s.mu.Lock()
		callback := s.rxCallback
		s.mu.Unlock()
		if callback != nil {
			callback.Handle(fromEinride(rx.Frame()))
		}
	}
	select {
	case <-ctx.Done():
		log.Infof("[CAN] exiting %v reception, closed", s.channel)
	default:
		log.Warnf("[CAN] exiting %v reception : %v", s.channel, rx.Err())
	}
}

// "Subscribe" implementation of Bus interface
func (s *SocketcanBus) Subscribe(rxCallback can.FrameListener) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rxCallback = rxCallback
	return nil
}

func toEinride(frame can.Frame) einride.Frame {
	return einride.Frame{
		ID:       frame.Ident(),
		Length:   frame.DLC,
		Data:     einride.Data(frame.Data),
		IsRemote: frame.IsRemote(),
	}
}

func fromEinride(frame einride.Frame) can.Frame {
	id := frame.ID & can.SffMask
	if frame.IsRemote {
		id |= can.RtrFlag
	}
	return can.Frame{ID: id, DLC: frame.Length, Data: [8]byte(frame.Data)}
}

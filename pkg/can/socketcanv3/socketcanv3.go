//go:build linux

package socketcanv3

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	can "github.com/samsamfire/gocanopen-master/pkg/can"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// SocketCAN bus directly on top of a raw CAN socket.
// It supports kernel side receive filters, see [Bus.SetFilters].

const canFrameSize = 16

const readTimeout = 100 * time.Millisecond

func init() {
	can.RegisterInterface("socketcanv3", NewBus)
}

type Bus struct {
	mu         sync.Mutex
	channel    string
	fd         int
	open       bool
	filters    []unix.CanFilter
	rxCallback can.FrameListener
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// Create a new SocketCAN bus. This expects the CAN channel to be up.
// e.g. running "ip a" should show can0 or something similar.
// The socket is only opened on Connect
func NewBus(channel string) (can.Bus, error) {
	return &Bus{channel: channel, fd: -1}, nil
}

// Layout of struct can_frame
func encode(frame can.Frame) [canFrameSize]byte {
	var raw [canFrameSize]byte
	binary.NativeEndian.PutUint32(raw[0:4], frame.ID)
	raw[4] = frame.DLC
	raw[5] = frame.Flags
	copy(raw[8:], frame.Data[:])
	return raw
}

func decode(raw []byte) can.Frame {
	frame := can.NewFrame(binary.NativeEndian.Uint32(raw[0:4]), 0, raw[4])
	copy(frame.Data[:], raw[8:canFrameSize])
	return frame
}

// Exact match filters on the given identifiers, remote flag included
func filtersFor(idents []uint32) []unix.CanFilter {
	filters := make([]unix.CanFilter, 0, len(idents))
	for _, ident := range idents {
		filters = append(filters, unix.CanFilter{
			Id:   ident,
			Mask: unix.CAN_SFF_MASK | unix.CAN_EFF_FLAG | unix.CAN_RTR_FLAG,
		})
	}
	return filters
}

// "Connect" implementation of Bus interface
func (b *Bus) Connect(...any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.open {
		return nil
	}
	iface, err := net.InterfaceByName(b.channel)
	if err != nil {
		return err
	}
	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return fmt.Errorf("failed to create CAN socket : %v", err)
	}
	timeout := unix.NsecToTimeval(readTimeout.Nanoseconds())
	err = unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &timeout)
	if err != nil {
		unix.Close(fd)
		return fmt.Errorf("failed to set read timeout %v", err)
	}
	if len(b.filters) > 0 {
		err = unix.SetsockoptCanRawFilter(fd, unix.SOL_CAN_RAW, unix.CAN_RAW_FILTER, b.filters)
		if err != nil {
			unix.Close(fd)
			return fmt.Errorf("failed to set filters %v", err)
		}
	}
	if err := unix.Bind(fd, &unix.SockaddrCAN{Ifindex: iface.Index}); err != nil {
		unix.Close(fd)
		return err
	}
	b.fd = fd
	b.open = true
	var ctx context.Context
	ctx, b.cancel = context.WithCancel(context.Background())
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.processIncoming(ctx, fd)
	}()
	return nil
}

// "Disconnect" implementation of Bus interface
func (b *Bus) Disconnect() error {
	b.mu.Lock()
	if !b.open {
		b.mu.Unlock()
		return nil
	}
	b.open = false
	b.cancel()
	fd := b.fd
	b.fd = -1
	b.mu.Unlock()
	b.wg.Wait()
	return unix.Close(fd)
}

// "Send" implementation of Bus interface
func (b *Bus) Send(frame can.Frame) error {
	b.mu.Lock()
	fd, open := b.fd, b.open
	b.mu.Unlock()
	if !open {
		return errors.New("socket not connected")
	}
	raw := encode(frame)
	n, err := unix.Write(fd, raw[:])
	if err != nil {
		return err
	}
	if n != canFrameSize {
		return fmt.Errorf("incomplete write %v/%v bytes", n, canFrameSize)
	}
	return nil
}

func (b *Bus) processIncoming(ctx context.Context, fd int) {
	raw := make([]byte, canFrameSize)
	for {
		select {
		case <-ctx.Done():
			log.Infof("[CAN][%v] exiting reception", b.channel)
			return
		default:
		}
		n, err := unix.Read(fd, raw)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				continue
			}
			log.Errorf("[CAN][%v] read error : %v", b.channel, err)
			return
		}
		if n != canFrameSize {
			continue
		}
		b.mu.Lock()
		callback := b.rxCallback
		b.mu.Unlock()
		if callback != nil {
			callback.Handle(decode(raw))
		}
	}
}

// "Subscribe" implementation of Bus interface
func (b *Bus) Subscribe(rxCallback can.FrameListener) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rxCallback = rxCallback
	return nil
}

// Restrict reception to the given identifiers, in the kernel.
// An empty list removes the filters
func (b *Bus) SetFilters(idents []uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.filters = filtersFor(idents)
	if !b.open {
		return nil
	}
	log.Debugf("[CAN][%v] setting %v receive filters", b.channel, len(b.filters))
	if len(b.filters) == 0 {
		// Default filter of a raw socket, receive everything
		return unix.SetsockoptCanRawFilter(b.fd, unix.SOL_CAN_RAW, unix.CAN_RAW_FILTER, []unix.CanFilter{{Id: 0, Mask: 0}})
	}
	return unix.SetsockoptCanRawFilter(b.fd, unix.SOL_CAN_RAW, unix.CAN_RAW_FILTER, b.filters)
}

// Enable own reception on the bus. CAN be useful when testing for example
func (b *Bus) SetReceiveOwn(enabled bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return errors.New("socket not connected")
	}
	enabledInt := 0
	if enabled {
		enabledInt = 1
	}
	return unix.SetsockoptInt(b.fd, unix.SOL_CAN_RAW, unix.CAN_RAW_RECV_OWN_MSGS, enabledInt)
}

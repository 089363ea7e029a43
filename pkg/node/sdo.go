package node

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/avast/retry-go"
	"github.com/samsamfire/gocanopen-master/pkg/heartbeat"
	"github.com/samsamfire/gocanopen-master/pkg/nmt"
	"github.com/samsamfire/gocanopen-master/pkg/sdo"
	log "github.com/sirupsen/logrus"
)

var ErrUnexpectedSize = errors.New("unexpected sdo response size")

// Wait for a oneshot result or for the context to be done.
// Returns nil, false when the context is done first
func wait[T any](ctx context.Context, results <-chan T) (T, bool) {
	select {
	case result := <-results:
		return result, true
	case <-ctx.Done():
		var zero T
		return zero, false
	}
}

// Run a blocking SDO exchange, retried on timeout up to the configured number of retries
func (node *Node) do(ctx context.Context, exchange func(completion sdo.Completion) error) ([]byte, error) {
	var data []byte
	err := retry.Do(
		func() error {
			completion, results := sdo.ResultChannel()
			if err := exchange(completion); err != nil {
				return err
			}
			result, ok := wait(ctx, results)
			if !ok {
				return ctx.Err()
			}
			data = result.Data
			return result.Err
		},
		retry.Context(ctx),
		retry.Attempts(node.config.SDORetries+1),
		retry.Delay(0),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, sdo.ErrTimeout)
		}),
		retry.OnRetry(func(n uint, err error) {
			log.Debugf("[SDO][x%x] retrying (%v) after %v", node.id, n+1, err)
		}),
	)
	return data, err
}

// Read an object with an expedited upload, blocks until the response,
// the timeout or the end of ctx.
// Note that cancelling ctx does not remove the exchange from the queue,
// it still resolves by response or timeout
func (node *Node) ReadRaw(ctx context.Context, index uint16, subindex uint8) ([]byte, error) {
	return node.do(ctx, func(completion sdo.Completion) error {
		return node.Upload(index, subindex, completion)
	})
}

// Write an object with an expedited download of up to 4 bytes, blocks until confirmed
func (node *Node) WriteRaw(ctx context.Context, index uint16, subindex uint8, data []byte) error {
	_, err := node.do(ctx, func(completion sdo.Completion) error {
		return node.Download(index, subindex, data, completion)
	})
	return err
}

func (node *Node) readExactly(ctx context.Context, index uint16, subindex uint8, size int) ([]byte, error) {
	data, err := node.ReadRaw(ctx, index, subindex)
	if err != nil {
		return nil, err
	}
	if len(data) != size {
		return nil, fmt.Errorf("%w : x%x:x%x expected %v bytes got %v", ErrUnexpectedSize, index, subindex, size, len(data))
	}
	return data, nil
}

// Read a uint8 object
func (node *Node) ReadUint8(ctx context.Context, index uint16, subindex uint8) (uint8, error) {
	data, err := node.readExactly(ctx, index, subindex, 1)
	if err != nil {
		return 0, err
	}
	return data[0], nil
}

// Read a uint16 object
func (node *Node) ReadUint16(ctx context.Context, index uint16, subindex uint8) (uint16, error) {
	data, err := node.readExactly(ctx, index, subindex, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(data), nil
}

// Read a uint32 object
func (node *Node) ReadUint32(ctx context.Context, index uint16, subindex uint8) (uint32, error) {
	data, err := node.readExactly(ctx, index, subindex, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(data), nil
}

func (node *Node) WriteUint8(ctx context.Context, index uint16, subindex uint8, value uint8) error {
	return node.WriteRaw(ctx, index, subindex, []byte{value})
}

func (node *Node) WriteUint16(ctx context.Context, index uint16, subindex uint8, value uint16) error {
	return node.WriteRaw(ctx, index, subindex, binary.LittleEndian.AppendUint16(nil, value))
}

func (node *Node) WriteUint32(ctx context.Context, index uint16, subindex uint8, value uint32) error {
	return node.WriteRaw(ctx, index, subindex, binary.LittleEndian.AppendUint32(nil, value))
}

type heartbeatResult struct {
	state nmt.State
	err   error
}

// Request the heartbeat of the node and wait for the next notification.
// This replaces the completion registered with [Node.StartHeartbeat]
func (node *Node) Heartbeat(ctx context.Context) (nmt.State, error) {
	results := make(chan heartbeatResult, 1)
	completion := func(state nmt.State, err error) {
		select {
		case results <- heartbeatResult{state, err}:
		default:
		}
	}
	if err := node.StartHeartbeat(heartbeat.Completion(completion)); err != nil {
		return nmt.StateUnknown, err
	}
	result, ok := wait(ctx, results)
	if !ok {
		return nmt.StateUnknown, ctx.Err()
	}
	return result.state, result.err
}

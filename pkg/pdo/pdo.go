package pdo

import (
	"errors"
	"fmt"

	can "github.com/samsamfire/gocanopen-master/pkg/can"
)

const (
	MaxChannels = 4
	MaxLength   = 8
	// Master to node, channel 0
	RxBaseId = 0x200
	// Node to master, channel 0
	TxBaseId      = 0x180
	channelOffset = 0x100
	functionMask  = 0x780
)

var (
	ErrInvalidChannel = errors.New("invalid pdo channel (0-3)")
	ErrDataTooLong    = errors.New("pdo length > 8 bytes")
)

// Encode a PDO to the node on the given channel
func Encode(nodeId uint8, channel uint8, data []byte) (can.Frame, error) {
	if channel >= MaxChannels {
		return can.Frame{}, fmt.Errorf("%w : %v", ErrInvalidChannel, channel)
	}
	if len(data) > MaxLength {
		return can.Frame{}, fmt.Errorf("%w : %v", ErrDataTooLong, len(data))
	}
	id := uint32(RxBaseId+channelOffset*uint32(channel)) | uint32(nodeId)
	frame := can.NewFrame(id, 0, uint8(len(data)))
	copy(frame.Data[:], data)
	return frame, nil
}

// Channel of a PDO sent by a node, from its identifier
func DecodeChannel(id uint32) uint8 {
	return uint8(((id & functionMask) - TxBaseId) >> 8)
}

// Identifier of the PDO sent by the node on the given channel
func TxId(nodeId uint8, channel uint8) uint32 {
	return TxBaseId + channelOffset*uint32(channel) + uint32(nodeId)
}

package sdo

import (
	"encoding/binary"
	"fmt"

	can "github.com/samsamfire/gocanopen-master/pkg/can"
)

// Expedited download initiate : write 1 to 4 bytes to index:subindex
// The n field only holds 0..3 unused bytes, so an empty download cannot be encoded
func EncodeDownloadInitiate(nodeId uint8, index uint16, subindex uint8, data []byte) (can.Frame, error) {
	if len(data) == 0 {
		return can.Frame{}, ErrDataEmpty
	}
	if len(data) > ExpeditedMaxSize {
		return can.Frame{}, fmt.Errorf("%w : got %v bytes", ErrDataTooLong, len(data))
	}
	unused := uint8(ExpeditedMaxSize - len(data))
	header := NewHeader(uint8(ClientDownloadInit), unused, true, true)
	frame := newRequest(nodeId, header, index, subindex)
	copy(frame.Data[4:], data)
	return frame, nil
}

// Upload initiate : read index:subindex, data field is left zeroed
func EncodeUploadInitiate(nodeId uint8, index uint16, subindex uint8) can.Frame {
	header := NewHeader(uint8(ClientUploadInit), 0, false, false)
	return newRequest(nodeId, header, index, subindex)
}

func newRequest(nodeId uint8, header Header, index uint16, subindex uint8) can.Frame {
	frame := can.NewFrame(ClientBaseId+uint32(nodeId), 0, FrameSize)
	frame.Data[0] = byte(header)
	binary.LittleEndian.PutUint16(frame.Data[1:3], index)
	frame.Data[3] = subindex
	return frame
}

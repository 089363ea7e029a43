package sdo

import (
	"encoding/binary"
	"fmt"

	can "github.com/samsamfire/gocanopen-master/pkg/can"
)

// Decoded SDO frame, from the node (response) or to it (request)
type Response struct {
	Header   Header
	Index    uint16
	Subindex uint8
	Data     [4]byte
}

func DecodeResponse(frame can.Frame) (Response, error) {
	if frame.DLC < FrameSize {
		return Response{}, fmt.Errorf("%w : %v", ErrFrameLength, frame.DLC)
	}
	response := Response{
		Header:   Header(frame.Data[0]),
		Index:    binary.LittleEndian.Uint16(frame.Data[1:3]),
		Subindex: frame.Data[3],
	}
	copy(response.Data[:], frame.Data[4:8])
	return response, nil
}

func (response Response) Command() ServerCommand {
	return ServerCommand(response.Header.Command())
}

// Valid data bytes, i.e. the data field minus the n unused trailing bytes
func (response Response) Payload() []byte {
	length := ExpeditedMaxSize - int(response.Header.Unused())
	payload := make([]byte, length)
	copy(payload, response.Data[:length])
	return payload
}

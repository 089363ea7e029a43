package can

import (
	"fmt"
)

const (
	RtrFlag uint32 = 0x40000000
	SffMask uint32 = 0x000007FF
)

// A CAN frame
// ID holds the 11 bit identifier, with [RtrFlag] or'ed in for remote requests
type Frame struct {
	ID    uint32
	Flags uint8
	DLC   uint8
	Data  [8]byte
}

func NewFrame(id uint32, flags uint8, dlc uint8) Frame {
	return Frame{ID: id, Flags: flags, DLC: dlc}
}

// Identifier without the remote request flag
func (f Frame) Ident() uint32 {
	return f.ID & SffMask
}

// Remote transmission request
func (f Frame) IsRemote() bool {
	return f.ID&RtrFlag != 0
}

// Payload returns the first DLC bytes of the frame, as a copy
func (f Frame) Payload() []byte {
	length := int(f.DLC)
	if length > len(f.Data) {
		length = len(f.Data)
	}
	payload := make([]byte, length)
	copy(payload, f.Data[:length])
	return payload
}

// Interface for handling a received CAN frame
type FrameListener interface {
	Handle(frame Frame)
}

// Any CAN frame sender, this is the only capability the protocol engine needs
type Sender interface {
	Send(frame Frame) error
}

// A CAN Bus interface
type Bus interface {
	Connect(...any) error                   // Connect to the CAN bus
	Disconnect() error                      // Disconnect from CAN bus
	Send(frame Frame) error                 // Send a frame on the bus
	Subscribe(callback FrameListener) error // Subscribe to all received CAN frames
}

// Optional capability of a Bus, restrict reception to the given identifiers.
// Identifiers are matched exactly, [RtrFlag] included. An empty list lets every frame through
type Filterer interface {
	SetFilters(idents []uint32) error
}

// Register a new CAN bus interface type
// This should be called inside an init() function of plugin
func RegisterInterface(interfaceType string, newInterface NewInterfaceFunc) {
	interfaceRegistry[interfaceType] = newInterface
}

type NewInterfaceFunc func(channel string) (Bus, error)

var interfaceRegistry = make(map[string]NewInterfaceFunc)

// Create a new CAN bus with given interface
// Currently supported : socketcan, socketcanv2, socketcanv3, virtual
func NewBus(canInterface string, channel string, bitrate int) (Bus, error) {
	createInterface, ok := interfaceRegistry[canInterface]
	if !ok {
		return nil, fmt.Errorf("unsupported interface : %v", canInterface)
	}
	return createInterface(channel)
}

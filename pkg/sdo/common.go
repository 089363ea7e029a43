package sdo

import (
	"errors"
	"fmt"
	"time"
)

// Common defines for the SDO client, only expedited transfers are handled
const (
	DefaultClientTimeout = 500 * time.Millisecond
	DefaultQueueSize     = 64
	ClientBaseId         = 0x600
	ServerBaseId         = 0x580
	ExpeditedMaxSize     = 4
	FrameSize            = 8
)

var (
	ErrQueueFull         = errors.New("sdo queue full")
	ErrDataTooLong       = errors.New("unimplemented sdo request (length >4)")
	ErrDataEmpty         = errors.New("empty sdo download")
	ErrFrameLength       = errors.New("wrong sdo frame length")
	ErrProtocolMismatch  = errors.New("unexpected sdo response")
	ErrUnsupportedLength = errors.New("unimplemented sdo response (length >4)")
	ErrTimeout           = errors.New("timeout sdo response")
)

// Client command specifier (master to node)
type ClientCommand uint8

const (
	ClientDownloadSegment ClientCommand = 0
	ClientDownloadInit    ClientCommand = 1
	ClientUploadInit      ClientCommand = 2
	ClientUploadSegment   ClientCommand = 3
	ClientAbort           ClientCommand = 4
)

// Server command specifier (node to master)
type ServerCommand uint8

const (
	ServerUploadSegmentResponse   ServerCommand = 0
	ServerDownloadSegmentResponse ServerCommand = 1
	ServerUploadInitResponse      ServerCommand = 2
	ServerDownloadInitResponse    ServerCommand = 3
	ServerAbort                   ServerCommand = 4
)

var serverCommandDescription = map[ServerCommand]string{
	ServerUploadSegmentResponse:   "UPLOAD-SEGMENT-RESPONSE",
	ServerDownloadSegmentResponse: "DOWNLOAD-SEGMENT-RESPONSE",
	ServerUploadInitResponse:      "UPLOAD-INIT-RESPONSE",
	ServerDownloadInitResponse:    "DOWNLOAD-INIT-RESPONSE",
	ServerAbort:                   "ABORT",
}

func (cs ServerCommand) String() string {
	description, ok := serverCommandDescription[cs]
	if !ok {
		return fmt.Sprintf("x%x", uint8(cs))
	}
	return description
}

// SDO header byte
//
//	bit    7 6 5   4   3 2   1   0
//	      | cs  | r |  n  | e | s |
type Header byte

const (
	headerSizeIndicated = 1 << 0
	headerExpedited     = 1 << 1
	headerUnusedShift   = 2
	headerUnusedMask    = 0x03
	headerReserved      = 1 << 4
	headerCommandShift  = 5
	headerCommandMask   = 0x07
)

func NewHeader(cs uint8, n uint8, expedited bool, sizeIndicated bool) Header {
	h := Header((cs & headerCommandMask) << headerCommandShift)
	h |= Header((n & headerUnusedMask) << headerUnusedShift)
	if expedited {
		h |= headerExpedited
	}
	if sizeIndicated {
		h |= headerSizeIndicated
	}
	return h
}

// Field "s" in CiA 301
func (h Header) SizeIndicated() bool {
	return h&headerSizeIndicated != 0
}

// Field "e" in CiA 301
func (h Header) Expedited() bool {
	return h&headerExpedited != 0
}

// Field "n", number of unused bytes in the data field
func (h Header) Unused() uint8 {
	return (uint8(h) >> headerUnusedShift) & headerUnusedMask
}

func (h Header) Reserved() bool {
	return h&headerReserved != 0
}

// Field "cs", command specifier
func (h Header) Command() uint8 {
	return (uint8(h) >> headerCommandShift) & headerCommandMask
}

// Received a response with a command specifier different from the expected one
type ProtocolMismatchError struct {
	Expected ServerCommand
	Received ServerCommand
}

func (e *ProtocolMismatchError) Error() string {
	return fmt.Sprintf("%v : got %v, expected %v", ErrProtocolMismatch, e.Received, e.Expected)
}

func (e *ProtocolMismatchError) Is(target error) bool {
	return target == ErrProtocolMismatch
}

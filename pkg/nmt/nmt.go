package nmt

import (
	"errors"
	"fmt"

	can "github.com/samsamfire/gocanopen-master/pkg/can"
	log "github.com/sirupsen/logrus"
)

const ServiceId = 0

var ErrInvalidCommand = errors.New("invalid nmt command")

// Possible NMT states, as reported by heartbeats
type State uint8

const (
	StateInitializing   State = 0
	StateStopped        State = 4
	StateOperational    State = 5
	StatePreOperational State = 127
	StateUnknown        State = 255
)

var stateMap = map[State]string{
	StateInitializing:   "INITIALIZING",
	StatePreOperational: "PRE-OPERATIONAL",
	StateOperational:    "OPERATIONAL",
	StateStopped:        "STOPPED",
	StateUnknown:        "UNKNOWN",
}

func (s State) String() string {
	description, ok := stateMap[s]
	if !ok {
		return fmt.Sprintf("UNKNOWN(x%x)", uint8(s))
	}
	return description
}

// Available NMT commands
// They can be broadcasted to all nodes or to individual nodes
type Command uint8

const (
	CommandEmpty               Command = 0
	CommandEnterOperational    Command = 1
	CommandEnterStopped        Command = 2
	CommandEnterPreOperational Command = 128
	CommandResetNode           Command = 129
	CommandResetCommunication  Command = 130
)

var CommandDescription = map[Command]string{
	CommandEnterOperational:    "ENTER-OPERATIONAL",
	CommandEnterStopped:        "ENTER-STOPPED",
	CommandEnterPreOperational: "ENTER-PREOPERATIONAL",
	CommandResetNode:           "RESET-NODE",
	CommandResetCommunication:  "RESET-COMMUNICATION",
}

func (c Command) String() string {
	description, ok := CommandDescription[c]
	if !ok {
		return fmt.Sprintf("UNKNOWN(x%x)", uint8(c))
	}
	return description
}

// Parse a command from its description e.g. "ENTER-OPERATIONAL"
func ParseCommand(description string) (Command, error) {
	for command, d := range CommandDescription {
		if d == description {
			return command, nil
		}
	}
	return CommandEmpty, fmt.Errorf("%w : %v", ErrInvalidCommand, description)
}

// Encode an NMT command frame : [command, node id] on id 0
func EncodeCommand(nodeId uint8, command Command) can.Frame {
	frame := can.NewFrame(ServiceId, 0, 2)
	frame.Data[0] = uint8(command)
	frame.Data[1] = nodeId
	return frame
}

// Sender sends NMT commands to a single node, there is no confirmation
type Sender struct {
	bm     can.Sender
	nodeId uint8
}

func NewSender(bm can.Sender, nodeId uint8) *Sender {
	return &Sender{bm: bm, nodeId: nodeId}
}

// Send an NMT command, fire and forget
func (sender *Sender) Send(command Command) error {
	if _, ok := CommandDescription[command]; !ok {
		return fmt.Errorf("%w : x%x", ErrInvalidCommand, uint8(command))
	}
	log.Debugf("[NMT][TX][x%x] %v", sender.nodeId, command)
	return sender.bm.Send(EncodeCommand(sender.nodeId, command))
}

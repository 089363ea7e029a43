package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/samsamfire/gocanopen-master/pkg/heartbeat"
	"github.com/samsamfire/gocanopen-master/pkg/sdo"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

var ErrInvalidSettings = errors.New("invalid settings")

// Upper bound on blocking SDO retries
const MaxSDORetries = 16

// Settings of a monitored node
type Node struct {
	SDOTimeout       time.Duration
	HeartbeatTimeout time.Duration
	QueueCapacity    uint16
	// Number of times a blocking SDO access is retried after a timeout
	SDORetries uint
}

// CAN interface to use, see [can.NewBus]
type Bus struct {
	Interface string
	Channel   string
	Bitrate   int
}

// Settings of a master, as loaded from a configuration file
type Settings struct {
	Bus      Bus
	Defaults Node
	// Nodes to monitor by node id, with their own settings
	Nodes map[uint8]Node
}

func DefaultNode() Node {
	return Node{
		SDOTimeout:       sdo.DefaultClientTimeout,
		HeartbeatTimeout: heartbeat.DefaultTimeout,
		QueueCapacity:    sdo.DefaultQueueSize,
		SDORetries:       0,
	}
}

func Default() *Settings {
	return &Settings{
		Bus:      Bus{Interface: "socketcan", Channel: "can0", Bitrate: 500000},
		Defaults: DefaultNode(),
		Nodes:    map[uint8]Node{},
	}
}

func (n Node) Validate() error {
	if n.SDOTimeout < time.Millisecond {
		return fmt.Errorf("%w : sdo timeout %v below 1ms", ErrInvalidSettings, n.SDOTimeout)
	}
	if n.HeartbeatTimeout < time.Millisecond {
		return fmt.Errorf("%w : heartbeat timeout %v below 1ms", ErrInvalidSettings, n.HeartbeatTimeout)
	}
	if n.QueueCapacity == 0 {
		return fmt.Errorf("%w : sdo queue capacity is 0", ErrInvalidSettings)
	}
	if n.SDORetries > MaxSDORetries {
		return fmt.Errorf("%w : sdo retries %d above %d", ErrInvalidSettings, n.SDORetries, MaxSDORetries)
	}
	return nil
}

func ValidateNodeId(nodeId uint8) error {
	if nodeId < 1 || nodeId > 127 {
		return fmt.Errorf("%w : node id %d (valid 1..127)", ErrInvalidSettings, nodeId)
	}
	return nil
}

func (s *Settings) Validate() error {
	if s.Bus.Interface == "" {
		return fmt.Errorf("%w : empty bus interface", ErrInvalidSettings)
	}
	if err := s.Defaults.Validate(); err != nil {
		return err
	}
	for _, nodeId := range s.NodeIds() {
		if err := ValidateNodeId(nodeId); err != nil {
			return err
		}
		if err := s.Nodes[nodeId].Validate(); err != nil {
			return fmt.Errorf("node x%x : %w", nodeId, err)
		}
	}
	return nil
}

// Monitored node ids in ascending order
func (s *Settings) NodeIds() []uint8 {
	ids := maps.Keys(s.Nodes)
	slices.Sort(ids)
	return ids
}

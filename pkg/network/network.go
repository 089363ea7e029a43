// Package network manages the CAN bus of a master and
// the nodes it talks to, one [node.Node] per remote node id.
package network

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/jpillora/maplock"
	canopen "github.com/samsamfire/gocanopen-master"
	can "github.com/samsamfire/gocanopen-master/pkg/can"
	"github.com/samsamfire/gocanopen-master/pkg/config"
	n "github.com/samsamfire/gocanopen-master/pkg/node"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

var (
	ErrIdConflict   = errors.New("id already exists on network, this will create conflicts")
	ErrNodeNotFound = errors.New("node not found on network")
)

// A Network is the main object of this package
// It should be created before doing anything else.
// It owns the bus manager shared by every node
type Network struct {
	*canopen.BusManager
	mu        sync.Mutex
	lock      *maplock.Maplock // per node id, serializes add / remove of the same id
	nodes     map[uint8]*n.Node
	connected bool
	options   []n.Option
}

// Create a new Network using the given CAN bus
// bus may be nil, in which case it is created on [Network.Connect]
func NewNetwork(bus can.Bus, opts ...n.Option) *Network {
	return &Network{
		BusManager: canopen.NewBusManager(bus),
		lock:       maplock.New(),
		nodes:      map[uint8]*n.Node{},
		options:    opts,
	}
}

// Connects to CAN bus, this should be called before anything else.
// Custom CAN backend is possible using a custom "Bus" interface.
// Otherwise it expects an interface name, channel and bitrate.
func (network *Network) Connect(args ...any) error {
	network.mu.Lock()
	defer network.mu.Unlock()
	if network.connected {
		return nil
	}
	bus := network.Bus()
	if bus == nil {
		if len(args) < 3 {
			return errors.New("either provide custom backend, or provide interface, channel and bitrate")
		}
		canInterface, ok := args[0].(string)
		if !ok {
			return fmt.Errorf("expecting string for interface got : %v", args[0])
		}
		channel, ok := args[1].(string)
		if !ok {
			return fmt.Errorf("expecting string for channel got : %v", args[1])
		}
		bitrate, ok := args[2].(int)
		if !ok {
			return fmt.Errorf("expecting int for bitrate got : %v", args[2])
		}
		var err error
		bus, err = can.NewBus(canInterface, channel, bitrate)
		if err != nil {
			return err
		}
		network.SetBus(bus)
	}
	// Subscribe before connecting so that no frame is lost
	err := bus.Subscribe(network.BusManager)
	if err != nil {
		return err
	}
	err = bus.Connect(args...)
	if err != nil {
		return err
	}
	network.connected = true
	log.Infof("[NETWORK] connected to bus %T", bus)
	return nil
}

// Connect using the bus section of the settings
func (network *Network) ConnectWithSettings(settings config.Bus) error {
	return network.Connect(settings.Interface, settings.Channel, settings.Bitrate)
}

// Closes every node, then disconnects from the CAN bus
func (network *Network) Disconnect() error {
	for _, id := range network.NodeIDs() {
		if err := network.RemoveNode(id); err != nil && !errors.Is(err, ErrNodeNotFound) {
			log.Warnf("[NETWORK][x%x] failed to remove node : %v", id, err)
		}
	}
	network.mu.Lock()
	defer network.mu.Unlock()
	if !network.connected {
		return nil
	}
	network.connected = false
	log.Info("[NETWORK] disconnecting from bus")
	return network.Bus().Disconnect()
}

// Create a node with the given settings and start routing its frames
func (network *Network) AddNode(nodeId uint8, settings config.Node) (*n.Node, error) {
	key := strconv.Itoa(int(nodeId))
	network.lock.Lock(key)
	defer network.lock.Unlock(key)

	network.mu.Lock()
	_, exists := network.nodes[nodeId]
	network.mu.Unlock()
	if exists {
		return nil, fmt.Errorf("%w : x%x", ErrIdConflict, nodeId)
	}
	node, err := n.New(network.BusManager, nodeId, settings, network.options...)
	if err != nil {
		return nil, err
	}
	network.mu.Lock()
	network.nodes[nodeId] = node
	network.mu.Unlock()
	network.refreshFilters()
	log.Infof("[NETWORK][x%x] node added", nodeId)
	return node, nil
}

// Add every node of the settings, with its own settings
func (network *Network) AddNodes(settings *config.Settings) error {
	for _, id := range settings.NodeIds() {
		_, err := network.AddNode(id, settings.Nodes[id])
		if err != nil {
			return err
		}
	}
	return nil
}

// Get a node previously added with [Network.AddNode]
func (network *Network) Node(nodeId uint8) (*n.Node, error) {
	network.mu.Lock()
	defer network.mu.Unlock()
	node, ok := network.nodes[nodeId]
	if !ok {
		return nil, fmt.Errorf("%w : x%x", ErrNodeNotFound, nodeId)
	}
	return node, nil
}

// Close a node and forget about it.
// Its pending exchanges are dropped without notification
func (network *Network) RemoveNode(nodeId uint8) error {
	key := strconv.Itoa(int(nodeId))
	network.lock.Lock(key)
	defer network.lock.Unlock(key)

	network.mu.Lock()
	node, ok := network.nodes[nodeId]
	delete(network.nodes, nodeId)
	network.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w : x%x", ErrNodeNotFound, nodeId)
	}
	log.Infof("[NETWORK][x%x] removing node", nodeId)
	err := node.Close()
	network.refreshFilters()
	return err
}

// Restrict bus reception to the frames of the nodes on the network,
// when the bus supports it
func (network *Network) refreshFilters() {
	filterer, ok := network.Bus().(can.Filterer)
	if !ok {
		return
	}
	network.mu.Lock()
	idents := []uint32{}
	for _, id := range network.sortedIds() {
		idents = append(idents, network.nodes[id].Idents()...)
	}
	network.mu.Unlock()
	if err := filterer.SetFilters(idents); err != nil {
		log.Warnf("[NETWORK] failed to set bus filters : %v", err)
	}
}

func (network *Network) sortedIds() []uint8 {
	ids := maps.Keys(network.nodes)
	slices.Sort(ids)
	return ids
}

// Ids of the nodes on the network, sorted
func (network *Network) NodeIDs() []uint8 {
	network.mu.Lock()
	defer network.mu.Unlock()
	return network.sortedIds()
}

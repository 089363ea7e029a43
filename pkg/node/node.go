package node

import (
	"errors"
	"fmt"
	"sync"

	canopen "github.com/samsamfire/gocanopen-master"
	"github.com/samsamfire/gocanopen-master/internal/timer"
	can "github.com/samsamfire/gocanopen-master/pkg/can"
	"github.com/samsamfire/gocanopen-master/pkg/config"
	"github.com/samsamfire/gocanopen-master/pkg/heartbeat"
	"github.com/samsamfire/gocanopen-master/pkg/nmt"
	"github.com/samsamfire/gocanopen-master/pkg/pdo"
	"github.com/samsamfire/gocanopen-master/pkg/sdo"
	log "github.com/sirupsen/logrus"
)

var ErrClosed = errors.New("node is closed")

// Function codes (identifier >> 7) of the frames a node sends to the master
const (
	functionTPDO1     = 0x3
	functionTPDO2     = 0x5
	functionTPDO3     = 0x7
	functionTPDO4     = 0x9
	functionSDO       = 0xB
	functionHeartbeat = 0xE
	nodeIdMask        = 0x7F
)

// A Node is the master side representation of a remote node on the CAN bus.
// It owns the protocol state of every service used to talk to it :
//   - SDO client queue, one expedited exchange on the bus at a time
//   - heartbeat monitor
//   - PDO dispatcher
//   - NMT sender
//
// All methods are safe for concurrent use. Completions and listeners
// are called without any internal lock held, they may call back into the node.
type Node struct {
	bm       *canopen.BusManager
	mu       sync.Mutex
	id       uint8
	config   config.Node
	sdo      *sdo.Queue
	hb       *heartbeat.Monitor
	pdo      *pdo.Dispatcher
	nmt      *nmt.Sender
	sdoTimer timer.Timer
	hbTimer  timer.Timer
	idents   []uint32
	cancels  []func()
	closed   bool
}

type Option func(*options)

type options struct {
	newTimer timer.Factory
}

// Use the given timer factory for the SDO and heartbeat timeouts
func WithTimerFactory(factory timer.Factory) Option {
	return func(o *options) {
		o.newTimer = factory
	}
}

// Create a node and subscribe to the frames it sends to the master
func New(bm *canopen.BusManager, nodeId uint8, cfg config.Node, opts ...Option) (*Node, error) {
	if bm == nil {
		return nil, fmt.Errorf("%w : need a bus manager", canopen.ErrIllegalArgument)
	}
	if err := config.ValidateNodeId(nodeId); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{newTimer: timer.New}
	for _, opt := range opts {
		opt(&o)
	}

	node := &Node{bm: bm, id: nodeId, config: cfg}
	node.sdoTimer = o.newTimer(node.onSDOTimeout)
	node.hbTimer = o.newTimer(node.onHeartbeatTimeout)

	var err error
	node.sdo, err = sdo.NewQueue(bm, nodeId, cfg.QueueCapacity, cfg.SDOTimeout, node.sdoTimer)
	if err != nil {
		return nil, err
	}
	node.hb, err = heartbeat.NewMonitor(bm, nodeId, cfg.HeartbeatTimeout, node.hbTimer)
	if err != nil {
		return nil, err
	}
	node.pdo = pdo.NewDispatcher(bm, nodeId)
	node.nmt = nmt.NewSender(bm, nodeId)

	node.idents = []uint32{
		pdo.TxId(nodeId, 0),
		pdo.TxId(nodeId, 1),
		pdo.TxId(nodeId, 2),
		pdo.TxId(nodeId, 3),
		sdo.ServerBaseId + uint32(nodeId),
		heartbeat.ServiceId + uint32(nodeId),
	}
	for _, ident := range node.idents {
		cancel, err := bm.Subscribe(ident, 0x7FF, false, node)
		if err != nil {
			node.unsubscribe()
			return nil, err
		}
		node.cancels = append(node.cancels, cancel)
	}
	log.Infof("[NODE][x%x] created, sdo timeout %v, heartbeat timeout %v", nodeId, cfg.SDOTimeout, cfg.HeartbeatTimeout)
	return node, nil
}

func (node *Node) GetID() uint8 {
	return node.id
}

// Identifiers of the frames the node sends to the master
func (node *Node) Idents() []uint32 {
	idents := make([]uint32, len(node.idents))
	copy(idents, node.idents)
	return idents
}

// Settings the node was created with
func (node *Node) Config() config.Node {
	return node.config
}

// Configurator for the standard objects of the remote node
func (node *Node) Configurator() *config.NodeConfigurator {
	return config.NewNodeConfigurator(node.id, node)
}

// Implements the FrameListener interface.
// Routes a frame received from the node to the service that handles it
func (node *Node) Handle(frame can.Frame) {
	node.mu.Lock()
	if node.closed || frame.Ident()&nodeIdMask != uint32(node.id) {
		node.mu.Unlock()
		return
	}
	deliver := node.route(frame)
	node.mu.Unlock()
	if deliver != nil {
		deliver()
	}
}

func (node *Node) route(frame can.Frame) func() {
	switch frame.Ident() >> 7 {
	case functionTPDO1, functionTPDO2, functionTPDO3, functionTPDO4:
		if outcome, ok := node.pdo.OnFrame(frame); ok {
			return outcome.Deliver
		}
	case functionSDO:
		response, err := sdo.DecodeResponse(frame)
		if err != nil {
			log.Warnf("[SDO][RX][x%x] dropping frame : %v", node.id, err)
			return nil
		}
		if outcome, ok := node.sdo.OnResponse(response); ok {
			return outcome.Deliver
		}
	case functionHeartbeat:
		if outcome, ok := node.hb.OnResponse(frame); ok {
			return outcome.Deliver
		}
	default:
		log.Debugf("[NODE][x%x] ignoring frame x%x", node.id, frame.ID)
	}
	return nil
}

func (node *Node) onSDOTimeout(token uint64) {
	node.mu.Lock()
	if node.closed {
		node.mu.Unlock()
		return
	}
	outcome, ok := node.sdo.OnTimeout(token)
	node.mu.Unlock()
	if ok {
		outcome.Deliver()
	}
}

func (node *Node) onHeartbeatTimeout(token uint64) {
	node.mu.Lock()
	if node.closed {
		node.mu.Unlock()
		return
	}
	outcome, ok := node.hb.OnTimeout(token)
	node.mu.Unlock()
	if ok {
		outcome.Deliver()
	}
}

// Send an NMT command to the node
func (node *Node) SendNMT(command nmt.Command) error {
	node.mu.Lock()
	defer node.mu.Unlock()
	if node.closed {
		return ErrClosed
	}
	return node.nmt.Send(command)
}

// Queue an expedited SDO download (write) of up to 4 bytes.
// completion is called once, with a nil error on success.
// If an error is returned, completion will never be called
func (node *Node) Download(index uint16, subindex uint8, data []byte, completion sdo.Completion) error {
	item, err := sdo.NewDownloadItem(node.id, index, subindex, data, completion)
	if err != nil {
		return err
	}
	return node.enqueue(item)
}

// Queue an expedited SDO upload (read).
// completion is called once, with the uploaded bytes on success.
// If an error is returned, completion will never be called
func (node *Node) Upload(index uint16, subindex uint8, completion sdo.Completion) error {
	return node.enqueue(sdo.NewUploadItem(node.id, index, subindex, completion))
}

func (node *Node) enqueue(item *sdo.Item) error {
	node.mu.Lock()
	defer node.mu.Unlock()
	if node.closed {
		return ErrClosed
	}
	return node.sdo.Enqueue(item)
}

// Number of SDO exchanges waiting, including the one in flight
func (node *Node) PendingSDO() int {
	node.mu.Lock()
	defer node.mu.Unlock()
	return node.sdo.Len()
}

// Send a PDO to the node on channel 0..3
func (node *Node) SendPDO(channel uint8, data []byte) error {
	node.mu.Lock()
	defer node.mu.Unlock()
	if node.closed {
		return ErrClosed
	}
	return node.pdo.Send(channel, data)
}

// Register the listener of the PDOs sent by the node, nil unregisters
func (node *Node) OnPDO(listener pdo.Listener) {
	node.mu.Lock()
	defer node.mu.Unlock()
	node.pdo.SetListener(listener)
}

// Request the heartbeat of the node. completion is kept and called for
// every following heartbeat or timeout, nil keeps the previous one.
// Only answers to a request are checked for an alternating toggle bit,
// cyclic heartbeats sent by the node in between are delivered unchecked.
func (node *Node) StartHeartbeat(completion heartbeat.Completion) error {
	node.mu.Lock()
	defer node.mu.Unlock()
	if node.closed {
		return ErrClosed
	}
	return node.hb.Start(completion)
}

func (node *Node) unsubscribe() {
	for _, cancel := range node.cancels {
		cancel()
	}
	node.cancels = nil
}

// Stop every service of the node. Pending SDO exchanges and heartbeat requests
// are dropped without calling their completions, later timer expiries are ignored.
// Close may be called more than once
func (node *Node) Close() error {
	node.mu.Lock()
	if node.closed {
		node.mu.Unlock()
		return nil
	}
	node.closed = true
	node.sdo.Cancel()
	node.hb.Cancel()
	node.pdo.SetListener(nil)
	node.mu.Unlock()
	node.unsubscribe()
	log.Infof("[NODE][x%x] closed", node.id)
	return nil
}

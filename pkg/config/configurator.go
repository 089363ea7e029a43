package config

import "context"

// SDO access to a single node, as provided by [node.Node]
type Client interface {
	ReadUint8(ctx context.Context, index uint16, subindex uint8) (uint8, error)
	ReadUint16(ctx context.Context, index uint16, subindex uint8) (uint16, error)
	ReadUint32(ctx context.Context, index uint16, subindex uint8) (uint32, error)
	WriteUint8(ctx context.Context, index uint16, subindex uint8, value uint8) error
	WriteUint16(ctx context.Context, index uint16, subindex uint8, value uint16) error
	WriteUint32(ctx context.Context, index uint16, subindex uint8, value uint32) error
}

// NodeConfigurator provides helper methods for
// reading / updating CANopen reserved configuration objects
// i.e. objects between 0x1000 and 0x2000.
// Only objects that fit in an expedited transfer are handled.
type NodeConfigurator struct {
	client Client
	nodeId uint8
}

// Create a new [NodeConfigurator] for given ID and client
func NewNodeConfigurator(nodeId uint8, client Client) *NodeConfigurator {
	return &NodeConfigurator{client: client, nodeId: nodeId}
}

package config

import "context"

const (
	EntryConsumerHeartbeatTime uint16 = 0x1016
	EntryProducerHeartbeatTime uint16 = 0x1017
)

// Read current monitored nodes
// Returns a list of all the entries composed as the id of the monitored node
// And the expected period in ms
func (config *NodeConfigurator) ReadMonitoredNodes(ctx context.Context) ([][]uint16, error) {
	nbMonitored, err := config.ReadMaxMonitorable(ctx)
	if err != nil {
		return nil, err
	}
	monitored := make([][]uint16, 0)
	for i := uint8(1); i <= nbMonitored; i++ {
		periodAndId, err := config.client.ReadUint32(ctx, EntryConsumerHeartbeatTime, i)
		if err != nil {
			return monitored, err
		}
		nodeId := uint16((periodAndId >> 16) & 0xFF)
		period := uint16(periodAndId)
		monitored = append(monitored, []uint16{nodeId, period})
	}
	return monitored, nil
}

// Read max available entries for monitoring
func (config *NodeConfigurator) ReadMaxMonitorable(ctx context.Context) (uint8, error) {
	return config.client.ReadUint8(ctx, EntryConsumerHeartbeatTime, 0x0)
}

// Add or update a node to monitor with the expected heartbeat period
// Index needs to be between 1 & the max nodes that can be monitored
func (config *NodeConfigurator) WriteMonitoredNode(ctx context.Context, index uint8, nodeId uint8, periodMs uint16) error {
	periodAndId := uint32(nodeId)<<16 + uint32(periodMs)
	return config.client.WriteUint32(ctx, EntryConsumerHeartbeatTime, index, periodAndId)
}

// Read a nodes heartbeat period and returns it in milliseconds
func (config *NodeConfigurator) ReadHeartbeatPeriod(ctx context.Context) (uint16, error) {
	return config.client.ReadUint16(ctx, EntryProducerHeartbeatTime, 0)
}

// Update a nodes heartbeat period in milliseconds
func (config *NodeConfigurator) WriteHeartbeatPeriod(ctx context.Context, periodMs uint16) error {
	return config.client.WriteUint16(ctx, EntryProducerHeartbeatTime, 0, periodMs)
}

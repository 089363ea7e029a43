package config

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	EntryCobIdSYNC                  uint16 = 0x1005
	EntryCommunicationCyclePeriod   uint16 = 0x1006
	EntrySynchronousWindowLength    uint16 = 0x1007
	EntrySynchronousCounterOverflow uint16 = 0x1019
)

// Bit 30 of the SYNC and TIME COB-IDs, set when the node produces the object
const cobIdProducerBit uint32 = 1 << 30

func (config *NodeConfigurator) ReadCobIdSYNC(ctx context.Context) (cobId uint32, err error) {
	return config.client.ReadUint32(ctx, EntryCobIdSYNC, 0x0)
}

func (config *NodeConfigurator) ReadCounterOverflow(ctx context.Context) (uint8, error) {
	return config.client.ReadUint8(ctx, EntrySynchronousCounterOverflow, 0x0)
}

// Read the SYNC period, 0 when the node does not produce SYNC
func (config *NodeConfigurator) ReadCommunicationPeriod(ctx context.Context) (time.Duration, error) {
	period, err := config.client.ReadUint32(ctx, EntryCommunicationCyclePeriod, 0)
	if err != nil {
		return 0, err
	}
	return time.Duration(period) * time.Microsecond, nil
}

func (config *NodeConfigurator) ReadWindowLengthPdos(ctx context.Context) (time.Duration, error) {
	period, err := config.client.ReadUint32(ctx, EntrySynchronousWindowLength, 0)
	if err != nil {
		return 0, err
	}
	return time.Duration(period) * time.Microsecond, nil
}

func (config *NodeConfigurator) ProducerEnableSYNC(ctx context.Context) error {
	// Changing COB-ID is not allowed if already producer, read first
	cobId, err := config.ReadCobIdSYNC(ctx)
	if err != nil {
		return err
	}
	log.Debugf("[CONFIG][x%x] enabling sync producer", config.nodeId)
	return config.client.WriteUint32(ctx, EntryCobIdSYNC, 0x0, cobId|cobIdProducerBit)
}

func (config *NodeConfigurator) ProducerDisableSYNC(ctx context.Context) error {
	cobId, err := config.ReadCobIdSYNC(ctx)
	if err != nil {
		return err
	}
	log.Debugf("[CONFIG][x%x] disabling sync producer", config.nodeId)
	return config.client.WriteUint32(ctx, EntryCobIdSYNC, 0x0, cobId&^cobIdProducerBit)
}

// Change sync can id, sync should be disabled before changing this
func (config *NodeConfigurator) WriteCanIdSYNC(ctx context.Context, canId uint16) error {
	return config.client.WriteUint32(ctx, EntryCobIdSYNC, 0x0, uint32(canId))
}

// Sync should have communication period of 0 before changing this
func (config *NodeConfigurator) WriteCounterOverflow(ctx context.Context, counter uint8) error {
	return config.client.WriteUint8(ctx, EntrySynchronousCounterOverflow, 0x0, counter)
}

func (config *NodeConfigurator) WriteCommunicationPeriod(ctx context.Context, period time.Duration) error {
	return config.client.WriteUint32(ctx, EntryCommunicationCyclePeriod, 0, uint32(period.Microseconds()))
}

func (config *NodeConfigurator) WriteWindowLengthPdos(ctx context.Context, period time.Duration) error {
	return config.client.WriteUint32(ctx, EntrySynchronousWindowLength, 0, uint32(period.Microseconds()))
}

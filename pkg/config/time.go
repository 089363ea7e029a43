package config

import "context"

const EntryCobIdTIME uint16 = 0x1012

// Bit 31 of the TIME COB-ID, set when the node consumes TIME
const cobIdConsumerBit uint32 = 1 << 31

func (config *NodeConfigurator) ReadCobIdTIME(ctx context.Context) (cobId uint32, err error) {
	return config.client.ReadUint32(ctx, EntryCobIdTIME, 0)
}

func (config *NodeConfigurator) ProducerEnableTIME(ctx context.Context) error {
	return config.updateCobIdTIME(ctx, cobIdProducerBit, true)
}

func (config *NodeConfigurator) ProducerDisableTIME(ctx context.Context) error {
	return config.updateCobIdTIME(ctx, cobIdProducerBit, false)
}

func (config *NodeConfigurator) ConsumerEnableTIME(ctx context.Context) error {
	return config.updateCobIdTIME(ctx, cobIdConsumerBit, true)
}

func (config *NodeConfigurator) ConsumerDisableTIME(ctx context.Context) error {
	return config.updateCobIdTIME(ctx, cobIdConsumerBit, false)
}

func (config *NodeConfigurator) updateCobIdTIME(ctx context.Context, bit uint32, set bool) error {
	cobId, err := config.ReadCobIdTIME(ctx)
	if err != nil {
		return err
	}
	if set {
		cobId |= bit
	} else {
		cobId &^= bit
	}
	return config.client.WriteUint32(ctx, EntryCobIdTIME, 0, cobId)
}

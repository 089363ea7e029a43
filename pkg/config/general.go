package config

import "context"

const (
	EntryDeviceType    uint16 = 0x1000
	EntryErrorRegister uint16 = 0x1001
	EntryIdentity      uint16 = 0x1018
)

type Identity struct {
	VendorId       uint32
	ProductCode    uint32
	RevisionNumber uint32
	SerialNumber   uint32
}

// Read identity object (0x1018, mandatory)
func (config *NodeConfigurator) ReadIdentity(ctx context.Context) (*Identity, error) {
	// Vendor ID is the only mandatory field
	vendorId, err := config.client.ReadUint32(ctx, EntryIdentity, 1)
	if err != nil {
		return nil, err
	}
	productCode, _ := config.client.ReadUint32(ctx, EntryIdentity, 2)
	revisionNumber, _ := config.client.ReadUint32(ctx, EntryIdentity, 3)
	serialNumber, _ := config.client.ReadUint32(ctx, EntryIdentity, 4)
	return &Identity{
		VendorId:       vendorId,
		ProductCode:    productCode,
		RevisionNumber: revisionNumber,
		SerialNumber:   serialNumber,
	}, nil
}

func (config *NodeConfigurator) ReadDeviceType(ctx context.Context) (uint32, error) {
	return config.client.ReadUint32(ctx, EntryDeviceType, 0)
}

func (config *NodeConfigurator) ReadErrorRegister(ctx context.Context) (uint8, error) {
	return config.client.ReadUint8(ctx, EntryErrorRegister, 0)
}

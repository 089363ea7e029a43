package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/samsamfire/gocanopen-master/pkg/pdo"
	log "github.com/sirupsen/logrus"
)

const (
	EntryRPDOCommunicationStart uint16 = 0x1400
	EntryRPDOMappingStart       uint16 = 0x1600
	EntryTPDOCommunicationStart uint16 = 0x1800
	EntryTPDOMappingStart       uint16 = 0x1A00
	MaxMappedEntriesPdo         uint8  = 8
	cobIdInvalid                uint32 = 1 << 31
)

var ErrTooManyMappings = errors.New("too many pdo mappings")

// PDO direction, seen from the node being configured.
// RPDO are received by the node (sent with [pdo.Dispatcher.Send]),
// TPDO are transmitted by the node (delivered to [pdo.Listener])
type PDOKind uint8

const (
	RPDO PDOKind = iota
	TPDO
)

func (k PDOKind) String() string {
	if k == RPDO {
		return "RPDO"
	}
	return "TPDO"
}

type PDOMappingParameter struct {
	Index      uint16
	Subindex   uint8
	LengthBits uint8
}

func (m PDOMappingParameter) raw() uint32 {
	return uint32(m.Index)<<16 | uint32(m.Subindex)<<8 | uint32(m.LengthBits)
}

// Holds a PDO configuration
type PDOConfigurationParameter struct {
	CanId            uint16
	TransmissionType uint8
	InhibitTime      uint16
	EventTimer       uint16
	Mappings         []PDOMappingParameter
}

func communicationIndex(kind PDOKind, channel uint8) uint16 {
	if kind == RPDO {
		return EntryRPDOCommunicationStart + uint16(channel)
	}
	return EntryTPDOCommunicationStart + uint16(channel)
}

func mappingIndex(kind PDOKind, channel uint8) uint16 {
	if kind == RPDO {
		return EntryRPDOMappingStart + uint16(channel)
	}
	return EntryTPDOMappingStart + uint16(channel)
}

// Default CAN id of a PDO channel for a node
func DefaultCanId(kind PDOKind, channel uint8, nodeId uint8) uint16 {
	if kind == RPDO {
		return pdo.RxBaseId + 0x100*uint16(channel) + uint16(nodeId)
	}
	return uint16(pdo.TxId(nodeId, channel))
}

func checkChannel(channel uint8) error {
	if channel >= pdo.MaxChannels {
		return fmt.Errorf("%w: %v", pdo.ErrInvalidChannel, channel)
	}
	return nil
}

func (config *NodeConfigurator) ReadCobIdPDO(ctx context.Context, kind PDOKind, channel uint8) (uint32, error) {
	if err := checkChannel(channel); err != nil {
		return 0, err
	}
	return config.client.ReadUint32(ctx, communicationIndex(kind, channel), 1)
}

func (config *NodeConfigurator) ReadEnabledPDO(ctx context.Context, kind PDOKind, channel uint8) (bool, error) {
	cobId, err := config.ReadCobIdPDO(ctx, kind, channel)
	if err != nil {
		return false, err
	}
	return cobId&cobIdInvalid == 0, nil
}

func (config *NodeConfigurator) ReadTransmissionType(ctx context.Context, kind PDOKind, channel uint8) (uint8, error) {
	return config.client.ReadUint8(ctx, communicationIndex(kind, channel), 2)
}

func (config *NodeConfigurator) ReadInhibitTime(ctx context.Context, kind PDOKind, channel uint8) (uint16, error) {
	return config.client.ReadUint16(ctx, communicationIndex(kind, channel), 3)
}

func (config *NodeConfigurator) ReadEventTimer(ctx context.Context, kind PDOKind, channel uint8) (uint16, error) {
	return config.client.ReadUint16(ctx, communicationIndex(kind, channel), 5)
}

func (config *NodeConfigurator) ReadNbMappings(ctx context.Context, kind PDOKind, channel uint8) (uint8, error) {
	return config.client.ReadUint8(ctx, mappingIndex(kind, channel), 0)
}

func (config *NodeConfigurator) ReadMappings(ctx context.Context, kind PDOKind, channel uint8) ([]PDOMappingParameter, error) {
	index := mappingIndex(kind, channel)
	nbMappings, err := config.ReadNbMappings(ctx, kind, channel)
	if err != nil {
		return nil, err
	}
	mappings := make([]PDOMappingParameter, 0, nbMappings)
	for i := uint8(1); i <= nbMappings; i++ {
		rawMap, err := config.client.ReadUint32(ctx, index, i)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, PDOMappingParameter{
			Index:      uint16(rawMap >> 16),
			Subindex:   uint8(rawMap >> 8),
			LengthBits: uint8(rawMap),
		})
	}
	return mappings, nil
}

// Reads configuration of a single PDO
func (config *NodeConfigurator) ReadConfigurationPDO(ctx context.Context, kind PDOKind, channel uint8) (PDOConfigurationParameter, error) {
	conf := PDOConfigurationParameter{}
	cobId, err := config.ReadCobIdPDO(ctx, kind, channel)
	if err != nil {
		return conf, err
	}
	conf.CanId = uint16(cobId & 0x7FF)
	conf.TransmissionType, err = config.ReadTransmissionType(ctx, kind, channel)
	if err != nil {
		return conf, err
	}
	// Optional
	conf.InhibitTime, _ = config.ReadInhibitTime(ctx, kind, channel)
	// Optional
	conf.EventTimer, _ = config.ReadEventTimer(ctx, kind, channel)
	conf.Mappings, err = config.ReadMappings(ctx, kind, channel)
	log.Debugf("[CONFIG][x%x] read %v%v configuration %+v", config.nodeId, kind, channel, conf)
	return conf, err
}

// Disable PDO
func (config *NodeConfigurator) DisablePDO(ctx context.Context, kind PDOKind, channel uint8) error {
	cobId, err := config.ReadCobIdPDO(ctx, kind, channel)
	if err != nil {
		return err
	}
	return config.client.WriteUint32(ctx, communicationIndex(kind, channel), 1, cobId|cobIdInvalid)
}

// Enable PDO
func (config *NodeConfigurator) EnablePDO(ctx context.Context, kind PDOKind, channel uint8) error {
	cobId, err := config.ReadCobIdPDO(ctx, kind, channel)
	if err != nil {
		return err
	}
	return config.client.WriteUint32(ctx, communicationIndex(kind, channel), 1, cobId&^cobIdInvalid)
}

func (config *NodeConfigurator) WriteTransmissionType(ctx context.Context, kind PDOKind, channel uint8, transType uint8) error {
	return config.client.WriteUint8(ctx, communicationIndex(kind, channel), 2, transType)
}

func (config *NodeConfigurator) WriteInhibitTime(ctx context.Context, kind PDOKind, channel uint8, inhibitTime uint16) error {
	return config.client.WriteUint16(ctx, communicationIndex(kind, channel), 3, inhibitTime)
}

func (config *NodeConfigurator) WriteEventTimer(ctx context.Context, kind PDOKind, channel uint8, eventTimer uint16) error {
	return config.client.WriteUint16(ctx, communicationIndex(kind, channel), 5, eventTimer)
}

// Write new PDO mapping
// Takes a list of objects to map and will fill them up in the given order.
// The number of mapped entries is set to 0 during the update
func (config *NodeConfigurator) WriteMappings(ctx context.Context, kind PDOKind, channel uint8, mappings []PDOMappingParameter) error {
	if len(mappings) > int(MaxMappedEntriesPdo) {
		return ErrTooManyMappings
	}
	index := mappingIndex(kind, channel)
	err := config.client.WriteUint8(ctx, index, 0, 0)
	if err != nil {
		return err
	}
	for i, mapping := range mappings {
		err = config.client.WriteUint32(ctx, index, uint8(i+1), mapping.raw())
		if err != nil {
			return err
		}
	}
	return config.client.WriteUint8(ctx, index, 0, uint8(len(mappings)))
}

// Write a complete PDO configuration.
// The PDO is disabled for the duration of the update, and enabled
// with the given CAN id at the end. A CanId of 0 selects the default one
func (config *NodeConfigurator) WriteConfigurationPDO(ctx context.Context, kind PDOKind, channel uint8, conf PDOConfigurationParameter) error {
	if err := checkChannel(channel); err != nil {
		return err
	}
	canId := conf.CanId
	if canId == 0 {
		canId = DefaultCanId(kind, channel, config.nodeId)
	}
	commIndex := communicationIndex(kind, channel)
	log.Debugf("[CONFIG][x%x] write %v%v configuration %+v", config.nodeId, kind, channel, conf)
	err := config.client.WriteUint32(ctx, commIndex, 1, cobIdInvalid|uint32(canId))
	if err != nil {
		return err
	}
	err = config.WriteTransmissionType(ctx, kind, channel, conf.TransmissionType)
	if err != nil {
		return err
	}
	// Inhibit time and event timer are optional on some devices
	if conf.InhibitTime != 0 {
		err = config.WriteInhibitTime(ctx, kind, channel, conf.InhibitTime)
		if err != nil {
			return err
		}
	}
	if conf.EventTimer != 0 {
		err = config.WriteEventTimer(ctx, kind, channel, conf.EventTimer)
		if err != nil {
			return err
		}
	}
	err = config.WriteMappings(ctx, kind, channel, conf.Mappings)
	if err != nil {
		return err
	}
	return config.client.WriteUint32(ctx, commIndex, 1, uint32(canId))
}

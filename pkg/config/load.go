package config

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"
)

const nodeSectionPrefix = "node."

// Load settings from a file, the format is chosen from the extension :
// ".toml" for TOML, anything else is parsed as INI
func Load(path string) (*Settings, error) {
	var settings *Settings
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		settings, err = LoadTOML(path)
	default:
		settings, err = LoadINI(path)
	}
	if err != nil {
		return nil, err
	}
	log.Debugf("[CONFIG] loaded %v : %v nodes on %v/%v", path, len(settings.Nodes), settings.Bus.Interface, settings.Bus.Channel)
	return settings, nil
}

// Load settings from an INI file
// source can be a path, []byte or io.Reader, see [ini.Load]
//
//	[bus]
//	interface = socketcan
//	channel = can0
//	bitrate = 500000
//
//	[node]
//	sdo_timeout = 500ms
//
//	[node.0x05]
//	heartbeat_timeout = 50ms
func LoadINI(source any) (*Settings, error) {
	file, err := ini.Load(source)
	if err != nil {
		return nil, err
	}
	settings := Default()
	bus := file.Section("bus")
	settings.Bus.Interface = bus.Key("interface").MustString(settings.Bus.Interface)
	settings.Bus.Channel = bus.Key("channel").MustString(settings.Bus.Channel)
	settings.Bus.Bitrate = bus.Key("bitrate").MustInt(settings.Bus.Bitrate)

	settings.Defaults = readNodeSection(file.Section("node"), settings.Defaults)

	for _, section := range file.Sections() {
		name := section.Name()
		if !strings.HasPrefix(name, nodeSectionPrefix) {
			continue
		}
		nodeId, err := parseNodeId(strings.TrimPrefix(name, nodeSectionPrefix))
		if err != nil {
			return nil, fmt.Errorf("section [%v] : %w", name, err)
		}
		settings.Nodes[nodeId] = readNodeSection(section, settings.Defaults)
	}
	return settings, settings.Validate()
}

func readNodeSection(section *ini.Section, defaults Node) Node {
	return Node{
		SDOTimeout:       section.Key("sdo_timeout").MustDuration(defaults.SDOTimeout),
		HeartbeatTimeout: section.Key("heartbeat_timeout").MustDuration(defaults.HeartbeatTimeout),
		QueueCapacity:    uint16(section.Key("queue_capacity").MustUint(uint(defaults.QueueCapacity))),
		SDORetries:       section.Key("sdo_retries").MustUint(defaults.SDORetries),
	}
}

func parseNodeId(raw string) (uint8, error) {
	nodeId, err := strconv.ParseUint(strings.TrimSpace(raw), 0, 8)
	if err != nil {
		return 0, fmt.Errorf("%w : node id %q", ErrInvalidSettings, raw)
	}
	return uint8(nodeId), nil
}

type tomlNode struct {
	ID               uint8  `toml:"id"`
	SDOTimeout       string `toml:"sdo_timeout"`
	HeartbeatTimeout string `toml:"heartbeat_timeout"`
	QueueCapacity    uint16 `toml:"queue_capacity"`
	SDORetries       uint   `toml:"sdo_retries"`
}

type tomlFile struct {
	Bus struct {
		Interface string `toml:"interface"`
		Channel   string `toml:"channel"`
		Bitrate   int    `toml:"bitrate"`
	} `toml:"bus"`
	Node  tomlNode   `toml:"node"`
	Nodes []tomlNode `toml:"nodes"`
}

// Load settings from a TOML file
//
//	[bus]
//	interface = "socketcan"
//	channel = "can0"
//
//	[node]
//	sdo_timeout = "500ms"
//
//	[[nodes]]
//	id = 5
//	heartbeat_timeout = "50ms"
func LoadTOML(path string) (*Settings, error) {
	var raw tomlFile
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, err
	}
	return fromTOML(raw)
}

// Same as [LoadTOML] but from memory
func DecodeTOML(data string) (*Settings, error) {
	var raw tomlFile
	if _, err := toml.Decode(data, &raw); err != nil {
		return nil, err
	}
	return fromTOML(raw)
}

func fromTOML(raw tomlFile) (*Settings, error) {
	settings := Default()
	if raw.Bus.Interface != "" {
		settings.Bus.Interface = raw.Bus.Interface
	}
	if raw.Bus.Channel != "" {
		settings.Bus.Channel = raw.Bus.Channel
	}
	if raw.Bus.Bitrate != 0 {
		settings.Bus.Bitrate = raw.Bus.Bitrate
	}
	var err error
	settings.Defaults, err = raw.Node.merge(settings.Defaults)
	if err != nil {
		return nil, err
	}
	for _, node := range raw.Nodes {
		if _, ok := settings.Nodes[node.ID]; ok {
			return nil, fmt.Errorf("%w : node x%x listed twice", ErrInvalidSettings, node.ID)
		}
		settings.Nodes[node.ID], err = node.merge(settings.Defaults)
		if err != nil {
			return nil, fmt.Errorf("node x%x : %w", node.ID, err)
		}
	}
	return settings, settings.Validate()
}

func (raw tomlNode) merge(defaults Node) (Node, error) {
	node := defaults
	var err error
	if raw.SDOTimeout != "" {
		node.SDOTimeout, err = time.ParseDuration(raw.SDOTimeout)
		if err != nil {
			return node, fmt.Errorf("%w : sdo_timeout %v", ErrInvalidSettings, err)
		}
	}
	if raw.HeartbeatTimeout != "" {
		node.HeartbeatTimeout, err = time.ParseDuration(raw.HeartbeatTimeout)
		if err != nil {
			return node, fmt.Errorf("%w : heartbeat_timeout %v", ErrInvalidSettings, err)
		}
	}
	if raw.QueueCapacity != 0 {
		node.QueueCapacity = raw.QueueCapacity
	}
	if raw.SDORetries != 0 {
		node.SDORetries = raw.SDORetries
	}
	return node, nil
}

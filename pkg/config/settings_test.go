package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefault(t *testing.T) {
	settings := Default()
	assert.Nil(t, settings.Validate())
	assert.Equal(t, 500*time.Millisecond, settings.Defaults.SDOTimeout)
	assert.Equal(t, 20*time.Millisecond, settings.Defaults.HeartbeatTimeout)
	assert.EqualValues(t, 64, settings.Defaults.QueueCapacity)
	assert.Empty(t, settings.NodeIds())
}

func TestLoadINI(t *testing.T) {
	settings, err := Load("testdata/master.ini")
	assert.Nil(t, err)
	assert.Equal(t, Bus{Interface: "virtual", Channel: "test", Bitrate: 250000}, settings.Bus)
	assert.Equal(t, 200*time.Millisecond, settings.Defaults.SDOTimeout)
	assert.EqualValues(t, 2, settings.Defaults.SDORetries)
	assert.Equal(t, []uint8{5, 12}, settings.NodeIds())

	node5 := settings.Nodes[5]
	assert.Equal(t, 50*time.Millisecond, node5.HeartbeatTimeout)
	assert.Equal(t, 200*time.Millisecond, node5.SDOTimeout)
	assert.EqualValues(t, 64, node5.QueueCapacity)

	node12 := settings.Nodes[12]
	assert.EqualValues(t, 8, node12.QueueCapacity)
	assert.EqualValues(t, 2, node12.SDORetries)
}

func TestLoadTOML(t *testing.T) {
	settings, err := Load("testdata/master.toml")
	assert.Nil(t, err)
	assert.Equal(t, "virtual", settings.Bus.Interface)
	assert.Equal(t, 500000, settings.Bus.Bitrate)
	assert.Equal(t, 30*time.Millisecond, settings.Defaults.HeartbeatTimeout)
	assert.Equal(t, []uint8{5, 12}, settings.NodeIds())
	assert.Equal(t, time.Second, settings.Nodes[5].SDOTimeout)
	assert.Equal(t, 30*time.Millisecond, settings.Nodes[5].HeartbeatTimeout)
	assert.EqualValues(t, 3, settings.Nodes[12].SDORetries)
}

func TestInvalidSettings(t *testing.T) {
	_, err := LoadINI([]byte("[node.200]\n"))
	assert.ErrorIs(t, err, ErrInvalidSettings)
	_, err = LoadINI([]byte("[node.abc]\n"))
	assert.ErrorIs(t, err, ErrInvalidSettings)
	_, err = LoadINI([]byte("[node]\nqueue_capacity = 0\n"))
	assert.ErrorIs(t, err, ErrInvalidSettings)

	_, err = DecodeTOML("[node]\nsdo_timeout = \"abc\"\n")
	assert.ErrorIs(t, err, ErrInvalidSettings)
	_, err = DecodeTOML("[[nodes]]\nid = 0\n")
	assert.ErrorIs(t, err, ErrInvalidSettings)
	_, err = DecodeTOML("[[nodes]]\nid = 3\n[[nodes]]\nid = 3\n")
	assert.ErrorIs(t, err, ErrInvalidSettings)

	_, err = Load("testdata/missing.ini")
	assert.NotNil(t, err)
}

func TestValidateNodeId(t *testing.T) {
	assert.ErrorIs(t, ValidateNodeId(0), ErrInvalidSettings)
	assert.ErrorIs(t, ValidateNodeId(128), ErrInvalidSettings)
	assert.Nil(t, ValidateNodeId(1))
	assert.Nil(t, ValidateNodeId(127))
}

func TestValidateSDORetries(t *testing.T) {
	node := DefaultNode()
	node.SDORetries = MaxSDORetries
	assert.Nil(t, node.Validate())
	node.SDORetries = MaxSDORetries + 1
	assert.ErrorIs(t, node.Validate(), ErrInvalidSettings)
	node.SDORetries = ^uint(0)
	assert.ErrorIs(t, node.Validate(), ErrInvalidSettings)

	_, err := LoadINI([]byte("[node]\nsdo_retries = 1000\n"))
	assert.ErrorIs(t, err, ErrInvalidSettings)
}

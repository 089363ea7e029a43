//go:build linux

package socketcanv3

import (
	"testing"

	can "github.com/samsamfire/gocanopen-master/pkg/can"
	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestEncodeDecode(t *testing.T) {
	frame := can.NewFrame(0x610, 0, 8)
	frame.Data = [8]byte{0x40, 0x18, 0x10, 0x01, 0, 0, 0, 0}
	raw := encode(frame)
	assert.EqualValues(t, 8, raw[4])
	assert.Equal(t, frame.Data[:], raw[8:])
	assert.Equal(t, frame, decode(raw[:]))

	rtr := can.NewFrame(0x710|can.RtrFlag, 0, 0)
	raw = encode(rtr)
	decoded := decode(raw[:])
	assert.True(t, decoded.IsRemote())
	assert.EqualValues(t, 0x710, decoded.Ident())
}

func TestFilters(t *testing.T) {
	filters := filtersFor([]uint32{0x590, 0x710})
	assert.Len(t, filters, 2)
	assert.EqualValues(t, 0x590, filters[0].Id)
	assert.Equal(t, uint32(unix.CAN_SFF_MASK|unix.CAN_EFF_FLAG|unix.CAN_RTR_FLAG), filters[1].Mask)
	assert.Empty(t, filtersFor(nil))
}

func TestNotConnected(t *testing.T) {
	bus, err := NewBus("can-missing")
	assert.Nil(t, err)
	assert.Error(t, bus.Send(can.NewFrame(0x000, 0, 2)))
	assert.Nil(t, bus.Disconnect())
	assert.Nil(t, bus.(*Bus).SetFilters([]uint32{0x590}))
	assert.Error(t, bus.Connect())
}

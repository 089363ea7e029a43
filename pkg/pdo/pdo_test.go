package pdo

import (
	"errors"
	"testing"

	can "github.com/samsamfire/gocanopen-master/pkg/can"
	"github.com/stretchr/testify/assert"
)

type senderStub struct {
	frames []can.Frame
	err    error
}

func (s *senderStub) Send(frame can.Frame) error {
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, frame)
	return nil
}

func TestEncode(t *testing.T) {
	for channel, id := range []uint32{0x205, 0x305, 0x405, 0x505} {
		frame, err := Encode(0x05, uint8(channel), []byte{1, 2})
		assert.Nil(t, err)
		assert.Equal(t, id, frame.ID)
		assert.EqualValues(t, 2, frame.DLC)
		assert.Equal(t, []byte{1, 2}, frame.Payload())
	}
	frame, err := Encode(0x7F, 3, make([]byte, 8))
	assert.Nil(t, err)
	assert.EqualValues(t, 0x57F, frame.ID)
	assert.EqualValues(t, 8, frame.DLC)

	_, err = Encode(1, 4, nil)
	assert.ErrorIs(t, err, ErrInvalidChannel)
	_, err = Encode(1, 0, make([]byte, 9))
	assert.ErrorIs(t, err, ErrDataTooLong)
}

func TestDecodeChannel(t *testing.T) {
	for channel := uint8(0); channel < MaxChannels; channel++ {
		for _, nodeId := range []uint8{1, 0x30, 0x7F} {
			assert.Equal(t, channel, DecodeChannel(TxId(nodeId, channel)))
		}
	}
	assert.EqualValues(t, 0x181, TxId(1, 0))
	assert.EqualValues(t, 0x4FF, TxId(0x7F, 3))
}

func TestDispatcher(t *testing.T) {
	sender := &senderStub{}
	d := NewDispatcher(sender, 0x10)
	assert.Nil(t, d.Send(1, []byte{0xAA}))
	assert.EqualValues(t, 0x310, sender.frames[0].ID)
	assert.ErrorIs(t, d.Send(0, make([]byte, 9)), ErrDataTooLong)
	assert.Len(t, sender.frames, 1)
	sender.err = errors.New("bus off")
	assert.ErrorIs(t, d.Send(0, nil), sender.err)

	frame := can.Frame{ID: 0x290, DLC: 3, Data: [8]byte{1, 2, 3, 4, 5}}
	// No listener, dropped
	_, ok := d.OnFrame(frame)
	assert.False(t, ok)

	var channels []uint8
	var payloads [][]byte
	d.SetListener(func(channel uint8, data []byte) {
		channels = append(channels, channel)
		payloads = append(payloads, data)
	})
	outcome, ok := d.OnFrame(frame)
	assert.True(t, ok)
	outcome.Deliver()
	assert.Equal(t, []uint8{1}, channels)
	assert.Equal(t, [][]byte{{1, 2, 3}}, payloads)

	d.SetListener(nil)
	_, ok = d.OnFrame(frame)
	assert.False(t, ok)
}

package sdo

import (
	"errors"
	"testing"

	"github.com/samsamfire/gocanopen-master/internal/timer"
	can "github.com/samsamfire/gocanopen-master/pkg/can"
	"github.com/stretchr/testify/assert"
)

const nodeIdTest uint8 = 0x10

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

type completionRecorder struct {
	results []Result
	order   []int
}

func (r *completionRecorder) completion(id int) Completion {
	return func(data []byte, err error) {
		r.results = append(r.results, Result{Data: data, Err: err})
		r.order = append(r.order, id)
	}
}

type queueTest struct {
	sender *senderStub
	timer  *timer.Manual
	queue  *Queue
}

func newQueueTest(t *testing.T, capacity uint16) *queueTest {
	qt := &queueTest{sender: &senderStub{}}
	qt.timer = timer.NewManual(func(token uint64) {})
	q, err := NewQueue(qt.sender, nodeIdTest, capacity, 0, qt.timer)
	assert.Nil(t, err)
	qt.queue = q
	return qt
}

func response(header byte, data ...byte) Response {
	frame := can.Frame{ID: ServerBaseId + uint32(nodeIdTest), DLC: 8}
	frame.Data[0] = header
	copy(frame.Data[4:], data)
	r, _ := DecodeResponse(frame)
	return r
}

const (
	downloadResponse = 0x60
	uploadResponse4  = 0x43
)

func TestQueueFifo(t *testing.T) {
	qt := newQueueTest(t, 0)
	rec := &completionRecorder{}
	for i := 0; i < DefaultQueueSize; i++ {
		item := NewUploadItem(nodeIdTest, 0x2000, uint8(i), rec.completion(i))
		assert.Nil(t, qt.queue.Enqueue(item))
	}
	// Only the head is on the bus
	assert.Len(t, qt.sender.frames, 1)
	assert.True(t, qt.timer.Armed())
	assert.Equal(t, DefaultClientTimeout, qt.timer.Duration())

	for i := 0; i < DefaultQueueSize; i++ {
		outcome, ok := qt.queue.OnResponse(response(uploadResponse4, byte(i)))
		assert.True(t, ok)
		outcome.Deliver()
		// In flight is always the next one
		if i < DefaultQueueSize-1 {
			assert.Len(t, qt.sender.frames, i+2)
			assert.EqualValues(t, i+1, qt.sender.frames[i+1].Data[3])
		}
	}
	assert.Len(t, rec.results, DefaultQueueSize)
	for i, result := range rec.results {
		assert.Nil(t, result.Err)
		assert.Equal(t, i, rec.order[i])
		assert.EqualValues(t, i, result.Data[0])
	}
	assert.Equal(t, 0, qt.queue.Len())
	assert.False(t, qt.timer.Armed())
}

func TestQueueFull(t *testing.T) {
	qt := newQueueTest(t, 64)
	rec := &completionRecorder{}
	for i := 0; i < 64; i++ {
		assert.Nil(t, qt.queue.Enqueue(NewUploadItem(nodeIdTest, 0x2000, uint8(i), rec.completion(i))))
	}
	err := qt.queue.Enqueue(NewUploadItem(nodeIdTest, 0x2000, 64, rec.completion(64)))
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 64, qt.queue.Len())
	assert.Len(t, qt.sender.frames, 1)

	// Existing items are untouched
	for i := 0; i < 64; i++ {
		outcome, ok := qt.queue.OnResponse(response(uploadResponse4, byte(i)))
		assert.True(t, ok)
		outcome.Deliver()
	}
	assert.Equal(t, []int{0, 1, 2}, rec.order[:3])
	assert.Len(t, rec.results, 64)
	assert.NotContains(t, rec.order, 64)
}

func TestQueueProtocolMismatch(t *testing.T) {
	qt := newQueueTest(t, 0)
	rec := &completionRecorder{}
	download, err := NewDownloadItem(nodeIdTest, 0x2000, 1, []byte{1}, rec.completion(0))
	assert.Nil(t, err)
	assert.Nil(t, qt.queue.Enqueue(download))
	assert.Nil(t, qt.queue.Enqueue(NewUploadItem(nodeIdTest, 0x2000, 2, rec.completion(1))))

	// Upload response to a download request
	outcome, ok := qt.queue.OnResponse(response(uploadResponse4))
	assert.True(t, ok)
	// Next item was promoted before delivery
	assert.Len(t, qt.sender.frames, 2)
	outcome.Deliver()
	assert.ErrorIs(t, rec.results[0].Err, ErrProtocolMismatch)
	var mismatch *ProtocolMismatchError
	assert.True(t, errors.As(rec.results[0].Err, &mismatch))
	assert.Equal(t, ServerDownloadInitResponse, mismatch.Expected)
	assert.Equal(t, ServerUploadInitResponse, mismatch.Received)
	assert.Nil(t, rec.results[0].Data)

	// Abort frames are reported as a mismatch
	outcome, ok = qt.queue.OnResponse(response(0x80, 0x00, 0x00, 0x02, 0x06))
	assert.True(t, ok)
	outcome.Deliver()
	assert.True(t, errors.As(rec.results[1].Err, &mismatch))
	assert.Equal(t, ServerAbort, mismatch.Received)
}

func TestQueueUnsupportedLength(t *testing.T) {
	for _, header := range []byte{0x40, 0x41, 0x42} {
		qt := newQueueTest(t, 0)
		rec := &completionRecorder{}
		assert.Nil(t, qt.queue.Enqueue(NewUploadItem(nodeIdTest, 0x1008, 0, rec.completion(0))))
		outcome, ok := qt.queue.OnResponse(response(header, 0x10, 0, 0, 0))
		assert.True(t, ok)
		outcome.Deliver()
		assert.ErrorIs(t, rec.results[0].Err, ErrUnsupportedLength, "header x%x", header)
	}
}

func TestQueueUploadPayload(t *testing.T) {
	qt := newQueueTest(t, 0)
	rec := &completionRecorder{}
	assert.Nil(t, qt.queue.Enqueue(NewUploadItem(nodeIdTest, 0x1018, 0, rec.completion(0))))
	assert.Nil(t, qt.queue.Enqueue(NewUploadItem(nodeIdTest, 0x6000, 0, rec.completion(1))))

	// e=1, s=1, n=0
	outcome, _ := qt.queue.OnResponse(response(0x43, 0x04, 0x00, 0x00, 0x00))
	outcome.Deliver()
	// e=1, s=1, n=1
	outcome, _ = qt.queue.OnResponse(response(0x47, 0x11, 0x22, 0x33, 0x44))
	outcome.Deliver()

	assert.Nil(t, rec.results[0].Err)
	assert.Equal(t, []byte{0x04, 0x00, 0x00, 0x00}, rec.results[0].Data)
	assert.Nil(t, rec.results[1].Err)
	assert.Equal(t, []byte{0x11, 0x22, 0x33}, rec.results[1].Data)
}

func TestQueueDownloadSuccess(t *testing.T) {
	qt := newQueueTest(t, 0)
	rec := &completionRecorder{}
	item, err := NewDownloadItem(nodeIdTest, 0x1800, 1, []byte{0, 0, 0, 0x80}, rec.completion(0))
	assert.Nil(t, err)
	assert.Equal(t, ServerDownloadInitResponse, item.Expected())
	assert.Nil(t, qt.queue.Enqueue(item))
	assert.Equal(t, item.Frame(), qt.sender.frames[0])
	outcome, ok := qt.queue.OnResponse(response(downloadResponse))
	assert.True(t, ok)
	outcome.Deliver()
	assert.Nil(t, rec.results[0].Err)
}

func TestQueueTimeout(t *testing.T) {
	qt := newQueueTest(t, 0)
	rec := &completionRecorder{}
	assert.Nil(t, qt.queue.Enqueue(NewUploadItem(nodeIdTest, 0x2000, 0, rec.completion(0))))
	assert.Nil(t, qt.queue.Enqueue(NewUploadItem(nodeIdTest, 0x2000, 1, rec.completion(1))))
	first, ok := qt.queue.InFlight()
	assert.True(t, ok)
	assert.Equal(t, first, qt.timer.Token())

	outcome, ok := qt.queue.OnTimeout(first)
	assert.True(t, ok)
	// Second item promoted and its timer armed
	assert.Len(t, qt.sender.frames, 2)
	second, _ := qt.queue.InFlight()
	assert.NotEqual(t, first, second)
	assert.Equal(t, second, qt.timer.Token())
	outcome.Deliver()
	assert.ErrorIs(t, rec.results[0].Err, ErrTimeout)

	// Duplicate expiry for the first item is ignored
	_, ok = qt.queue.OnTimeout(first)
	assert.False(t, ok)
	assert.Equal(t, 1, qt.queue.Len())
	assert.Len(t, rec.results, 1)

	outcome, ok = qt.queue.OnResponse(response(uploadResponse4, 1, 2, 3, 4))
	assert.True(t, ok)
	outcome.Deliver()
	assert.Nil(t, rec.results[1].Err)

	// Nothing in flight any more
	_, ok = qt.queue.OnTimeout(second)
	assert.False(t, ok)
	_, ok = qt.queue.InFlight()
	assert.False(t, ok)
}

func TestQueueUnsolicitedResponse(t *testing.T) {
	qt := newQueueTest(t, 0)
	_, ok := qt.queue.OnResponse(response(uploadResponse4))
	assert.False(t, ok)
	assert.Equal(t, 0, qt.queue.Len())
}

func TestQueueCompletionReenqueue(t *testing.T) {
	qt := newQueueTest(t, 0)
	var order []string
	var second Completion = func(data []byte, err error) { order = append(order, "second") }
	var third Completion = func(data []byte, err error) { order = append(order, "third") }
	first := func(data []byte, err error) {
		order = append(order, "first")
		assert.Nil(t, qt.queue.Enqueue(NewUploadItem(nodeIdTest, 0x3000, 0, third)))
	}
	assert.Nil(t, qt.queue.Enqueue(NewUploadItem(nodeIdTest, 0x1000, 0, first)))
	assert.Nil(t, qt.queue.Enqueue(NewUploadItem(nodeIdTest, 0x2000, 0, second)))

	outcome, _ := qt.queue.OnResponse(response(uploadResponse4))
	outcome.Deliver()
	// Third was queued behind the already promoted second
	assert.Equal(t, 2, qt.queue.Len())
	assert.Len(t, qt.sender.frames, 2)
	assert.EqualValues(t, 0x20, qt.sender.frames[1].Data[2])

	outcome, _ = qt.queue.OnResponse(response(uploadResponse4))
	outcome.Deliver()
	assert.EqualValues(t, 0x30, qt.sender.frames[2].Data[2])
	outcome, _ = qt.queue.OnResponse(response(uploadResponse4))
	outcome.Deliver()
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestQueueTransportError(t *testing.T) {
	qt := newQueueTest(t, 0)
	rec := &completionRecorder{}
	busOff := errors.New("bus off")
	qt.sender.err = busOff

	// First transmission fails, nothing is queued
	err := qt.queue.Enqueue(NewUploadItem(nodeIdTest, 0x2000, 0, rec.completion(0)))
	assert.ErrorIs(t, err, busOff)
	assert.Equal(t, 0, qt.queue.Len())
	assert.False(t, qt.timer.Armed())

	qt.sender.err = nil
	assert.Nil(t, qt.queue.Enqueue(NewUploadItem(nodeIdTest, 0x2000, 1, rec.completion(1))))
	assert.Nil(t, qt.queue.Enqueue(NewUploadItem(nodeIdTest, 0x2000, 2, rec.completion(2))))

	// Promotion fails, the promoted item is still in flight and times out
	qt.sender.err = busOff
	outcome, _ := qt.queue.OnResponse(response(uploadResponse4))
	outcome.Deliver()
	assert.Equal(t, 1, qt.queue.Len())
	assert.True(t, qt.timer.Armed())
	assert.True(t, qt.timer.Expire())
	token, _ := qt.queue.InFlight()
	assert.Equal(t, token, qt.timer.Token())
	outcome, ok := qt.queue.OnTimeout(token)
	assert.True(t, ok)
	outcome.Deliver()
	assert.Equal(t, []int{1, 2}, rec.order)
	assert.ErrorIs(t, rec.results[1].Err, ErrTimeout)
}

func TestQueueCancel(t *testing.T) {
	qt := newQueueTest(t, 0)
	rec := &completionRecorder{}
	for i := 0; i < 3; i++ {
		assert.Nil(t, qt.queue.Enqueue(NewUploadItem(nodeIdTest, 0x2000, uint8(i), rec.completion(i))))
	}
	token, _ := qt.queue.InFlight()
	qt.queue.Cancel()
	assert.False(t, qt.timer.Armed())
	assert.Equal(t, 0, qt.queue.Len())
	_, ok := qt.queue.OnTimeout(token)
	assert.False(t, ok)
	_, ok = qt.queue.OnResponse(response(uploadResponse4))
	assert.False(t, ok)
	assert.Len(t, rec.results, 0)
}

func TestResultChannel(t *testing.T) {
	completion, results := ResultChannel()
	completion([]byte{1}, nil)
	result := <-results
	assert.Equal(t, []byte{1}, result.Data)
	assert.Nil(t, result.Err)
}

func TestNewQueueErrors(t *testing.T) {
	_, err := NewQueue(nil, 1, 0, 0, timer.NewManual(func(uint64) {}))
	assert.NotNil(t, err)
	_, err = NewQueue(&senderStub{}, 1, 0, 0, nil)
	assert.NotNil(t, err)
}

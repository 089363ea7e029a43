package timer

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type recorder struct {
	mu     sync.Mutex
	tokens []uint64
}

func (r *recorder) fire(token uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens = append(r.tokens, token)
}

func (r *recorder) get() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint64(nil), r.tokens...)
}

func TestAfterFuncFires(t *testing.T) {
	r := &recorder{}
	tm := New(r.fire)
	tm.Arm(5*time.Millisecond, 7)
	assert.Eventually(t, func() bool { return len(r.get()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []uint64{7}, r.get())
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, r.get(), 1)
}

func TestAfterFuncDisarm(t *testing.T) {
	r := &recorder{}
	tm := New(r.fire)
	tm.Arm(10*time.Millisecond, 1)
	// Wrong token is ignored
	tm.Disarm(2)
	tm.Disarm(1)
	time.Sleep(30 * time.Millisecond)
	assert.Len(t, r.get(), 0)
}

func TestAfterFuncRearm(t *testing.T) {
	r := &recorder{}
	tm := New(r.fire)
	tm.Arm(5*time.Millisecond, 1)
	tm.Arm(5*time.Millisecond, 2)
	assert.Eventually(t, func() bool { return len(r.get()) == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []uint64{2}, r.get())
}

func TestManual(t *testing.T) {
	r := &recorder{}
	var timers []*Manual
	factory := NewManualFactory(&timers)
	tm := factory(r.fire)
	assert.Len(t, timers, 1)
	m := timers[0]
	assert.False(t, m.Expire())
	tm.Arm(500*time.Millisecond, 3)
	assert.True(t, m.Armed())
	assert.Equal(t, 500*time.Millisecond, m.Duration())
	assert.EqualValues(t, 3, m.Token())
	tm.Disarm(4)
	assert.True(t, m.Armed())
	assert.True(t, m.Expire())
	assert.False(t, m.Expire())
	assert.Equal(t, []uint64{3}, r.get())
	assert.Equal(t, 1, m.Arms())
	m.ExpireWith(9)
	assert.Equal(t, []uint64{3, 9}, r.get())
}

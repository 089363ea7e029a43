// Package timer provides the one-shot timers used for SDO and heartbeat
// response timeouts.
//
// A timer is armed with a token identifying the request round it protects.
// The token is handed back to the expiry callback, so the owner can discard
// an expiry that raced with the response it was waiting for.
package timer

import (
	"sync"
	"time"
)

// Expiry callback, called at most once per Arm
type Func func(token uint64)

type Timer interface {
	// Arm (or re-arm) the timer, any previous arming is cancelled
	Arm(d time.Duration, token uint64)
	// Disarm the timer if it is still armed with token
	Disarm(token uint64)
}

// Factory used by the protocol objects to create their timer
type Factory func(fire Func) Timer

// Real timer based on [time.AfterFunc]
type afterFunc struct {
	mu     sync.Mutex
	fire   Func
	timer  *time.Timer
	token  uint64
	armed  bool
	serial uint64
}

func New(fire Func) Timer {
	return &afterFunc{fire: fire}
}

func (t *afterFunc) Arm(d time.Duration, token uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.serial++
	serial := t.serial
	t.token = token
	t.armed = true
	t.timer = time.AfterFunc(d, func() { t.expire(serial) })
}

func (t *afterFunc) Disarm(token uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.armed || t.token != token {
		return
	}
	t.armed = false
	t.timer.Stop()
}

func (t *afterFunc) expire(serial uint64) {
	t.mu.Lock()
	if !t.armed || serial != t.serial {
		t.mu.Unlock()
		return
	}
	t.armed = false
	token := t.token
	t.mu.Unlock()
	t.fire(token)
}

// Manual timer, only expires when [Manual.Expire] is called
// Used for deterministic tests
type Manual struct {
	mu       sync.Mutex
	fire     Func
	armed    bool
	token    uint64
	duration time.Duration
	arms     int
}

// Factory returning manual timers, every created timer is appended to timers
func NewManualFactory(timers *[]*Manual) Factory {
	return func(fire Func) Timer {
		m := &Manual{fire: fire}
		if timers != nil {
			*timers = append(*timers, m)
		}
		return m
	}
}

func NewManual(fire Func) *Manual {
	return &Manual{fire: fire}
}

func (m *Manual) Arm(d time.Duration, token uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.armed = true
	m.token = token
	m.duration = d
	m.arms++
}

func (m *Manual) Disarm(token uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == token {
		m.armed = false
	}
}

// Expire the timer if armed, returns whether the callback was called
func (m *Manual) Expire() bool {
	m.mu.Lock()
	if !m.armed {
		m.mu.Unlock()
		return false
	}
	m.armed = false
	token := m.token
	m.mu.Unlock()
	m.fire(token)
	return true
}

// Call the expiry callback with an arbitrary token, regardless of arming
func (m *Manual) ExpireWith(token uint64) {
	m.fire(token)
}

func (m *Manual) Armed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.armed
}

func (m *Manual) Token() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

func (m *Manual) Duration() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.duration
}

// Number of times the timer was armed
func (m *Manual) Arms() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.arms
}

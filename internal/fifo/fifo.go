package fifo

// Circular bounded Fifo used by the SDO client queue
// Positions grow monotonically, the slot is the position modulo capacity
type Fifo[T any] struct {
	buffer   []T
	writePos int
	readPos  int
}

func NewFifo[T any](size uint16) *Fifo[T] {
	return &Fifo[T]{buffer: make([]T, size)}
}

// Drop every element
func (f *Fifo[T]) Reset() {
	var zero T
	for i := range f.buffer {
		f.buffer[i] = zero
	}
	f.readPos = 0
	f.writePos = 0
}

func (f *Fifo[T]) GetSpace() int {
	return len(f.buffer) - f.GetOccupied()
}

func (f *Fifo[T]) GetOccupied() int {
	return f.writePos - f.readPos
}

// Push element at the back, returns false if full
func (f *Fifo[T]) Push(element T) bool {
	if f.GetSpace() == 0 {
		return false
	}
	if f.GetOccupied() == 0 {
		f.readPos = 0
		f.writePos = 0
	}
	f.buffer[f.writePos%len(f.buffer)] = element
	f.writePos++
	return true
}

// Get front element without removing it
func (f *Fifo[T]) Peek() (T, bool) {
	var zero T
	if f.GetOccupied() == 0 {
		return zero, false
	}
	return f.buffer[f.readPos%len(f.buffer)], true
}

// Remove and return front element
func (f *Fifo[T]) Pop() (T, bool) {
	var zero T
	if f.GetOccupied() == 0 {
		return zero, false
	}
	slot := f.readPos % len(f.buffer)
	element := f.buffer[slot]
	f.buffer[slot] = zero
	f.readPos++
	return element, true
}

// Remove the most recently pushed element
func (f *Fifo[T]) PopBack() (T, bool) {
	var zero T
	if f.GetOccupied() == 0 {
		return zero, false
	}
	f.writePos--
	slot := f.writePos % len(f.buffer)
	element := f.buffer[slot]
	f.buffer[slot] = zero
	return element, true
}

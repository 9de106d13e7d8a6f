package utils

// BufferedChan is a channel that has a dynamic buffer size.
type BufferedChan[T any] struct {
	inChan  chan T
	outChan chan T
}

// NewBufferedChan creates a new BufferedChan instance.
func NewBufferedChan[T any]() *BufferedChan[T] {
	c := BufferedChan[T]{
		inChan:  make(chan T),
		outChan: make(chan T),
	}
	go c.run()
	return &c
}

// Inlet returns an input channel for the BufferedChan.
func (b *BufferedChan[T]) Inlet() chan<- T {
	return b.inChan
}

// Outlet returns an output channel for the BufferedChan.
func (b *BufferedChan[T]) Outlet() <-chan T {
	return b.outChan
}

// Close closes the BufferedChan.
func (b *BufferedChan[T]) Close() {
	close(b.inChan)
}

// Main goroutine for handling the BufferedChan.
func (b *BufferedChan[T]) run() {
	buffer := make([]T, 0)
	defer func() {
		close(b.outChan)
	}()
	for {
		if len(buffer) == 0 {
			// Wait for a message to be received and buffer it.
			msg, ok := <-b.inChan
			if !ok {
				return
			}
			buffer = append(buffer, msg)
		} else {
			// Wait for whichever comes first: a new message be buffered, or the oldest message be sent.
			select {
			case msg, ok := <-b.inChan:
				if !ok {
					return
				}
				buffer = append(buffer, msg)
			case b.outChan <- buffer[0]:
				buffer = buffer[1:]
			}
		}
	}
}

package ioutils

import (
	"dmx/internal/utils"
	"fmt"
)

// MockIOStream is a mock implementation of the IOStream interface, useful for testing.
type MockIOStream interface {
	IOStream
	// Provide the next line of input that will be read by the stream.
	SimulateNextInputLine(string)
	// Retrieve the next line that will be written to the stream.
	InterceptNextPrintln() string
}

type mockStream struct {
	nextReadLine    *utils.BufferedChan[string]
	nextWrittenLine *utils.BufferedChan[string]
}

// NewMockStream creates a new mock IOStream instance.
func NewMockStream() MockIOStream {
	return mockStream{
		nextReadLine:    utils.NewBufferedChan[string](),
		nextWrittenLine: utils.NewBufferedChan[string](),
	}
}

func (m mockStream) ReadLine() (string, error) {
	s := <-m.nextReadLine.Outlet()
	return s, nil
}

func (m mockStream) Println(s ...interface{}) {
	str := fmt.Sprint(s...)
	m.Print(str, "\n")
}

func (m mockStream) Print(s ...interface{}) {
	m.nextWrittenLine.Inlet() <- fmt.Sprint(s...)
}

func (m mockStream) SimulateNextInputLine(s string) {
	m.nextReadLine.Inlet() <- s
}

func (m mockStream) InterceptNextPrintln() string {
	return <-m.nextWrittenLine.Outlet()
}

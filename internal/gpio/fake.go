package gpio

import (
	"errors"
	"sync"
)

// FakeReader is a test double that returns scripted sensor samples.
type FakeReader struct {
	mu sync.Mutex

	// Samples contains scripted values to return.
	// Each call to Read() consumes the next sample.
	Samples []Inputs

	// index tracks current position in Samples
	index int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Read()
	ReadError error
}

// NewFakeReader creates a FakeReader with the given samples.
func NewFakeReader(samples []Inputs) *FakeReader {
	return &FakeReader{Samples: samples}
}

// Read returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakeReader) Read() (Inputs, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ReadError != nil {
		return Inputs{}, f.ReadError
	}

	if len(f.Samples) == 0 {
		return Inputs{}, errors.New("no samples configured")
	}

	sample := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}

	return sample, nil
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// Reset resets the reader to the beginning of samples.
func (f *FakeReader) Reset() {
	f.mu.Lock()
	f.index = 0
	f.Closed = false
	f.mu.Unlock()
}

// FakeWriter is a test double that records relay writes.
type FakeWriter struct {
	mu     sync.Mutex
	writes [][]bool

	// Closed tracks if Close was called
	Closed bool

	// WriteError, if set, will be returned by Write()
	WriteError error
}

// NewFakeWriter creates an empty FakeWriter.
func NewFakeWriter() *FakeWriter {
	return &FakeWriter{}
}

// Write records a copy of values.
func (f *FakeWriter) Write(values []bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WriteError != nil {
		return f.WriteError
	}
	f.writes = append(f.writes, append([]bool(nil), values...))
	return nil
}

// Writes returns every recorded write.
func (f *FakeWriter) Writes() [][]bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]bool(nil), f.writes...)
}

// Last returns the most recent write, or nil.
func (f *FakeWriter) Last() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.writes) == 0 {
		return nil
	}
	return f.writes[len(f.writes)-1]
}

// Close marks the writer as closed.
func (f *FakeWriter) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

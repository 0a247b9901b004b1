package gpio

import (
	"errors"
	"testing"
)

func TestFakeReaderRead(t *testing.T) {
	samples := []Inputs{
		{DoorClosed: true},
		{DoorClosed: true, SprayContact: true},
		{DoorClosed: false, Leak: true},
	}

	f := NewFakeReader(samples)

	for i, want := range samples {
		got, err := f.Read()
		if err != nil {
			t.Fatalf("sample %d: unexpected error: %v", i, err)
		}
		if got != want {
			t.Errorf("sample %d: expected %+v, got %+v", i, want, got)
		}
	}

	// Further reads repeat the last sample
	got, err := f.Read()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != samples[2] {
		t.Errorf("repeat: expected %+v, got %+v", samples[2], got)
	}
}

func TestFakeReaderNoSamples(t *testing.T) {
	f := NewFakeReader(nil)

	_, err := f.Read()
	if err == nil {
		t.Error("expected error with no samples")
	}
}

func TestFakeReaderError(t *testing.T) {
	f := NewFakeReader([]Inputs{{DoorClosed: true}})
	f.ReadError = errors.New("simulated error")

	_, err := f.Read()
	if err == nil {
		t.Fatal("expected error to be returned")
	}
	if err.Error() != "simulated error" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFakeReaderCloseAndReset(t *testing.T) {
	f := NewFakeReader([]Inputs{{DoorClosed: true}, {Salt: true}})

	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !f.Closed {
		t.Error("should be closed after Close()")
	}

	f.Read()
	f.Reset()
	if f.Closed {
		t.Error("Reset should clear Closed")
	}
	got, _ := f.Read()
	if !got.DoorClosed {
		t.Errorf("after reset: expected first sample, got %+v", got)
	}
}

func TestFakeWriterRecordsCopies(t *testing.T) {
	f := NewFakeWriter()

	values := []bool{true, false, true}
	if err := f.Write(values); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	values[0] = false

	last := f.Last()
	if len(last) != 3 || !last[0] || last[1] || !last[2] {
		t.Errorf("expected recorded copy [true false true], got %v", last)
	}

	f.WriteError = errors.New("bus fault")
	if err := f.Write(values); err == nil {
		t.Error("expected write error")
	}
	if n := len(f.Writes()); n != 1 {
		t.Errorf("failed write must not be recorded, got %d writes", n)
	}
}

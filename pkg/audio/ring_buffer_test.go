package audio

import (
	"sync"
	"testing"
)

func TestNewPCMRingBuffer(t *testing.T) {
	// 300ms at 16kHz = 4800 samples
	rb := NewPCMRingBuffer(16000, 300, Bounded)
	if rb.Capacity() != 4800 {
		t.Errorf("Expected capacity 4800, got %d", rb.Capacity())
	}
	if rb.Count() != 0 {
		t.Errorf("Expected count 0, got %d", rb.Count())
	}
	if rb.Policy() != Bounded {
		t.Errorf("Expected Bounded policy, got %s", rb.Policy())
	}
}

func TestRingBuffer_WriteAndRead(t *testing.T) {
	rb := NewRingBuffer[int16](8, Bounded)

	if !rb.Write([]int16{1, 2, 3, 4, 5}) {
		t.Fatal("Write should fit")
	}
	if rb.Count() != 5 {
		t.Errorf("Expected count 5, got %d", rb.Count())
	}

	out := make([]int16, 3)
	if !rb.Read(out) {
		t.Fatal("Read should succeed")
	}
	if out[0] != 1 || out[1] != 2 || out[2] != 3 {
		t.Errorf("Unexpected read %v", out)
	}
	if rb.Count() != 2 {
		t.Errorf("Expected count 2 after read, got %d", rb.Count())
	}
}

func TestRingBuffer_BoundedRejectsOverflow(t *testing.T) {
	rb := NewRingBuffer[int16](4, Bounded)
	rb.Write([]int16{1, 2, 3})

	if rb.Write([]int16{4, 5}) {
		t.Fatal("Write exceeding free space must fail")
	}
	// rejected write leaves the buffer unchanged
	if rb.Count() != 3 {
		t.Errorf("Expected count 3, got %d", rb.Count())
	}
	out := make([]int16, 3)
	rb.Read(out)
	if out[0] != 1 || out[2] != 3 {
		t.Errorf("Buffer contents changed: %v", out)
	}
}

func TestRingBuffer_ReadShortfall(t *testing.T) {
	rb := NewRingBuffer[int16](8, Bounded)
	rb.Write([]int16{7, 8})

	out := make([]int16, 4)
	if rb.Read(out) {
		t.Fatal("Read of more than Count must fail")
	}
	if rb.Count() != 2 {
		t.Errorf("Failed read consumed data, count %d", rb.Count())
	}
	if rb.Read(nil) {
		t.Error("Read of zero samples must fail")
	}
}

func TestRingBuffer_OverwriteDropsOldest(t *testing.T) {
	rb := NewRingBuffer[int16](4, Overwrite)
	rb.Write([]int16{1, 2, 3})
	if !rb.Write([]int16{4, 5, 6}) {
		t.Fatal("Overwrite writes always succeed")
	}
	if rb.Count() != 4 {
		t.Fatalf("Expected full buffer, got %d", rb.Count())
	}
	out := make([]int16, 4)
	rb.Read(out)
	want := []int16{3, 4, 5, 6}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("Expected %v, got %v", want, out)
		}
	}
}

func TestRingBuffer_OverwriteLongerThanCapacity(t *testing.T) {
	rb := NewRingBuffer[int16](3, Overwrite)
	rb.Write([]int16{1, 2, 3, 4, 5, 6, 7})

	out := make([]int16, 3)
	if !rb.Read(out) {
		t.Fatal("Read should succeed")
	}
	if out[0] != 5 || out[1] != 6 || out[2] != 7 {
		t.Errorf("Expected newest samples, got %v", out)
	}
}

func TestRingBuffer_OverwriteLongerThanCapacityWhenNotEmpty(t *testing.T) {
	rb := NewRingBuffer[int16](4, Overwrite)
	rb.Write([]int16{1, 2})
	rb.Write([]int16{3, 4, 5, 6, 7, 8})

	if rb.Count() != 4 {
		t.Fatalf("Expected count 4, got %d", rb.Count())
	}
	if rb.Free() != 0 {
		t.Fatalf("Expected no free space, got %d", rb.Free())
	}
	out := make([]int16, 4)
	if !rb.Read(out) {
		t.Fatal("Read should succeed")
	}
	want := []int16{5, 6, 7, 8}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("Expected %v, got %v", want, out)
		}
	}
	if rb.Count() != 0 {
		t.Errorf("Expected empty buffer after read, got %d", rb.Count())
	}
	if rb.Read(out[:1]) {
		t.Error("Read from an empty buffer should fail")
	}
}

func TestRingBuffer_Wraparound(t *testing.T) {
	rb := NewRingBuffer[int16](5, Bounded)
	out := make([]int16, 3)

	for round := 0; round < 10; round++ {
		base := int16(round * 3)
		if !rb.Write([]int16{base, base + 1, base + 2}) {
			t.Fatalf("round %d: write failed", round)
		}
		if !rb.Read(out) {
			t.Fatalf("round %d: read failed", round)
		}
		if out[0] != base || out[2] != base+2 {
			t.Fatalf("round %d: got %v", round, out)
		}
	}
	if rb.WritePosition() != 30%5 {
		t.Errorf("Expected write position 0, got %d", rb.WritePosition())
	}
	if rb.ReadPosition() != rb.WritePosition() {
		t.Error("Read and write positions should match on an empty buffer")
	}
}

func TestRingBuffer_ReadPadded(t *testing.T) {
	rb := NewRingBuffer[int16](8, Bounded)
	rb.Write([]int16{9, 9})

	out := []int16{1, 1, 1, 1}
	n := rb.ReadPadded(out)
	if n != 2 {
		t.Errorf("Expected 2 real samples, got %d", n)
	}
	if out[0] != 9 || out[1] != 9 || out[2] != 0 || out[3] != 0 {
		t.Errorf("Expected zero padding, got %v", out)
	}
	if rb.Count() != 0 {
		t.Errorf("Expected empty buffer, got %d", rb.Count())
	}
}

func TestRingBuffer_ReadAtDoesNotConsume(t *testing.T) {
	rb := NewRingBuffer[int16](4, Bounded)
	rb.Write([]int16{1, 2, 3, 4})

	out := make([]int16, 3)
	if !rb.ReadAt(2, out) {
		t.Fatal("ReadAt should succeed")
	}
	if out[0] != 3 || out[1] != 4 || out[2] != 1 {
		t.Errorf("Expected wrapped peek, got %v", out)
	}
	// negative positions wrap as well
	rb.ReadAt(-1, out[:1])
	if out[0] != 4 {
		t.Errorf("Expected 4 at position -1, got %d", out[0])
	}
	if rb.Count() != 4 {
		t.Errorf("ReadAt must not consume, count %d", rb.Count())
	}
	if rb.ReadAt(0, make([]int16, 5)) {
		t.Error("ReadAt longer than capacity must fail")
	}
}

func TestRingBuffer_Clear(t *testing.T) {
	rb := NewRingBuffer[float32](4, Bounded)
	rb.Write([]float32{0.5, 0.25})
	rb.Clear()

	if rb.Count() != 0 {
		t.Errorf("Expected count 0 after clear, got %d", rb.Count())
	}
	if rb.WritePosition() != 0 || rb.ReadPosition() != 0 {
		t.Error("Clear should reset both cursors")
	}
	if rb.Free() != 4 {
		t.Errorf("Expected 4 free samples, got %d", rb.Free())
	}
}

func TestRingBuffer_SPSC(t *testing.T) {
	rb := NewRingBuffer[int16](64, Bounded)
	const total = 10000

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < total; {
			if rb.Write([]int16{int16(i)}) {
				i++
			}
		}
	}()

	var got []int16
	go func() {
		defer wg.Done()
		one := make([]int16, 1)
		for len(got) < total {
			if rb.Read(one) {
				got = append(got, one[0])
			}
		}
	}()

	wg.Wait()
	for i, v := range got {
		if v != int16(i) {
			t.Fatalf("Out of order at %d: got %d", i, v)
		}
	}
}

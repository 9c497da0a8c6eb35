package mailbox

import "testing"

// fakeTransport mimics the firmware well enough to exercise the builder
// without touching real MMIO: it always reports success (writing the
// success code into the request buffer itself, as real firmware does) and
// always lets the caller's own buffer address "loop back" on the first
// read.
type fakeTransport struct {
	Builder *Builder
	written uint32
}

func (f *fakeTransport) write(data, channel uint32) {
	f.written = data
	f.Builder.buf[1] = statusSuccess
}

func (f *fakeTransport) read(channel uint32) uint32 {
	return f.written
}

func newFake() *Builder {
	b := New()
	b.xport = &fakeTransport{Builder: b}
	return b
}

func TestSetClockRateLayout(t *testing.T) {
	b := newFake()
	b.SetClockRate(1, 2, 3, nil)

	if got, want := b.fieldCount(), 6; got != want {
		t.Fatalf("fieldCount() = %d, want %d", got, want)
	}
	if b.buf[2] != tagSetClockRate {
		t.Fatalf("buf[2] = %#x, want tag %#x", b.buf[2], tagSetClockRate)
	}
	if b.buf[3] != 12 {
		t.Fatalf("buf[3] (request length) = %d, want 12", b.buf[3])
	}
	if b.buf[4] != 0 {
		t.Fatalf("buf[4] (reserved) = %d, want 0", b.buf[4])
	}
	if b.buf[5] != 1 || b.buf[6] != 2 || b.buf[7] != 3 {
		t.Fatalf("arguments = %d,%d,%d, want 1,2,3", b.buf[5], b.buf[6], b.buf[7])
	}
}

func TestGetClockRateLayout(t *testing.T) {
	var out ClockRate
	b := newFake()
	b.GetClockRate(ClockUART, &out)

	if got, want := b.fieldCount(), 5; got != want {
		t.Fatalf("fieldCount() = %d, want %d", got, want)
	}
	if b.buf[2] != tagGetClockRate {
		t.Fatalf("buf[2] = %#x, want tag %#x", b.buf[2], tagGetClockRate)
	}
	if b.buf[5] != ClockUART {
		t.Fatalf("buf[5] = %d, want %d", b.buf[5], ClockUART)
	}
}

func TestGetBufferDepthResultWriteback(t *testing.T) {
	const depth = 5
	var got uint32
	b := newFake()
	b.GetBufferDepth(&got)

	fc := b.n
	b.buf[fc-1] = depth
	if !b.Submit() {
		t.Fatal("Submit() = false, want true")
	}
	if got != depth {
		t.Fatalf("depth = %d, want %d", got, depth)
	}
}

func TestGetPhysicalSizeResultWriteback(t *testing.T) {
	const width, height = 10, 20
	var size Size
	b := newFake()
	b.GetPhysicalSize(&size)

	fc := b.n
	b.buf[fc-2] = width
	b.buf[fc-1] = height
	if !b.Submit() {
		t.Fatal("Submit() = false, want true")
	}
	if size.Width != width || size.Height != height {
		t.Fatalf("size = %+v, want {%d %d}", size, width, height)
	}
}

func TestGetVirtualOffsetResultWriteback(t *testing.T) {
	const x, y = 1000, 300
	var point Point
	b := newFake()
	b.GetVirtualOffset(&point)

	fc := b.n
	b.buf[fc-2] = x
	b.buf[fc-1] = y
	if !b.Submit() {
		t.Fatal("Submit() = false, want true")
	}
	if point.X != x || point.Y != y {
		t.Fatalf("point = %+v, want {%d %d}", point, x, y)
	}
}

func TestGetClockRateResultWriteback(t *testing.T) {
	const id, hz = 5, 1234
	var clock ClockRate
	b := newFake()
	b.GetClockRate(id, &clock)

	fc := b.n
	b.buf[fc-1] = hz
	if !b.Submit() {
		t.Fatal("Submit() = false, want true")
	}
	if clock.ID != id || clock.Hz != hz {
		t.Fatalf("clock = %+v, want {%d %d}", clock, id, hz)
	}
}

func TestAllocateFramebufferResultWriteback(t *testing.T) {
	const pointer, size = 12, 65
	var fb Framebuffer
	b := newFake()
	b.AllocateFramebuffer(&fb)

	fc := b.n
	b.buf[fc-2] = pointer
	b.buf[fc-1] = size
	if !b.Submit() {
		t.Fatal("Submit() = false, want true")
	}
	if fb.Pointer != pointer || fb.Size != size {
		t.Fatalf("fb = %+v, want {%d %d}", fb, pointer, size)
	}
}

func TestGetARMMemoryResultWriteback(t *testing.T) {
	const base, size = 0x1000, 0x2000
	var mem ARMMemory
	b := newFake()
	b.GetARMMemory(&mem)

	fc := b.n
	b.buf[fc-2] = base
	b.buf[fc-1] = size
	if !b.Submit() {
		t.Fatal("Submit() = false, want true")
	}
	if mem.BaseAddress != base || mem.Size != size {
		t.Fatalf("mem = %+v, want {%#x %#x}", mem, base, size)
	}
}

func TestSubmitFailsOnFirmwareError(t *testing.T) {
	b := newFake()
	b.GetPitch(new(uint32))
	b.xport = &failingTransport{Builder: b}

	if b.Submit() {
		t.Fatal("Submit() = true, want false on firmware failure")
	}
}

// failingTransport leaves a non-success response code in buf[1], as real
// firmware does when it rejects a request.
type failingTransport struct {
	Builder *Builder
}

func (f *failingTransport) write(data, channel uint32) {
	f.Builder.buf[1] = 0x8000_0001
}

func (f *failingTransport) read(channel uint32) uint32 {
	return bufferAddr(f.Builder)
}

// Package mailbox builds and submits VideoCore property-channel requests.
//
// The property channel is a tag-based RPC: the ARM side fills a 16-byte
// aligned buffer with a length header, a request/response code, a list of
// tags (each a 32-bit property id, a reserved buffer size, a request/response
// length, and the tag's own argument words), and a terminating zero tag, then
// hands the buffer's physical address to the VideoCore firmware over the
// mailbox FIFO. The firmware overwrites each tag's argument words in place
// with its response and flips the length word's top bit.
//
// Builder is not safe for concurrent use; callers build one request, Submit
// it, and discard it.
package mailbox

import (
	"unsafe"

	"github.com/rimekernel/ember/internal/reg"
	"github.com/rimekernel/ember/memory"
)

// Mailbox MMIO registers (BCM2837, mailbox 0, property channel).
const (
	baseAddr   uintptr = 0x3F00_B880
	readOffset uintptr = 0x00
	writeOffset uintptr = 0x20
	statusOffset uintptr = 0x18

	readAddr   = baseAddr + readOffset
	writeAddr  = baseAddr + writeOffset
	statusAddr = baseAddr + statusOffset
)

const (
	statusFull    uint32 = 0x8000_0000
	statusEmpty   uint32 = 0x4000_0000
	statusSuccess uint32 = 0x8000_0000
)

// PropertyChannel is the mailbox channel the VideoCore firmware listens on
// for tag-list requests.
const PropertyChannel uint32 = 8

// Clock ids accepted by SetClockRate/GetClockRate.
const (
	ClockEMMC  uint32 = 0x1
	ClockUART  uint32 = 0x2
	ClockCore  uint32 = 0x4
	ClockARM   uint32 = 0x3
)

const (
	tagSetClockRate      uint32 = 0x0003_8002
	tagGetClockRate      uint32 = 0x0003_0002
	tagSetPhysicalSize   uint32 = 0x0004_8003
	tagGetPhysicalSize   uint32 = 0x0004_0003
	tagSetVirtualSize    uint32 = 0x0004_8004
	tagGetVirtualSize    uint32 = 0x0004_0004
	tagSetVirtualOffset  uint32 = 0x0004_8009
	tagGetVirtualOffset  uint32 = 0x0004_0009
	tagSetBufferDepth    uint32 = 0x0004_8005
	tagGetBufferDepth    uint32 = 0x0004_0005
	tagSetPixelOrder     uint32 = 0x0004_8006
	tagGetPixelOrder     uint32 = 0x0004_0006
	tagAllocateFramebuf  uint32 = 0x0004_0001
	tagGetPitch          uint32 = 0x0004_0008
	tagGetArmMemory      uint32 = 0x0001_0005
)

const (
	fieldCountOffset = 2
	bufferWords      = 128

	// backingWords oversizes the buffer's storage so New can carve out a
	// 16-byte aligned window from it, the same trick mmu.newTable uses for
	// its 4KiB-aligned tables: Go gives array/struct fields only natural
	// (4-byte, for uint32) alignment, and the firmware requires the request
	// buffer's address to be 16-byte aligned.
	backingWords = bufferWords + 4
)

// Size is a width/height pair, used by both the physical and virtual size
// tags.
type Size struct {
	Width  uint32
	Height uint32
}

// Point is an x/y pair, used by the virtual offset tags.
type Point struct {
	X uint32
	Y uint32
}

// ClockRate is the id/frequency pair returned by {Set,Get}ClockRate.
type ClockRate struct {
	ID uint32
	Hz uint32
}

// Framebuffer is the pointer/size pair returned by AllocateFramebuffer.
type Framebuffer struct {
	Pointer uint32
	Size    uint32
}

// ARMMemory describes the ARM-visible RAM window reported by the firmware.
type ARMMemory struct {
	BaseAddress uintptr
	Size        uintptr
}

// resultKind distinguishes how many result words a pending read needs and
// where they get written back to.
type resultKind int

const (
	kindU32 resultKind = iota
	kindSize
	kindPoint
	kindClockRate
	kindFramebuffer
	kindARMMemory
)

type pendingResult struct {
	kind   resultKind
	offset uint32
	u32    *uint32
	size   *Size
	point  *Point
	clock  *ClockRate
	fb     *Framebuffer
	mem    *ARMMemory
}

// transport abstracts the two mailbox FIFO registers so tests can submit
// requests against a fake in-memory firmware instead of real MMIO.
type transport interface {
	write(data, channel uint32)
	read(channel uint32) uint32
}

type mmioTransport struct{}

func (mmioTransport) write(data, channel uint32) {
	for reg.MmioRead(statusAddr)&statusFull != 0 {
	}
	reg.MmioWrite(writeAddr, data|channel)
}

func (mmioTransport) read(channel uint32) uint32 {
	for {
		for reg.MmioRead(statusAddr)&statusEmpty != 0 {
		}
		val := reg.MmioRead(readAddr)
		if val&0xF == channel {
			return val & 0xFFFF_FFF0
		}
	}
}

// bufferAddr returns the physical address of b's request buffer. The
// firmware reads and writes this buffer directly, so its address (not a copy
// of its contents) is what gets posted to the mailbox FIFO.
func bufferAddr(b *Builder) uint32 {
	return uint32(uintptr(unsafe.Pointer(&b.buf[0])))
}

// Builder accumulates tags into a 16-byte aligned property buffer and
// submits them as a single batched request.
type Builder struct {
	backing [backingWords]uint32
	buf     []uint32
	n       int
	results []pendingResult
	xport   transport
}

// New returns a Builder ready to accept tags. buf is carved out of backing
// at the first 16-byte aligned offset, so bufferAddr always hands the
// firmware a properly aligned address regardless of where backing itself
// landed.
func New() *Builder {
	b := &Builder{n: fieldCountOffset, xport: mmioTransport{}}
	base := uintptr(unsafe.Pointer(&b.backing[0]))
	aligned := memory.AlignUp(base, 16)
	off := (aligned - base) / unsafe.Sizeof(b.backing[0])
	b.buf = b.backing[off : off+bufferWords : off+bufferWords]
	return b
}

func (b *Builder) addResult(r pendingResult) {
	b.results = append(b.results, r)
}

// SetClockRate requests the firmware set clockID to rateHz, optionally
// skipping the turbo-frequency override. If out is non-nil the firmware's
// actual clock id/rate is written back into it after Submit.
func (b *Builder) SetClockRate(clockID, rateHz, skipTurbo uint32, out *ClockRate) *Builder {
	b.buf[b.n] = tagSetClockRate
	b.buf[b.n+1] = 12
	b.buf[b.n+2] = 0
	b.buf[b.n+3] = clockID
	b.buf[b.n+4] = rateHz
	b.buf[b.n+5] = skipTurbo
	if out != nil {
		b.addResult(pendingResult{kind: kindClockRate, offset: uint32(b.n + 3), clock: out})
	}
	b.n += 6
	return b
}

// GetClockRate requests the firmware's current rate for clockID.
func (b *Builder) GetClockRate(clockID uint32, out *ClockRate) *Builder {
	b.buf[b.n] = tagGetClockRate
	b.buf[b.n+1] = 8
	b.buf[b.n+2] = 0
	b.buf[b.n+3] = clockID
	b.buf[b.n+4] = 0
	b.addResult(pendingResult{kind: kindClockRate, offset: uint32(b.n + 3), clock: out})
	b.n += 5
	return b
}

// SetPhysicalSize requests a display resolution change.
func (b *Builder) SetPhysicalSize(width, height uint32, out *Size) *Builder {
	b.buf[b.n] = tagSetPhysicalSize
	b.buf[b.n+1] = 8
	b.buf[b.n+2] = 0
	b.buf[b.n+3] = width
	b.buf[b.n+4] = height
	if out != nil {
		b.addResult(pendingResult{kind: kindSize, offset: uint32(b.n + 3), size: out})
	}
	b.n += 5
	return b
}

// GetPhysicalSize requests the current display resolution.
func (b *Builder) GetPhysicalSize(out *Size) *Builder {
	b.buf[b.n] = tagGetPhysicalSize
	b.buf[b.n+1] = 8
	b.buf[b.n+2] = 0
	b.buf[b.n+3] = 0
	b.buf[b.n+4] = 0
	b.addResult(pendingResult{kind: kindSize, offset: uint32(b.n + 3), size: out})
	b.n += 5
	return b
}

// SetVirtualSize requests a framebuffer virtual resolution change.
func (b *Builder) SetVirtualSize(width, height uint32, out *Size) *Builder {
	b.buf[b.n] = tagSetVirtualSize
	b.buf[b.n+1] = 8
	b.buf[b.n+2] = 0
	b.buf[b.n+3] = width
	b.buf[b.n+4] = height
	if out != nil {
		b.addResult(pendingResult{kind: kindSize, offset: uint32(b.n + 3), size: out})
	}
	b.n += 5
	return b
}

// GetVirtualSize requests the current framebuffer virtual resolution.
func (b *Builder) GetVirtualSize(out *Size) *Builder {
	b.buf[b.n] = tagGetVirtualSize
	b.buf[b.n+1] = 8
	b.buf[b.n+2] = 0
	b.buf[b.n+3] = 0
	b.buf[b.n+4] = 0
	b.addResult(pendingResult{kind: kindSize, offset: uint32(b.n + 3), size: out})
	b.n += 5
	return b
}

// SetVirtualOffset requests a framebuffer pan.
func (b *Builder) SetVirtualOffset(x, y uint32, out *Point) *Builder {
	b.buf[b.n] = tagSetVirtualOffset
	b.buf[b.n+1] = 8
	b.buf[b.n+2] = 0
	b.buf[b.n+3] = x
	b.buf[b.n+4] = y
	if out != nil {
		b.addResult(pendingResult{kind: kindPoint, offset: uint32(b.n + 3), point: out})
	}
	b.n += 5
	return b
}

// GetVirtualOffset requests the current framebuffer pan.
func (b *Builder) GetVirtualOffset(out *Point) *Builder {
	b.buf[b.n] = tagGetVirtualOffset
	b.buf[b.n+1] = 8
	b.buf[b.n+2] = 0
	b.buf[b.n+3] = 0
	b.buf[b.n+4] = 0
	b.addResult(pendingResult{kind: kindPoint, offset: uint32(b.n + 3), point: out})
	b.n += 5
	return b
}

// SetBufferDepth requests a colour depth (bits per pixel) change.
func (b *Builder) SetBufferDepth(depth uint32, out *uint32) *Builder {
	b.buf[b.n] = tagSetBufferDepth
	b.buf[b.n+1] = 4
	b.buf[b.n+2] = 0
	b.buf[b.n+3] = depth
	if out != nil {
		b.addResult(pendingResult{kind: kindU32, offset: uint32(b.n + 3), u32: out})
	}
	b.n += 4
	return b
}

// GetBufferDepth requests the current colour depth.
func (b *Builder) GetBufferDepth(out *uint32) *Builder {
	b.buf[b.n] = tagGetBufferDepth
	b.buf[b.n+1] = 4
	b.buf[b.n+2] = 0
	b.buf[b.n+3] = 0
	b.addResult(pendingResult{kind: kindU32, offset: uint32(b.n + 3), u32: out})
	b.n += 4
	return b
}

// SetPixelOrder requests an RGB/BGR pixel order change.
func (b *Builder) SetPixelOrder(order uint32, out *uint32) *Builder {
	b.buf[b.n] = tagSetPixelOrder
	b.buf[b.n+1] = 4
	b.buf[b.n+2] = 0
	b.buf[b.n+3] = order
	if out != nil {
		b.addResult(pendingResult{kind: kindU32, offset: uint32(b.n + 3), u32: out})
	}
	b.n += 4
	return b
}

// GetPixelOrder requests the current pixel order.
func (b *Builder) GetPixelOrder(out *uint32) *Builder {
	b.buf[b.n] = tagGetPixelOrder
	b.buf[b.n+1] = 4
	b.buf[b.n+2] = 0
	b.buf[b.n+3] = 0
	b.addResult(pendingResult{kind: kindU32, offset: uint32(b.n + 3), u32: out})
	b.n += 4
	return b
}

// AllocateFramebuffer requests the firmware allocate a framebuffer matching
// the physical/virtual size and depth set earlier in the same request.
func (b *Builder) AllocateFramebuffer(out *Framebuffer) *Builder {
	b.buf[b.n] = tagAllocateFramebuf
	b.buf[b.n+1] = 8
	b.buf[b.n+2] = 0
	b.buf[b.n+3] = 4096 // requested alignment
	b.buf[b.n+4] = 0
	if out != nil {
		b.addResult(pendingResult{kind: kindFramebuffer, offset: uint32(b.n + 3), fb: out})
	}
	b.n += 5
	return b
}

// GetPitch requests the framebuffer's row pitch in bytes.
func (b *Builder) GetPitch(out *uint32) *Builder {
	b.buf[b.n] = tagGetPitch
	b.buf[b.n+1] = 4
	b.buf[b.n+2] = 0
	b.buf[b.n+3] = 0
	b.addResult(pendingResult{kind: kindU32, offset: uint32(b.n + 3), u32: out})
	b.n += 4
	return b
}

// GetARMMemory requests the base address and size of the ARM-visible RAM
// split, as decided by the GPU's memory split configuration.
func (b *Builder) GetARMMemory(out *ARMMemory) *Builder {
	b.buf[b.n] = tagGetArmMemory
	b.buf[b.n+1] = 8
	b.buf[b.n+2] = 0
	b.buf[b.n+3] = 0
	b.buf[b.n+4] = 0
	b.addResult(pendingResult{kind: kindARMMemory, offset: uint32(b.n + 3), mem: out})
	b.n += 5
	return b
}

// fieldCount returns the number of tag words (each tag's id, size and code
// words plus its arguments) written so far, excluding the length and
// request/response header words. Used by tests that need to assert the
// exact layout a tag produces.
func (b *Builder) fieldCount() int {
	return b.n - fieldCountOffset
}

// Submit terminates the tag list, hands the buffer to the firmware over the
// property channel, and blocks until the response comes back. It reports
// whether the firmware returned a success code; on success every result
// pointer registered by the tag methods above has been filled in.
func (b *Builder) Submit() bool {
	b.buf[b.n] = 0 // end tag
	b.buf[0] = uint32(b.n+1) * 4
	b.buf[1] = 0 // this is a request

	reg.CompilerBarrier()

	mboxPtr := bufferAddr(b)
	b.xport.write(mboxPtr, PropertyChannel)
	for b.xport.read(PropertyChannel) != mboxPtr {
	}

	if b.buf[1] != statusSuccess {
		return false
	}

	for _, r := range b.results {
		switch r.kind {
		case kindU32:
			*r.u32 = b.buf[r.offset]
		case kindSize:
			r.size.Width = b.buf[r.offset]
			r.size.Height = b.buf[r.offset+1]
		case kindPoint:
			r.point.X = b.buf[r.offset]
			r.point.Y = b.buf[r.offset+1]
		case kindClockRate:
			r.clock.ID = b.buf[r.offset]
			r.clock.Hz = b.buf[r.offset+1]
		case kindFramebuffer:
			r.fb.Pointer = b.buf[r.offset]
			r.fb.Size = b.buf[r.offset+1]
		case kindARMMemory:
			r.mem.BaseAddress = uintptr(b.buf[r.offset])
			r.mem.Size = uintptr(b.buf[r.offset+1])
		}
	}

	return true
}

// Package boot owns the kernel's entire startup sequence: the assembly
// trampoline that parks every core but the first, the EL2-to-EL1 privilege
// transition, and the Go-side reset path that brings up the serial console,
// the exception vector table, the memory allocators, the MMU, and the
// interrupt controller in that order before handing off to the embedding
// application.
package boot

import (
	"unsafe"

	"github.com/rimekernel/ember/cpuctl"
	"github.com/rimekernel/ember/internal/reg"
	"github.com/rimekernel/ember/kernelerr"
	"github.com/rimekernel/ember/mailbox"
	"github.com/rimekernel/ember/memory"
	"github.com/rimekernel/ember/mmu"
	"github.com/rimekernel/ember/serial"
	"github.com/rimekernel/ember/trap"
)

const oneMiB = 0x100_000

// Linker-provided section boundaries. bssStart/bssEnd bound the block of
// statically allocated, zero-initialized data this kernel's own image
// carries but the bootloader does not zero for it; roStart/roEnd bound the
// sections the MMU maps read-only and executable; kernelEnd is the first address
// past the kernel's loaded image, where the heap begins.
func bssStart() uintptr
func bssEnd() uintptr
func roStart() uintptr
func roEnd() uintptr
func kernelEnd() uintptr

// setupAndEnterEL1FromEL2 is implemented in the assembly trampoline. It
// runs once, branched to by _start while still at EL2: it fabricates the system
// register state an exception return needs to land in EL1h with interrupts
// masked and a valid stack, then performs that return into reset. It never
// returns to its caller.

// zeroBSS clears the kernel's own .bss section. The bootloader loads only
// the image's initialized bytes; anything the linker placed in .bss is
// whatever garbage was left in RAM until this runs.
func zeroBSS() {
	start, end := bssStart(), bssEnd()
	for p := start; p < end; p++ {
		*(*byte)(unsafe.Pointer(p)) = 0
	}
}

// App is the entry point the embedding program supplies; reset calls it
// once every kernel subsystem is up, and it never returns.
var App func()

// reset runs entirely at EL1 on the primary core's boot stack, called from
// assembly after setupAndEnterEL1FromEL2 lands. Any panic raised anywhere
// in this sequence, or in App itself, is caught once here and reported
// through Panic rather than unwinding into nothing.
func reset() {
	defer func() {
		if r := recover(); r != nil {
			Panic(panicMessage(r))
		}
	}()

	reg.SetCPACREL1(0x0030_0000)
	zeroBSS()

	if err := serial.Init(); err != nil {
		panic(err)
	}

	installVectors()

	if err := initMemory(); err != nil {
		panic(err)
	}

	mmu.Init(roStart(), roEnd())

	cpuctl.Init()

	if App != nil {
		App()
	}
	for {
		reg.Wfe()
	}
}

func panicMessage(r any) string {
	switch v := r.(type) {
	case string:
		return v
	case error:
		return v.Error()
	default:
		return "kernel panic: unrecognized panic value"
	}
}

// installVectors wraps trap.Install's bare panic string in a kernelerr so
// it reports through the same taxonomy as every other init failure.
func installVectors() {
	defer func() {
		if r := recover(); r != nil {
			panic(kernelerr.New(kernelerr.InitCPU, "failed to set up exceptions"))
		}
	}()
	trap.Install()
}

// initMemory asks the VideoCore firmware where ARM-visible RAM ends, then
// gives everything from this image's end (rounded up to a 1MiB boundary)
// to the end of that window to the root allocator.
func initMemory() error {
	var arm mailbox.ARMMemory
	if ok := mailbox.New().GetARMMemory(&arm).Submit(); !ok {
		return kernelerr.New(kernelerr.InitMemory, "failed to get available ARM memory")
	}

	end := kernelEnd()
	if end <= arm.BaseAddress {
		return kernelerr.New(kernelerr.InitMemory, "kernel end before reported RAM base")
	}

	heapStart := memory.AlignUp(end, oneMiB)
	heapEnd := arm.BaseAddress + arm.Size
	if heapStart >= heapEnd {
		return kernelerr.New(kernelerr.InitMemory, "no RAM left for the heap after the kernel image")
	}

	memory.Init(heapStart, heapEnd-heapStart)
	return nil
}

// Panic is the kernel-wide panic handler: report what failed over the
// serial console, then park this core forever. It never returns, matching
// every other terminal path in this kernel.
func Panic(msg string) {
	serial.Write(msg)
	for {
		reg.Wfe()
	}
}

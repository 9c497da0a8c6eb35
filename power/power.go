// Package power pokes the BCM2837 power management watchdog registers to
// trigger a full hardware reset. It is not part of the kernel's core
// startup, MMU, trap, or allocator logic, and nothing in this kernel calls
// it during normal operation or on panic: boot.Panic parks the core in WFE
// instead. Reset exists as a standalone collaborator for embedding code
// that wants to hand the board back to the bootloader rather than spin
// forever.
package power

import "github.com/rimekernel/ember/internal/reg"

const (
	mmioBase  uintptr = 0x3F00_0000
	rstcAddr  uintptr = mmioBase + 0x100_01C
	wdogAddr  uintptr = mmioBase + 0x100_024
	wPassword uint32  = 0x5a_000_000
	wClr      uint32  = 0xffff_ffcf
	wFullRst  uint32  = 0x0000_0020
)

// Reset arms the watchdog with a short timeout and asserts a full system
// reset through RSTC, then parks forever; the watchdog fires before control
// ever returns here.
func Reset() {
	reg.MmioWrite(wdogAddr, wPassword|10)
	val := reg.MmioRead(rstcAddr)
	val &= wClr
	val |= wPassword | wFullRst
	reg.MmioWrite(rstcAddr, val)
	for {
		reg.Wfe()
	}
}

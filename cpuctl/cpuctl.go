// Package cpuctl brings up the one piece of core-local state this kernel
// manages directly: the BCM2837 basic interrupt controller and the CPU's
// own IRQ mask, so the timer interrupt armed by package timer can actually
// be delivered.
package cpuctl

import (
	"github.com/rimekernel/ember/internal/reg"
	"github.com/rimekernel/ember/timer"
)

// interruptControllerAddr is the BCM2837 basic interrupt controller's
// enable-IRQs register; writing bit 1 enables the ARM generic timer IRQ
// line routed through it.
const interruptControllerAddr uintptr = 0x4000_0040

const enableARMTimerIRQ uint32 = 0x2

// enableIRQ and disableIRQ clear/set PSTATE.I via the assembly shim; there
// is no portable way to touch PSTATE from Go itself.
func enableIRQ()
func disableIRQ()

// Init arms the timer's first interrupt, enables its line through the
// interrupt controller, and unmasks IRQs at the CPU.
func Init() {
	timer.SetupInterrupt()
	reg.MmioWrite(interruptControllerAddr, enableARMTimerIRQ)
	enableIRQ()
}

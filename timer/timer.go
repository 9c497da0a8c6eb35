// Package timer drives the ARM generic timer's EL0 physical timer as the
// kernel's only interrupt source besides the synchronous exception path.
package timer

import "github.com/rimekernel/ember/internal/reg"

// Interval is the rearm period, in CNTFRQ_EL0 ticks. At the Pi 3's nominal
// 19.2MHz counter frequency this is roughly 1.04 seconds; it is expressed in
// raw ticks (rather than computed from CNTFRQ_EL0) because the interval
// only has to be "frequent enough to prove interrupts work", not
// wall-clock-accurate.
const Interval uint64 = 20_000_000

// Ticks returns the raw physical counter value.
func Ticks() uint64 {
	return reg.CNTPCTEL0()
}

// Millis returns the counter's value converted to milliseconds since an
// arbitrary epoch, or false if CNTFRQ_EL0 reads back zero (should not
// happen on real hardware, but guards against a division by zero if it
// ever does).
func Millis() (uint64, bool) {
	freq := reg.CNTFRQEL0()
	if freq == 0 {
		return 0, false
	}
	return (Ticks() * 1000) / freq, true
}

// SetupInterrupt arms the physical timer for its first interrupt and
// enables it. The interrupt is delivered only once the interrupt
// controller line is enabled and IRQs are unmasked, which cpuctl.Init does
// right after calling this.
func SetupInterrupt() {
	reg.SetCNTPTVALEL0(Interval)
	reg.SetCNTPCTLEL0(0x1)
}

// HandleInterrupt rearms the timer for another Interval ticks from now.
//
// This rearms relative to "now" (CNTP_TVAL_EL0 counts down from whatever
// value it is loaded with) rather than to an absolute deadline
// (CNTP_CVAL_EL0 plus Interval), so every tick drifts later by however long
// this handler took to run since the interrupt fired. That is acceptable
// for a heartbeat interrupt with no real-time obligations; a scheduler
// built on top of this timer would need the absolute form instead.
func HandleInterrupt() {
	reg.SetCNTPTVALEL0(Interval)
}

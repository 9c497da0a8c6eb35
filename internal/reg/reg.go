// Package reg is the low-level register and instruction shim: the only
// route by which the kernel's Go code touches memory-mapped I/O or executes
// privileged ARMv8 instructions (the boot, trap and cpuctl assembly files
// issue their own system instructions). Every function here is either a
// single volatile load/store or a single system instruction, implemented in
// the companion assembly file for the target architecture. Everything above
// this package works exclusively through these primitives plus the
// bitfield-packed register values in the owning subsystem packages.
package reg

// MmioRead performs a single 32-bit volatile load from the given physical
// address. Compiler reordering and caching must never be allowed to touch
// a device register, so this is always a real load instruction, never a
// Go map or slice access.
func MmioRead(addr uintptr) uint32

// MmioWrite performs a single 32-bit volatile store to the given physical
// address.
func MmioWrite(addr uintptr, val uint32)

// Dsb issues a full system data synchronization barrier.
func Dsb()

// Isb issues an instruction synchronization barrier, required after any
// write to a register (VBAR_EL1, SCTLR_EL1, ...) whose effect must be
// visible to the next fetched instruction.
func Isb()

// CompilerBarrier prevents the Go compiler from reordering memory
// operations across it without emitting any CPU instruction. Used by the
// mailbox builder to guarantee every tag word is written before the
// firmware is told the request buffer is ready.
func CompilerBarrier()

// Wfe executes "wait for event", parking the core until the next event
// signal (an interrupt, or another core's SEV). Used by the panic handler
// and the idle loops after App returns; the secondary-core park loop in
// boot's assembly issues its own WFE.
func Wfe()

// Eret performs an exception return using the current ELR/SPSR pair,
// transferring control (and privilege level) to the address and state they
// describe. The EL2-to-EL1 drop at boot issues its own ERET in boot's
// assembly and does not call this.
func Eret()

// MPIDR reads the Multiprocessor Affinity Register; the low two bits
// identify which of the four cores is executing.
func MPIDR() uint64

// CurrentEL reads the current exception level shifted into bits [3:2], as
// the architecture defines it.
func CurrentEL() uint64

// SetSPEL1 sets the EL1 stack pointer (SP_EL1), which becomes the active
// stack pointer once the simulated exception return lands in EL1h.
func SetSPEL1(addr uintptr)

// SetELREL2 sets the EL2 exception link register, the address execution
// resumes at after Eret.
func SetELREL2(addr uintptr)

// SetSPSREL2 writes the EL2 saved program status register, used here only
// to fabricate the state an "exception return" to EL1 will adopt.
func SetSPSREL2(val uint64)

// SetHCREL2 writes the EL2 hypervisor configuration register.
func SetHCREL2(val uint64)

// SetCNTHCTLEL2 writes the EL2 counter-timer hypervisor control register.
func SetCNTHCTLEL2(val uint64)

// SetCNTVOFFEL2 writes the virtual counter offset.
func SetCNTVOFFEL2(val uint64)

// SetCPACREL1 writes the EL1 coprocessor access control register (used to
// enable the FPU).
func SetCPACREL1(val uint64)

// SetVBAREL1 writes the EL1 vector base address register.
func SetVBAREL1(addr uintptr)

// SetMAIREL1 writes the EL1 memory attribute indirection register.
func SetMAIREL1(val uint64)

// SetTCREL1 writes the EL1 translation control register.
func SetTCREL1(val uint64)

// SetTTBR0EL1 writes the EL1 translation table base register 0.
func SetTTBR0EL1(addr uintptr)

// SCTLREL1 reads the EL1 system control register.
func SCTLREL1() uint64

// SetSCTLREL1 writes the EL1 system control register.
func SetSCTLREL1(val uint64)

// IDAA64MMFR0EL1 reads the AArch64 memory model feature register 0, used
// to discover the CPU's supported physical address range (PARange).
func IDAA64MMFR0EL1() uint64

// CNTFRQEL0 reads the counter-timer frequency register.
func CNTFRQEL0() uint64

// CNTPCTEL0 reads the physical counter value.
func CNTPCTEL0() uint64

// SetCNTPTVALEL0 writes the EL0 physical timer value register: a relative
// timeout, counted down in CNTFRQ_EL0 ticks from the moment it is written.
func SetCNTPTVALEL0(val uint64)

// SetCNTPCTLEL0 writes the EL0 physical timer control register.
func SetCNTPCTLEL0(val uint64)

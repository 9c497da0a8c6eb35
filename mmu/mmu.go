// Package mmu builds the three static stage-1 translation tables this
// kernel runs under and switches the EL1 MMU on.
//
// The layout is deliberately the simplest one that works on a Raspberry Pi
// 3: one level-1 table with two populated entries (a table descriptor for
// the first 1GiB, and a 1GiB block descriptor identity-mapping the second
// as device memory), one level-2 table covering the first 1GiB in 2MiB
// blocks (normal memory below the MMIO window, device memory at and above
// it), and one level-3 table that breaks the first 2MiB into individual
// 4KiB pages so the kernel's own read-only sections can be marked
// execute-and-read-only while everything else in that range stays
// read-write, execute-never. There is no demand paging, no per-process
// address space, and no table ever grows past these three.
package mmu

import (
	"unsafe"

	"github.com/rimekernel/ember/bitfield"
	"github.com/rimekernel/ember/internal/reg"
	"github.com/rimekernel/ember/memory"
)

const entriesPerTable = 512

// descriptor type values (bit 1 of every stage-1 descriptor).
const (
	descBlock uint8 = 0
	descTable uint8 = 1
)

// Access permission encodings (AArch64 Reference Manual, stage-1 AP field).
const (
	apRW_EL1    uint8 = 0b00
	apRW_EL1EL0 uint8 = 0b01
	apRO_EL1    uint8 = 0b10
	apRO_EL1EL0 uint8 = 0b11
)

// Shareability encodings.
const (
	shOuter uint8 = 0b10
	shInner uint8 = 0b11
)

// MAIR_EL1 attribute indices this kernel defines. Index 0 is device memory
// (nGnRE: no gathering, no reordering, early write acknowledgement), index
// 1 is normal write-back cacheable memory.
const (
	mairDevice uint8 = 0
	mairNormal uint8 = 1
)

// descriptor is the bit layout shared by every stage-1 table, block, and
// page descriptor this kernel writes. Addr always holds the physical frame
// number (physical address >> 12): for a table descriptor that is the
// next-level table's base, for a block or page descriptor it is the output
// address, and because every address here is at least 4KiB aligned, the
// low-order bits the architecture requires to be zero for a larger block
// size come out zero on their own.
type descriptor struct {
	Valid    bool   `bitfield:"0,1"`
	Type     uint8  `bitfield:"1,1"`
	AttrIndx uint8  `bitfield:"2,3"`
	AP       uint8  `bitfield:"6,2"`
	SH       uint8  `bitfield:"8,2"`
	AF       bool   `bitfield:"10,1"`
	Addr     uint64 `bitfield:"12,36"`
	XN       bool   `bitfield:"54,1"`
}

func (d descriptor) pack() uint64 { return bitfield.Pack(&d) }

// table is a 4KiB-aligned, 512-entry stage-1 translation table. Go gives
// package-level arrays only natural alignment, so each table is carved out
// of an oversized backing array and aligned up to a page boundary at
// init time.
type table struct {
	ptr *[entriesPerTable]uint64
}

func newTable(backing []byte) table {
	addr := memory.AlignUp(uintptr(unsafe.Pointer(&backing[0])), 4096)
	return table{ptr: (*[entriesPerTable]uint64)(unsafe.Pointer(addr))}
}

func (t table) baseAddr() uint64 {
	return uint64(uintptr(unsafe.Pointer(t.ptr)))
}

func (t table) set(i int, d descriptor) {
	t.ptr[i] = d.pack()
}

var (
	lvl1Storage [entriesPerTable*8 + 4096]byte
	lvl2Storage [entriesPerTable*8 + 4096]byte
	lvl3Storage [entriesPerTable*8 + 4096]byte
)

// mmioBase marks where the Pi's peripheral MMIO window begins; level-2
// entries at or past it are mapped as device memory, everything below as
// normal memory.
const mmioBase uint64 = 0x3F00_0000

// Init builds the three static tables, points TTBR0_EL1 at the level-1
// table, programs MAIR_EL1/TCR_EL1, and enables the MMU (M, C and I bits of
// SCTLR_EL1). roStart and roEnd are the kernel's own read-only section
// boundaries (from the linker), used to mark the level-3 entries that cover
// them read-only and executable; every other level-3 entry is read-write
// and execute-never.
func Init(roStart, roEnd uintptr) {
	lvl1 := newTable(lvl1Storage[:])
	lvl2 := newTable(lvl2Storage[:])
	lvl3 := newTable(lvl3Storage[:])

	reg.SetMAIREL1(mairEL1Value())

	lvl2.set(0, descriptor{
		Valid: true,
		Type:  descTable,
		Addr:  lvl3.baseAddr() >> 12,
	})

	for i := 1; i < entriesPerTable; i++ {
		// Entry i covers physical [i*2MiB, (i+1)*2MiB); the MMIO window
		// starts at block index mmioBase/2MiB.
		block := uint64(i)
		attrIndx, sh := mairNormal, shInner
		if block >= mmioBase>>21 {
			attrIndx, sh = mairDevice, shOuter
		}
		lvl2.set(i, descriptor{
			Valid:    true,
			Type:     descBlock,
			AttrIndx: attrIndx,
			SH:       sh,
			AF:       true,
			XN:       true,
			Addr:     block << (21 - 12),
		})
	}

	lvl1.set(0, descriptor{
		Valid: true,
		Type:  descTable,
		Addr:  lvl2.baseAddr() >> 12,
	})
	lvl1.set(1, descriptor{
		Valid:    true,
		Type:     descBlock,
		AttrIndx: mairDevice,
		SH:       shOuter,
		AF:       true,
		XN:       true,
		Addr:     1 << (30 - 12),
	})

	roStartPage := roStart / 4096
	roEndPage := roEnd / 4096
	for i := 0; i < entriesPerTable; i++ {
		j := uintptr(i)
		d := descriptor{
			Valid:    true,
			Type:     descTable, // bits[1:0] = 0b11 for an L3 page descriptor
			AttrIndx: mairNormal,
			SH:       shInner,
			AF:       true,
			Addr:     uint64(j),
		}
		if j < roStartPage || j >= roEndPage {
			d.AP = apRW_EL1
			d.XN = true
		} else {
			d.AP = apRO_EL1
			d.XN = false
		}
		lvl3.set(i, d)
	}

	reg.SetTTBR0EL1(uintptr(lvl1.baseAddr()))

	parange := reg.IDAA64MMFR0EL1() & 0xF
	reg.SetTCREL1(tcrEL1Value(parange))

	reg.Isb()

	sctlr := reg.SCTLREL1()
	sctlr |= 1 << 0 // M: MMU enable
	sctlr |= 1 << 2 // C: data cache enable
	sctlr |= 1 << 12 // I: instruction cache enable
	reg.SetSCTLREL1(sctlr)

	reg.Isb()
}

// mairEL1Value packs the two MAIR_EL1 attribute encodings this kernel uses
// into their respective 8-bit slots.
func mairEL1Value() uint64 {
	const (
		deviceNGnRE  uint64 = 0x04
		normalWBWA   uint64 = 0xFF
	)
	return (normalWBWA << 8) | deviceNGnRE
}

// tcrEL1Value packs TCR_EL1 for a single-stage, 4KiB-granule, T0SZ=25
// (39-bit virtual address space) configuration walking from level 1, using
// the CPU-reported physical address range.
func tcrEL1Value(parange uint64) uint64 {
	const (
		t0sz      uint64 = 25
		tg0_4KiB  uint64 = 0b00
		sh0Inner  uint64 = 0b11
		orgn0WBWA uint64 = 0b01
		irgn0WBWA uint64 = 0b01
		epd0Walk  uint64 = 0
		tbi0Ign   uint64 = 1
	)
	var v uint64
	v |= t0sz
	v |= irgn0WBWA << 8
	v |= orgn0WBWA << 10
	v |= sh0Inner << 12
	v |= tg0_4KiB << 14
	v |= epd0Walk << 7
	v |= parange << 32
	v |= tbi0Ign << 37
	return v
}

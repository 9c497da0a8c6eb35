package mmu

import "testing"

func TestDescriptorPackTableEntry(t *testing.T) {
	d := descriptor{Valid: true, Type: descTable, Addr: 0x1234}
	got := d.pack()
	want := uint64(1) | uint64(descTable)<<1 | uint64(0x1234)<<12
	if got != want {
		t.Fatalf("pack() = %#x, want %#x", got, want)
	}
}

func TestDescriptorPackBlockEntryWithAttributes(t *testing.T) {
	d := descriptor{
		Valid:    true,
		Type:     descBlock,
		AttrIndx: mairDevice,
		AP:       apRW_EL1,
		SH:       shOuter,
		AF:       true,
		XN:       true,
		Addr:     0x10,
	}
	got := d.pack()

	if got&1 == 0 {
		t.Fatal("VALID bit not set")
	}
	if (got>>1)&1 != 0 {
		t.Fatal("TYPE bit should be 0 (block) for descBlock")
	}
	if (got>>10)&1 == 0 {
		t.Fatal("AF bit not set")
	}
	if (got>>54)&1 == 0 {
		t.Fatal("XN bit not set")
	}
	if (got>>12)&((1<<36)-1) != 0x10 {
		t.Fatalf("Addr field = %#x, want %#x", (got>>12)&((1<<36)-1), 0x10)
	}
}

func TestMairEL1ValueEncodesBothAttributes(t *testing.T) {
	v := mairEL1Value()
	if v&0xFF != 0x04 {
		t.Fatalf("attr0 (device) = %#x, want 0x04", v&0xFF)
	}
	if (v>>8)&0xFF != 0xFF {
		t.Fatalf("attr1 (normal) = %#x, want 0xff", (v>>8)&0xFF)
	}
}

func TestTCREL1ValueCarriesParange(t *testing.T) {
	v := tcrEL1Value(0b101)
	if (v>>32)&0x7 != 0b101 {
		t.Fatalf("IPS field = %#b, want 0b101", (v>>32)&0x7)
	}
	if v&0x3F != 25 {
		t.Fatalf("T0SZ field = %d, want 25", v&0x3F)
	}
}

func TestNewTableIsPageAligned(t *testing.T) {
	var storage [entriesPerTable*8 + 4096]byte
	tbl := newTable(storage[:])
	if tbl.baseAddr()%4096 != 0 {
		t.Fatalf("table base %#x is not 4KiB aligned", tbl.baseAddr())
	}
}

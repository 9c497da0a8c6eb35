package bitfield

import "testing"

type spsr struct {
	M   uint8  `bitfield:"0,4"`
	M4  bool   `bitfield:"4,1"`
	F   bool   `bitfield:"6,1"`
	I   bool   `bitfield:"7,1"`
	A   bool   `bitfield:"8,1"`
	D   bool   `bitfield:"9,1"`
	Res uint32 `bitfield:"10,22"`
}

func TestPackMasksAllInterruptsEL1h(t *testing.T) {
	// EL1h = 0b0101, all interrupt masks set.
	s := spsr{M: 0b0101, D: true, A: true, I: true, F: true}

	got := Pack(&s)
	want := uint64(0b0101) | 1<<6 | 1<<7 | 1<<8 | 1<<9

	if got != want {
		t.Fatalf("Pack() = %#x, want %#x", got, want)
	}
}

func TestPackByValueAndPointerAgree(t *testing.T) {
	s := spsr{M: 0b0101, I: true}

	if Pack(s) != Pack(&s) {
		t.Fatalf("Pack(struct) and Pack(*struct) disagree")
	}
}

func TestPackPanicsWhenValueExceedsWidth(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for oversized field value")
		}
	}()

	type narrow struct {
		X uint8 `bitfield:"0,2"`
	}
	Pack(narrow{X: 7})
}

func TestUnpackRoundTrips(t *testing.T) {
	in := spsr{M: 0b1001, D: true, I: true}
	packed := Pack(&in)

	var out spsr
	Unpack(packed, &out)

	if out != in {
		t.Fatalf("Unpack(Pack(x)) = %+v, want %+v", out, in)
	}
}

func TestIgnoresUntaggedFields(t *testing.T) {
	type withExtra struct {
		A       uint8 `bitfield:"0,4"`
		ignored string
	}
	got := Pack(withExtra{A: 5, ignored: "not packed"})
	if got != 5 {
		t.Fatalf("Pack() = %#x, want 5", got)
	}
}

package trap

import "testing"

func TestDecodeECKnownClasses(t *testing.T) {
	cases := []struct {
		esr  uint32
		want string
	}{
		{0b000000 << 26, "Unknown"},
		{0b000001 << 26, "Trapped WFI/WFE"},
		{0b001110 << 26, "Illegal execution"},
		{0b010101 << 26, "System call"},
		{0b100000 << 26, "Instruction abort, lower EL"},
		{0b100001 << 26, "Instruction abort, same EL"},
		{0b100010 << 26, "Instruction alignment fault"},
		{0b100100 << 26, "Data abort, lower EL"},
		{0b100101 << 26, "Data abort, same EL"},
		{0b100110 << 26, "Stack alignment fault"},
		{0b101100 << 26, "Floating point"},
	}
	for _, c := range cases {
		if got := DecodeEC(c.esr); got != c.want {
			t.Errorf("DecodeEC(%#x) = %q, want %q", c.esr, got, c.want)
		}
	}
}

func TestDecodeECIgnoresNonECBits(t *testing.T) {
	// Low bits (ISS, etc.) must not perturb the decode.
	esr := (uint32(0b010101) << 26) | 0x03FF_FFFF
	if got, want := DecodeEC(esr), "System call"; got != want {
		t.Errorf("DecodeEC(%#x) = %q, want %q", esr, got, want)
	}
}

func TestDecodeECUnrecognizedIsUnknown(t *testing.T) {
	if got, want := DecodeEC(0b111111<<26), "Unknown"; got != want {
		t.Errorf("DecodeEC() = %q, want %q", got, want)
	}
}

func TestUnhandledMessageIncludesAllFields(t *testing.T) {
	msg := UnhandledMessage(IRQ, Frame{ESR: 0x15000000, ELR: 0x1000, FAR: 0x2000})

	for _, want := range []string{"irq", "0x15000000", "System call", "0x00001000", "0x00002000"} {
		if !contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{Sync: "exception", IRQ: "irq", FIQ: "fast irq", SError: "error"}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", k, got, want)
		}
	}
}

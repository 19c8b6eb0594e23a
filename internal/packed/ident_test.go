package packed

import (
	"bytes"
	"errors"
	"testing"
)

func validIdentBytes() []byte {
	// layout 2, board rev V1.3, hw week 49 year 22, sw week 05 year 23,
	// profile EGS52, flags 0x3, reserved 0xBEEF
	return []byte{0x23, 0x49, 0x22, 0x05, 0x23, 0x23, 0xBE, 0xEF}
}

func TestDecodeIdent(t *testing.T) {
	r, err := DecodeIdent(validIdentBytes())
	if err != nil {
		t.Fatalf("DecodeIdent failed: %v", err)
	}
	if r.LayoutVersion != 2 {
		t.Errorf("LayoutVersion = %d, want 2", r.LayoutVersion)
	}
	if r.BoardRev != BoardRev13 {
		t.Errorf("BoardRev = %v, want %v", r.BoardRev, BoardRev13)
	}
	if r.HWWeek() != 49 || r.HWYear() != 22 {
		t.Errorf("HW date = week %d year %d, want week 49 year 22", r.HWWeek(), r.HWYear())
	}
	if r.SWWeek() != 5 || r.SWYear() != 23 {
		t.Errorf("SW date = week %d year %d, want week 5 year 23", r.SWWeek(), r.SWYear())
	}
	if r.Profile != EgsProfile52 {
		t.Errorf("Profile = %v, want %v", r.Profile, EgsProfile52)
	}
	if r.Flags != 0x3 {
		t.Errorf("Flags = %#x, want 0x3", r.Flags)
	}
	if r.Reserved != 0xBEEF {
		t.Errorf("Reserved = %#x, want 0xBEEF", r.Reserved)
	}
}

func TestDecodeIdentWrongLength(t *testing.T) {
	for _, n := range []int{0, 7, 9, 256} {
		_, err := DecodeIdent(make([]byte, n))
		if !errors.Is(err, ErrWrongLength) {
			t.Errorf("DecodeIdent with %d bytes: expected ErrWrongLength, got %v", n, err)
		}
	}
}

func TestDecodeIdentInvalidDiscriminant(t *testing.T) {
	// Board revision 0 is not declared
	b := validIdentBytes()
	b[0] = 0x20
	if _, err := DecodeIdent(b); !errors.Is(err, ErrInvalidDiscriminant) {
		t.Errorf("Expected ErrInvalidDiscriminant for board rev 0, got %v", err)
	}

	// EGS profile 9 is not declared
	b = validIdentBytes()
	b[5] = 0x93
	if _, err := DecodeIdent(b); !errors.Is(err, ErrInvalidDiscriminant) {
		t.Errorf("Expected ErrInvalidDiscriminant for profile 9, got %v", err)
	}
}

func TestIdentRoundTripFromBytes(t *testing.T) {
	// encode(decode(b)) == b for every well-formed byte string, including
	// arbitrary reserved and flag bits.
	inputs := [][]byte{
		validIdentBytes(),
		{0x01, 0x00, 0x00, 0x00, 0x00, 0x10, 0x00, 0x00},
		{0xF3, 0x99, 0x99, 0x99, 0x99, 0x3F, 0xFF, 0xFF},
		{0xA2, 0x12, 0x24, 0x36, 0x48, 0x15, 0x00, 0x01},
	}
	for _, in := range inputs {
		r, err := DecodeIdent(in)
		if err != nil {
			t.Fatalf("DecodeIdent(% X) failed: %v", in, err)
		}
		out := r.Encode()
		if !bytes.Equal(in, out) {
			t.Errorf("Round trip mismatch: in % X, out % X", in, out)
		}
	}
}

func TestIdentRoundTripFromRecord(t *testing.T) {
	// decode(encode(r)) == r for valid records.
	records := []IdentRecord{
		{LayoutVersion: 1, BoardRev: BoardRev11, Profile: EgsProfile51},
		{LayoutVersion: 15, BoardRev: BoardRev12, HWWeekBCD: 0x27, HWYearBCD: 0x22, Profile: EgsProfile53, Flags: 0xF, Reserved: 0xFFFF},
		{BoardRev: BoardRev13, SWWeekBCD: 0x49, SWYearBCD: 0x21, Profile: EgsProfile52, Reserved: 1},
	}
	for _, r := range records {
		got, err := DecodeIdent(r.Encode())
		if err != nil {
			t.Fatalf("Decode of encoded record failed: %v", err)
		}
		if got != r {
			t.Errorf("Round trip mismatch: got %+v, want %+v", got, r)
		}
	}
}

func TestBCDToInt(t *testing.T) {
	cases := map[uint8]int{0x00: 0, 0x09: 9, 0x10: 10, 0x49: 49, 0x99: 99}
	for in, want := range cases {
		if got := BCDToInt(in); got != want {
			t.Errorf("BCDToInt(%#x) = %d, want %d", in, got, want)
		}
	}
}

func TestEnumStrings(t *testing.T) {
	if BoardRev12.String() != "V1.2" {
		t.Errorf("BoardRev12 = %q", BoardRev12.String())
	}
	if EgsProfile53.String() != "EGS53" {
		t.Errorf("EgsProfile53 = %q", EgsProfile53.String())
	}
	if BoardRevision(9).String() == "" || EgsProfile(9).String() == "" {
		t.Error("Unknown discriminants should still render")
	}
}

// Package packed encodes and decodes the fixed-layout binary records
// shared with the TCU firmware: the 8-byte ident record carried in
// release manifests and the 256-byte header embedded in firmware images.
//
// Wire contract: ident record bit-fields are packed most-significant-bit
// first and its multi-byte fields big-endian; firmware header integer
// fields are little-endian. These constants must match the firmware side
// exactly.
package packed

import (
	"errors"
	"fmt"
)

// Codec errors.
var (
	// ErrWrongLength is returned when the input length does not match the record size
	ErrWrongLength = errors.New("packed: wrong input length")
	// ErrInvalidDiscriminant is returned when an enumerated field holds an undeclared value
	ErrInvalidDiscriminant = errors.New("packed: invalid discriminant")
)

// IdentRecordSize is the wire size of an IdentRecord in bytes.
const IdentRecordSize = 8

// BoardRevision identifies the TCU PCB revision.
type BoardRevision uint8

const (
	BoardRev11 BoardRevision = 1 // V1.1
	BoardRev12 BoardRevision = 2 // V1.2
	BoardRev13 BoardRevision = 3 // V1.3
)

func (b BoardRevision) String() string {
	switch b {
	case BoardRev11:
		return "V1.1"
	case BoardRev12:
		return "V1.2"
	case BoardRev13:
		return "V1.3"
	default:
		return fmt.Sprintf("V_NDEF(%d)", uint8(b))
	}
}

func (b BoardRevision) valid() bool {
	return b >= BoardRev11 && b <= BoardRev13
}

// EgsProfile identifies the EGS CAN matrix the firmware bundle targets.
type EgsProfile uint8

const (
	EgsProfile51 EgsProfile = 1
	EgsProfile52 EgsProfile = 2
	EgsProfile53 EgsProfile = 3
)

func (e EgsProfile) String() string {
	switch e {
	case EgsProfile51:
		return "EGS51"
	case EgsProfile52:
		return "EGS52"
	case EgsProfile53:
		return "EGS53"
	default:
		return fmt.Sprintf("EGS_UNKNOWN(%d)", uint8(e))
	}
}

func (e EgsProfile) valid() bool {
	return e >= EgsProfile51 && e <= EgsProfile53
}

// IdentRecord is the bit-packed identification record.
//
// Layout (MSB-first within each byte):
//
//	byte 0: [7:4] layout version, [3:0] board revision discriminant
//	byte 1: hardware build week (BCD)
//	byte 2: hardware build year (BCD)
//	byte 3: software build week (BCD)
//	byte 4: software build year (BCD)
//	byte 5: [7:4] EGS profile discriminant, [3:0] flags
//	byte 6-7: reserved, preserved verbatim across decode/encode
type IdentRecord struct {
	LayoutVersion uint8
	BoardRev      BoardRevision
	HWWeekBCD     uint8
	HWYearBCD     uint8
	SWWeekBCD     uint8
	SWYearBCD     uint8
	Profile       EgsProfile
	Flags         uint8
	Reserved      uint16
}

// DecodeIdent decodes an 8-byte ident record. Reserved bits are kept so
// that Encode reproduces the input byte-for-byte.
func DecodeIdent(b []byte) (IdentRecord, error) {
	if len(b) != IdentRecordSize {
		return IdentRecord{}, fmt.Errorf("%w: got %d bytes, want %d", ErrWrongLength, len(b), IdentRecordSize)
	}

	r := IdentRecord{
		LayoutVersion: b[0] >> 4,
		BoardRev:      BoardRevision(b[0] & 0x0F),
		HWWeekBCD:     b[1],
		HWYearBCD:     b[2],
		SWWeekBCD:     b[3],
		SWYearBCD:     b[4],
		Profile:       EgsProfile(b[5] >> 4),
		Flags:         b[5] & 0x0F,
		Reserved:      uint16(b[6])<<8 | uint16(b[7]),
	}

	if !r.BoardRev.valid() {
		return IdentRecord{}, fmt.Errorf("%w: board revision %d", ErrInvalidDiscriminant, uint8(r.BoardRev))
	}
	if !r.Profile.valid() {
		return IdentRecord{}, fmt.Errorf("%w: EGS profile %d", ErrInvalidDiscriminant, uint8(r.Profile))
	}
	return r, nil
}

// Encode packs the record back into its 8-byte wire form.
func (r IdentRecord) Encode() []byte {
	b := make([]byte, IdentRecordSize)
	b[0] = r.LayoutVersion<<4 | uint8(r.BoardRev)&0x0F
	b[1] = r.HWWeekBCD
	b[2] = r.HWYearBCD
	b[3] = r.SWWeekBCD
	b[4] = r.SWYearBCD
	b[5] = uint8(r.Profile)<<4 | r.Flags&0x0F
	b[6] = byte(r.Reserved >> 8)
	b[7] = byte(r.Reserved)
	return b
}

// BCDToInt converts a BCD-coded byte (as produced by the TCU) to its
// decimal value, e.g. 0x49 -> 49.
func BCDToInt(b uint8) int {
	return 10*int(b/16) + int(b%16)
}

// HWWeek returns the decoded hardware build week.
func (r IdentRecord) HWWeek() int { return BCDToInt(r.HWWeekBCD) }

// HWYear returns the decoded two-digit hardware build year.
func (r IdentRecord) HWYear() int { return BCDToInt(r.HWYearBCD) }

// SWWeek returns the decoded software build week.
func (r IdentRecord) SWWeek() int { return BCDToInt(r.SWWeekBCD) }

// SWYear returns the decoded two-digit software build year.
func (r IdentRecord) SWYear() int { return BCDToInt(r.SWYearBCD) }

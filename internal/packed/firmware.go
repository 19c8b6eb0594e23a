package packed

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// FirmwareHeaderSize is the wire size of a FirmwareHeader in bytes.
const FirmwareHeaderSize = 256

// HeaderMagic marks the start of a firmware header, stored little-endian
// (bytes 0x32 0x54 0xCD 0xAB on the wire).
const HeaderMagic uint32 = 0xABCD5432

// headerScanLimit bounds how far into an image the header magic may start.
const headerScanLimit = 50

var (
	// ErrBadMagic is returned when a header does not start with HeaderMagic
	ErrBadMagic = errors.New("packed: bad firmware header magic")
	// ErrNoHeader is returned when no header magic is found within the scan window
	ErrNoHeader = errors.New("packed: firmware header not found")
)

// FirmwareHeader is the 256-byte application descriptor embedded near the
// start of every firmware image. Reserved words are preserved verbatim so
// a decoded header re-encodes to the exact input bytes.
type FirmwareHeader struct {
	Magic         uint32
	SecureVersion uint32
	Reserved1     [8]byte
	Version       [32]byte
	ProjectName   [32]byte
	Time          [16]byte
	Date          [16]byte
	IDFVersion    [32]byte
	AppELFSHA     [32]byte
	Reserved2     [80]byte
}

// DecodeFirmwareHeader decodes exactly one 256-byte header.
func DecodeFirmwareHeader(b []byte) (FirmwareHeader, error) {
	if len(b) != FirmwareHeaderSize {
		return FirmwareHeader{}, fmt.Errorf("%w: got %d bytes, want %d", ErrWrongLength, len(b), FirmwareHeaderSize)
	}

	var h FirmwareHeader
	h.Magic = binary.LittleEndian.Uint32(b[0:4])
	if h.Magic != HeaderMagic {
		return FirmwareHeader{}, fmt.Errorf("%w: 0x%08X", ErrBadMagic, h.Magic)
	}
	h.SecureVersion = binary.LittleEndian.Uint32(b[4:8])
	copy(h.Reserved1[:], b[8:16])
	copy(h.Version[:], b[16:48])
	copy(h.ProjectName[:], b[48:80])
	copy(h.Time[:], b[80:96])
	copy(h.Date[:], b[96:112])
	copy(h.IDFVersion[:], b[112:144])
	copy(h.AppELFSHA[:], b[144:176])
	copy(h.Reserved2[:], b[176:256])
	return h, nil
}

// Encode packs the header back into its 256-byte wire form.
func (h FirmwareHeader) Encode() []byte {
	b := make([]byte, FirmwareHeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	binary.LittleEndian.PutUint32(b[4:8], h.SecureVersion)
	copy(b[8:16], h.Reserved1[:])
	copy(b[16:48], h.Version[:])
	copy(b[48:80], h.ProjectName[:])
	copy(b[80:96], h.Time[:])
	copy(b[96:112], h.Date[:])
	copy(b[112:144], h.IDFVersion[:])
	copy(b[144:176], h.AppELFSHA[:])
	copy(b[176:256], h.Reserved2[:])
	return b
}

// FindHeader scans the start of a firmware image for the header magic and
// decodes the header. The magic is only ever within the first few bytes
// of a valid image, so the scan is bounded.
func FindHeader(image []byte) (FirmwareHeader, int, error) {
	magic := []byte{0x32, 0x54, 0xCD, 0xAB}
	for off := 0; off <= headerScanLimit && off+len(magic) <= len(image); off++ {
		if !bytes.Equal(image[off:off+len(magic)], magic) {
			continue
		}
		if len(image)-off < FirmwareHeaderSize {
			return FirmwareHeader{}, 0, fmt.Errorf("%w: truncated at offset %d", ErrNoHeader, off)
		}
		h, err := DecodeFirmwareHeader(image[off : off+FirmwareHeaderSize])
		if err != nil {
			return FirmwareHeader{}, 0, err
		}
		return h, off, nil
	}
	return FirmwareHeader{}, 0, ErrNoHeader
}

// cString trims a fixed-width field at the first NUL.
func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// VersionString returns the firmware version text from the header.
func (h FirmwareHeader) VersionString() string { return cString(h.Version[:]) }

// ProjectString returns the project name from the header.
func (h FirmwareHeader) ProjectString() string { return cString(h.ProjectName[:]) }

// DateString returns the build date text from the header.
func (h FirmwareHeader) DateString() string { return cString(h.Date[:]) }

// TimeString returns the build time text from the header.
func (h FirmwareHeader) TimeString() string { return cString(h.Time[:]) }

// IDFString returns the SDK version text from the header.
func (h FirmwareHeader) IDFString() string { return cString(h.IDFVersion[:]) }

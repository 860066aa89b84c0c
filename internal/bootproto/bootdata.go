package bootproto

import "encoding/binary"

// BootDataSize is the fixed, packed, little-endian size of BootData on flash.
const BootDataSize = 32

// BootData is the persistent 32-byte metadata record tracking which bank
// is active and whether it has been confirmed good. Field order and
// widths are part of the on-flash wire format and must not change without
// a layout migration.
type BootData struct {
	Magic        uint32
	ActiveBank   uint8
	Confirmed    uint8
	BootAttempts uint8
	reserved     uint8
	VersionA     uint32
	VersionB     uint32
	CRCA         uint32
	CRCB         uint32
	SizeA        uint32
	SizeB        uint32
}

// DefaultBootData returns the zero-valued-but-magic-stamped record used
// whenever flash holds no valid BootData (fresh device, or a BootData
// sector left in the default state by a power loss mid-write).
func DefaultBootData() BootData {
	return BootData{Magic: BootDataMagic}
}

// IsValid reports whether the record carries the expected magic. An invalid
// record must be treated as the zero-initialised default throughout the
// bootloader.
func (b BootData) IsValid() bool {
	return b.Magic == BootDataMagic
}

// Normalized returns b if valid, or DefaultBootData() otherwise. Every
// reader of flash-resident BootData should go through this so that a
// torn/invalid record never leaks stale confirmed/boot_attempts values.
func (b BootData) Normalized() BootData {
	if b.IsValid() {
		return b
	}
	return DefaultBootData()
}

// BankMetadata returns (crc, size) for bank 0 or bank 1.
func (b BootData) BankMetadata(bank uint8) (crc uint32, size uint32) {
	if bank == 0 {
		return b.CRCA, b.SizeA
	}
	return b.CRCB, b.SizeB
}

// WithBankMetadata returns a copy of b with bank's crc/size/version set.
func (b BootData) WithBankMetadata(bank uint8, size, crc, version uint32) BootData {
	if bank == 0 {
		b.SizeA, b.CRCA, b.VersionA = size, crc, version
	} else {
		b.SizeB, b.CRCB, b.VersionB = size, crc, version
	}
	return b
}

// ToggleBank returns the complement of bank (0<->1).
func ToggleBank(bank uint8) uint8 {
	if bank == 0 {
		return 1
	}
	return 0
}

// Encode serialises b into its packed 32-byte little-endian wire form.
func (b BootData) Encode() [BootDataSize]byte {
	var buf [BootDataSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], b.Magic)
	buf[4] = b.ActiveBank
	buf[5] = b.Confirmed
	buf[6] = b.BootAttempts
	buf[7] = 0
	binary.LittleEndian.PutUint32(buf[8:12], b.VersionA)
	binary.LittleEndian.PutUint32(buf[12:16], b.VersionB)
	binary.LittleEndian.PutUint32(buf[16:20], b.CRCA)
	binary.LittleEndian.PutUint32(buf[20:24], b.CRCB)
	binary.LittleEndian.PutUint32(buf[24:28], b.SizeA)
	binary.LittleEndian.PutUint32(buf[28:32], b.SizeB)
	return buf
}

// DecodeBootData parses a 32-byte packed record. It never fails: any byte
// pattern is a valid (if perhaps not IsValid()) BootData, matching the
// on-flash reality that a torn write can leave arbitrary bytes behind.
func DecodeBootData(buf []byte) BootData {
	var b BootData
	if len(buf) < BootDataSize {
		return b
	}
	b.Magic = binary.LittleEndian.Uint32(buf[0:4])
	b.ActiveBank = buf[4]
	b.Confirmed = buf[5]
	b.BootAttempts = buf[6]
	b.VersionA = binary.LittleEndian.Uint32(buf[8:12])
	b.VersionB = binary.LittleEndian.Uint32(buf[12:16])
	b.CRCA = binary.LittleEndian.Uint32(buf[16:20])
	b.CRCB = binary.LittleEndian.Uint32(buf[20:24])
	b.SizeA = binary.LittleEndian.Uint32(buf[24:28])
	b.SizeB = binary.LittleEndian.Uint32(buf[28:32])
	return b
}

//go:build !tinygo

package bootexec

import (
	"testing"

	"adnt/crispyboot/internal/bootproto"
	"adnt/crispyboot/internal/crc32hdlc"
	"adnt/crispyboot/internal/flashrom"
)

func testLayout() bootproto.MemoryLayout {
	return bootproto.MemoryLayout{
		FirmwareA: bootproto.FirmwareAAddr,
		FirmwareB: bootproto.FirmwareBAddr,
		RAMBase:   0x20000000,
		RAMStart:  0x20000000,
		RAMEnd:    0x20040000,
		CopySize:  bootproto.FirmwareBankSize,
	}
}

// writePlausibleFirmware writes a vector table whose SP/reset vector sit
// inside the RAM window, followed by the rest of data, and returns its CRC.
func writePlausibleFirmware(t *testing.T, layout bootproto.MemoryLayout, bankAddr uint32, data []byte) uint32 {
	t.Helper()
	offset := bankAddr - bootproto.FlashBase
	if err := flashrom.Erase(offset, bootproto.FlashSectorSize); err != nil {
		t.Fatalf("Erase: %v", err)
	}

	image := make([]byte, len(data))
	copy(image, data)
	putLE32(image[0:4], layout.RAMStart+0x100)   // plausible initial SP
	putLE32(image[4:8], layout.RAMStart+0x200|1) // plausible reset vector (thumb bit set)

	if err := flashrom.Program(offset, image); err != nil {
		t.Fatalf("Program: %v", err)
	}
	return crc32hdlc.Checksum(image)
}

func putLE32(buf []byte, v uint32) {
	buf[0] = byte(v)
	buf[1] = byte(v >> 8)
	buf[2] = byte(v >> 16)
	buf[3] = byte(v >> 24)
}

func TestValidateWithCRCAccepts(t *testing.T) {
	flashrom.ResetFakeFlash()
	defer flashrom.ResetFakeFlash()

	layout := testLayout()
	data := make([]byte, 512)
	crc := writePlausibleFirmware(t, layout, layout.FirmwareA, data)

	if !ValidateWithCRC(layout, layout.FirmwareA, crc, uint32(len(data))) {
		t.Fatal("ValidateWithCRC rejected a well-formed bank")
	}
}

func TestValidateWithCRCRejectsZeroSize(t *testing.T) {
	layout := testLayout()
	if ValidateWithCRC(layout, layout.FirmwareA, 0x1234, 0) {
		t.Fatal("ValidateWithCRC accepted size=0")
	}
}

func TestValidateWithCRCRejectsMismatch(t *testing.T) {
	flashrom.ResetFakeFlash()
	defer flashrom.ResetFakeFlash()

	layout := testLayout()
	data := make([]byte, 256)
	writePlausibleFirmware(t, layout, layout.FirmwareA, data)

	if ValidateWithCRC(layout, layout.FirmwareA, 0xBADC0DE, uint32(len(data))) {
		t.Fatal("ValidateWithCRC accepted a bank with the wrong CRC")
	}
}

func TestValidateBasicRejectsGarbageVectorTable(t *testing.T) {
	flashrom.ResetFakeFlash()
	defer flashrom.ResetFakeFlash()

	layout := testLayout()
	offset := layout.FirmwareA - bootproto.FlashBase
	flashrom.Erase(offset, bootproto.FlashSectorSize)
	// Erased flash reads back as 0xFF — not a plausible RAM address.
	if ValidateBasic(layout, layout.FirmwareA) {
		t.Fatal("ValidateBasic accepted an erased (garbage) vector table")
	}
}

func TestValidateBasicAcceptsPlausibleVectorTable(t *testing.T) {
	flashrom.ResetFakeFlash()
	defer flashrom.ResetFakeFlash()

	layout := testLayout()
	writePlausibleFirmware(t, layout, layout.FirmwareA, make([]byte, 64))

	if !ValidateBasic(layout, layout.FirmwareA) {
		t.Fatal("ValidateBasic rejected a plausible vector table")
	}
}

func TestNewValidatorCombinesBothChecks(t *testing.T) {
	flashrom.ResetFakeFlash()
	defer flashrom.ResetFakeFlash()

	layout := testLayout()
	data := make([]byte, 128)
	crc := writePlausibleFirmware(t, layout, layout.FirmwareA, data)

	validate := NewValidator(layout)
	crcValid, basicValid := validate(layout.FirmwareA, crc, uint32(len(data)))
	if !crcValid || !basicValid {
		t.Fatalf("validator = (%v, %v), want (true, true)", crcValid, basicValid)
	}

	crcValid, basicValid = validate(layout.FirmwareA, crc+1, uint32(len(data)))
	if crcValid || !basicValid {
		t.Fatalf("validator with wrong crc = (%v, %v), want (false, true)", crcValid, basicValid)
	}
}

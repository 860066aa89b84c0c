// Package flashrom erases and programs the two firmware banks and the
// BootData sector through the RP2040's ROM routines, and computes the
// CRC-32 used to validate a bank's contents.
//
// The hardware-touching half lives in flashrom_tinygo.go, built only under
// TinyGo: ROM function pointers are resolved once by tag lookup at the
// fixed table offset, and every erase/program call disables interrupts,
// connects internal flash, exits XIP, does the operation, flushes the
// cache, and re-enters XIP before re-enabling interrupts — all from a
// function placed in RAM, since none of that code may execute out of flash
// while flash is mid-operation. flashrom_stub.go provides the same API
// against an in-memory byte slice so the packages built on it (bootexec,
// and update's tests) can be built and tested on the host.
package flashrom

import (
	"errors"

	"adnt/crispyboot/internal/bootproto"
	"adnt/crispyboot/internal/crc32hdlc"
)

// ErrNotInitialized is returned by any flash operation attempted before
// Init has resolved the ROM function pointers. The host fake in
// flashrom_stub.go also returns it for an access past the end of its image.
var ErrNotInitialized = errors.New("flashrom: ROM functions not resolved, call Init first")

// Flash is a zero-size handle exposing this package's functions as
// methods, so internal/update can depend on a small interface
// (internal/update.Flash) instead of the package directly — letting its
// tests substitute a different fake without needing their own
// tinygo/!tinygo build-tag split.
type Flash struct{}

func (Flash) Erase(offset, size uint32) error                  { return Erase(offset, size) }
func (Flash) Program(offset uint32, data []byte) error         { return Program(offset, data) }
func (Flash) ComputeCRC32(offset, size uint32) (uint32, error) { return ComputeCRC32(offset, size) }
func (Flash) ReadBootData() (bootproto.BootData, error)        { return ReadBootData() }
func (Flash) WriteBootData(bd bootproto.BootData) error        { return WriteBootData(bd) }

// ComputeCRC32 streams size bytes starting at the flash-relative offset
// through a crc32hdlc.Streamer in crc32hdlc.ChunkSize windows, the same
// chunk size crispy-bootloader/src/flash.rs's compute_crc32 uses so a bank
// never needs to fit in RAM to be validated.
func ComputeCRC32(offset, size uint32) (uint32, error) {
	s := crc32hdlc.NewStreamer()
	chunk := make([]byte, crc32hdlc.ChunkSize)
	var read uint32
	for read < size {
		n := size - read
		if n > crc32hdlc.ChunkSize {
			n = crc32hdlc.ChunkSize
		}
		if err := ReadBytes(offset+read, chunk[:n]); err != nil {
			return 0, err
		}
		s.Write(chunk[:n])
		read += n
	}
	return s.Sum(), nil
}

// ReadBootData reads the BootData sector and normalizes it, returning the
// default record if the magic doesn't match.
func ReadBootData() (bootproto.BootData, error) {
	buf := make([]byte, bootproto.BootDataSize)
	offset := uint32(bootproto.BootDataAddr - bootproto.FlashBase)
	if err := ReadBytes(offset, buf); err != nil {
		return bootproto.BootData{}, err
	}
	return bootproto.DecodeBootData(buf).Normalized(), nil
}

// WriteBootData erases the BootData sector and programs it with bd,
// padded to a full flash page as crispy-bootloader/src/flash.rs's
// write_boot_data does (flash can only be programmed a whole page at a
// time, and the sector holds nothing else worth preserving).
func WriteBootData(bd bootproto.BootData) error {
	offset := uint32(bootproto.BootDataAddr - bootproto.FlashBase)

	if err := Erase(offset, bootproto.FlashSectorSize); err != nil {
		return err
	}

	page := make([]byte, bootproto.FlashPageSize)
	for i := range page {
		page[i] = 0xFF
	}
	encoded := bd.Encode()
	copy(page, encoded[:])

	return Program(offset, page)
}

// Package bootexec validates firmware banks and executes the jump into
// them: it is the only caller of internal/bootfsm that has to actually
// touch flash and the processor core, everything else in that decision is
// pure.
//
// ValidateWithCRC/ValidateBasic/NewValidator are plain functions built on
// internal/flashrom's uniform API and so need no tinygo/!tinygo split of
// their own. The actual "copy to RAM, relocate the vector table, jump"
// sequence does need one — see bootexec_tinygo.go and bootexec_stub.go —
// because it is inherently a one-way trip through real Cortex-M
// registers that has no meaningful host equivalent.
package bootexec

import (
	"adnt/crispyboot/internal/bootfsm"
	"adnt/crispyboot/internal/bootproto"
	"adnt/crispyboot/internal/flashrom"
)

// Layout is an alias so bootexec_tinygo.go and bootexec_stub.go don't
// each need their own import of bootproto just for this one type name.
type Layout = bootproto.MemoryLayout

// vectorTableWords is how many bytes of a bank's header this package
// reads to sanity-check the initial stack pointer and reset vector.
const vectorTableWords = 8

// readVectorTable returns (initialSP, resetVector) read from addr.
func readVectorTable(addr uint32) (sp, reset uint32, err error) {
	offset := addr - bootproto.FlashBase
	buf := make([]byte, vectorTableWords)
	if err := flashrom.ReadBytes(offset, buf); err != nil {
		return 0, 0, err
	}
	sp = uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
	reset = uint32(buf[4]) | uint32(buf[5])<<8 | uint32(buf[6])<<16 | uint32(buf[7])<<24
	return sp, reset, nil
}

// looksLikeFirmware reports whether addr's vector table has a stack
// pointer and reset vector that both fall inside the firmware RAM
// execution window — the same "basically plausible" check
// crispy-bootloader/src/boot.rs's VectorTable::is_valid_for_ram_execution
// uses as a fallback when CRC metadata is unavailable or wrong.
func looksLikeFirmware(layout bootproto.MemoryLayout, addr uint32) bool {
	sp, reset, err := readVectorTable(addr)
	if err != nil {
		return false
	}
	return layout.IsInRAM(sp) && layout.IsInRAM(reset)
}

// ValidateWithCRC reports whether the bank at addr both looks like
// firmware and matches its stored CRC/size metadata. size == 0 means "no
// firmware has ever been written here" and is always invalid.
func ValidateWithCRC(layout bootproto.MemoryLayout, addr, crc, size uint32) bool {
	if size == 0 {
		return false
	}
	if !looksLikeFirmware(layout, addr) {
		return false
	}
	offset := addr - bootproto.FlashBase
	actual, err := flashrom.ComputeCRC32(offset, size)
	if err != nil {
		return false
	}
	return actual == crc
}

// ValidateBasic reports whether the bank at addr looks like firmware,
// without checking its CRC — the fallback boot strategies use this when
// nothing has passed CRC validation.
func ValidateBasic(layout bootproto.MemoryLayout, addr uint32) bool {
	return looksLikeFirmware(layout, addr)
}

// NewValidator builds the bootfsm.Validator that SelectBootBank needs,
// backed by this package's flash-aware checks.
func NewValidator(layout bootproto.MemoryLayout) bootfsm.Validator {
	return func(addr, crc, size uint32) (crcValid, basicValid bool) {
		return ValidateWithCRC(layout, addr, crc, size), ValidateBasic(layout, addr)
	}
}

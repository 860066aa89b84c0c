// Package bootfsm selects which firmware bank to boot from. It is pure
// decision logic: every flash read or CRC check
// is injected as a validation callback, so the whole FSM is unit-testable
// without touching hardware.
//
// Two sources disagree slightly on what "rollback" means. The portable FSM
// in crispy-common/src/boot_fsm.rs only resets boot_attempts to 0 and
// leaves picking the active bank to the priority-ordered strategy table.
// The bootloader binary's own copy in crispy-bootloader/src/boot.rs
// additionally swaps active_bank before it even looks at CRCs, so a bank
// that has exhausted its attempts is never retried as primary — it is
// immediately demoted to fallback. The binary's copy is what actually runs
// on hardware, so that is the behavior this package reproduces; the
// strategy table and BankPair/BootDecision shapes are carried over from
// the portable module since they make the priority order an explicit,
// inspectable list rather than a chain of if-statements.
package bootfsm

import "adnt/crispyboot/internal/bootproto"

// MaxBootAttempts is the rollback threshold: once BootAttempts reaches this
// value without a confirmation, the FSM rolls back to the other bank.
const MaxBootAttempts = bootproto.MaxBootAttempts

// BankInfo describes one firmware bank as seen by the FSM.
type BankInfo struct {
	Addr   uint32
	CRC    uint32
	Size   uint32
	BankID uint8
}

// BankValidation carries the results of checking a bank, computed
// externally (by internal/flashrom reading real flash, or by a test
// supplying canned results).
type BankValidation struct {
	CRCValid   bool
	BasicValid bool
}

// BankPair is the primary bank (the current active_bank) and its fallback
// (the other bank), each with its validation result.
type BankPair struct {
	Primary            BankInfo
	PrimaryValidation  BankValidation
	Fallback           BankInfo
	FallbackValidation BankValidation
}

// NewBankPair builds a BankPair for activeBank from bd's stored CRC/size
// metadata and layout's flash addresses.
func NewBankPair(activeBank uint8, layout bootproto.MemoryLayout, bd bootproto.BootData) BankPair {
	fallbackBank := bootproto.ToggleBank(activeBank)
	primaryCRC, primarySize := bd.BankMetadata(activeBank)
	fallbackCRC, fallbackSize := bd.BankMetadata(fallbackBank)

	return BankPair{
		Primary: BankInfo{
			Addr:   layout.BankAddr(activeBank),
			CRC:    primaryCRC,
			Size:   primarySize,
			BankID: activeBank,
		},
		Fallback: BankInfo{
			Addr:   layout.BankAddr(fallbackBank),
			CRC:    fallbackCRC,
			Size:   fallbackSize,
			BankID: fallbackBank,
		},
	}
}

// WithValidation returns a copy of bp with validation results attached.
func (bp BankPair) WithValidation(primary, fallback BankValidation) BankPair {
	bp.PrimaryValidation = primary
	bp.FallbackValidation = fallback
	return bp
}

// BootDecision is the outcome of bank selection: which flash address to
// jump to, and the BootData fields that must be persisted before the jump.
type BootDecision struct {
	FlashAddr    uint32
	ActiveBank   uint8
	BootAttempts uint8
	Confirmed    uint8
}

// ApplyTo returns a copy of bd with the decision's bank-selection fields
// written in, leaving every other field (CRCs, sizes, versions) untouched.
func (d BootDecision) ApplyTo(bd bootproto.BootData) bootproto.BootData {
	bd.ActiveBank = d.ActiveBank
	bd.BootAttempts = d.BootAttempts
	bd.Confirmed = d.Confirmed
	return bd
}

// BootStrategy names one of the priority-ordered ways to pick a bank.
type BootStrategy int

const (
	PrimaryWithCRC BootStrategy = iota
	FallbackWithCRC
	PrimaryBasic
	FallbackBasic
)

// BootStrategies lists every strategy in the order select_boot_bank_fsm
// tries them: a CRC-verified primary beats a CRC-verified fallback beats a
// primary that merely looks like a valid vector table beats a fallback
// that merely looks valid.
var BootStrategies = [4]BootStrategy{
	PrimaryWithCRC,
	FallbackWithCRC,
	PrimaryBasic,
	FallbackBasic,
}

// NeedsRollback reports whether bd has exhausted its boot attempts without
// ever being confirmed good.
func NeedsRollback(bd bootproto.BootData) bool {
	return bd.BootAttempts >= MaxBootAttempts && bd.Confirmed == 0
}

// TryBootStrategy evaluates one strategy against banks. ok is false if the
// strategy's bank didn't pass the validation the strategy requires.
func TryBootStrategy(strategy BootStrategy, banks BankPair, currentAttempts uint8) (decision BootDecision, ok bool) {
	switch strategy {
	case PrimaryWithCRC:
		if banks.PrimaryValidation.CRCValid {
			return BootDecision{
				FlashAddr:    banks.Primary.Addr,
				ActiveBank:   banks.Primary.BankID,
				BootAttempts: currentAttempts + 1,
				Confirmed:    0,
			}, true
		}
	case FallbackWithCRC:
		if banks.FallbackValidation.CRCValid {
			return BootDecision{
				FlashAddr:    banks.Fallback.Addr,
				ActiveBank:   banks.Fallback.BankID,
				BootAttempts: 1,
				Confirmed:    0,
			}, true
		}
	case PrimaryBasic:
		if banks.PrimaryValidation.BasicValid {
			return BootDecision{
				FlashAddr:    banks.Primary.Addr,
				ActiveBank:   banks.Primary.BankID,
				BootAttempts: currentAttempts + 1,
				Confirmed:    0,
			}, true
		}
	case FallbackBasic:
		if banks.FallbackValidation.BasicValid {
			return BootDecision{
				FlashAddr:    banks.Fallback.Addr,
				ActiveBank:   banks.Fallback.BankID,
				BootAttempts: 1,
				Confirmed:    0,
			}, true
		}
	}
	return BootDecision{}, false
}

// Validator checks a bank's contents, returning whether its CRC matches
// the stored metadata and whether it merely looks like a valid firmware
// image (a plausible initial stack pointer and reset vector). Implemented
// by internal/bootexec.NewValidator against real flash, and by tests
// against a fake.
type Validator func(addr, crc, size uint32) (crcValid, basicValid bool)

// SelectBootBank runs the full bank-selection FSM: it applies rollback if
// bd's attempt counter is exhausted, validates the resulting primary and
// fallback banks, and returns the decision plus the BootData that should
// be persisted before jumping.
func SelectBootBank(bd bootproto.BootData, layout bootproto.MemoryLayout, validate Validator) (BootDecision, bootproto.BootData) {
	if NeedsRollback(bd) {
		bd.ActiveBank = bootproto.ToggleBank(bd.ActiveBank)
		bd.BootAttempts = 0
		bd.Confirmed = 0
	}

	banks := NewBankPair(bd.ActiveBank, layout, bd)
	pCRC, pBasic := validate(banks.Primary.Addr, banks.Primary.CRC, banks.Primary.Size)
	fCRC, fBasic := validate(banks.Fallback.Addr, banks.Fallback.CRC, banks.Fallback.Size)
	banks = banks.WithValidation(
		BankValidation{CRCValid: pCRC, BasicValid: pBasic},
		BankValidation{CRCValid: fCRC, BasicValid: fBasic},
	)

	decision := selectFromBanks(bd.BootAttempts, banks)
	return decision, decision.ApplyTo(bd)
}

// selectFromBanks is the pure strategy-table walk, split out from
// SelectBootBank so tests can exercise it directly with hand-built
// BankPair values instead of going through a Validator.
func selectFromBanks(currentAttempts uint8, banks BankPair) BootDecision {
	for _, strategy := range BootStrategies {
		if decision, ok := TryBootStrategy(strategy, banks, currentAttempts); ok {
			return decision
		}
	}
	// Nothing validated: fall back to the primary bank anyway rather than
	// returning an error this pure FSM has no way to signal. The caller is
	// responsible for re-checking the returned FlashAddr before jumping to
	// it (bootexec.ValidateBasic) and redirecting to update mode itself if
	// it still doesn't look like firmware.
	return BootDecision{
		FlashAddr:    banks.Primary.Addr,
		ActiveBank:   banks.Primary.BankID,
		BootAttempts: currentAttempts + 1,
		Confirmed:    0,
	}
}

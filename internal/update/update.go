// Package update implements the update-mode command state machine:
// GetStatus, StartUpdate, DataBlock, FinishUpdate, Reboot, SetActiveBank,
// and WipeAll, driving internal/flashrom underneath.
//
// Ported from crispy-bootloader/src/update.rs's handle_* functions. The
// session state lives inside Machine: callers pass each Command to
// Handle, and the Machine carries the Idle/Receiving state from one
// command to the next.
package update

import (
	"adnt/crispyboot/internal/bootproto"
)

// Phase is which sub-state the FSM is in.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseReceiving
)

// receivingState holds an in-progress upload's parameters.
type receivingState struct {
	bank          uint8
	bankAddr      uint32
	expectedSize  uint32
	expectedCRC   uint32
	version       uint32
	bytesReceived uint32
}

// Machine runs the update-mode FSM against a Flash implementation.
type Machine struct {
	layout    bootproto.MemoryLayout
	flash     Flash
	phase     Phase
	receiving receivingState
}

// Flash is the subset of internal/flashrom's API the update FSM needs.
// Defined as an interface here (rather than calling the package directly)
// so tests can swap in a fake without TinyGo's tinygo/!tinygo build-tag
// dance.
type Flash interface {
	Erase(offset, size uint32) error
	Program(offset uint32, data []byte) error
	ComputeCRC32(offset, size uint32) (uint32, error)
	ReadBootData() (bootproto.BootData, error)
	WriteBootData(bd bootproto.BootData) error
}

// New returns a Machine in PhaseIdle.
func New(layout bootproto.MemoryLayout, flash Flash) *Machine {
	return &Machine{layout: layout, flash: flash}
}

// Phase reports which sub-state the machine is currently in.
func (m *Machine) Phase() Phase {
	return m.phase
}

// Handle dispatches cmd and returns the Response to send. rebootAfter is
// true only for a successful Reboot command, after which the caller
// should delay briefly (~1s, to let the Ack drain out the transport) and
// then reset.
func (m *Machine) Handle(cmd bootproto.Command) (resp bootproto.Response, rebootAfter bool) {
	switch cmd.Tag {
	case bootproto.CmdGetStatus:
		return m.handleGetStatus()
	case bootproto.CmdStartUpdate:
		return m.handleStartUpdate(cmd.Bank, cmd.Size, cmd.CRC32, cmd.Version), false
	case bootproto.CmdDataBlock:
		return m.handleDataBlock(cmd.Offset, cmd.Data), false
	case bootproto.CmdFinishUpdate:
		return m.handleFinishUpdate(), false
	case bootproto.CmdReboot:
		return bootproto.AckResponse(bootproto.AckOk), true
	case bootproto.CmdSetActiveBank:
		return m.handleSetActiveBank(cmd.Bank), false
	case bootproto.CmdWipeAll:
		return m.handleWipeAll(), false
	default:
		return bootproto.AckResponse(bootproto.AckBadCommand), false
	}
}

func (m *Machine) handleGetStatus() (bootproto.Response, bool) {
	bd, err := m.flash.ReadBootData()
	if err != nil {
		return bootproto.AckResponse(bootproto.AckFlashError), false
	}

	state := bootproto.StateUpdateMode
	if m.phase == PhaseReceiving {
		state = bootproto.StateReceiving
	}
	return bootproto.StatusResponse(bd.ActiveBank, bd.VersionA, bd.VersionB, state), false
}

func (m *Machine) handleStartUpdate(bank uint8, size, crc32, version uint32) bootproto.Response {
	if m.phase != PhaseIdle {
		return bootproto.AckResponse(bootproto.AckBadState)
	}
	if bank > 1 {
		return bootproto.AckResponse(bootproto.AckBankInvalid)
	}
	if size == 0 || size > bootproto.FirmwareBankSize {
		return bootproto.AckResponse(bootproto.AckBankInvalid)
	}

	bankAddr := m.layout.BankAddr(bank)
	eraseSize := ceilToMultiple(size, bootproto.FlashSectorSize)
	offset := bankAddr - bootproto.FlashBase

	if err := m.flash.Erase(offset, eraseSize); err != nil {
		return bootproto.AckResponse(bootproto.AckFlashError)
	}

	m.phase = PhaseReceiving
	m.receiving = receivingState{
		bank:         bank,
		bankAddr:     bankAddr,
		expectedSize: size,
		expectedCRC:  crc32,
		version:      version,
	}
	return bootproto.AckResponse(bootproto.AckOk)
}

func (m *Machine) handleDataBlock(offset uint32, data []byte) bootproto.Response {
	if m.phase != PhaseReceiving {
		return bootproto.AckResponse(bootproto.AckBadState)
	}

	r := &m.receiving
	if offset != r.bytesReceived {
		return bootproto.AckResponse(bootproto.AckBadCommand)
	}
	if r.bytesReceived+uint32(len(data)) > r.expectedSize {
		return bootproto.AckResponse(bootproto.AckBadCommand)
	}

	paddedLen := ceilToMultiple(uint32(len(data)), bootproto.FlashPageSize)
	page := make([]byte, paddedLen)
	for i := range page {
		page[i] = 0xFF
	}
	copy(page, data)

	flashOffset := r.bankAddr - bootproto.FlashBase + r.bytesReceived
	if err := m.flash.Program(flashOffset, page); err != nil {
		return bootproto.AckResponse(bootproto.AckFlashError)
	}

	r.bytesReceived += uint32(len(data))
	return bootproto.AckResponse(bootproto.AckOk)
}

func (m *Machine) handleFinishUpdate() bootproto.Response {
	if m.phase != PhaseReceiving {
		return bootproto.AckResponse(bootproto.AckBadState)
	}
	r := m.receiving

	if r.bytesReceived != r.expectedSize {
		// Stay in Receiving: the host may retry the missing DataBlocks.
		return bootproto.AckResponse(bootproto.AckBadCommand)
	}

	offset := r.bankAddr - bootproto.FlashBase
	actualCRC, err := m.flash.ComputeCRC32(offset, r.expectedSize)
	if err != nil {
		m.phase = PhaseIdle
		return bootproto.AckResponse(bootproto.AckFlashError)
	}
	if actualCRC != r.expectedCRC {
		m.phase = PhaseIdle
		return bootproto.AckResponse(bootproto.AckCrcError)
	}

	bd, err := m.flash.ReadBootData()
	if err != nil {
		m.phase = PhaseIdle
		return bootproto.AckResponse(bootproto.AckFlashError)
	}
	bd.ActiveBank = r.bank
	bd.Confirmed = 0
	bd.BootAttempts = 0
	bd = bd.WithBankMetadata(r.bank, r.expectedSize, actualCRC, r.version)

	if err := m.flash.WriteBootData(bd); err != nil {
		m.phase = PhaseIdle
		return bootproto.AckResponse(bootproto.AckFlashError)
	}

	m.phase = PhaseIdle
	return bootproto.AckResponse(bootproto.AckOk)
}

func (m *Machine) handleSetActiveBank(bank uint8) bootproto.Response {
	if m.phase != PhaseIdle {
		return bootproto.AckResponse(bootproto.AckBadState)
	}
	if bank > 1 {
		return bootproto.AckResponse(bootproto.AckBankInvalid)
	}

	bd, err := m.flash.ReadBootData()
	if err != nil {
		return bootproto.AckResponse(bootproto.AckFlashError)
	}

	crc, size := bd.BankMetadata(bank)
	if size == 0 {
		return bootproto.AckResponse(bootproto.AckBankInvalid)
	}

	offset := m.layout.BankAddr(bank) - bootproto.FlashBase
	actualCRC, err := m.flash.ComputeCRC32(offset, size)
	if err != nil {
		return bootproto.AckResponse(bootproto.AckFlashError)
	}
	if actualCRC != crc {
		return bootproto.AckResponse(bootproto.AckCrcError)
	}

	bd.ActiveBank = bank
	bd.Confirmed = 0
	bd.BootAttempts = 0
	if err := m.flash.WriteBootData(bd); err != nil {
		return bootproto.AckResponse(bootproto.AckFlashError)
	}
	return bootproto.AckResponse(bootproto.AckOk)
}

func (m *Machine) handleWipeAll() bootproto.Response {
	if m.phase != PhaseIdle {
		return bootproto.AckResponse(bootproto.AckBadState)
	}
	if err := m.flash.WriteBootData(bootproto.DefaultBootData()); err != nil {
		return bootproto.AckResponse(bootproto.AckFlashError)
	}
	return bootproto.AckResponse(bootproto.AckOk)
}

func ceilToMultiple(n, multiple uint32) uint32 {
	if n == 0 {
		return 0
	}
	return ((n + multiple - 1) / multiple) * multiple
}

//go:build !tinygo

package update

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
	}
}

func newMachine(t *testing.T) *Machine {
	t.Helper()
	flashrom.ResetFakeFlash()
	t.Cleanup(flashrom.ResetFakeFlash)
	return New(testLayout(), flashrom.Flash{})
}

// Scenario S1: a full, correct upload ends with BootData pointing at the
// new bank, unconfirmed.
func TestHappyPathUpload(t *testing.T) {
	m := newMachine(t)

	firmware := make([]byte, 600)
	for i := range firmware {
		firmware[i] = byte(i * 3)
	}
	crc := crc32hdlc.Checksum(firmware)

	resp, reboot := m.Handle(bootproto.Command{
		Tag: bootproto.CmdStartUpdate, Bank: 0, Size: uint32(len(firmware)), CRC32: crc, Version: 5,
	})
	if reboot || resp.Status != bootproto.AckOk {
		t.Fatalf("StartUpdate: resp=%+v reboot=%v", resp, reboot)
	}
	if m.Phase() != PhaseReceiving {
		t.Fatalf("Phase after StartUpdate = %v, want PhaseReceiving", m.Phase())
	}

	resp, _ = m.Handle(bootproto.Command{Tag: bootproto.CmdDataBlock, Offset: 0, Data: firmware})
	if resp.Status != bootproto.AckOk {
		t.Fatalf("DataBlock: resp=%+v", resp)
	}

	resp, _ = m.Handle(bootproto.Command{Tag: bootproto.CmdFinishUpdate})
	if resp.Status != bootproto.AckOk {
		t.Fatalf("FinishUpdate: resp=%+v", resp)
	}
	if m.Phase() != PhaseIdle {
		t.Fatalf("Phase after FinishUpdate = %v, want PhaseIdle", m.Phase())
	}

	bd, err := m.flash.ReadBootData()
	if err != nil {
		t.Fatalf("ReadBootData: %v", err)
	}
	if bd.ActiveBank != 0 || bd.Confirmed != 0 || bd.CRCA != crc || bd.SizeA != uint32(len(firmware)) {
		t.Fatalf("BootData after upload = %+v", bd)
	}
}

// Scenario S2: a CRC mismatch at FinishUpdate returns to Idle without
// committing the bank.
func TestFinishUpdateCRCMismatch(t *testing.T) {
	m := newMachine(t)

	resp, _ := m.Handle(bootproto.Command{Tag: bootproto.CmdStartUpdate, Bank: 0, Size: 16, CRC32: 0xDEADBEEF, Version: 1})
	if resp.Status != bootproto.AckOk {
		t.Fatalf("StartUpdate: %+v", resp)
	}

	resp, _ = m.Handle(bootproto.Command{Tag: bootproto.CmdDataBlock, Offset: 0, Data: make([]byte, 16)})
	if resp.Status != bootproto.AckOk {
		t.Fatalf("DataBlock: %+v", resp)
	}

	resp, _ = m.Handle(bootproto.Command{Tag: bootproto.CmdFinishUpdate})
	if resp.Status != bootproto.AckCrcError {
		t.Fatalf("FinishUpdate: resp=%+v, want AckCrcError", resp)
	}
	if m.Phase() != PhaseIdle {
		t.Fatalf("Phase after CRC mismatch = %v, want PhaseIdle", m.Phase())
	}
}

// Scenario S3: a DataBlock with a non-sequential offset is rejected and
// the FSM stays in Receiving so the host can retry.
func TestDataBlockOutOfOrderOffset(t *testing.T) {
	m := newMachine(t)

	m.Handle(bootproto.Command{Tag: bootproto.CmdStartUpdate, Bank: 0, Size: 32, CRC32: 1, Version: 1})

	resp, _ := m.Handle(bootproto.Command{Tag: bootproto.CmdDataBlock, Offset: 16, Data: make([]byte, 16)})
	if resp.Status != bootproto.AckBadCommand {
		t.Fatalf("out-of-order DataBlock: resp=%+v, want AckBadCommand", resp)
	}
	if m.Phase() != PhaseReceiving {
		t.Fatalf("Phase after rejected DataBlock = %v, want PhaseReceiving", m.Phase())
	}
}

// Scenario S5: GetStatus works from Idle / before any update starts, and
// reports UpdateMode.
func TestGetStatusFromIdle(t *testing.T) {
	m := newMachine(t)

	resp, _ := m.Handle(bootproto.Command{Tag: bootproto.CmdGetStatus})
	if resp.Tag != bootproto.RespStatus || resp.State != bootproto.StateUpdateMode {
		t.Fatalf("GetStatus from idle: resp=%+v", resp)
	}
}

func TestGetStatusWhileReceiving(t *testing.T) {
	m := newMachine(t)
	m.Handle(bootproto.Command{Tag: bootproto.CmdStartUpdate, Bank: 0, Size: 16, CRC32: 1, Version: 1})

	resp, _ := m.Handle(bootproto.Command{Tag: bootproto.CmdGetStatus})
	if resp.State != bootproto.StateReceiving {
		t.Fatalf("GetStatus while receiving: state=%v, want StateReceiving", resp.State)
	}
}

// Scenario S6: SetActiveBank targeting an empty bank is rejected.
func TestSetActiveBankEmptyTarget(t *testing.T) {
	m := newMachine(t)

	resp, _ := m.Handle(bootproto.Command{Tag: bootproto.CmdSetActiveBank, Bank: 1})
	if resp.Status != bootproto.AckBankInvalid {
		t.Fatalf("SetActiveBank on empty bank: resp=%+v, want AckBankInvalid", resp)
	}
}

func TestSetActiveBankCRCMismatchRejected(t *testing.T) {
	m := newMachine(t)

	// Commit bank 1 with a known-good CRC, then corrupt it by writing a
	// bogus CRC into BootData so SetActiveBank's re-check fails.
	firmware := []byte{1, 2, 3, 4}
	crc := crc32hdlc.Checksum(firmware)
	m.Handle(bootproto.Command{Tag: bootproto.CmdStartUpdate, Bank: 1, Size: uint32(len(firmware)), CRC32: crc, Version: 1})
	m.Handle(bootproto.Command{Tag: bootproto.CmdDataBlock, Offset: 0, Data: firmware})
	m.Handle(bootproto.Command{Tag: bootproto.CmdFinishUpdate})

	bd, _ := m.flash.ReadBootData()
	bd.CRCB = crc + 1
	m.flash.WriteBootData(bd)

	resp, _ := m.Handle(bootproto.Command{Tag: bootproto.CmdSetActiveBank, Bank: 1})
	if resp.Status != bootproto.AckCrcError {
		t.Fatalf("SetActiveBank with corrupted CRC: resp=%+v, want AckCrcError", resp)
	}
}

func TestStartUpdateRejectsBadBank(t *testing.T) {
	m := newMachine(t)
	resp, _ := m.Handle(bootproto.Command{Tag: bootproto.CmdStartUpdate, Bank: 2, Size: 16})
	if resp.Status != bootproto.AckBankInvalid {
		t.Fatalf("StartUpdate bank=2: resp=%+v, want AckBankInvalid", resp)
	}
}

func TestStartUpdateRejectsOversizedImage(t *testing.T) {
	m := newMachine(t)
	resp, _ := m.Handle(bootproto.Command{Tag: bootproto.CmdStartUpdate, Bank: 0, Size: bootproto.FirmwareBankSize + 1})
	if resp.Status != bootproto.AckBankInvalid {
		t.Fatalf("StartUpdate oversized: resp=%+v, want AckBankInvalid", resp)
	}
}

func TestStartUpdateRejectedWhileReceiving(t *testing.T) {
	m := newMachine(t)
	m.Handle(bootproto.Command{Tag: bootproto.CmdStartUpdate, Bank: 0, Size: 16, CRC32: 1})

	resp, _ := m.Handle(bootproto.Command{Tag: bootproto.CmdStartUpdate, Bank: 1, Size: 16, CRC32: 1})
	if resp.Status != bootproto.AckBadState {
		t.Fatalf("second StartUpdate: resp=%+v, want AckBadState", resp)
	}
}

func TestWipeAllResetsBootData(t *testing.T) {
	m := newMachine(t)

	resp, _ := m.Handle(bootproto.Command{Tag: bootproto.CmdWipeAll})
	if resp.Status != bootproto.AckOk {
		t.Fatalf("WipeAll: resp=%+v", resp)
	}
	bd, _ := m.flash.ReadBootData()
	if bd != bootproto.DefaultBootData() {
		t.Fatalf("BootData after WipeAll = %+v, want default", bd)
	}
}

func TestRebootAcksAndSignalsCaller(t *testing.T) {
	m := newMachine(t)
	resp, reboot := m.Handle(bootproto.Command{Tag: bootproto.CmdReboot})
	if resp.Status != bootproto.AckOk || !reboot {
		t.Fatalf("Reboot: resp=%+v reboot=%v", resp, reboot)
	}
}

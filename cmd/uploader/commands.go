package main

import (
	"fmt"
	"os"
	"time"

	"adnt/crispyboot/internal/bootproto"
	"adnt/crispyboot/internal/crc32hdlc"
)

// cmdStatus prints the device's current bootloader status.
func cmdStatus(t *Transport) error {
	resp, err := t.SendRecv(bootproto.Command{Tag: bootproto.CmdGetStatus})
	if err != nil {
		return err
	}

	switch resp.Tag {
	case bootproto.RespStatus:
		fmt.Println("Bootloader Status:")
		bankName := "A"
		if resp.ActiveBank != 0 {
			bankName = "B"
		}
		fmt.Printf("  Active bank: %d (%s)\n", resp.ActiveBank, bankName)
		fmt.Printf("  Version A:   %d\n", resp.VersionA)
		fmt.Printf("  Version B:   %d\n", resp.VersionB)
		fmt.Printf("  State:       %s\n", resp.State)
	case bootproto.RespAck:
		fmt.Printf("Unexpected ACK response: %s\n", resp.Status)
	}
	return nil
}

// cmdUpload reads file and streams it to bank in MaxDataBlockSize chunks.
func cmdUpload(t *Transport, file string, bank uint8, version uint32) error {
	firmware, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read %s: %w", file, err)
	}
	size := uint32(len(firmware))
	crc := crc32hdlc.Checksum(firmware)
	bankName := "A"
	if bank != 0 {
		bankName = "B"
	}

	fmt.Printf("Firmware: %s (%d bytes, CRC32: 0x%08x)\n", file, size, crc)
	fmt.Printf("Target:   Bank %d (%s)\n", bank, bankName)
	fmt.Printf("Version:  %d\n\n", version)

	fmt.Print("Starting update (erasing bank)... ")
	t.SetTimeout(60 * time.Second) // bank erase can take tens of seconds
	resp, err := t.SendRecv(bootproto.Command{
		Tag: bootproto.CmdStartUpdate, Bank: bank, Size: size, CRC32: crc, Version: version,
	})
	t.SetTimeout(defaultTimeout)
	if err != nil {
		return err
	}
	if resp.Tag != bootproto.RespAck || resp.Status != bootproto.AckOk {
		return fmt.Errorf("StartUpdate failed: %s", resp.Status)
	}
	fmt.Println("OK")

	offset := uint32(0)
	for offset < size {
		end := offset + bootproto.MaxDataBlockSize
		if end > size {
			end = size
		}
		resp, err := t.SendRecv(bootproto.Command{
			Tag: bootproto.CmdDataBlock, Offset: offset, Data: firmware[offset:end],
		})
		if err != nil {
			return fmt.Errorf("DataBlock at offset %d: %w", offset, err)
		}
		if resp.Tag != bootproto.RespAck || resp.Status != bootproto.AckOk {
			return fmt.Errorf("DataBlock failed at offset %d: %s", offset, resp.Status)
		}
		offset = end
		fmt.Printf("\r  %d/%d bytes", offset, size)
	}
	fmt.Println()

	fmt.Print("Finalizing... ")
	resp, err = t.SendRecv(bootproto.Command{Tag: bootproto.CmdFinishUpdate})
	if err != nil {
		return err
	}
	if resp.Tag != bootproto.RespAck || resp.Status != bootproto.AckOk {
		return fmt.Errorf("FinishUpdate failed: %s", resp.Status)
	}
	fmt.Println("OK")

	fmt.Println("\nFirmware uploaded successfully!")
	fmt.Printf("Use '%s --port %s reboot' to restart the device.\n", os.Args[0], t.PortName())
	return nil
}

// cmdSetBank selects bank as the active boot target without uploading.
func cmdSetBank(t *Transport, bank uint8) error {
	bankName := "A"
	if bank != 0 {
		bankName = "B"
	}
	fmt.Printf("Setting active bank to %d (%s)...\n", bank, bankName)

	resp, err := t.SendRecv(bootproto.Command{Tag: bootproto.CmdSetActiveBank, Bank: bank})
	if err != nil {
		return err
	}
	if resp.Tag != bootproto.RespAck || resp.Status != bootproto.AckOk {
		return fmt.Errorf("SetActiveBank failed: %s", resp.Status)
	}
	fmt.Println("Active bank set successfully.")
	fmt.Printf("Use '%s --port %s reboot' to restart the device.\n", os.Args[0], t.PortName())
	return nil
}

// cmdWipe resets boot data, invalidating every bank.
func cmdWipe(t *Transport) error {
	fmt.Println("Resetting boot data (invalidates all firmware)...")

	resp, err := t.SendRecv(bootproto.Command{Tag: bootproto.CmdWipeAll})
	if err != nil {
		return err
	}
	if resp.Tag != bootproto.RespAck || resp.Status != bootproto.AckOk {
		return fmt.Errorf("wipe failed: %s", resp.Status)
	}
	fmt.Println("Boot data reset. Firmware banks marked as invalid.")
	fmt.Println("Device is now in update mode, ready for firmware upload.")
	return nil
}

// cmdReboot asks the device to reset.
func cmdReboot(t *Transport) error {
	fmt.Print("Rebooting device... ")
	resp, err := t.SendRecv(bootproto.Command{Tag: bootproto.CmdReboot})
	if err != nil {
		return err
	}
	if resp.Tag != bootproto.RespAck || resp.Status != bootproto.AckOk {
		return fmt.Errorf("reboot failed: %s", resp.Status)
	}
	fmt.Println("OK")
	return nil
}

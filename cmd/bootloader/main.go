//go:build tinygo

// Command bootloader is the A/B firmware bootloader for the RP2040: on
// every reset it decides between entering USB update mode and selecting
// and jumping into one of the two firmware banks.
package main

import (
	"log/slog"
	"machine"
	"time"

	"adnt/crispyboot/internal/bootexec"
	"adnt/crispyboot/internal/bootfsm"
	"adnt/crispyboot/internal/bootproto"
	"adnt/crispyboot/internal/dispatch"
	"adnt/crispyboot/internal/flashrom"
	"adnt/crispyboot/internal/transport"
	"adnt/crispyboot/internal/update"
	"adnt/crispyboot/version"
)

func layout() bootproto.MemoryLayout {
	return bootproto.MemoryLayout{
		FirmwareA:    bootproto.FirmwareAAddr,
		FirmwareB:    bootproto.FirmwareBAddr,
		RAMBase:      0x20000000,
		RAMStart:     0x20000000,
		RAMEnd:       0x20040000,
		CopySize:     bootproto.FirmwareBankSize,
		BootDataAddr: bootproto.BootDataAddr,
	}
}

func main() {
	time.Sleep(200 * time.Millisecond) // let USB CDC enumerate before first println

	logger := slog.New(slog.NewTextHandler(machine.Serial, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	println("========================================")
	println("  crispy bootloader")
	println("  Version:", version.Version)
	println("  Git SHA:", version.GitSHA)
	println("========================================")

	if err := flashrom.Init(); err != nil {
		logger.Error("flash:init-failed", slog.String("err", err.Error()))
		haltAndReset()
	}

	dispatch.ConfigurePin()
	l := layout()

	if dispatch.ShouldEnterUpdateMode(dispatch.NewHardwareTrigger()) {
		logger.Info("boot:update-mode-requested")
		runUpdateMode(logger, l)
		// runUpdateMode does not return: a Reboot command resets the
		// device from inside its loop.
	}

	logger.Info("boot:normal")
	runNormalBoot(logger, l)
}

func runNormalBoot(logger *slog.Logger, l bootproto.MemoryLayout) {
	bd, err := flashrom.ReadBootData()
	if err != nil {
		logger.Error("bootdata:read-failed", slog.String("err", err.Error()))
		bd = bootproto.DefaultBootData()
	}

	logger.Info("bootdata",
		slog.Int("active_bank", int(bd.ActiveBank)),
		slog.Int("confirmed", int(bd.Confirmed)),
		slog.Int("attempts", int(bd.BootAttempts)),
		slog.Int("size_a", int(bd.SizeA)),
		slog.Int("size_b", int(bd.SizeB)),
		slog.Bool("valid", bd.IsValid()),
	)

	// BootData is valid but no firmware has ever been uploaded to either
	// bank: there is nothing select_boot_bank could pick, so don't even
	// try.
	if bd.IsValid() && bd.SizeA == 0 && bd.SizeB == 0 {
		logger.Info("boot:no-firmware-uploaded")
		runUpdateMode(logger, l)
		return
	}

	bd = bd.Normalized()

	decision, newBD := bootfsm.SelectBootBank(bd, l, bootexec.NewValidator(l))
	if newBD != bd {
		if err := flashrom.WriteBootData(newBD); err != nil {
			logger.Error("bootdata:write-failed", slog.String("err", err.Error()))
		}
	}

	// selectFromBanks falls back to "primary anyway" when nothing
	// validates, since the pure FSM has no way to signal failure. Recheck
	// the bank it picked before committing to a jump into it.
	if !bootexec.ValidateBasic(l, decision.FlashAddr) {
		logger.Info("boot:no-valid-firmware")
		runUpdateMode(logger, l)
		return
	}

	logger.Info("boot:jumping",
		slog.Int("bank", int(decision.ActiveBank)),
		slog.Uint64("addr", uint64(decision.FlashAddr)),
	)

	bootexec.Execute(l, decision.FlashAddr)
}

func runUpdateMode(logger *slog.Logger, l bootproto.MemoryLayout) {
	m := update.New(l, flashrom.Flash{})
	tr := transport.New(machine.Serial)

	logger.Info("update:listening")
	for {
		cmd, ok, err := tr.TryReceive()
		if err != nil {
			logger.Warn("update:frame-error", slog.String("err", err.Error()))
			continue
		}
		if !ok {
			time.Sleep(time.Millisecond)
			continue
		}

		resp, rebootAfter := m.Handle(cmd)
		if err := tr.Send(resp); err != nil {
			logger.Warn("update:send-failed", slog.String("err", err.Error()))
		}
		if rebootAfter {
			time.Sleep(time.Second) // let the ack drain over USB
			haltAndReset()
		}
	}
}

// haltAndReset triggers a watchdog-driven reset when there is nothing
// better to do.
func haltAndReset() {
	machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 1000})
	machine.Watchdog.Start()
	for {
		time.Sleep(time.Second)
	}
}

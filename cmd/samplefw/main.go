//go:build tinygo

// Command samplefw is a demonstration firmware image for the bootloader:
// it confirms its own boot on startup, exposes a debug console and an
// MQTT status channel, and can request a return to update mode either
// from the console or from MQTT.
package main

import (
	"log/slog"
	"machine"
	"net/netip"
	"time"

	"adnt/crispyboot/config"
	"adnt/crispyboot/credentials"
	"adnt/crispyboot/telemetry"
	"adnt/crispyboot/version"

	"adnt/crispyboot/internal/firmware"
	"adnt/crispyboot/internal/flashrom"

	"github.com/soypat/cyw43439"
	"github.com/soypat/cyw43439/examples/cywnet"
)

const pollTime = 5 * time.Millisecond

var requestedIP = [4]byte{192, 168, 1, 100}

// statusChan, when signalled, makes the MQTT loop publish immediately
// instead of waiting out StatusPublishInterval. Nothing in this firmware
// sends on it; the console's "status" command only prints BootData.
var statusChan = make(chan struct{}, 1)

func main() {
	time.Sleep(2 * time.Second) // let USB CDC enumerate before first println

	println("========================================")
	println("  crispy sample firmware")
	println("  Version:", version.Version)
	println("========================================")

	logger := slog.New(telemetry.NewSlogHandler(machine.Serial, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	if flashrom.Init() != nil {
		logger.Error("flash:init-failed")
	}
	if firmware.ConfirmBoot(flashrom.Flash{}) {
		logger.Info("boot:confirmed")
	} else {
		logger.Warn("boot:confirm-skipped")
	}

	machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 8000})
	machine.Watchdog.Start()

	netLogger := slog.New(slog.NewTextHandler(machine.Serial, &slog.HandlerOptions{
		Level: slog.Level(12), // suppress routine network-stack noise
	}))

	devcfg := cyw43439.DefaultWifiConfig()
	devcfg.Logger = netLogger
	cystack, err := cywnet.NewConfiguredPicoWithStack(
		credentials.SSID(),
		credentials.Password(),
		devcfg,
		cywnet.StackConfig{
			Hostname:    "crispy-samplefw",
			MaxTCPPorts: 2, // debug console + MQTT status
		},
	)
	if err != nil {
		logger.Error("wifi:setup-failed", slog.String("err", err.Error()))
		haltForWatchdog()
	}

	go loopForeverStack(cystack)

	dhcp, err := cystack.SetupWithDHCP(cywnet.DHCPConfig{
		RequestedAddr: netip.AddrFrom4(requestedIP),
	})
	if err != nil {
		logger.Error("dhcp:failed", slog.String("err", err.Error()))
		haltForWatchdog()
	}
	logger.Info("dhcp:complete", slog.String("addr", dhcp.AssignedAddr.String()))

	stack := cystack.LnetoStack()
	if collectorAddr, err := config.TelemetryCollectorAddr(); err == nil {
		if err := telemetry.Init(stack, logger, collectorAddr); err != nil {
			logger.Warn("telemetry:init-failed", slog.String("err", err.Error()))
		} else {
			telemetry.GenerateTraceID(stack)
		}
	}

	go consoleServer(stack, logger)

	brokerAddr, err := config.BrokerAddr()
	if err != nil {
		logger.Warn("mqtt:broker-invalid", slog.String("err", err.Error()))
	}

	for {
		machine.Watchdog.Update()

		if err == nil {
			if pubErr := publishStatus(stack, brokerAddr, logger); pubErr != nil {
				logger.Warn("mqtt:publish-failed", slog.String("err", pubErr.Error()))
			}
		}

		select {
		case <-statusChan:
			logger.Info("status:manual-publish-requested")
		case <-time.After(config.StatusPublishInterval()):
		}
	}
}

func haltForWatchdog() {
	for {
		time.Sleep(time.Second)
	}
}

func loopForeverStack(stack *cywnet.Stack) {
	var count int
	for {
		send, recv, _ := stack.RecvAndSend()
		if send == 0 && recv == 0 {
			time.Sleep(pollTime)
		}
		count++
		if count >= 100 {
			machine.Watchdog.Update()
			count = 0
		}
	}
}

//go:build tinygo

package main

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/netip"
	"time"

	"adnt/crispyboot/config"
	"adnt/crispyboot/internal/firmware"
	"adnt/crispyboot/internal/flashrom"
	"adnt/crispyboot/telemetry"

	"github.com/soypat/lneto/tcp"
	"github.com/soypat/lneto/x/xnet"
	mqtt "github.com/soypat/natiu-mqtt"
)

const (
	mqttTimeout = 10 * time.Second
	mqttRetries = 3
	tcpBufSize  = 2030
	mqttBufSize = 256
)

var (
	topicStatus  = []byte("crispy/status")
	topicControl = []byte("crispy/control")
)

var (
	statusTCPRxBuf [tcpBufSize]byte
	statusTCPTxBuf [tcpBufSize]byte
	statusUserBuf  [mqttBufSize]byte
)

var pubFlags, _ = mqtt.NewPublishFlags(mqtt.QoS0, false, false)

// publishStatus connects to brokerAddr, publishes the current BootData's
// confirmed/boot_attempts fields to topicStatus, and subscribes to
// topicControl for a remote "request-bootloader" trigger — an
// MQTT-reachable alternative to the GPIO/RAM-sentinel triggers
// internal/dispatch checks locally.
func publishStatus(stack *xnet.StackAsync, brokerAddr netip.AddrPort, logger *slog.Logger) error {
	spanIdx := telemetry.StartSpan(stack, "mqtt.publish_status")
	ok := false
	defer func() { telemetry.EndSpan(spanIdx, ok) }()

	rstack := stack.StackRetrying(5 * time.Millisecond)

	var conn tcp.Conn
	if err := conn.Configure(tcp.ConnConfig{
		RxBuf:             statusTCPRxBuf[:],
		TxBuf:             statusTCPTxBuf[:],
		TxPacketQueueSize: 3,
	}); err != nil {
		return err
	}
	defer conn.Abort()

	cfg := mqtt.ClientConfig{
		Decoder: mqtt.DecoderNoAlloc{UserBuffer: statusUserBuf[:]},
		OnPub:   onControlMessage,
	}
	clientID := config.ClientID()
	if clientID == "" {
		clientID = "crispy-samplefw"
	}
	var varconn mqtt.VariablesConnect
	varconn.SetDefaultMQTT([]byte(clientID))
	client := mqtt.NewClient(cfg)

	lport := uint16(stack.Prand32()>>17) + 1024
	if err := rstack.DoDialTCP(&conn, lport, brokerAddr, mqttTimeout, mqttRetries); err != nil {
		return err
	}

	conn.SetDeadline(time.Now().Add(mqttTimeout))
	if err := client.StartConnect(&conn, &varconn); err != nil {
		return err
	}

	retries := 50
	for retries > 0 && !client.IsConnected() {
		time.Sleep(100 * time.Millisecond)
		client.HandleNext()
		retries--
	}
	if !client.IsConnected() {
		return errors.New("mqtt connect timeout")
	}

	varSub := mqtt.VariablesSubscribe{
		TopicFilters: []mqtt.SubscribeRequest{{TopicFilter: topicControl, QoS: mqtt.QoS0}},
	}
	varSub.PacketIdentifier = uint16(stack.Prand32())
	if err := client.StartSubscribe(varSub); err != nil {
		return err
	}
	for i := 0; i < 10; i++ {
		time.Sleep(100 * time.Millisecond)
		client.HandleNext()
	}

	bd, err := flashrom.ReadBootData()
	if err != nil {
		return err
	}
	payload := []byte{bd.ActiveBank, bd.Confirmed, bd.BootAttempts}

	telemetry.RecordGauge("boot.active_bank", int64(bd.ActiveBank))
	telemetry.RecordGauge("boot.confirmed", int64(bd.Confirmed))
	telemetry.RecordGauge("boot.attempts", int64(bd.BootAttempts))

	pubVar := mqtt.VariablesPublish{
		TopicName:        topicStatus,
		PacketIdentifier: uint16(stack.Prand32()),
	}
	if err := client.PublishPayload(pubFlags, pubVar, payload); err != nil {
		return err
	}
	logger.Info("mqtt:published",
		slog.Int("active_bank", int(bd.ActiveBank)),
		slog.Int("confirmed", int(bd.Confirmed)),
		slog.Int("attempts", int(bd.BootAttempts)),
	)

	for i := 0; i < 10; i++ {
		time.Sleep(100 * time.Millisecond)
		client.HandleNext()
	}
	ok = true
	return nil
}

// onControlMessage reacts to topicControl: a payload of "reboot-bootloader"
// requests a return to update mode from the network, as an alternative
// trigger source to the pin/sentinel ones dispatch checks locally.
func onControlMessage(pubHead mqtt.Header, varPub mqtt.VariablesPublish, r io.Reader) error {
	if !bytes.Equal(varPub.TopicName, topicControl) {
		return nil
	}

	var buf [32]byte
	n, err := r.Read(buf[:])
	if err != nil && err != io.EOF {
		return err
	}
	if string(buf[:n]) == "reboot-bootloader" {
		telemetry.RecordCounter("control.reboot_requested", 1)
		firmware.RequestBootloader()
	}
	return nil
}

//go:build tinygo

package main

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"adnt/crispyboot/credentials"
	"adnt/crispyboot/internal/firmware"
	"adnt/crispyboot/internal/flashrom"
	"adnt/crispyboot/telemetry"

	"github.com/soypat/lneto/tcp"
	"github.com/soypat/lneto/x/xnet"
)

const (
	consolePort    = uint16(23)
	consoleBufSize = 256
)

var (
	consoleRxBuf [consoleBufSize]byte
	consoleTxBuf [consoleBufSize]byte
	consoleBuf   [consoleBufSize]byte
)

// consoleServer runs a small TCP debug console demonstrating the two
// calls a firmware image makes into the bootloader contract.
func consoleServer(stack *xnet.StackAsync, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("console:panic-recovered")
		}
	}()

	var conn tcp.Conn
	if err := conn.Configure(tcp.ConnConfig{
		RxBuf:             consoleRxBuf[:],
		TxBuf:             consoleTxBuf[:],
		TxPacketQueueSize: 3,
	}); err != nil {
		logger.Error("console:configure-failed", slog.String("err", err.Error()))
		return
	}

	ourAddr := netip.AddrPortFrom(stack.Addr(), consolePort)
	logger.Info("console:listening", slog.String("addr", ourAddr.String()))

	for {
		conn.Abort()
		time.Sleep(100 * time.Millisecond)

		if err := stack.ListenTCP(&conn, consolePort); err != nil {
			logger.Error("console:listen-failed", slog.String("err", err.Error()))
			time.Sleep(3 * time.Second)
			continue
		}

		waitCount := 0
		for conn.State().IsPreestablished() && waitCount < 6000 {
			time.Sleep(10 * time.Millisecond)
			waitCount++
		}
		if conn.State().IsClosed() {
			continue
		}

		logger.Info("console:connected")
		if authenticateConsole(&conn) {
			handleConsoleSession(stack, &conn, logger)
		} else {
			logger.Warn("console:auth-failed")
		}
		for i := 0; i < 20 && !conn.State().IsClosed(); i++ {
			time.Sleep(100 * time.Millisecond)
		}
		conn.Abort()
		logger.Info("console:disconnected")
	}
}

// authenticateConsole reads a single password line before any command is
// accepted, gating the debug console behind credentials.ConsolePassword().
// An empty configured password leaves the console open, matching the
// go:embed "supply it locally or leave it blank" convention the rest of
// the credentials package follows.
func authenticateConsole(conn *tcp.Conn) bool {
	want := credentials.ConsolePassword()
	if want == "" {
		return true
	}

	conn.Write([]byte("password: "))
	conn.Flush()

	var buf [consoleBufSize]byte
	var n int
	var readBuf [64]byte
	for n < len(buf)-1 {
		got, err := conn.Read(readBuf[:])
		if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
			return false
		}
		if got == 0 {
			time.Sleep(50 * time.Millisecond)
			continue
		}
		done := false
		for i := 0; i < got; i++ {
			b := readBuf[i]
			if b == '\n' || b == '\r' {
				done = true
				break
			}
			buf[n] = b
			n++
		}
		if done {
			break
		}
	}

	conn.Write([]byte("\r\n"))
	return string(buf[:n]) == want
}

func handleConsoleSession(stack *xnet.StackAsync, conn *tcp.Conn, logger *slog.Logger) {
	var cmdLen int
	var readBuf [64]byte

	for {
		if conn.State().IsClosed() || conn.State().IsClosing() || !conn.State().RxDataOpen() {
			return
		}

		n, err := conn.Read(readBuf[:])
		if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
			return
		}
		if n == 0 {
			time.Sleep(50 * time.Millisecond)
			continue
		}

		gotNewline := false
		for i := 0; i < n && cmdLen < len(consoleBuf)-1; i++ {
			b := readBuf[i]
			if b == '\n' || b == '\r' {
				if gotNewline {
					continue
				}
				gotNewline = true
				if cmdLen > 0 {
					processCommand(stack, conn, consoleBuf[:cmdLen], logger)
				}
				cmdLen = 0
				conn.Write([]byte("> "))
				conn.Flush()
			} else if b >= 32 && b < 127 {
				consoleBuf[cmdLen] = b
				cmdLen++
				gotNewline = false
			}
		}
	}
}

func processCommand(stack *xnet.StackAsync, conn *tcp.Conn, cmd []byte, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("console:command-panic")
		}
	}()

	spanIdx := telemetry.StartSpan(stack, "console."+string(cmd))
	ok := true
	defer func() { telemetry.EndSpan(spanIdx, ok) }()

	switch string(cmd) {
	case "help":
		conn.Write([]byte("Commands: help status confirm request-bootloader\r\n"))

	case "status":
		bd, err := flashrom.ReadBootData()
		if err != nil {
			conn.Write([]byte("BootData read error\r\n"))
			ok = false
			return
		}
		conn.Write([]byte("bank="))
		writeUint(conn, uint64(bd.ActiveBank))
		conn.Write([]byte(" confirmed="))
		writeUint(conn, uint64(bd.Confirmed))
		conn.Write([]byte(" attempts="))
		writeUint(conn, uint64(bd.BootAttempts))
		conn.Write([]byte("\r\n"))

	case "confirm":
		if firmware.ConfirmBoot(flashrom.Flash{}) {
			conn.Write([]byte("confirmed\r\n"))
		} else {
			conn.Write([]byte("confirm failed: invalid BootData\r\n"))
			ok = false
		}

	case "request-bootloader":
		conn.Write([]byte("rebooting into update mode...\r\n"))
		conn.Flush()
		telemetry.RecordCounter("control.reboot_requested", 1)
		firmware.RequestBootloader()

	default:
		conn.Write([]byte("unknown command\r\n"))
		ok = false
	}
}

func writeUint(conn *tcp.Conn, v uint64) {
	if v == 0 {
		conn.Write([]byte("0"))
		return
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	conn.Write(buf[i:])
}

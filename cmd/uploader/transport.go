// Command uploader is the host-side tool for talking to a device running
// the bootloader over its USB CDC serial port: checking status, uploading
// firmware, selecting the active bank, wiping boot data, and rebooting.
//
// Grounded on crispy-upload/src/transport.rs's Transport: open the serial
// port, drain stale bytes before each request, write a COBS-framed command,
// and read byte-by-byte until the 0x00 delimiter.
package main

import (
	"bufio"
	"fmt"
	"time"

	"go.bug.st/serial"

	"adnt/crispyboot/internal/bootproto"
	"adnt/crispyboot/internal/cobs"
)

const defaultTimeout = 5 * time.Second

// Transport is the host side of the framed command/response channel; it
// sends Commands and receives Responses, the mirror image of
// internal/transport.Transport's device-side role.
type Transport struct {
	port    serial.Port
	name    string
	timeout time.Duration
}

// OpenTransport opens portName at the bootloader's fixed baud rate.
func OpenTransport(portName string) (*Transport, error) {
	mode := &serial.Mode{BaudRate: 115200}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", portName, err)
	}
	if err := port.SetReadTimeout(defaultTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set timeout: %w", err)
	}
	return &Transport{port: port, name: portName, timeout: defaultTimeout}, nil
}

// Close releases the underlying serial port.
func (t *Transport) Close() error {
	return t.port.Close()
}

// PortName returns the port path this transport was opened against.
func (t *Transport) PortName() string {
	return t.name
}

// SetTimeout overrides the read timeout, used for StartUpdate's long bank
// erase, matching Transport::send_recv_timeout in the original.
func (t *Transport) SetTimeout(d time.Duration) error {
	t.timeout = d
	return t.port.SetReadTimeout(d)
}

func (t *Transport) drain() {
	t.port.SetReadTimeout(10 * time.Millisecond)
	buf := make([]byte, 64)
	for {
		n, err := t.port.Read(buf)
		if n == 0 || err != nil {
			break
		}
	}
	t.port.SetReadTimeout(t.timeout)
}

func (t *Transport) send(cmd bootproto.Command) error {
	body, err := bootproto.EncodeCommand(cmd)
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}
	frame := cobs.Encode(body) // includes the trailing 0x00 delimiter
	_, err = t.port.Write(frame)
	return err
}

func (t *Transport) receive() (bootproto.Response, error) {
	r := bufio.NewReader(t.port)
	frame := make([]byte, 0, 256)
	for {
		b, err := r.ReadByte()
		if err != nil {
			return bootproto.Response{}, fmt.Errorf("timeout waiting for response: %w", err)
		}
		if b == 0x00 {
			break
		}
		frame = append(frame, b)
	}

	body, err := cobs.Decode(frame)
	if err != nil {
		return bootproto.Response{}, fmt.Errorf("decode frame: %w", err)
	}
	return bootproto.DecodeResponse(body)
}

// SendRecv sends cmd and waits for the matching response.
func (t *Transport) SendRecv(cmd bootproto.Command) (bootproto.Response, error) {
	t.drain()
	if err := t.send(cmd); err != nil {
		return bootproto.Response{}, err
	}
	return t.receive()
}

// Package transport implements a framed command/response channel:
// COBS-delimited frames carrying bootproto's compact tagged encoding, read
// and written over an io.ReadWriter so the same code runs against the USB
// CDC serial port on the device and against an in-memory pipe in tests.
//
// The accumulate-until-delimiter loop is ported from
// crispy-bootloader/src/usb_transport.rs's try_receive/send: read whatever
// bytes are available, feed them one at a time into an accumulator buffer,
// and decode as soon as a 0x00 delimiter appears. A device without
// buffered I/O couldn't do better than that.
package transport

import (
	"errors"
	"io"

	"adnt/crispyboot/internal/bootproto"
	"adnt/crispyboot/internal/cobs"
)

// RxBufSize bounds how large a single frame's undecoded bytes may grow
// before TryReceive discards it as overflow, matching
// crispy-bootloader/src/usb_transport.rs's RX_BUF_SIZE.
const RxBufSize = 2048

// ErrOverflow is returned when a frame exceeds RxBufSize before its
// delimiter arrives. The partial frame is discarded and reception resumes
// from the next byte.
var ErrOverflow = errors.New("transport: frame exceeded RxBufSize, discarded")

// Transport frames Commands and Responses over rw.
type Transport struct {
	rw      io.ReadWriter
	rxBuf   [RxBufSize]byte
	rxPos   int
	readBuf [64]byte
}

// New wraps rw as a Transport.
func New(rw io.ReadWriter) *Transport {
	return &Transport{rw: rw}
}

// TryReceive reads whatever bytes are currently available and returns the
// next fully-decoded Command, if a delimiter has been seen. ok is false
// when no complete frame is available yet; callers are expected to call
// TryReceive again on their next poll iteration (a cooperative loop, not a
// blocking read).
func (t *Transport) TryReceive() (cmd bootproto.Command, ok bool, err error) {
	n, err := t.rw.Read(t.readBuf[:])
	if err != nil {
		return bootproto.Command{}, false, err
	}

	for i := 0; i < n; i++ {
		b := t.readBuf[i]
		if b == 0x00 {
			if t.rxPos == 0 {
				continue
			}
			frame := t.rxBuf[:t.rxPos]
			t.rxPos = 0

			raw, decErr := cobs.Decode(frame)
			if decErr != nil {
				return bootproto.Command{}, false, decErr
			}
			cmd, decErr = bootproto.DecodeCommand(raw)
			if decErr != nil {
				return bootproto.Command{}, false, decErr
			}
			return cmd, true, nil
		}

		if t.rxPos < RxBufSize {
			t.rxBuf[t.rxPos] = b
			t.rxPos++
		} else {
			t.rxPos = 0
			return bootproto.Command{}, false, ErrOverflow
		}
	}

	return bootproto.Command{}, false, nil
}

// Send encodes resp and writes its COBS frame to rw, retrying partial
// writes until the whole frame is out.
func (t *Transport) Send(resp bootproto.Response) error {
	raw, err := bootproto.EncodeResponse(resp)
	if err != nil {
		return err
	}
	frame := cobs.Encode(raw)

	for written := 0; written < len(frame); {
		n, err := t.rw.Write(frame[written:])
		if err != nil {
			return err
		}
		written += n
	}
	return nil
}

// Package cobs implements Consistent Overhead Byte Stuffing, the framing
// scheme used to make 0x00 an unambiguous frame delimiter on the wire.
//
// There is no COBS implementation anywhere in the retrieved corpus, so this
// is hand-written, ported directly (not transliterated) from
// original_source/crispy-common/src/cobs.rs.
package cobs

import "errors"

// ErrTruncated is returned by Decode when a code byte claims more data than
// the buffer actually holds.
var ErrTruncated = errors.New("cobs: truncated frame")

// Encode returns the COBS encoding of data, including the trailing 0x00
// delimiter. The result never contains a 0x00 byte except that delimiter.
func Encode(data []byte) []byte {
	out := make([]byte, 0, len(data)+len(data)/254+2)
	out = append(out, 0) // placeholder for the first code byte
	codeIdx := 0
	code := byte(1)

	for _, b := range data {
		if b == 0 {
			out[codeIdx] = code
			codeIdx = len(out)
			out = append(out, 0) // placeholder
			code = 1
			continue
		}
		out = append(out, b)
		code++
		if code == 255 {
			out[codeIdx] = code
			codeIdx = len(out)
			out = append(out, 0) // placeholder
			code = 1
		}
	}
	out[codeIdx] = code
	out = append(out, 0) // delimiter
	return out
}

// Decode reverses Encode. frame must not include the trailing 0x00
// delimiter (internal/transport strips it before calling Decode). It
// returns ErrTruncated if a code byte promises more bytes than remain.
func Decode(frame []byte) ([]byte, error) {
	out := make([]byte, 0, len(frame))
	i := 0

	for i < len(frame) {
		code := int(frame[i])
		if code == 0 {
			break
		}
		i++

		for n := 1; n < code; n++ {
			if i >= len(frame) {
				return nil, ErrTruncated
			}
			out = append(out, frame[i])
			i++
		}

		if code < 255 && i < len(frame) && frame[i] != 0 {
			out = append(out, 0)
		}
	}

	return out, nil
}

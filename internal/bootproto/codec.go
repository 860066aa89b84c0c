package bootproto

import (
	"encoding/binary"
	"errors"
)

// Errors returned by the codec. These are protocol-level parse failures,
// distinct from the AckStatus values that flow over the wire as normal
// responses.
var (
	ErrShortBuffer  = errors.New("bootproto: buffer too short")
	ErrUnknownTag   = errors.New("bootproto: unknown variant tag")
	ErrDataTooLarge = errors.New("bootproto: data block exceeds MaxDataBlockSize")
)

// EncodeCommand serialises cmd using a compact little-endian,
// non-self-describing variant-tag encoding. The result is the raw message
// payload; COBS framing (internal/cobs) is applied separately by
// internal/transport.
func EncodeCommand(cmd Command) ([]byte, error) {
	switch cmd.Tag {
	case CmdGetStatus, CmdFinishUpdate, CmdReboot, CmdWipeAll:
		return []byte{byte(cmd.Tag)}, nil

	case CmdStartUpdate:
		buf := make([]byte, 1+1+4+4+4)
		buf[0] = byte(cmd.Tag)
		buf[1] = cmd.Bank
		binary.LittleEndian.PutUint32(buf[2:6], cmd.Size)
		binary.LittleEndian.PutUint32(buf[6:10], cmd.CRC32)
		binary.LittleEndian.PutUint32(buf[10:14], cmd.Version)
		return buf, nil

	case CmdDataBlock:
		if len(cmd.Data) > MaxDataBlockSize {
			return nil, ErrDataTooLarge
		}
		buf := make([]byte, 1+4+2+len(cmd.Data))
		buf[0] = byte(cmd.Tag)
		binary.LittleEndian.PutUint32(buf[1:5], cmd.Offset)
		binary.LittleEndian.PutUint16(buf[5:7], uint16(len(cmd.Data)))
		copy(buf[7:], cmd.Data)
		return buf, nil

	case CmdSetActiveBank:
		return []byte{byte(cmd.Tag), cmd.Bank}, nil

	default:
		return nil, ErrUnknownTag
	}
}

// DecodeCommand parses the raw message payload produced by EncodeCommand.
func DecodeCommand(buf []byte) (Command, error) {
	if len(buf) < 1 {
		return Command{}, ErrShortBuffer
	}
	tag := CommandTag(buf[0])
	body := buf[1:]

	switch tag {
	case CmdGetStatus, CmdFinishUpdate, CmdReboot, CmdWipeAll:
		return Command{Tag: tag}, nil

	case CmdStartUpdate:
		if len(body) < 13 {
			return Command{}, ErrShortBuffer
		}
		return Command{
			Tag:     tag,
			Bank:    body[0],
			Size:    binary.LittleEndian.Uint32(body[1:5]),
			CRC32:   binary.LittleEndian.Uint32(body[5:9]),
			Version: binary.LittleEndian.Uint32(body[9:13]),
		}, nil

	case CmdDataBlock:
		if len(body) < 6 {
			return Command{}, ErrShortBuffer
		}
		offset := binary.LittleEndian.Uint32(body[0:4])
		n := int(binary.LittleEndian.Uint16(body[4:6]))
		if n > MaxDataBlockSize || len(body) < 6+n {
			return Command{}, ErrShortBuffer
		}
		data := make([]byte, n)
		copy(data, body[6:6+n])
		return Command{Tag: tag, Offset: offset, Data: data}, nil

	case CmdSetActiveBank:
		if len(body) < 1 {
			return Command{}, ErrShortBuffer
		}
		return Command{Tag: tag, Bank: body[0]}, nil

	default:
		return Command{}, ErrUnknownTag
	}
}

// EncodeResponse serialises resp using the same variant-tag encoding.
func EncodeResponse(resp Response) ([]byte, error) {
	switch resp.Tag {
	case RespAck:
		return []byte{byte(resp.Tag), byte(resp.Status)}, nil

	case RespStatus:
		buf := make([]byte, 1+1+4+4+1)
		buf[0] = byte(resp.Tag)
		buf[1] = resp.ActiveBank
		binary.LittleEndian.PutUint32(buf[2:6], resp.VersionA)
		binary.LittleEndian.PutUint32(buf[6:10], resp.VersionB)
		buf[10] = byte(resp.State)
		return buf, nil

	default:
		return nil, ErrUnknownTag
	}
}

// DecodeResponse parses the raw message payload produced by EncodeResponse.
func DecodeResponse(buf []byte) (Response, error) {
	if len(buf) < 1 {
		return Response{}, ErrShortBuffer
	}
	tag := ResponseTag(buf[0])
	body := buf[1:]

	switch tag {
	case RespAck:
		if len(body) < 1 {
			return Response{}, ErrShortBuffer
		}
		return Response{Tag: tag, Status: AckStatus(body[0])}, nil

	case RespStatus:
		if len(body) < 10 {
			return Response{}, ErrShortBuffer
		}
		return Response{
			Tag:        tag,
			ActiveBank: body[0],
			VersionA:   binary.LittleEndian.Uint32(body[1:5]),
			VersionB:   binary.LittleEndian.Uint32(body[5:9]),
			State:      BootState(body[9]),
		}, nil

	default:
		return Response{}, ErrUnknownTag
	}
}

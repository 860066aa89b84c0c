// Package crc32hdlc computes the CRC-32 used to validate firmware banks:
// polynomial 0xEDB88320, reflected, initial value 0xFFFFFFFF, final XOR
// 0xFFFFFFFF — the ISO-HDLC variant.
//
// crispy-bootloader/src/flash.rs computes this with the `crc` crate's
// Crc<u32>::new(&CRC_32_ISO_HDLC), streaming 256-byte chunks read straight
// off flash. hash/crc32.IEEE is the same table (ISO 3309 / ITU-T V.42,
// identical to ISO-HDLC) so it is the direct stdlib match here; no
// third-party checksum package appears anywhere in the retrieved corpus.
package crc32hdlc

import "hash/crc32"

// ChunkSize is the read granularity used when streaming a bank off flash,
// matching crispy-bootloader/src/flash.rs's compute_crc32.
const ChunkSize = 256

// Checksum returns the CRC-32 of data in a single pass. Used by host-side
// code (the uploader, tests) that already holds the full buffer in memory.
func Checksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// Streamer accumulates a CRC-32 across successive chunks, mirroring the
// firmware's chunked read-from-flash loop where the whole bank never fits
// in RAM at once.
type Streamer struct {
	crc uint32
}

// NewStreamer returns a Streamer ready to accept its first chunk.
func NewStreamer() *Streamer {
	return &Streamer{}
}

// Write folds chunk into the running checksum. chunk need not be ChunkSize
// bytes; callers that read flash in fixed-size chunks will naturally pass
// a short final chunk at the end of a bank.
func (s *Streamer) Write(chunk []byte) {
	s.crc = crc32.Update(s.crc, crc32.IEEETable, chunk)
}

// Sum returns the CRC-32 of every chunk written so far.
func (s *Streamer) Sum() uint32 {
	return s.crc
}

// Reset clears the Streamer back to its initial state for reuse.
func (s *Streamer) Reset() {
	s.crc = 0
}

//go:build !tinygo

package flashrom

import "adnt/crispyboot/internal/bootproto"

// fakeFlash backs every flashrom call on the host with an in-memory image
// the size of the real device's flash, erased (all 0xFF) by default.
// Production code talks to the ROM, tests talk to this.
var fakeFlash = newFakeImage()

const fakeFlashSize = bootproto.BootDataAddr - bootproto.FlashBase + bootproto.FlashSectorSize

func newFakeImage() []byte {
	img := make([]byte, fakeFlashSize)
	for i := range img {
		img[i] = 0xFF
	}
	return img
}

// Init is a no-op on the host; there is no ROM table to resolve.
func Init() error {
	return nil
}

// Erase sets size bytes starting at offset back to the erased (0xFF) state.
func Erase(offset, size uint32) error {
	if int(offset+size) > len(fakeFlash) {
		return ErrNotInitialized
	}
	for i := offset; i < offset+size; i++ {
		fakeFlash[i] = 0xFF
	}
	return nil
}

// Program writes data into the fake flash image at offset. Real NOR flash
// can only clear bits (1->0) without an erase; the fake enforces that too,
// so a test that forgets to erase first sees the same corruption a real
// device would.
func Program(offset uint32, data []byte) error {
	if int(offset)+len(data) > len(fakeFlash) {
		return ErrNotInitialized
	}
	for i, b := range data {
		fakeFlash[offset+uint32(i)] &= b
	}
	return nil
}

// ReadBytes copies len(buf) bytes out of the fake flash image at offset.
func ReadBytes(offset uint32, buf []byte) error {
	if int(offset)+len(buf) > len(fakeFlash) {
		return ErrNotInitialized
	}
	copy(buf, fakeFlash[offset:])
	return nil
}

// ResetFakeFlash restores the fake image to fully erased, for test isolation.
func ResetFakeFlash() {
	fakeFlash = newFakeImage()
}

// FakeFlashSize reports the size of the in-memory image, for tests that
// need to construct offsets relative to it.
func FakeFlashSize() int {
	return len(fakeFlash)
}

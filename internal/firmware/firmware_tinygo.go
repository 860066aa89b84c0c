//go:build tinygo

package firmware

/*
static void system_reset(void) {
    volatile uint32_t *aircr = (volatile uint32_t *)0xE000ED0C;
    *aircr = (0x5FA << 16) | (1 << 2);
    __asm__ volatile ("dsb");
    while (1) {}
}
*/
import "C"

import (
	"time"
	"unsafe"

	"adnt/crispyboot/internal/bootproto"
)

// RequestBootloader writes the RAM sentinel the bootloader checks at boot
// and triggers a system reset. It never returns, matching
// crispy-fw-sample/src/main.rs::reboot_to_bootloader.
func RequestBootloader() {
	*(*uint32)(unsafe.Pointer(uintptr(bootproto.RAMUpdateFlagAddr))) = bootproto.RAMUpdateMagic

	// Give any in-flight serial logging a chance to drain before the
	// reset wipes it out.
	time.Sleep(10 * time.Millisecond)

	C.system_reset()
}

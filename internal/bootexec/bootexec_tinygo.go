//go:build tinygo

package bootexec

/*
#include <stdint.h>

// prepare_for_firmware_handoff disables interrupts and clears every
// pending/enabled NVIC interrupt so the firmware's own init can start
// from a known state, matching
// crispy-bootloader/src/boot.rs::prepare_for_firmware_handoff. Clocks are
// deliberately left alone: the firmware's own SDK runtime init switches
// clk_sys to clk_ref before touching the PLLs, so re-deriving that
// sequence here would just race it.
static void prepare_for_firmware_handoff(void) {
    __asm__ volatile ("cpsid i");

    volatile uint32_t *nvic_icpr = (volatile uint32_t *)0xE000E280;
    volatile uint32_t *nvic_icer = (volatile uint32_t *)0xE000E180;
    *nvic_icpr = 0xFFFFFFFF;
    *nvic_icer = 0xFFFFFFFF;
}

// relocate_vector_table points VTOR at the copy of firmware now sitting in
// RAM, so the firmware's own interrupt handlers take effect before it
// runs a single instruction.
static void relocate_vector_table(uint32_t ram_base) {
    volatile uint32_t *scb_vtor = (volatile uint32_t *)0xE000ED08;
    *scb_vtor = ram_base;
    __asm__ volatile ("dsb");
    __asm__ volatile ("isb");
}

// jump_to_firmware sets the main stack pointer and branches to the reset
// vector. Interrupts are re-enabled just before the branch, matching what
// the firmware's own startup code expects (PRIMASK clear on entry).
static void jump_to_firmware(uint32_t sp, uint32_t reset_vector) {
    __asm__ volatile (
        "msr msp, %0\n"
        "cpsie i\n"
        "bx %1\n"
        :
        : "r" (sp), "r" (reset_vector)
    );
}

static void copy_words(uint32_t *dst, const uint32_t *src, uint32_t word_count) {
    for (uint32_t i = 0; i < word_count; i++) {
        dst[i] = src[i];
    }
}
*/
import "C"

import "unsafe"

// Execute copies the bank at flashAddr into firmware RAM, relocates the
// vector table, and jumps into it. It never returns; the trailing loop
// exists only because Go requires the function body to end in a
// terminating statement, and as a defensive net in case the asm ever did
// return (it shouldn't — bx to a valid reset vector does not).
func Execute(layout Layout, flashAddr uint32) {
	src := (*C.uint32_t)(unsafe.Pointer(uintptr(flashAddr)))
	dst := (*C.uint32_t)(unsafe.Pointer(uintptr(layout.RAMBase)))
	C.copy_words(dst, src, C.uint32_t(layout.CopySize/4))

	C.prepare_for_firmware_handoff()
	C.relocate_vector_table(C.uint32_t(layout.RAMBase))

	sp, reset, _ := readVectorTable(layout.RAMBase)
	C.jump_to_firmware(C.uint32_t(sp), C.uint32_t(reset))

	for {
	}
}

// ResetClocksToPowerOnState restores clk_sys/clk_ref/XOSC/PLL state to
// what they'd be immediately after a power-on reset. It mirrors
// crispy-bootloader/src/boot.rs's reset_clocks_to_power_on_state, which
// exists in the original but is never called on the normal boot path —
// the firmware's SDK runtime init handles clock reconfiguration itself by
// switching away from the PLLs first. Kept here, unused, for the same
// reason the original keeps it: a future cold-boot recovery path that
// cannot rely on the firmware doing that switch correctly.
func ResetClocksToPowerOnState() {
	const (
		clocksBase   = 0x40008000
		clkRefCtrl   = clocksBase + 0x30
		clkRefSel    = clocksBase + 0x38
		clkSysCtrl   = clocksBase + 0x3C
		clkSysSel    = clocksBase + 0x44
		xoscCtrl     = 0x40024000
		resetsReset  = 0x4000C000
		watchdogTick = 0x40058000 + 0x2C
		pllSysResetB = 1 << 12
		pllUSBResetB = 1 << 13
		xoscDisable  = 0xD1E << 12
	)

	sysCtrl := load32(clkSysCtrl)
	store32(clkSysCtrl, sysCtrl&^0x1)
	for load32(clkSysSel) != 0x1 {
	}

	refCtrl := load32(clkRefCtrl)
	store32(clkRefCtrl, refCtrl&^0x3)
	for load32(clkRefSel) != 0x1 {
	}

	ctrl := load32(xoscCtrl)
	store32(xoscCtrl, (ctrl&^0x00FFF000)|xoscDisable)

	reset := load32(resetsReset)
	store32(resetsReset, reset|pllSysResetB|pllUSBResetB)

	store32(watchdogTick, 0)
}

func load32(addr uint32) uint32 {
	return *(*uint32)(unsafe.Pointer(uintptr(addr)))
}

func store32(addr uint32, v uint32) {
	*(*uint32)(unsafe.Pointer(uintptr(addr))) = v
}

// Package dispatch decides, once at boot, whether to enter update mode or
// proceed with a normal A/B boot. It is the single place the trigger GPIO
// pin and the RAM sentinel flag are read, and it clears the sentinel
// unconditionally so it never re-fires on the next reset.
package dispatch

import "adnt/crispyboot/internal/bootproto"

// Trigger reports, and then clears, the update-mode request.
type Trigger struct {
	ReadPinLow   func() bool
	ReadRAMFlag  func() uint32
	ClearRAMFlag func()
}

// ShouldEnterUpdateMode reports whether the bootloader should enter update
// mode instead of a normal boot: either the trigger pin is held low, or a
// firmware image left the RAM sentinel set before requesting a reset. The
// sentinel is cleared either way so a single request only fires once,
// matching crispy-bootloader/src/boot.rs::check_update_trigger.
func ShouldEnterUpdateMode(t Trigger) bool {
	flag := t.ReadRAMFlag()
	t.ClearRAMFlag()
	return t.ReadPinLow() || flag == bootproto.RAMUpdateMagic
}

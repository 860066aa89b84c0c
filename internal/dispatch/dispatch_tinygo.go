//go:build tinygo

package dispatch

import (
	"machine"
	"unsafe"

	"adnt/crispyboot/internal/bootproto"
)

// triggerPin is the GPIO that, held low at boot, requests update mode —
// pulled to GND by the uploader's DTR line the same way the original wires
// its GP2 input, per crispy-bootloader/src/main.rs.
const triggerPin = machine.GP2

// ConfigurePin sets the trigger pin up as a pulled-up input, so that an
// unconnected pin reads high (not triggered) and grounding it reads low.
func ConfigurePin() {
	triggerPin.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
}

// NewHardwareTrigger builds the Trigger backed by the real GPIO pin and RAM
// sentinel word.
func NewHardwareTrigger() Trigger {
	return Trigger{
		ReadPinLow: func() bool {
			return !triggerPin.Get()
		},
		ReadRAMFlag: func() uint32 {
			return *(*uint32)(unsafe.Pointer(uintptr(bootproto.RAMUpdateFlagAddr)))
		},
		ClearRAMFlag: func() {
			*(*uint32)(unsafe.Pointer(uintptr(bootproto.RAMUpdateFlagAddr))) = 0
		},
	}
}

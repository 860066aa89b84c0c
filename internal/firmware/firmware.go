// Package firmware provides the two calls a firmware image makes into the
// bootloader's half of the contract: confirming a boot so the rollback
// counter resets, and requesting a return to update mode.
//
// Both are grounded on crispy-fw-sample/src/main.rs's confirm_boot and
// reboot_to_bootloader, and on crispy-common/src/flash.rs's confirm_boot/
// set_active_bank, which do the same BootData read-modify-write from the
// library side.
package firmware

import "adnt/crispyboot/internal/bootproto"

// ConfirmBoot marks the currently running bank as confirmed and resets its
// attempt counter, so internal/bootfsm stops counting down toward a
// rollback. It returns false without writing if BootData is invalid, and
// returns true without writing if the bank is already confirmed.
func ConfirmBoot(flash Flash) bool {
	bd, err := flash.ReadBootData()
	if err != nil || !bd.IsValid() {
		return false
	}
	if bd.Confirmed == 1 {
		return true
	}
	bd.Confirmed = 1
	bd.BootAttempts = 0
	return flash.WriteBootData(bd) == nil
}

// Flash is the narrow surface firmware.ConfirmBoot needs, matching
// internal/update.Flash's pattern of depending on an interface rather than
// importing internal/flashrom directly.
type Flash interface {
	ReadBootData() (bootproto.BootData, error)
	WriteBootData(bd bootproto.BootData) error
}

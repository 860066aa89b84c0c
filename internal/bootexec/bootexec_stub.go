//go:build !tinygo

package bootexec

// LastExecuted records the most recent Execute call's arguments, since
// the host build has no processor to actually jump into — tests assert
// against this instead.
var LastExecuted struct {
	Layout    Layout
	FlashAddr uint32
	Called    bool
}

// Execute records its arguments instead of jumping, so the package builds
// and its callers can run on the host without a real Cortex-M core
// underneath it.
func Execute(layout Layout, flashAddr uint32) {
	LastExecuted.Layout = layout
	LastExecuted.FlashAddr = flashAddr
	LastExecuted.Called = true
}

// ResetLastExecuted clears LastExecuted between tests.
func ResetLastExecuted() {
	LastExecuted.Called = false
	LastExecuted.FlashAddr = 0
	LastExecuted.Layout = Layout{}
}

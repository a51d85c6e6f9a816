//go:build !linux

package core

func pinCurrentThread(core CoreID, priority TaskPriority) error {
	return errPinningUnsupported
}

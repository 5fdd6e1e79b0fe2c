package mmu

import (
	"errors"
	"fmt"
)

// ErrPageFault is returned when a virtual address has no mapping and the
// fallback policy cannot create one.
var ErrPageFault = errors.New("page fault")

// PageFaultError records the address that faulted.
type PageFaultError struct {
	VAddr uint64
	VPN   uint64
	// Reason is empty when no fallback policy is configured.
	Reason string
}

func (e *PageFaultError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("page fault at 0x%x (vpn 0x%x)", e.VAddr, e.VPN)
	}

	return fmt.Sprintf("page fault at 0x%x (vpn 0x%x): %s", e.VAddr, e.VPN, e.Reason)
}

// Is reports a match against ErrPageFault.
func (e *PageFaultError) Is(err error) bool {
	return err == ErrPageFault
}

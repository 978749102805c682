// +build arm64

package mem

const (
	// PointerShift is equal to log2(unsafe.Sizeof(uintptr)).
	PointerShift = 3

	// PageShift is equal to log2(PageSize). AArch64's 4KB translation
	// granule uses the same shift as amd64.
	PageShift = 12

	// PageSize defines the system's page size in bytes.
	PageSize = Size(1 << PageShift)

	// UserSpaceTop is the first address above the user half of every
	// address space. AArch64 with 48-bit VAs splits TTBR0 (user) from
	// TTBR1 (kernel) at the same boundary amd64's canonical split uses.
	UserSpaceTop = uintptr(0x0000_8000_0000_0000)
)

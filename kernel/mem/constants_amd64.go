// +build amd64

package mem

const (
	// PointerShift is equal to log2(unsafe.Sizeof(uintptr)). The pointer
	// size for this architecture is defined as (1 << PointerShift).
	PointerShift = 3

	// PageShift is equal to log2(PageSize). This constant is used when
	// we need to convert a physical address to a page number (shift right by PageShift)
	// and vice-versa.
	PageShift = 12

	// PageSize defines the system's page size in bytes.
	PageSize = Size(1 << PageShift)

	// UserSpaceTop is the first address above the user half of every
	// address space. amd64's 48-bit canonical split places it at the top
	// of the lower canonical range; everything at or above it belongs to
	// the kernel half shared by all address spaces.
	UserSpaceTop = uintptr(0x0000_8000_0000_0000)
)

package pmm

import "github.com/ryanbreen/breenix/kernel"

// AllocFrame and FreeFrame are the kernel-wide physical frame allocation
// entry points. They are wired during boot, once the bitmap allocator has
// taken over from the bootstrap allocator, so architecture-neutral callers
// (the trap dispatcher's CoW resolver, exit_current's address-space
// teardown) never name the allocator package directly.
var (
	AllocFrame func() (Frame, *kernel.Error)
	FreeFrame  func(Frame)
)

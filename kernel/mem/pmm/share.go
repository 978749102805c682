package pmm

import "sync"

// shared counts the extra owners of frames referenced by more than one
// address space (fork's copy-on-write sharing). A frame absent from the map
// has exactly one owner. The map is small: only pages actively shared
// between a parent and its un-exec'd children appear in it.
var (
	shareMu sync.Mutex
	shared  map[Frame]int
)

// Share records one additional owner for frame.
func Share(frame Frame) {
	shareMu.Lock()
	if shared == nil {
		shared = make(map[Frame]int)
	}
	shared[frame]++
	shareMu.Unlock()
}

// Release drops one ownership reference and reports whether the caller was
// the last owner and must free the frame. A frame never shared releases
// immediately.
func Release(frame Frame) bool {
	shareMu.Lock()
	defer shareMu.Unlock()
	n, ok := shared[frame]
	if !ok {
		return true
	}
	if n <= 1 {
		delete(shared, frame)
	} else {
		shared[frame] = n - 1
	}
	return false
}

// ReleaseAndMaybeFree combines Release with the wired FreeFrame hook; it is
// the freeFrame callback address-space teardown paths use so a frame still
// shared with a live sibling is never returned to the allocator early.
func ReleaseAndMaybeFree(frame Frame) {
	if Release(frame) && FreeFrame != nil {
		FreeFrame(frame)
	}
}

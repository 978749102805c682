// Package proc implements the process and thread model: Process and
// Thread, their lifecycle states, kernel-stack bookkeeping with a guard
// page below, and ID allocation (an atomic monotonic counter per ID
// space).
package proc

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/ryanbreen/breenix/kernel/errno"
	"github.com/ryanbreen/breenix/kernel/fd"
	"github.com/ryanbreen/breenix/kernel/hal"
	"github.com/ryanbreen/breenix/kernel/mem"
	"github.com/ryanbreen/breenix/kernel/mem/pmm"
	"github.com/ryanbreen/breenix/kernel/mem/vmm"
	"github.com/ryanbreen/breenix/kernel/signal"
)

// ProcessID and ThreadID are distinct ID spaces, each a monotonic counter
// starting at 1 (0 is reserved as "no process"/"no thread").
type ProcessID uint64
type ThreadID uint64

var (
	nextProcessID uint64
	nextThreadID  uint64
)

func newProcessID() ProcessID {
	return ProcessID(atomic.AddUint64(&nextProcessID, 1))
}

func newThreadID() ThreadID {
	return ThreadID(atomic.AddUint64(&nextThreadID, 1))
}

// State is a process's lifecycle state.
type State int

const (
	StateRunning State = iota
	StateReady
	StateBlocked
	StateStopped
	StateZombie
)

// BlockReason names why a Blocked process is parked; kernel/sched stores
// this alongside State so a blocked process always carries its reason.
type BlockReason int

const (
	BlockNone BlockReason = iota
	BlockOnRead
	BlockOnWrite
	BlockOnWait
	BlockOnSleep
)

// KernelStackSize is the fixed per-thread kernel stack size, guarded below
// by one unmapped page.
const KernelStackSize = 16 * mem.PageSize

// Thread owns a kernel stack and a saved CPU context, plus a back
// reference to its process. kernel/sched is the only package that flips a
// Thread between queues; this package only constructs and tears them down.
type Thread struct {
	ID        ThreadID
	Process   *Process
	Context   hal.Context
	stackBase uintptr
	stackSize uintptr
	// IsUser distinguishes a user thread (resumes via trap return) from a
	// kernel thread (resumes by calling entry directly).
	IsUser bool

	// User is the register state this thread first enters user mode with;
	// meaningful only when IsUser. Spawn and exec fill PC/SP/Args; fork
	// snapshots the parent's full register file into it.
	User hal.UserState
}

// userThreadEntry is every user thread's kernel-side entry: activate has
// already happened (the scheduler switched address spaces), so all that is
// left is dropping into user mode with the thread's initial state.
func userThreadEntry(arg uintptr) {
	th := (*Thread)(unsafe.Pointer(arg))
	hal.User.Enter(&th.User)
}

// StackGuardFault is returned by the trap dispatcher's page-fault handler
// when a fault address lands in a thread's guard page, so the caller can
// render the distinctive guard-page panic message.
type StackGuardFault struct {
	Thread *Thread
	Addr   uintptr
}

func (e *StackGuardFault) Error() string {
	return "kernel stack guard page fault"
}

// InGuardPage reports whether addr falls in the unmapped page immediately
// below this thread's kernel stack.
func (t *Thread) InGuardPage(addr uintptr) bool {
	guardPage := t.stackBase - uintptr(mem.PageSize)
	return addr >= guardPage && addr < t.stackBase
}

// StackTop returns the initial stack pointer value for a freshly created
// thread (the highest address in its stack region).
func (t *Thread) StackTop() uintptr {
	return t.stackBase + t.stackSize
}

// Process owns an address space, FD table, signal state, credentials, and
// family links. It always has at least one thread while not
// a Zombie.
type Process struct {
	ID     ProcessID
	Parent *Process

	mu       sync.Mutex
	state    State
	reason   BlockReason
	children map[ProcessID]*Process

	AddressSpace *vmm.AddressSpace
	FDs          *fd.Table
	Signals      *signal.State

	// regions tracks the user-half virtual ranges this process has mapped
	// (code, data, heap, stack, mmap), so exit can walk and free exactly
	// the frames it owns.
	regions []vmm.Region

	// mmapNext is the bump cursor anonymous mmap hands addresses out
	// from; it only ever grows, which keeps region bookkeeping trivial.
	mmapNext uintptr

	Threads []*Thread

	ExitStatus int
	exited     bool

	// waitWake is the callback kernel/sched registers via SetWaitWake;
	// Exit calls it on the parent once this process becomes a zombie.
	waitWake func()
}

// NewKernelProcess creates a process with no address space (the kernel
// itself), one thread bound to entry/arg, running on a freshly allocated
// kernel stack. allocStack supplies [stackBase, stackBase+stackSize) in
// the kernel half; kernel/sched.SpawnKernelThread is the only caller.
func NewKernelProcess(entry func(uintptr), arg uintptr, allocStack func(size uintptr) (uintptr, error)) (*Process, *Thread, error) {
	p := &Process{
		ID:       newProcessID(),
		state:    StateReady,
		children: make(map[ProcessID]*Process),
		FDs:      fd.NewConsoleTable(),
		Signals:  signal.NewState(),
	}

	base, err := allocStack(uintptr(KernelStackSize))
	if err != nil {
		return nil, nil, err
	}

	th := &Thread{
		ID:        newThreadID(),
		Process:   p,
		stackBase: base,
		stackSize: uintptr(KernelStackSize),
		IsUser:    false,
	}
	hal.Contexts.NewContext(&th.Context, base, uintptr(KernelStackSize), entry, arg)
	p.Threads = []*Thread{th}
	register(p)
	return p, th, nil
}

// NewUserProcess creates a process owning addrSpace with a single user
// thread. The thread's kernel context begins at userThreadEntry; the
// caller (kernel/sched.SpawnUserProcess, or fork) fills th.User with the
// state the thread drops into user mode with the first time it runs.
func NewUserProcess(parent *Process, addrSpace *vmm.AddressSpace, allocStack func(size uintptr) (uintptr, error)) (*Process, *Thread, error) {
	p := &Process{
		ID:           newProcessID(),
		Parent:       parent,
		state:        StateReady,
		children:     make(map[ProcessID]*Process),
		AddressSpace: addrSpace,
		FDs:          fd.NewConsoleTable(),
		Signals:      signal.NewState(),
	}
	if parent != nil {
		parent.mu.Lock()
		if parent.children == nil {
			parent.children = make(map[ProcessID]*Process)
		}
		parent.children[p.ID] = p
		parent.mu.Unlock()
	}

	base, err := allocStack(uintptr(KernelStackSize))
	if err != nil {
		return nil, nil, err
	}
	th := &Thread{
		ID:        newThreadID(),
		Process:   p,
		stackBase: base,
		stackSize: uintptr(KernelStackSize),
		IsUser:    true,
	}
	hal.Contexts.NewContext(&th.Context, base, uintptr(KernelStackSize), userThreadEntry, uintptr(unsafe.Pointer(th)))
	p.Threads = []*Thread{th}
	register(p)
	return p, th, nil
}

// mmapBase is where a process's anonymous-mapping arena begins, well above
// any code/heap/stack layout exec establishes.
const mmapBase = uintptr(0x0000_5000_0000_0000)

// ReserveUserRange hands out the next size bytes of the process's mmap
// arena, page-rounded, without mapping anything.
func (p *Process) ReserveUserRange(size uintptr) uintptr {
	pageMask := uintptr(mem.PageSize) - 1
	size = (size + pageMask) &^ pageMask
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mmapNext == 0 {
		p.mmapNext = mmapBase
	}
	base := p.mmapNext
	p.mmapNext += size
	return base
}

// ReplaceAddressSpace installs the fresh address space exec built,
// resetting the region list to the new image's layout. The caller owns
// tearing down the old space.
func (p *Process) ReplaceAddressSpace(as *vmm.AddressSpace, regions []vmm.Region) {
	p.mu.Lock()
	p.AddressSpace = as
	p.regions = append(p.regions[:0], regions...)
	p.mmapNext = 0
	p.mu.Unlock()
}

// AddRegion records a user-half virtual range as owned by this process.
func (p *Process) AddRegion(r vmm.Region) {
	p.mu.Lock()
	p.regions = append(p.regions, r)
	p.mu.Unlock()
}

// RemoveRegion forgets a region munmap has already torn down. Partial
// overlaps shrink nothing: only an exact match is removed, mirroring the
// whole-region granularity this kernel maps at.
func (p *Process) RemoveRegion(r vmm.Region) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, have := range p.regions {
		if have == r {
			p.regions = append(p.regions[:i], p.regions[i+1:]...)
			return
		}
	}
}

// MappedRegions returns the user-half regions recorded so far.
func (p *Process) MappedRegions() []vmm.Region {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]vmm.Region, len(p.regions))
	copy(out, p.regions)
	return out
}

// State returns the process's current lifecycle state and block reason.
func (p *Process) State() (State, BlockReason) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state, p.reason
}

// SetState transitions the process to state, recording reason when
// state == StateBlocked.
func (p *Process) SetState(state State, reason BlockReason) {
	p.mu.Lock()
	p.state = state
	p.reason = reason
	p.mu.Unlock()
}

// SetWaitWake registers the callback kernel/sched uses to wake a parent
// blocked in wait() when a child becomes a zombie.
func (p *Process) SetWaitWake(f func()) {
	p.mu.Lock()
	p.waitWake = f
	p.mu.Unlock()
}

// Exit marks p a zombie with status, releasing its address space and FD
// table; a zombie retains only its status until reaped. freeFrame is used
// to return the address space's frames to the physical allocator.
func (p *Process) Exit(status int, regions []vmm.Region, freeFrame func(pmm.Frame)) {
	p.mu.Lock()
	if p.exited {
		p.mu.Unlock()
		return
	}
	p.exited = true
	p.state = StateZombie
	p.ExitStatus = status
	addrSpace := p.AddressSpace
	fds := p.FDs
	p.AddressSpace = nil
	p.FDs = nil
	parent := p.Parent
	p.mu.Unlock()

	if fds != nil {
		for i := 0; i < fd.MaxFDs; i++ {
			_ = fds.Close(i)
		}
	}
	if addrSpace != nil {
		addrSpace.Destroy(regions, freeFrame)
	}
	if parent != nil {
		parent.mu.Lock()
		wake := parent.waitWake
		parent.mu.Unlock()
		if wake != nil {
			wake()
		}
	}
}

// ReapChild removes and returns a zombie child's exit status, or EAGAIN if
// no child has exited yet (the caller blocks and retries), or ECHILD if
// there are no children at all.
func (p *Process) ReapChild() (ProcessID, int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.children) == 0 {
		return 0, 0, errno.ECHILD
	}
	for id, child := range p.children {
		child.mu.Lock()
		isZombie := child.state == StateZombie
		status := child.ExitStatus
		child.mu.Unlock()
		if isZombie {
			delete(p.children, id)
			return id, status, nil
		}
	}
	return 0, 0, errno.EAGAIN
}

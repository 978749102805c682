// Package fd implements the kernel's per-process file-descriptor table
// plus the /dev/console, /dev/null and
// anonymous-pipe objects it holds, and the readiness surface poll/epoll
// build on.
package fd

import (
	"sync"

	"github.com/ryanbreen/breenix/kernel/errno"
	"github.com/ryanbreen/breenix/kernel/hal"
)

// MaxFDs bounds a single process's descriptor table.
const MaxFDs = 256

// Kind tags what a descriptor entry refers to.
type Kind int

const (
	KindConsole Kind = iota
	KindNull
	KindPipeRead
	KindPipeWrite
	KindEpoll
)

// File is the common surface every descriptor entry exposes. Regular VFS
// files are out of scope; every Kind this package
// implements satisfies File directly.
type File interface {
	Kind() Kind
	Read(buf []byte) (int, error)
	Write(buf []byte) (int, error)
	Close() error
	// Ready reports whether a read (events&PollIn) or write (events&PollOut)
	// would not block right now, for poll/epoll.
	Ready(events uint32) uint32
}

// Poll readiness bits, matching Linux's POLLIN/POLLOUT numbering so
// kernel/syscall can hand them to userspace unchanged.
const (
	PollIn  uint32 = 0x001
	PollOut uint32 = 0x004
)

// Notifier is implemented by files whose readiness can change while a
// thread waits on them (pipe ends). The syscall layer installs a single
// callback per end; the file fires it after any state change that could
// unblock a waiter. Files without a wake source (console input) simply
// don't implement it.
type Notifier interface {
	SetNotify(fn func())
}

// consoleFile backs /dev/console by writing through hal.ActiveTerminal.
// Reads are not implemented: this kernel has no keyboard driver wired to
// the console yet, so a read always blocks-would-indicate EAGAIN to a
// non-blocking caller. It is always ready for write.
type consoleFile struct{}

func (consoleFile) Kind() Kind   { return KindConsole }
func (consoleFile) Close() error { return nil }
func (consoleFile) Ready(events uint32) uint32 {
	return events & PollOut
}
func (consoleFile) Read(buf []byte) (int, error) {
	return 0, errno.EAGAIN
}
func (consoleFile) Write(buf []byte) (int, error) {
	return hal.ActiveTerminal.Write(buf)
}

// nullFile backs /dev/null: reads return EOF (zero bytes, no error), writes
// discard everything and report full length written.
type nullFile struct{}

func (nullFile) Kind() Kind                    { return KindNull }
func (nullFile) Close() error                  { return nil }
func (nullFile) Ready(events uint32) uint32    { return events & (PollIn | PollOut) }
func (nullFile) Read(buf []byte) (int, error)  { return 0, nil }
func (nullFile) Write(buf []byte) (int, error) { return len(buf), nil }

// pipe is a fixed-capacity byte ring shared between a read end and a write
// end, guarded by a single mutex. A write to a full pipe and a read from
// an empty pipe are the two suspension points a pipe can create, but
// blocking itself is kernel/sched's job; this package only reports
// readiness and returns EAGAIN for a non-blocking caller.
const pipeCapacity = 4096

type pipe struct {
	mu     sync.Mutex
	buf    [pipeCapacity]byte
	r, w   int
	full   bool
	closed bool

	// readerNotify fires when data (or EOF) becomes available; writerNotify
	// when buffer space does. Installed by the syscall layer's wait queues.
	readerNotify func()
	writerNotify func()
}

func (p *pipe) wakeReaders() {
	if p.readerNotify != nil {
		p.readerNotify()
	}
}

func (p *pipe) wakeWriters() {
	if p.writerNotify != nil {
		p.writerNotify()
	}
}

func (p *pipe) len() int {
	if p.full {
		return pipeCapacity
	}
	if p.w >= p.r {
		return p.w - p.r
	}
	return pipeCapacity - p.r + p.w
}

type pipeReadEnd struct{ p *pipe }
type pipeWriteEnd struct{ p *pipe }

func (pipeReadEnd) Kind() Kind  { return KindPipeRead }
func (pipeWriteEnd) Kind() Kind { return KindPipeWrite }

func (e pipeReadEnd) Close() error {
	e.p.mu.Lock()
	defer e.p.mu.Unlock()
	e.p.closed = true
	e.p.wakeWriters()
	return nil
}
func (e pipeWriteEnd) Close() error {
	e.p.mu.Lock()
	defer e.p.mu.Unlock()
	e.p.closed = true
	e.p.wakeReaders()
	return nil
}

// SetNotify installs the wake callback the read end fires readiness
// changes through. The callback runs with the pipe's lock held and must
// not call back into the pipe.
func (e pipeReadEnd) SetNotify(fn func()) {
	e.p.mu.Lock()
	e.p.readerNotify = fn
	e.p.mu.Unlock()
}

func (e pipeWriteEnd) SetNotify(fn func()) {
	e.p.mu.Lock()
	e.p.writerNotify = fn
	e.p.mu.Unlock()
}

func (e pipeReadEnd) Ready(events uint32) uint32 {
	e.p.mu.Lock()
	defer e.p.mu.Unlock()
	var ready uint32
	if e.p.len() > 0 || e.p.closed {
		ready |= events & PollIn
	}
	return ready
}
func (e pipeWriteEnd) Ready(events uint32) uint32 {
	e.p.mu.Lock()
	defer e.p.mu.Unlock()
	var ready uint32
	if e.p.len() < pipeCapacity || e.p.closed {
		ready |= events & PollOut
	}
	return ready
}

func (e pipeReadEnd) Read(buf []byte) (int, error) {
	e.p.mu.Lock()
	defer e.p.mu.Unlock()

	n := e.p.len()
	if n == 0 {
		if e.p.closed {
			return 0, nil
		}
		return 0, errno.EAGAIN
	}
	if n > len(buf) {
		n = len(buf)
	}
	for i := 0; i < n; i++ {
		buf[i] = e.p.buf[(e.p.r+i)%pipeCapacity]
	}
	e.p.r = (e.p.r + n) % pipeCapacity
	e.p.full = false
	e.p.wakeWriters()
	return n, nil
}

func (e pipeReadEnd) Write([]byte) (int, error) { return 0, errno.EBADF }

func (e pipeWriteEnd) Write(buf []byte) (int, error) {
	e.p.mu.Lock()
	defer e.p.mu.Unlock()

	if e.p.closed {
		return 0, errno.EPIPE
	}
	free := pipeCapacity - e.p.len()
	if free == 0 {
		return 0, errno.EAGAIN
	}
	n := len(buf)
	if n > free {
		n = free
	}
	for i := 0; i < n; i++ {
		e.p.buf[(e.p.w+i)%pipeCapacity] = buf[i]
	}
	e.p.w = (e.p.w + n) % pipeCapacity
	if n > 0 && e.p.w == e.p.r {
		e.p.full = true
	}
	e.p.wakeReaders()
	return n, nil
}

func (e pipeWriteEnd) Read([]byte) (int, error) { return 0, errno.EBADF }

// Console returns the /dev/console device.
func Console() File { return consoleFile{} }

// Null returns the /dev/null device.
func Null() File { return nullFile{} }

// NewPipe allocates a fresh pipe and returns its read and write ends.
func NewPipe() (File, File) {
	p := &pipe{}
	return pipeReadEnd{p}, pipeWriteEnd{p}
}

// Table is a per-process file-descriptor table: a dense array of slots,
// each either empty or holding a File. fd 0/1/2 are conventionally
// stdin/stdout/stderr but this package does not enforce that; the process
// layer populates them at creation.
type Table struct {
	mu    sync.Mutex
	slots [MaxFDs]File
}

// NewConsoleTable returns a table with fd 0/1/2 all bound to /dev/console,
// the layout every freshly exec'd process starts with.
func NewConsoleTable() *Table {
	t := &Table{}
	t.slots[0] = consoleFile{}
	t.slots[1] = consoleFile{}
	t.slots[2] = consoleFile{}
	return t
}

// Install places f in the lowest-numbered free slot and returns its fd, or
// EMFILE-shaped failure (reported as -1, false) if the table is full.
func (t *Table) Install(f File) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, slot := range t.slots {
		if slot == nil {
			t.slots[i] = f
			return i, true
		}
	}
	return -1, false
}

// Get returns the File bound to fd, or EBADF if fd is out of range or
// unbound then EBADF" invariant).
func (t *Table) Get(fdNum int) (File, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if fdNum < 0 || fdNum >= MaxFDs || t.slots[fdNum] == nil {
		return nil, errno.EBADF
	}
	return t.slots[fdNum], nil
}

// Close unbinds fd, closing the underlying File. Using fd again returns
// EBADF until the number is reallocated by a later Install, exactly the
// EBADF-until-reallocated invariant.
func (t *Table) Close(fdNum int) error {
	t.mu.Lock()
	f, err := func() (File, error) {
		if fdNum < 0 || fdNum >= MaxFDs || t.slots[fdNum] == nil {
			return nil, errno.EBADF
		}
		file := t.slots[fdNum]
		t.slots[fdNum] = nil
		return file, nil
	}()
	t.mu.Unlock()

	if err != nil {
		return err
	}
	return f.Close()
}

// Dup installs a second reference to the File bound to fdNum at the lowest
// free slot, matching dup(2)'s semantics of sharing the underlying file
// object rather than copying it.
func (t *Table) Dup(fdNum int) (int, error) {
	t.mu.Lock()
	if fdNum < 0 || fdNum >= MaxFDs || t.slots[fdNum] == nil {
		t.mu.Unlock()
		return -1, errno.EBADF
	}
	f := t.slots[fdNum]
	t.mu.Unlock()

	newFd, ok := t.Install(f)
	if !ok {
		return -1, errno.EINVAL
	}
	return newFd, nil
}

// Fork returns a new table sharing every File this one holds, the
// inherit-across-fork behavior.
func (t *Table) Fork() *Table {
	t.mu.Lock()
	defer t.mu.Unlock()
	child := &Table{}
	child.slots = t.slots
	return child
}

// CloseOnExec drops every descriptor in closeFDs, the selective-close-across-exec
// behavior; callers pass the set of fds marked
// FD_CLOEXEC.
func (t *Table) CloseOnExec(closeFDs []int) {
	for _, fdNum := range closeFDs {
		_ = t.Close(fdNum)
	}
}

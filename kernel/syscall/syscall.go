package syscall

import (
	"github.com/ryanbreen/breenix/kernel/errno"
	"github.com/ryanbreen/breenix/kernel/hal"
	"github.com/ryanbreen/breenix/kernel/mem/pmm"
	"github.com/ryanbreen/breenix/kernel/mem/vmm"
	"github.com/ryanbreen/breenix/kernel/proc"
	"github.com/ryanbreen/breenix/kernel/sched"
	"github.com/ryanbreen/breenix/kernel/trap"
)

// handlerFn receives the saved frame (for the rare handlers that rewrite
// it) and the six ABI argument registers already extracted from it. The
// returned value is written to the frame's return register: non-negative
// for success, -errno for failure.
type handlerFn func(ef hal.ExceptionFrame, args [6]uint64) int64

// entry is one row of the closed dispatch table. raw handlers (exec,
// rt_sigreturn) manage the frame themselves: on success the dispatcher
// leaves the return register alone, since the handler has already rewritten
// the entire register file.
type entry struct {
	fn  handlerFn
	raw bool
}

var dispatchTable = map[Number]entry{
	SysRead:         {fn: sysRead},
	SysWrite:        {fn: sysWrite},
	SysOpen:         {fn: sysOpen},
	SysClose:        {fn: sysClose},
	SysGetTime:      {fn: sysGetTime},
	SysYield:        {fn: sysYield},
	SysGetPID:       {fn: sysGetPID},
	SysFork:         {fn: sysFork},
	SysExec:         {fn: sysExec, raw: true},
	SysExit:         {fn: sysExit},
	SysWait:         {fn: sysWait},
	SysClockGettime: {fn: sysClockGettime},
	SysPipe:         {fn: sysPipe},
	SysDup:          {fn: sysDup},
	SysKill:         {fn: sysKill},
	SysRtSigreturn:  {fn: sysRtSigreturn, raw: true},
	SysSigaction:    {fn: sysSigaction},
	SysSigprocmask:  {fn: sysSigprocmask},
	SysPoll:         {fn: sysPoll},
	SysEpollCreate1: {fn: sysEpollCreate1},
	SysEpollCtl:     {fn: sysEpollCtl},
	SysEpollWait:    {fn: sysEpollWait},
	SysMmap:         {fn: sysMmap},
	SysMunmap:       {fn: sysMunmap},
	SysIoctl:        {fn: sysIoctl},
	SysGetTID:       {fn: sysGetTID},
}

// Scheduler and process hooks, held as function variables so the dispatch
// logic can be exercised under go test without a live scheduler, the same
// seam kernel.Panic and kernel/sync use.
var (
	currentThread = func() *proc.Thread { return sched.Current() }
	yieldNow      = func() { sched.YieldNow() }
	blockCurrent  = func() { sched.Block() }
	unblockThread = func(th *proc.Thread) { sched.Unblock(th) }
	exitCurrent   = func(status int, regions []vmm.Region, freeFrame func(pmm.Frame)) {
		sched.ExitCurrent(status, regions, freeFrame)
	}
)

// Init registers Dispatch with the trap dispatcher. Called once at boot,
// after kernel/trap.Init.
func Init() {
	trap.RegisterSyscallHandler(Dispatch)
}

// Dispatch implements the syscall leg of the trap path: extract number and
// arguments from the frame, route through the closed table, write the
// result back to the frame's return register. Unknown numbers return
// -ENOSYS.
func Dispatch(ef hal.ExceptionFrame) {
	num := Number(ef.SyscallNumber())
	var args [6]uint64
	for i := range args {
		args[i] = ef.Arg(i)
	}

	e, ok := dispatchTable[num]
	if !ok {
		enosys := int64(errno.ENOSYS)
		ef.SetReturnValue(uint64(-enosys))
		return
	}

	rv := e.fn(ef, args)
	if !e.raw || rv < 0 {
		ef.SetReturnValue(uint64(rv))
	}
}

// current returns the calling process, which always exists: the only way
// into Dispatch is a trap raised by a running thread.
func current() *proc.Process {
	th := currentThread()
	if th == nil || th.Process == nil {
		return nil
	}
	return th.Process
}

// ok converts a success count and an error into the signed return-value
// convention.
func ok(n int, err error) int64 {
	if err != nil {
		return errno.ToReturnValue(err)
	}
	return int64(n)
}

package syscall

import (
	"github.com/ryanbreen/breenix/kernel/errno"
	"github.com/ryanbreen/breenix/kernel/hal"
	"github.com/ryanbreen/breenix/kernel/mem"
	"github.com/ryanbreen/breenix/kernel/mem/pmm"
	"github.com/ryanbreen/breenix/kernel/mem/vmm"
	"github.com/ryanbreen/breenix/kernel/proc"
	"github.com/ryanbreen/breenix/kernel/sched"
	"github.com/ryanbreen/breenix/kernel/uaccess"
)

// Segment is one loadable piece of a program image. MemSize beyond
// len(Bytes) is zero-filled (BSS).
type Segment struct {
	VA       uintptr
	Bytes    []byte
	MemSize  uintptr
	Writable bool
}

// Image is an executable program. With no filesystem behind this kernel,
// images are registered by name at boot (an embedded-initramfs stand-in);
// exec resolves its path argument against this table.
type Image struct {
	Name     string
	Entry    uintptr
	Segments []Segment
}

var images = map[string]*Image{}

// RegisterImage makes an image exec-able under its name.
func RegisterImage(img *Image) {
	images[img.Name] = img
}

// SpawnInit loads the registered image called name and enqueues it as the
// first user process. Called once by kmain after the scheduler is up; a
// build that embeds no init image gets ENOENT and boots to the idle loop.
func SpawnInit(name string) (proc.ProcessID, error) {
	img, found := images[name]
	if !found {
		return 0, errno.ENOENT
	}
	as, regions, err := loadImage(img)
	if err != nil {
		return 0, errno.ENOMEM
	}

	// buildUserStack writes through the user half directly, so the new
	// space must be active; its kernel half is identical to the current
	// one, so the running boot thread is unaffected.
	as.Activate()
	sp, argc, argvAddr, serr := buildUserStack(as, []string{name})
	if serr != nil {
		as.Destroy(regions, pmm.ReleaseAndMaybeFree)
		return 0, serr
	}

	pid, perr := sched.SpawnUserProcess(nil, as, img.Entry, sp, [6]uint64{uint64(argc), uint64(argvAddr)})
	if perr != nil {
		as.Destroy(regions, pmm.ReleaseAndMaybeFree)
		return 0, perr
	}
	if p := proc.Lookup(pid); p != nil {
		for _, r := range regions {
			p.AddRegion(r)
		}
	}
	return pid, nil
}

// User-stack placement for exec'd processes: userStackPages pages ending
// just below userStackTop, with everything beneath left unmapped so a
// runaway stack faults instead of silently corrupting the heap.
const (
	userStackTop   = uintptr(0x0000_7fff_ffff_0000)
	userStackPages = 16
)

func sysExec(ef hal.ExceptionFrame, args [6]uint64) int64 {
	p := current()
	path, err := readUserString(p, uintptr(args[0]))
	if err != nil {
		return errno.ToReturnValue(err)
	}
	img, found := images[path]
	if !found {
		return errno.ToReturnValue(errno.ENOENT)
	}

	// argv must be read out of the old address space before it is torn
	// down.
	argv, err := readUserArgv(p, uintptr(args[1]))
	if err != nil {
		return errno.ToReturnValue(err)
	}
	if len(argv) == 0 {
		argv = []string{path}
	}

	newAS, regions, kerr := loadImage(img)
	if kerr != nil {
		return errno.ToReturnValue(errno.ENOMEM)
	}

	// Point of no return: swap address spaces, free the old image's
	// frames, and rebuild the thread's user-visible state.
	oldAS := p.AddressSpace
	oldRegions := p.MappedRegions()
	p.ReplaceAddressSpace(newAS, regions)
	newAS.Activate()
	if oldAS != nil {
		oldAS.Destroy(oldRegions, pmm.ReleaseAndMaybeFree)
	}

	sp, argc, argvAddr, err := buildUserStack(newAS, argv)
	if err != nil {
		// The old image is gone; there is nothing to return to.
		exitCurrent(exitStatus(127), regions, pmm.ReleaseAndMaybeFree)
		return errno.ToReturnValue(errno.EFAULT)
	}

	p.Signals.ResetHandlers()

	ef.SetPC(uint64(img.Entry))
	ef.SetSP(uint64(sp))
	ef.SetArg(0, uint64(argc))
	ef.SetArg(1, uint64(argvAddr))
	for i := 2; i < 6; i++ {
		ef.SetArg(i, 0)
	}
	ef.SetReturnValue(0)
	return 0
}

// loadImage builds a fresh address space containing img's segments and a
// user stack, returning the regions mapped into it.
func loadImage(img *Image) (*vmm.AddressSpace, []vmm.Region, error) {
	as, err := vmm.NewAddressSpace()
	if err != nil {
		return nil, nil, err
	}

	var regions []vmm.Region
	fail := func(err error) (*vmm.AddressSpace, []vmm.Region, error) {
		as.Destroy(regions, pmm.ReleaseAndMaybeFree)
		return nil, nil, err
	}

	for _, seg := range img.Segments {
		size := seg.MemSize
		if size < uintptr(len(seg.Bytes)) {
			size = uintptr(len(seg.Bytes))
		}
		region, err := mapZeroedRegion(as, seg.VA, size, seg.Writable)
		if err != nil {
			return fail(err)
		}
		regions = append(regions, region)
		if err := writeRegion(as, seg.VA, seg.Bytes); err != nil {
			return fail(err)
		}
	}

	stackBase := userStackTop - userStackPages*uintptr(mem.PageSize)
	stackRegion, err := mapZeroedRegion(as, stackBase, userStackPages*uintptr(mem.PageSize), true)
	if err != nil {
		return fail(err)
	}
	regions = append(regions, stackRegion)

	return as, regions, nil
}

// mapZeroedRegion allocates and maps size bytes of zeroed memory at va
// with user access (plus write access when writable).
func mapZeroedRegion(as *vmm.AddressSpace, va, size uintptr, writable bool) (vmm.Region, error) {
	pageMask := uintptr(mem.PageSize) - 1
	base := va &^ pageMask
	end := (va + size + pageMask) &^ pageMask

	flags := hal.PageTable.UserAccessible(0)
	if writable {
		flags = hal.PageTable.Writable(flags)
	}

	for addr := base; addr < end; addr += uintptr(mem.PageSize) {
		frame, kerr := pmm.AllocFrame()
		if kerr != nil {
			return vmm.Region{}, kerr
		}
		if kerr := vmm.ZeroFrame(frame); kerr != nil {
			return vmm.Region{}, kerr
		}
		if err := as.Map(addr, frame.Address(), flags); err != nil {
			return vmm.Region{}, err
		}
	}
	return vmm.Region{Base: base, Size: end - base}, nil
}

// writeRegion copies data into as at va, page by page, through the frame
// scratch mappings so it works whether or not as is the active address
// space.
func writeRegion(as *vmm.AddressSpace, va uintptr, data []byte) error {
	for off := 0; off < len(data); {
		pageOff := (va + uintptr(off)) & (uintptr(mem.PageSize) - 1)
		chunk := int(uintptr(mem.PageSize) - pageOff)
		if chunk > len(data)-off {
			chunk = len(data) - off
		}
		pa, _, err := as.Translate(va + uintptr(off))
		if err != nil {
			return err
		}
		frame := pmm.Frame(pa >> mem.PageShift)
		if kerr := vmm.WriteFrame(frame, pageOff, data[off:off+chunk]); kerr != nil {
			return kerr
		}
		off += chunk
	}
	return nil
}

// readUserArgv reads a NULL-terminated array of string pointers.
func readUserArgv(p *proc.Process, argvPtr uintptr) ([]string, error) {
	if argvPtr == 0 {
		return nil, nil
	}
	const maxArgs = 32
	var out []string
	for i := uintptr(0); i < maxArgs; i++ {
		ptr, err := uaccess.CopyInUint64(p.AddressSpace, argvPtr+i*8)
		if err != nil {
			return nil, err
		}
		if ptr == 0 {
			return out, nil
		}
		s, err := readUserString(p, uintptr(ptr))
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return nil, errno.EINVAL
}

// buildUserStack lays out the initial stack the runtime contract promises:
// string data at the top, then [argc][argv pointers][NULL], with SP left
// 16-byte aligned at argc.
func buildUserStack(as *vmm.AddressSpace, argv []string) (sp, argc, argvAddr uintptr, err error) {
	sp = userStackTop

	ptrs := make([]uintptr, len(argv))
	for i := len(argv) - 1; i >= 0; i-- {
		data := append([]byte(argv[i]), 0)
		sp -= uintptr(len(data))
		if err = uaccess.CopyOut(as, sp, data); err != nil {
			return 0, 0, 0, err
		}
		ptrs[i] = sp
	}

	sp &^= 7
	// [argc][argv...][NULL] plus the empty envp's terminating NULL.
	words := make([]uint64, 0, len(ptrs)+3)
	words = append(words, uint64(len(argv)))
	for _, p := range ptrs {
		words = append(words, uint64(p))
	}
	words = append(words, 0) // argv terminator
	words = append(words, 0) // envp terminator (empty environment)

	sp -= uintptr(len(words) * 8)
	sp &^= 15
	for i, w := range words {
		if err = uaccess.CopyOutUint64(as, sp+uintptr(i*8), w); err != nil {
			return 0, 0, 0, err
		}
	}
	argvAddr = sp + 8
	return sp, uintptr(len(argv)), argvAddr, nil
}

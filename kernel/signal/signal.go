// Package signal implements the kernel's POSIX-flavored signal subsystem:
// per-process pending/blocked sets and dispositions, return-to-user
// delivery, and the sigreturn trampoline.
package signal

import (
	"github.com/ryanbreen/breenix/kernel/hal"
	"gvisor.dev/gvisor/pkg/abi/linux"
)

// Disposition is what a process does when a signal becomes deliverable.
type Disposition int

const (
	DispositionDefault Disposition = iota
	DispositionIgnore
	DispositionHandler
)

// DefaultAction classifies what "default" means for a given signal; the
// delivery gate short-circuits only for terminate/core/stop defaults.
type DefaultAction int

const (
	ActionTerminate DefaultAction = iota
	ActionCore
	ActionStop
	ActionContinue
	ActionIgnore
)

// defaultActions mirrors the well-known POSIX default dispositions for the
// signals this kernel's syscall/fault paths raise.
var defaultActions = map[linux.Signal]DefaultAction{
	linux.SIGHUP:  ActionTerminate,
	linux.SIGINT:  ActionTerminate,
	linux.SIGQUIT: ActionCore,
	linux.SIGILL:  ActionCore,
	linux.SIGTRAP: ActionCore,
	linux.SIGABRT: ActionCore,
	linux.SIGBUS:  ActionCore,
	linux.SIGFPE:  ActionCore,
	linux.SIGKILL: ActionTerminate,
	linux.SIGSEGV: ActionCore,
	linux.SIGPIPE: ActionTerminate,
	linux.SIGALRM: ActionTerminate,
	linux.SIGTERM: ActionTerminate,
	linux.SIGCHLD: ActionIgnore,
	linux.SIGCONT: ActionContinue,
	linux.SIGSTOP: ActionStop,
	linux.SIGTSTP: ActionStop,
}

// DefaultActionFor returns sig's default action, or ActionTerminate for any
// signal not in the well-known table (a conservative default: an unknown
// signal should not be silently survivable).
func DefaultActionFor(sig linux.Signal) DefaultAction {
	if a, ok := defaultActions[sig]; ok {
		return a
	}
	return ActionTerminate
}

// Handler is a user-registered disposition: the handler's entry address
// and the mask to apply for the handler's own duration.
type Handler struct {
	Disposition Disposition
	EntryPC     uint64
	Mask        uint64
}

// set is a 64-bit bitmask over signal numbers 1..63; signal 0 is unused,
// matching POSIX's sigset convention. gvisor's linux.SignalSet already
// carries the same bit-per-signal layout but this package keeps its own
// named type so pending/blocked reads don't require an import alias at
// every call site.
type set uint64

func bit(sig linux.Signal) set { return set(1) << uint(sig) }

// State is the per-process signal state: pending,
// blocked, and a disposition table. It carries no lock of its own;
// kernel/proc guards it the same way it guards the rest of a Process,
// inside a without-IRQs spinlock per the documented lock order.
type State struct {
	pending  set
	blocked  set
	handlers [64]Handler

	// handling is the signal currently being run by a user handler, or 0.
	// Nested delivery of the same signal is blocked.
	handling linux.Signal
}

// NewState returns signal state with every disposition at its default and
// nothing pending or blocked.
func NewState() *State {
	return &State{}
}

// Clone returns the state a forked child starts with: dispositions and the
// blocked mask are inherited, pending signals are not.
func (s *State) Clone() *State {
	out := &State{blocked: s.blocked}
	out.handlers = s.handlers
	return out
}

// ResetHandlers reverts every caught signal to its default disposition,
// the exec-time rule: a new image cannot be entered at a handler address
// that no longer exists. Ignored dispositions and the blocked mask are
// preserved.
func (s *State) ResetHandlers() {
	for i := range s.handlers {
		if s.handlers[i].Disposition == DispositionHandler {
			s.handlers[i] = Handler{}
		}
	}
}

// Raise marks sig pending. Raising an already-pending signal is a no-op:
// a signal has at most one outstanding occurrence.
func (s *State) Raise(sig linux.Signal) {
	s.pending |= bit(sig)
}

// SetBlocked replaces the blocked mask.
func (s *State) SetBlocked(mask uint64) {
	s.blocked = set(mask)
}

// Blocked returns the current blocked mask.
func (s *State) Blocked() uint64 {
	return uint64(s.blocked)
}

// SetHandler installs disp for sig.
func (s *State) SetHandler(sig linux.Signal, h Handler) {
	s.handlers[sig] = h
}

// GetHandler returns the installed disposition for sig.
func (s *State) GetHandler(sig linux.Signal) Handler {
	return s.handlers[sig]
}

// HasDeliverable is the O(1) check cheap enough for
// the return-to-user hot path.
func (s *State) HasDeliverable() bool {
	return s.pending&^s.blocked != 0
}

// Delivery describes what return-to-user must do about a picked signal.
type Delivery struct {
	Signal      linux.Signal
	Action      DeliveryAction
	DefaultKind DefaultAction // meaningful only when Action == DeliveryDefault
	Handler     Handler       // meaningful only when Action == DeliveryHandler
}

type DeliveryAction int

const (
	DeliveryNone DeliveryAction = iota
	DeliveryDefault
	DeliveryHandler
)

// Pick implements delivery selection: compute the lowest
// deliverable signal, clear its pending bit, and classify what the caller
// (the return-to-user gate) must do next. Ignored signals are dropped here
// and reported as DeliveryNone; the caller calls Pick again for as long as
// HasDeliverable reports true.
func (s *State) Pick() Delivery {
	deliverable := s.pending &^ s.blocked
	if deliverable == 0 {
		return Delivery{Action: DeliveryNone}
	}

	var sig linux.Signal
	for i := linux.Signal(1); i < 64; i++ {
		if deliverable&bit(i) != 0 {
			sig = i
			break
		}
	}
	s.pending &^= bit(sig)

	h := s.handlers[sig]
	switch h.Disposition {
	case DispositionHandler:
		return Delivery{Signal: sig, Action: DeliveryHandler, Handler: h}
	case DispositionIgnore:
		return Delivery{Action: DeliveryNone}
	default:
		action := DefaultActionFor(sig)
		if action == ActionIgnore || action == ActionContinue {
			return Delivery{Action: DeliveryNone}
		}
		return Delivery{Signal: sig, Action: DeliveryDefault, DefaultKind: action}
	}
}

// BeginHandling blocks sig for the duration of its own handler, so nested
// delivery of the signal currently being handled cannot occur.
func (s *State) BeginHandling(sig linux.Signal, handlerMask uint64) (savedBlocked uint64) {
	savedBlocked = uint64(s.blocked)
	s.blocked |= bit(sig) | set(handlerMask)
	s.handling = sig
	return savedBlocked
}

// EndHandling restores the blocked mask saved by BeginHandling; called from
// rt_sigreturn.
func (s *State) EndHandling(savedBlocked uint64) {
	s.blocked = set(savedBlocked)
	s.handling = 0
}

// trampolineAmd64 is the literal x86_64 machine code: mov rax, 15
// (SYS_rt_sigreturn); int 0x80; ud2. It is written onto the user stack at
// signal-delivery time
// so a handler's `ret` lands here instead of anywhere else.
var trampolineAmd64 = []byte{
	0x48, 0xC7, 0xC0, 0x0F, 0x00, 0x00, 0x00, // mov rax, 15
	0xCD, 0x80, // int 0x80
	0x0F, 0x0B, // ud2
}

// Trampoline returns the x86_64 sigreturn trampoline bytes on every
// target; no arm64 instruction sequence exists.
func Trampoline() []byte {
	return trampolineAmd64
}

// SigFrame is the saved user register file pushed onto the user stack at
// delivery time, restored byte-for-byte by rt_sigreturn (round-trip
// identity). It is deliberately a flat struct of the
// same shape hal.ExceptionFrame exposes, rather than a pointer into the
// frame itself, since the frame's storage is reused by the next trap.
type SigFrame struct {
	PC          uint64
	SP          uint64
	ReturnValue uint64
	Args        [6]uint64
	Privilege   hal.Privilege
	SavedMask   uint64
}

// CaptureFrame snapshots ef into a SigFrame for pushing onto the user
// stack.
func CaptureFrame(ef hal.ExceptionFrame, savedMask uint64) SigFrame {
	var args [6]uint64
	for i := range args {
		args[i] = ef.Arg(i)
	}
	return SigFrame{
		PC:          ef.PC(),
		SP:          ef.SP(),
		ReturnValue: ef.ReturnValue(),
		Args:        args,
		Privilege:   ef.Privilege(),
		SavedMask:   savedMask,
	}
}

// SigFrameSize is the sigframe's size on the user stack: PC, SP, return
// value, six argument registers, a privilege word, and the saved blocked
// mask, each 8 bytes, little-endian on both supported targets.
const SigFrameSize = 88

// privValue lets an unmarshalled sigframe carry a privilege level without
// consulting hal.Privileges, which tests leave unwired.
type privValue struct{ user bool }

func (p privValue) IsKernel() bool { return !p.user }
func (p privValue) IsUser() bool   { return p.user }

// Marshal encodes sf into buf for pushing onto the user stack.
func (sf SigFrame) Marshal(buf *[SigFrameSize]byte) {
	words := [11]uint64{sf.PC, sf.SP, sf.ReturnValue}
	copy(words[3:9], sf.Args[:])
	if sf.Privilege != nil && sf.Privilege.IsUser() {
		words[9] = 1
	}
	words[10] = sf.SavedMask
	for i, w := range words {
		for j := 0; j < 8; j++ {
			buf[i*8+j] = byte(w >> (8 * uint(j)))
		}
	}
}

// UnmarshalSigFrame decodes a sigframe previously written by Marshal; used
// by rt_sigreturn to read the frame back off the user stack.
func UnmarshalSigFrame(buf *[SigFrameSize]byte) SigFrame {
	var words [11]uint64
	for i := range words {
		var w uint64
		for j := 7; j >= 0; j-- {
			w = w<<8 | uint64(buf[i*8+j])
		}
		words[i] = w
	}
	sf := SigFrame{
		PC:          words[0],
		SP:          words[1],
		ReturnValue: words[2],
		Privilege:   privValue{user: words[9] == 1},
		SavedMask:   words[10],
	}
	copy(sf.Args[:], words[3:9])
	return sf
}

// Restore writes sf back into ef, exactly undoing CaptureFrame; used by
// rt_sigreturn.
func Restore(ef hal.ExceptionFrame, sf SigFrame) {
	ef.SetPC(sf.PC)
	ef.SetSP(sf.SP)
	ef.SetReturnValue(sf.ReturnValue)
	for i, a := range sf.Args {
		ef.SetArg(i, a)
	}
	ef.SetPrivilege(sf.Privilege)
}

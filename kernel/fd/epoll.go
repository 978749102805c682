package fd

import (
	"sync"

	"github.com/ryanbreen/breenix/kernel/errno"
)

// Epoll control operations, matching Linux's numbering so userspace can
// pass the standard constants through unchanged.
const (
	EpollCtlAdd = 1
	EpollCtlDel = 2
	EpollCtlMod = 3
)

// ReadyEvent is one epoll_wait result: the readiness bits that fired and
// the opaque data word registered with the interest.
type ReadyEvent struct {
	Events uint32
	Data   uint64
}

type epollInterest struct {
	file   File
	events uint32
	data   uint64
}

// Epoll is an interest list over other descriptors, itself installed in
// the descriptor table like any other File. Readiness checking reuses the
// same Ready surface poll uses; there is no separate event machinery.
type Epoll struct {
	mu       sync.Mutex
	interest map[int]epollInterest
}

// NewEpoll returns an empty interest list.
func NewEpoll() *Epoll {
	return &Epoll{interest: make(map[int]epollInterest)}
}

func (e *Epoll) Kind() Kind                   { return KindEpoll }
func (e *Epoll) Close() error                 { return nil }
func (e *Epoll) Read(buf []byte) (int, error) { return 0, errno.EINVAL }
func (e *Epoll) Write(buf []byte) (int, error) {
	return 0, errno.EINVAL
}

// Ready reports PollIn when any watched descriptor is ready, so an epoll
// fd can itself be polled or nested in another epoll.
func (e *Epoll) Ready(events uint32) uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, in := range e.interest {
		if in.file.Ready(in.events) != 0 {
			return events & PollIn
		}
	}
	return 0
}

// Ctl applies one EpollCtl* operation for the descriptor number fdNum,
// whose resolved File the caller passes in (the table lookup lives in the
// syscall layer; this object never sees a Table).
func (e *Epoll) Ctl(op int, fdNum int, file File, events uint32, data uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch op {
	case EpollCtlAdd:
		if _, ok := e.interest[fdNum]; ok {
			return errno.EEXIST
		}
		e.interest[fdNum] = epollInterest{file: file, events: events, data: data}
	case EpollCtlDel:
		if _, ok := e.interest[fdNum]; !ok {
			return errno.ENOENT
		}
		delete(e.interest, fdNum)
	case EpollCtlMod:
		if _, ok := e.interest[fdNum]; !ok {
			return errno.ENOENT
		}
		e.interest[fdNum] = epollInterest{file: file, events: events, data: data}
	default:
		return errno.EINVAL
	}
	return nil
}

// Collect appends up to max ready events and returns them; an empty result
// means nothing in the interest list is ready right now.
func (e *Epoll) Collect(max int) []ReadyEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []ReadyEvent
	for _, in := range e.interest {
		if len(out) >= max {
			break
		}
		if r := in.file.Ready(in.events); r != 0 {
			out = append(out, ReadyEvent{Events: r, Data: in.data})
		}
	}
	return out
}

package vanilla

import (
	"sync"
	"sync/atomic"

	"golang.org/x/xerrors"

	"github.com/moratsam/opencl-vector-flow/pu"
)

type event struct {
	user     bool
	done     chan struct{}
	once     sync.Once
	err      error
	released atomic.Bool
}

func newEvent(user bool) *event {
	return &event{user: user, done: make(chan struct{})}
}

func (e *event) complete(err error) {
	e.once.Do(func() {
		e.err = err
		close(e.done)
	})
}

func (e *event) Wait() error {
	<-e.done
	return e.err
}

func (e *event) SetComplete() error {
	if !e.user {
		return xerrors.New("set status of a command event")
	}
	e.complete(nil)
	return nil
}

func (e *event) Release() error {
	if e.released.Swap(true) {
		return pu.ErrReleased
	}
	return nil
}

func toEvents(wait []pu.Event) ([]*event, error) {
	events := make([]*event, 0, len(wait))
	for _, w := range wait {
		if w == nil {
			continue
		}
		ev, ok := w.(*event)
		if !ok {
			return nil, xerrors.Errorf("foreign event %T in wait list", w)
		}
		events = append(events, ev)
	}
	return events, nil
}

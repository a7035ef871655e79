package ptree

import (
	"github.com/edwingeng/deque"

	"github.com/drpcorg/ptree/channel"
	"github.com/drpcorg/ptree/utils"
)

// outboxLimit bounds a follower's pending frames so a permanently
// offline worker cannot grow the leader without bound.
const outboxLimit = 1 << 16

// Follower is one worker process the leader ships actions to. The ring
// is opened lazily: the worker may not have created it yet when the
// leader starts, so the open is retried every tick until it succeeds.
type Follower struct {
	pid    int
	path   string
	ring   *channel.Ring
	outbox deque.Deque
	log    utils.Logger

	// counters for the leader's collector
	Shipped  uint64
	RingFull uint64
}

func newFollower(pid int, root string, log utils.Logger) *Follower {
	return &Follower{
		pid:    pid,
		path:   channel.FollowerPath(root, pid),
		outbox: deque.NewDeque(),
		log:    log.With("follower", pid),
	}
}

func (f *Follower) canEnqueue(n int) bool {
	return f.outbox.Len()+n <= outboxLimit
}

func (f *Follower) enqueue(frames [][]byte) {
	for _, frame := range frames {
		f.outbox.PushBack(frame)
	}
}

// ship drains the outbox into the ring. A frame the ring rejects goes
// back to the head of the queue and ends the batch for this tick; later
// frames must not overtake it.
func (f *Follower) ship() {
	if f.ring == nil {
		ring, err := channel.Open(f.path)
		if err != nil {
			return
		}
		f.ring = ring
		f.log.Info("follower channel open", "path", f.path)
	}
	for f.outbox.Len() > 0 {
		frame := f.outbox.PopFront().([]byte)
		if !f.ring.Put(frame) {
			f.outbox.PushFront(frame)
			f.RingFull++
			return
		}
		f.Shipped++
	}
}

// Pending reports the outbox depth.
func (f *Follower) Pending() int {
	return f.outbox.Len()
}

func (f *Follower) close() {
	if f.ring != nil {
		_ = f.ring.Close()
		f.ring = nil
	}
}

package protocol

import (
	"sync"

	"github.com/emirpasic/gods/queues/linkedlistqueue"

	"github.com/adgentic/agentcomm/core"
)

const numPriorityBands = int(core.PriorityUrgent) + 1

// queueEntry wraps a pending message with queue-only metadata. The sequence
// number is monotonic across all bands and provides the deterministic
// tie-break within a band; attempts counts delivery tries for reporting.
type queueEntry struct {
	msg      *core.Message
	seq      uint64
	attempts int
}

// messageQueue holds undelivered messages in one FIFO list per priority band.
// Dequeue scans bands from URGENT down to LOW and pops the head of the first
// non-empty band, so higher priorities always drain first while same-priority
// messages keep strict send order. This is deterministic and starvation-free
// within a band, with no heap comparator involved.
//
// A capacity of zero means unbounded. When bounded, enqueue rejects the
// newest message with ErrQueueFull; dropping older entries would silently
// break at-most-once accounting for messages already committed by send.
type messageQueue struct {
	mu       sync.Mutex
	bands    [numPriorityBands]*linkedlistqueue.Queue
	capacity int
	size     int
	nextSeq  uint64
}

func newMessageQueue(capacity int) *messageQueue {
	q := &messageQueue{capacity: capacity}
	for i := range q.bands {
		q.bands[i] = linkedlistqueue.New()
	}
	return q
}

// enqueue appends the message to its priority band and returns the assigned
// sequence number.
func (q *messageQueue) enqueue(msg *core.Message) (uint64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.capacity > 0 && q.size >= q.capacity {
		return 0, core.ErrQueueFull
	}
	q.nextSeq++
	entry := &queueEntry{msg: msg, seq: q.nextSeq}
	q.bands[msg.Priority].Enqueue(entry)
	q.size++
	return entry.seq, nil
}

// dequeue removes and returns the highest-priority, earliest-inserted entry.
// ok is false when the queue is empty; that is a normal condition, not an
// error.
func (q *messageQueue) dequeue() (*queueEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for band := numPriorityBands - 1; band >= 0; band-- {
		if v, ok := q.bands[band].Dequeue(); ok {
			q.size--
			entry := v.(*queueEntry)
			entry.attempts++
			return entry, true
		}
	}
	return nil, false
}

// peek returns the next candidate without removing it.
func (q *messageQueue) peek() (*queueEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for band := numPriorityBands - 1; band >= 0; band-- {
		if v, ok := q.bands[band].Peek(); ok {
			return v.(*queueEntry), true
		}
	}
	return nil, false
}

func (q *messageQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

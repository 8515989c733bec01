package mqtt

import "log"

// bufferedMsg is a serialized message held for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// disposable reports whether msg is periodic telemetry that the next report
// supersedes. Transitions and system events are published at QoS 1.
func (m bufferedMsg) disposable() bool {
	return m.qos == 0
}

// offlineQueue is a bounded FIFO of messages published while the broker is
// unreachable. When full, the oldest log line is evicted first so that a long
// outage of 1 Hz reports cannot push out the transitions recorded during it.
// Not safe for concurrent use; the caller synchronizes.
type offlineQueue struct {
	msgs     []bufferedMsg
	capacity int
	overflow bool // an eviction happened since the last drain
	dropped  int  // evictions since the last drain
}

func newOfflineQueue(capacity int) *offlineQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &offlineQueue{
		msgs:     make([]bufferedMsg, 0, capacity),
		capacity: capacity,
	}
}

func (q *offlineQueue) push(msg bufferedMsg) {
	if len(q.msgs) == q.capacity {
		if !q.overflow {
			log.Printf("mqtt: offline buffer full (%d messages), dropping oldest log lines", q.capacity)
			q.overflow = true
		}
		q.evict(msg)
		q.dropped++
		if len(q.msgs) == q.capacity {
			// msg itself was the victim
			return
		}
	}
	q.msgs = append(q.msgs, msg)
}

// evict removes one entry to make room for incoming. The victim is the oldest
// disposable entry, else incoming itself if disposable, else the oldest entry.
func (q *offlineQueue) evict(incoming bufferedMsg) {
	for i, m := range q.msgs {
		if m.disposable() {
			q.msgs = append(q.msgs[:i], q.msgs[i+1:]...)
			return
		}
	}
	if incoming.disposable() {
		return
	}
	q.msgs = append(q.msgs[:0], q.msgs[1:]...)
}

// drain returns the queued messages oldest first and empties the queue,
// along with the number evicted since the previous drain.
func (q *offlineQueue) drain() ([]bufferedMsg, int) {
	dropped := q.dropped
	q.dropped = 0
	q.overflow = false
	if len(q.msgs) == 0 {
		return nil, dropped
	}
	out := make([]bufferedMsg, len(q.msgs))
	copy(out, q.msgs)
	q.msgs = q.msgs[:0]
	return out, dropped
}

func (q *offlineQueue) len() int {
	return len(q.msgs)
}

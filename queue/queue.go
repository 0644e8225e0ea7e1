package queue

// An array-based fixed-capacity FIFO, supposedly faster than a LinkedList implementation.
// Used as the outbox of asynchronous proxies. Not safe for concurrent use; callers lock.

type Queue struct {
	// tracking the length separately in l, because calculating it from (front, back)
	// is difficult in some cases (especially rollover)
	front, back, l int
	queue          []interface{}
}

func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{queue: make([]interface{}, capacity)}
}

func (q *Queue) Len() int {
	return q.l
}

func (q *Queue) Cap() int {
	return len(q.queue)
}

// Append to the back. Returns false if queue is full.
func (q *Queue) Push(e interface{}) bool {
	if q.l >= len(q.queue) {
		return false
	}
	q.queue[q.back] = e
	q.back = (q.back + 1) % len(q.queue)
	q.l++
	return true
}

// Get from the front. Returns nil if queue is empty.
func (q *Queue) Pop() interface{} {
	if q.l == 0 {
		return nil
	}
	e := q.queue[q.front]
	q.queue[q.front] = nil
	q.front = (q.front + 1) % len(q.queue)
	q.l--
	return e
}

// Returns the front element without removing it, or nil.
func (q *Queue) Peek() interface{} {
	if q.l == 0 {
		return nil
	}
	return q.queue[q.front]
}

// Removes all elements, returning them in FIFO order.
func (q *Queue) Drain() []interface{} {
	out := make([]interface{}, 0, q.l)
	for q.l > 0 {
		out = append(out, q.Pop())
	}
	return out
}

package state

import (
	"container/heap"
	"math"
)

// Batch is a scoped acquisition returned by Composite.Batch and List.Batch.
// Notifications raised inside the scope are held until the outermost
// Batch of the same scope ends.
type Batch struct {
	scope *batchScope
	ended bool
}

// End releases the batch. Ending twice is a no-op.
func (b *Batch) End() {
	if b == nil || b.ended {
		return
	}
	b.ended = true
	b.scope.depth--
	if b.scope.depth == 0 {
		b.scope.flush()
	}
}

func beginBatch(root Observable) *Batch {
	if s := root.node().scope; s != nil {
		s.depth++
		return &Batch{scope: s}
	}
	s := &batchScope{depth: 1}
	s.attach(root)
	return &Batch{scope: s}
}

type batchScope struct {
	depth    int
	attached []*notifier
	held     []*notifier
}

func (s *batchScope) attach(o Observable) {
	n := o.node()
	if n.scope != nil {
		return
	}
	n.scope = s
	s.attached = append(s.attached, n)
	if c, ok := o.(container); ok {
		for _, child := range c.children() {
			s.attach(child)
		}
	}
}

func (s *batchScope) hold(n *notifier, elementsOnly bool) {
	if n.held == 0 {
		s.held = append(s.held, n)
	}
	if elementsOnly {
		n.held |= heldElements
	} else {
		n.held |= heldAll
	}
}

func (s *batchScope) flush() {
	for _, n := range s.attached {
		if n.scope == s {
			n.scope = nil
		}
	}
	held := s.held
	s.attached, s.held = nil, nil

	q := newFlushQueue()
	for _, n := range held {
		h := n.held
		n.held = 0
		n.enqueue(q, h&heldAll == 0)
	}
	q.run()
}

// flushQueue delivers pending notifications. Internal hooks run first in
// order of their depth in the graph, so a derived node runs after every
// node it derives from. Subscriber callbacks run afterwards in the order
// they were queued.
type flushQueue struct {
	items   deliveries
	pending map[any]struct{}
	ranks   map[*notifier]int
	seq     int
}

type delivery struct {
	sub  *Subscription
	src  Observable
	rank int
	seq  int
}

func newFlushQueue() *flushQueue {
	return &flushQueue{
		pending: make(map[any]struct{}),
		ranks:   make(map[*notifier]int),
	}
}

func (q *flushQueue) push(sub *Subscription, src Observable) {
	if sub.cancelled {
		return
	}
	key := sub.dedupeKey()
	if _, ok := q.pending[key]; ok {
		return
	}
	q.pending[key] = struct{}{}

	rank := math.MaxInt
	if sub.owner != nil {
		rank = q.rank(sub.owner)
	}
	q.seq++
	heap.Push(&q.items, delivery{sub: sub, src: src, rank: rank, seq: q.seq})
}

func (q *flushQueue) run() {
	for q.items.Len() > 0 {
		d := heap.Pop(&q.items).(delivery)
		delete(q.pending, d.sub.dedupeKey())
		d.sub.fire(d.src, q)
	}
}

func (q *flushQueue) rank(o Observable) int {
	n := o.node()
	if r, ok := q.ranks[n]; ok {
		return r
	}
	q.ranks[n] = 0
	r := 0
	if d, ok := o.(dependent); ok {
		for _, dep := range d.dependencies() {
			r = max(r, q.rank(dep)+1)
		}
	}
	q.ranks[n] = r
	return r
}

type deliveries []delivery

func (d deliveries) Len() int { return len(d) }
func (d deliveries) Less(i, j int) bool {
	if d[i].rank != d[j].rank {
		return d[i].rank < d[j].rank
	}
	return d[i].seq < d[j].seq
}
func (d deliveries) Swap(i, j int) { d[i], d[j] = d[j], d[i] }
func (d *deliveries) Push(x any)   { *d = append(*d, x.(delivery)) }
func (d *deliveries) Pop() any {
	old := *d
	item := old[len(old)-1]
	*d = old[:len(old)-1]
	return item
}

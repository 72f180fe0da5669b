// Package queue provides a value-based binary heap used for bounded top-k
// selection.
package queue

// Item is a scored candidate. Index refers to the caller's candidate list.
type Item struct {
	Index int
	Score float64
}

// PriorityQueue is a binary heap of Items. Ties on Score are broken by
// Index so that selection is deterministic: the larger index sits closer to
// the top and is evicted first.
type PriorityQueue struct {
	isMaxHeap bool
	items     []Item
}

// NewMin initializes a new priority queue with minimum priority. Bounded
// with Offer it keeps the k highest scores.
func NewMin(capacity int) *PriorityQueue {
	return &PriorityQueue{
		isMaxHeap: false,
		items:     make([]Item, 0, capacity),
	}
}

// NewMax initializes a new priority queue with maximum priority. Bounded
// with Offer it keeps the k lowest scores.
func NewMax(capacity int) *PriorityQueue {
	return &PriorityQueue{
		isMaxHeap: true,
		items:     make([]Item, 0, capacity),
	}
}

// Len returns the number of elements in the priority queue.
func (pq *PriorityQueue) Len() int { return len(pq.items) }

// Reset clears the priority queue for reuse.
func (pq *PriorityQueue) Reset() {
	pq.items = pq.items[:0]
}

// PushItem inserts an item while maintaining the heap invariant.
func (pq *PriorityQueue) PushItem(item Item) {
	pq.items = append(pq.items, item)
	pq.siftUp(len(pq.items) - 1)
}

// PopItem removes and returns the top element while maintaining the heap invariant.
func (pq *PriorityQueue) PopItem() (Item, bool) {
	n := len(pq.items)
	if n == 0 {
		return Item{}, false
	}
	root := pq.items[0]
	last := pq.items[n-1]
	pq.items = pq.items[:n-1]
	if n-1 > 0 {
		pq.items[0] = last
		pq.siftDown(0)
	}
	return root, true
}

// Offer pushes item while holding at most k items. When full, item replaces
// the top if it ranks better than it.
func (pq *PriorityQueue) Offer(item Item, k int) {
	if k <= 0 {
		return
	}
	if len(pq.items) < k {
		pq.PushItem(item)
		return
	}
	if !pq.before(pq.items[0], item) {
		return
	}
	pq.items[0] = item
	pq.siftDown(0)
}

// Drain empties the queue and returns its items best first: ascending
// scores for a max-heap, descending scores for a min-heap.
func (pq *PriorityQueue) Drain() []Item {
	out := make([]Item, len(pq.items))
	for i := len(out) - 1; i >= 0; i-- {
		out[i], _ = pq.PopItem()
	}
	return out
}

// before reports whether a belongs above b in the heap.
func (pq *PriorityQueue) before(a, b Item) bool {
	if a.Score != b.Score {
		if pq.isMaxHeap {
			return a.Score > b.Score
		}
		return a.Score < b.Score
	}
	return a.Index > b.Index
}

func (pq *PriorityQueue) less(i, j int) bool {
	return pq.before(pq.items[i], pq.items[j])
}

func (pq *PriorityQueue) siftUp(i int) {
	for i > 0 {
		p := (i - 1) / 2
		if !pq.less(i, p) {
			return
		}
		pq.items[i], pq.items[p] = pq.items[p], pq.items[i]
		i = p
	}
}

func (pq *PriorityQueue) siftDown(i int) {
	n := len(pq.items)
	for {
		l := 2*i + 1
		if l >= n {
			return
		}
		best := l
		r := l + 1
		if r < n && pq.less(r, l) {
			best = r
		}
		if !pq.less(best, i) {
			return
		}
		pq.items[i], pq.items[best] = pq.items[best], pq.items[i]
		i = best
	}
}

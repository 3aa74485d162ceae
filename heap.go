package taskpool

// entry is a queued job plus its ordering key.
type entry struct {
	job Job

	// prio is the job priority captured at push time.
	prio int

	// seq is the queue-wide arrival number. It breaks ties between equal
	// priorities so that they leave in arrival order.
	seq uint64

	// index is maintained by container/heap.
	index int
}

// entryHeap is a min-heap over (prio, seq).
type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if h[i].prio != h[j].prio {
		return h[i].prio < h[j].prio
	}
	return h[i].seq < h[j].seq
}
func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

package pipeline

import "feedalert/internal/model"

// DefaultWindowSize is the number of most recent items examined per cycle.
const DefaultWindowSize = 10

// Window iterates over the most recent items of a snapshot, oldest first.
// It reports exhaustion once the newest item turns out to be already handled.
type Window struct {
	items     []model.Item
	next      int
	exhausted bool
}

// Detect compares a newest-first snapshot with the stored checkpoint. It
// returns nil when there is nothing to scan: the snapshot is empty or its
// newest item is the checkpoint. Otherwise it returns a window over at most
// size items in chronological order.
func Detect(snapshot []model.Item, checkpoint string, hasCheckpoint bool, size int) *Window {
	if len(snapshot) == 0 {
		return nil
	}
	if hasCheckpoint && snapshot[0].Key() == checkpoint {
		return nil
	}
	if size <= 0 {
		size = DefaultWindowSize
	}
	n := min(size, len(snapshot))

	items := make([]model.Item, n)
	for i := range n {
		items[n-1-i] = snapshot[i]
	}
	return &Window{items: items}
}

// Len returns the number of items in the window.
func (w *Window) Len() int {
	return len(w.items)
}

// Next returns the next item, or false when the window is done.
func (w *Window) Next() (model.Item, bool) {
	if w.exhausted || w.next >= len(w.items) {
		return model.Item{}, false
	}
	it := w.items[w.next]
	w.next++
	return it, true
}

// Skip records that the item last returned by Next was already handled.
// Skipping the newest item exhausts the window.
func (w *Window) Skip() {
	if w.next == len(w.items) {
		w.exhausted = true
	}
}

// Exhausted reports whether the scan stopped on an already handled newest item.
func (w *Window) Exhausted() bool {
	return w.exhausted
}

package consistency

import "golang.org/x/tools/go/ssa"

// blockWorklist is a FIFO queue of blocks still needing (re-)processing.
// Copied near-verbatim from the teacher's analyzer/worklist.go: a plain
// queue is exactly what a forward dataflow fixpoint needs, whether the
// items being queued are printed (the teacher's use) or transferred
// through (this one).
type blockWorklist struct {
	queue   []*ssa.BasicBlock
	inQueue map[int]bool
}

func newBlockWorklist(entry *ssa.BasicBlock) *blockWorklist {
	return &blockWorklist{
		queue:   []*ssa.BasicBlock{entry},
		inQueue: map[int]bool{entry.Index: true},
	}
}

func (w *blockWorklist) Push(b *ssa.BasicBlock) {
	if !w.inQueue[b.Index] {
		w.queue = append(w.queue, b)
		w.inQueue[b.Index] = true
	}
}

func (w *blockWorklist) Pop() *ssa.BasicBlock {
	b := w.queue[0]
	w.queue = w.queue[1:]
	w.inQueue[b.Index] = false
	return b
}

func (w *blockWorklist) Empty() bool {
	return len(w.queue) == 0
}

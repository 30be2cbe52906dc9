package pf

import "sync"

// parallelThreshold is the particle count below which particles are processed on the calling goroutine
const parallelThreshold = 64

// parallel splits filter particles into contiguous chunks and calls fn on every chunk
// from its own goroutine. It returns once all the chunks have been processed.
// Chunks are disjoint, so fn may modify particles within [start, end) without synchronization.
func (f *PF) parallel(fn func(worker, start, end int)) {
	n := len(f.particles)
	workers := min(f.workers, n)

	if workers <= 1 || n < parallelThreshold {
		fn(0, 0, n)
		return
	}

	chunk := (n + workers - 1) / workers

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * chunk
		if start >= n {
			break
		}
		end := min(start+chunk, n)

		wg.Add(1)
		go func(w, start, end int) {
			defer wg.Done()
			fn(w, start, end)
		}(w, start, end)
	}
	wg.Wait()
}

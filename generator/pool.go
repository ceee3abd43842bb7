package generator

import (
	"fmt"
	"time"

	"github.com/appstream-tools/dep11-generator/archive"
	"github.com/appstream-tools/dep11-generator/dep11"
)

// ExtractFunc is the extraction collaborator contract: given a package
// record and the absolute path of its .deb file, produce the package's
// component results. Implementations must be safe for concurrent calls.
type ExtractFunc func(rec archive.PackageRecord, debPath string) ([]*dep11.Component, error)

type task struct {
	rec     archive.PackageRecord
	debPath string
}

type result struct {
	rec  archive.PackageRecord
	cpts []*dep11.Component
	err  error
}

// pool runs extraction tasks on a fixed number of workers. Completed
// results are delivered on a single channel consumed by the aggregator
// loop, which is what keeps aggregation lock-free.
//
// A task that fails, panics or exceeds the per-task timeout produces a
// result carrying the error; it never aborts its siblings or the batch.
type pool struct {
	extract ExtractFunc
	timeout time.Duration
	tasks   chan task
	results chan result
}

// newPool starts the workers. The results channel closes once finish has
// been called and every submitted task has completed or failed; consuming
// results to exhaustion is the drain.
func newPool(workers int, timeout time.Duration, extract ExtractFunc) *pool {
	p := &pool{
		extract: extract,
		timeout: timeout,
		tasks:   make(chan task),
		results: make(chan result, workers),
	}
	done := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		go func() {
			for t := range p.tasks {
				p.results <- p.runTask(t)
			}
			done <- struct{}{}
		}()
	}
	go func() {
		for i := 0; i < workers; i++ {
			<-done
		}
		close(p.results)
	}()
	return p
}

// submit queues one extraction task. It blocks while all workers are busy.
func (p *pool) submit(rec archive.PackageRecord, debPath string) {
	p.tasks <- task{rec: rec, debPath: debPath}
}

// finish signals that no further tasks will be submitted.
func (p *pool) finish() {
	close(p.tasks)
}

// runTask executes one extraction with panic and timeout isolation.
func (p *pool) runTask(t task) result {
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{rec: t.rec, err: fmt.Errorf("extraction panicked: %v", r)}
			}
		}()
		cpts, err := p.extract(t.rec, t.debPath)
		done <- result{rec: t.rec, cpts: cpts, err: err}
	}()

	if p.timeout <= 0 {
		return <-done
	}
	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	select {
	case res := <-done:
		return res
	case <-timer.C:
		// The stuck goroutine is abandoned; recording the timeout as a
		// failure keeps the batch draining.
		return result{rec: t.rec, err: fmt.Errorf("extraction timed out after %s", p.timeout)}
	}
}

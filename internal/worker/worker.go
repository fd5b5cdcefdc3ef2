// Package worker fans chunk jobs out over a fixed number of goroutines.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Job processes one unit of work, typically one chunk.
type Job func(ctx context.Context) error

// Pool runs jobs with at most Size of them in flight. A failing job does not
// stop the others; each chunk stands on its own and the caller decides what
// an incomplete run means.
type Pool struct {
	Size int
	Log  logrus.FieldLogger
}

func NewPool(size int, log logrus.FieldLogger) *Pool {
	if size < 1 {
		size = 1
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Pool{Size: size, Log: log}
}

type task struct {
	Index int
	Job   Job
}

// Run executes jobs and returns their errors by index. Jobs not started
// before ctx is cancelled report ctx.Err().
func (p *Pool) Run(ctx context.Context, jobs []Job) []error {
	errs := make([]error, len(jobs))
	taskChan := make(chan task, p.Size)

	var wg sync.WaitGroup
	for i := 0; i < p.Size; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for t := range taskChan {
				if err := ctx.Err(); err != nil {
					errs[t.Index] = err
					continue
				}
				errs[t.Index] = p.runOne(ctx, id, t)
			}
		}(i)
	}

	for i, job := range jobs {
		taskChan <- task{Index: i, Job: job}
	}
	close(taskChan)
	wg.Wait()
	return errs
}

// runOne turns a panicking job into an error so one bad chunk cannot take
// the pool down.
func (p *Pool) runOne(ctx context.Context, workerID int, t task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %d panicked: %v", t.Index, r)
		}
		if err != nil {
			p.Log.WithFields(logrus.Fields{"worker": workerID, "job": t.Index}).WithError(err).Warn("Job failed")
		}
	}()
	return t.Job(ctx)
}

// Join collapses the per-job errors from Run, nil when every job succeeded.
func Join(errs []error) error {
	var failed []error
	for i, err := range errs {
		if err != nil {
			failed = append(failed, fmt.Errorf("job %d: %w", i, err))
		}
	}
	return errors.Join(failed...)
}

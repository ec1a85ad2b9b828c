// Copyright 2020 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package parallel

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/gorse-io/factorizer/base/log"
	"github.com/juju/errors"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const chanSize = 1024

/* Parallel Schedulers */

// Parallel schedules and runs tasks in parallel. nJobs is the number of tasks and nWorkers
// is the number of executors. worker is called once per job with the id of the executor.
//
// Errors returned by jobs, as well as panics, are collected and returned as one aggregate
// error after all executors joined. The first failure stops scheduling of pending jobs.
// If ctx is done before every job finished, pending jobs are dropped, running jobs are
// joined and the error of ctx is returned.
func Parallel(ctx context.Context, nJobs, nWorkers int, worker func(workerId, jobId int) error) error {
	if nJobs <= 0 {
		return nil
	}
	nWorkers = max(1, min(nWorkers, nJobs))
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		errs     error
		finished atomic.Int64
	)
	report := func(err error) {
		mu.Lock()
		errs = multierr.Append(errs, err)
		mu.Unlock()
		cancel()
	}

	c := make(chan int, min(nJobs, chanSize))
	// producer
	go func() {
		defer close(c)
		for i := 0; i < nJobs; i++ {
			select {
			case <-runCtx.Done():
				return
			case c <- i:
			}
		}
	}()
	// consumer
	var wg sync.WaitGroup
	for j := 0; j < nWorkers; j++ {
		workerId := j
		wg.Go(func() {
			for jobId := range c {
				if runCtx.Err() != nil {
					return
				}
				if err := runJob(worker, workerId, jobId); err != nil {
					report(err)
					return
				}
				finished.Inc()
			}
		})
	}
	wg.Wait()
	mu.Lock()
	defer mu.Unlock()
	if errs != nil {
		return errs
	}
	if finished.Load() < int64(nJobs) {
		return errors.Trace(ctx.Err())
	}
	return nil
}

func runJob(worker func(workerId, jobId int) error, workerId, jobId int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Logger().Error("panic recovered", zap.Int("job_id", jobId), zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())))
			err = errors.Errorf("job %d panicked: %v", jobId, r)
		}
	}()
	if err = worker(workerId, jobId); err != nil {
		return errors.Annotatef(err, "job %d", jobId)
	}
	return nil
}

// Split a slice into n slices and keep the order of elements.
func Split[T any](a []T, n int) [][]T {
	if len(a) == 0 {
		return nil
	}
	if n > len(a) {
		n = len(a)
	}
	if n < 1 {
		n = 1
	}
	minChunkSize := len(a) / n
	maxChunkNum := len(a) % n
	chunks := make([][]T, n)
	for i, j := 0, 0; i < n; i++ {
		chunkSize := minChunkSize
		if i < maxChunkNum {
			chunkSize++
		}
		chunks[i] = a[j : j+chunkSize]
		j += chunkSize
	}
	return chunks
}

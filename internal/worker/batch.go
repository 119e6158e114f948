package worker

import "context"

// FuncJob adapts a function into a Job
type FuncJob func(ctx context.Context) Result

// Execute runs the function
func (f FuncJob) Execute(ctx context.Context) Result {
	return f(ctx)
}

// RunAll executes jobs on a pool of the given size and returns their results in job order.
// Submission stops early when ctx is cancelled, in which case fewer results come back.
func RunAll(ctx context.Context, workers int, jobs []Job) []Result {
	if len(jobs) == 0 {
		return []Result{}
	}

	pool := NewPool(ctx, workers)
	pool.Start()

	for _, job := range jobs {
		if !pool.Submit(job) {
			break
		}
	}

	return pool.Wait()
}

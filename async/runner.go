// Package async runs work on helper goroutines and hands the outcome back to
// a single owner goroutine. The scheduler loop uses it so that slow remote
// calls never block an iteration while their results are still applied by
// the loop itself.
package async

// Runner spawns goroutines for functions and queues their callbacks.
//
//	var jobs map[string]domain.Status
//	r.RunAsync(func() (err error) {
//		jobs, err = server.GetAllJobs(ctx)
//		return err
//	}, func(err error) {
//		if err == nil {
//			apply(jobs)
//		}
//	})
//	...
//	r.ProcessMessages() // on the owner goroutine, applies finished results
type Runner struct {
	bx *Mailbox
}

func NewRunner() Runner {
	return Runner{bx: NewMailbox()}
}

// NumRunning counts functions whose callbacks have not run yet.
func (r *Runner) NumRunning() int {
	return r.bx.Count()
}

// RunAsync runs f on a new goroutine; cb runs inside a later ProcessMessages.
func (r *Runner) RunAsync(f func() error, cb AsyncErrorResponseHandler) {
	asyncErr := r.bx.NewAsyncError(cb)
	go func(rsp *AsyncError) {
		rsp.SetValue(f())
	}(asyncErr)
}

// ProcessMessages runs the callbacks of every finished function.
func (r *Runner) ProcessMessages() {
	r.bx.ProcessMessages()
}

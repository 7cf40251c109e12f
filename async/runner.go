// Async provides tools for asynchronous callback processing using Goroutines
package async

// A Runner spawns goroutines to run functions and associates callbacks with
// them. It builds on Mailbox: callbacks run on whichever goroutine calls
// ProcessMessages, never concurrently with each other.
//
// A bounded Runner refuses new work while max functions are in flight; the
// caller keeps the work and retries on a later iteration.
//
//	runner := NewBoundedRunner(8)
//	for _, job := range killRequested {
//	  if !runner.RunAsync(func() error { return d.Kill(ctx, job.token) }, onKilled(job)) {
//	    break
//	  }
//	  job.killSent = true
//	}
//	...
//	runner.ProcessMessages()
type Runner struct {
	bx  *Mailbox
	max int
}

func NewRunner() Runner {
	return NewBoundedRunner(0)
}

// NewBoundedRunner returns a Runner with at most max functions in flight;
// 0 means no limit.
func NewBoundedRunner(max int) Runner {
	return Runner{
		bx:  NewMailbox(),
		max: max,
	}
}

// NumRunning counts functions whose callbacks have not been invoked yet.
func (r *Runner) NumRunning() int {
	return r.bx.Count()
}

// RunAsync creates a go routine to run the specified function f.
// The callback, cb, is invoked once f is completed by calling ProcessMessages.
// Returns false, without running f, if the Runner is at its bound.
func (r *Runner) RunAsync(f func() error, cb AsyncErrorResponseHandler) bool {
	if r.max > 0 && r.bx.Count() >= r.max {
		return false
	}
	asyncErr := r.bx.NewAsyncError(cb)
	go func(rsp *AsyncError) {
		err := f()
		rsp.SetValue(err)
	}(asyncErr)
	return true
}

// Invokes all callbacks of completed functions.
// Callbacks are ran synchronously and by the calling go routine
func (r *Runner) ProcessMessages() {
	r.bx.ProcessMessages()
}

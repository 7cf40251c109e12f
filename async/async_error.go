package async

// AsyncError holds the error of a call running on another goroutine. The
// goroutine completes it once with SetValue; the owner reads it with
// TryGetValue without blocking.
type AsyncError struct {
	done chan struct{}
	err  error
}

func newAsyncError() *AsyncError {
	return &AsyncError{done: make(chan struct{})}
}

// SetValue completes e with err. It panics if e is already complete.
func (e *AsyncError) SetValue(err error) {
	select {
	case <-e.done:
		panic("async: AsyncError completed twice")
	default:
	}
	e.err = err
	close(e.done)
}

// TryGetValue reports whether e is complete and, if so, its error.
func (e *AsyncError) TryGetValue() (bool, error) {
	select {
	case <-e.done:
		return true, e.err
	default:
		return false, nil
	}
}

// Done is closed once e is complete.
func (e *AsyncError) Done() <-chan struct{} {
	return e.done
}

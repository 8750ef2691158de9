package async

// AsyncError is a future whose value is an error. A producer goroutine calls
// SetValue exactly once; the consumer polls with TryGetValue and never blocks.
// TryGetValue must be called from a single goroutine.
type AsyncError struct {
	errCh     chan error
	val       error
	completed bool
}

func NewAsyncError() *AsyncError {
	return &AsyncError{
		errCh: make(chan error, 1),
	}
}

// SetValue completes the future. A second call panics.
func (e *AsyncError) SetValue(err error) {
	e.errCh <- err
	close(e.errCh)
}

// TryGetValue returns (true, value) once completed and (false, nil) before.
func (e *AsyncError) TryGetValue() (bool, error) {
	if e.completed {
		return true, e.val
	}
	select {
	case err := <-e.errCh:
		e.val = err
		e.completed = true
		return true, err
	default:
		return false, nil
	}
}

package async

// Mailbox pairs AsyncErrors with callbacks. Callbacks only run inside
// ProcessMessages, so they all execute on the goroutine that owns the
// mailbox. A Mailbox is not safe for concurrent use.
type Mailbox struct {
	msgs []message
}

// AsyncErrorResponseHandler is invoked with the value of a completed AsyncError.
type AsyncErrorResponseHandler func(error)

type message struct {
	err      *AsyncError
	callback AsyncErrorResponseHandler
}

func NewMailbox() *Mailbox {
	return &Mailbox{}
}

func (bx *Mailbox) Count() int {
	return len(bx.msgs)
}

// NewAsyncError returns a future whose callback runs on the first
// ProcessMessages call after it completes.
func (bx *Mailbox) NewAsyncError(cb AsyncErrorResponseHandler) *AsyncError {
	msg := message{err: NewAsyncError(), callback: cb}
	bx.msgs = append(bx.msgs, msg)
	return msg.err
}

// ProcessMessages invokes the callbacks of completed futures in creation
// order and forgets them.
func (bx *Mailbox) ProcessMessages() {
	var pending []message
	for _, msg := range bx.msgs {
		if ok, err := msg.err.TryGetValue(); ok {
			msg.callback(err)
		} else {
			pending = append(pending, msg)
		}
	}
	bx.msgs = pending
}

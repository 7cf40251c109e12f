package async

// A Mailbox stores AsyncErrors and their associated callbacks
// and invokes them once the AsyncError is completed.
//
// An event loop often spawns goroutines to do blocking work, a kill sent to
// a batch system for instance, but wants the outcome handled back on the
// loop's own goroutine where its state lives. Mailbox provides that:
//
//	mailbox := NewMailbox()
//	for _, tok := range toKill {
//	  tok := tok
//	  go func(rsp *AsyncError) {
//	    rsp.SetValue(driver.Kill(ctx, tok))
//	  }(mailbox.NewAsyncError(func(err error) {
//	    if err != nil {
//	      log.WithField("token", tok).Warn(err)
//	    }
//	  }))
//	}
//	...
//	// later, on each loop iteration
//	mailbox.ProcessMessages()
//
// A Mailbox is not a concurrent structure and should only
// ever be accessed from a single go routine. This ensures that the callbacks
// are always executed within the same context and only one at a time.
type Mailbox struct {
	msgs []message
}

// The function type of the callback invoked when an AsyncError is Completed
type AsyncErrorResponseHandler func(error)

// async message is a struct composed of an AsyncError
// and its associated callback
type message struct {
	Err      *AsyncError
	callback AsyncErrorResponseHandler
}

func newMessage(cb AsyncErrorResponseHandler) message {
	return message{
		Err:      newAsyncError(),
		callback: cb,
	}
}

func NewMailbox() *Mailbox {
	return &Mailbox{
		msgs: make([]message, 0),
	}
}

func (bx *Mailbox) Count() int {
	return len(bx.msgs)
}

// Creates a NewAsyncError and associates the supplied callback with it.
// Once the AsyncError has been completed, SetValue called, the callback
// will be invoked on the next execution of ProcessMessages
func (bx *Mailbox) NewAsyncError(cb AsyncErrorResponseHandler) *AsyncError {
	msg := newMessage(cb)
	bx.msgs = append(bx.msgs, msg)
	return msg.Err
}

// Processes the mailbox.  For all messages with completed AsyncErrors
// the callback function and removes the message from the mailbox
func (bx *Mailbox) ProcessMessages() {
	var unCompletedMsgs []message
	for _, msg := range bx.msgs {
		ok, err := msg.Err.TryGetValue()

		// if a AsyncErr's value has been set, invoke the callback
		if ok {
			msg.callback(err)
		} else {
			unCompletedMsgs = append(unCompletedMsgs, msg)
		}
	}

	// reset inProgress messages to unCompletedMsgs only
	bx.msgs = unCompletedMsgs
}

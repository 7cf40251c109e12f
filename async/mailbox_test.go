package async

import (
	"errors"
	"testing"
)

func Test_Mailbox(t *testing.T) {
	mailbox := NewMailbox()

	cbInvoked := false
	var retErr error

	asyncErr := mailbox.NewAsyncError(func(err error) {
		retErr = err
		cbInvoked = true
	})

	go func(rsp *AsyncError) {
		rsp.SetValue(errors.New("kill refused"))
	}(asyncErr)

	for !cbInvoked {
		mailbox.ProcessMessages()
	}
	if retErr == nil || retErr.Error() != "kill refused" {
		t.Errorf("Expected Callback to be invoked with `kill refused`, got: %v", retErr)
	}
	if mailbox.Count() != 0 {
		t.Errorf("Expected processed message to be removed, %d left", mailbox.Count())
	}
}

// Callbacks of messages that are not complete yet stay in the mailbox.
func Test_MailboxKeepsPending(t *testing.T) {
	mailbox := NewMailbox()
	invoked := 0
	cb := func(error) { invoked++ }

	done := mailbox.NewAsyncError(cb)
	mailbox.NewAsyncError(cb)
	done.SetValue(nil)

	mailbox.ProcessMessages()
	if invoked != 1 || mailbox.Count() != 1 {
		t.Fatalf("Expected 1 callback and 1 pending message, got %d and %d", invoked, mailbox.Count())
	}
}

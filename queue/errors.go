package queue

import (
	"errors"
)

var (
	// Submit on a bounded queue that already holds Size jobs.
	ErrQueueFull = errors.New("queue is full")
	// Submit after UserExit, SubmitComplete or completion, or Run after completion.
	ErrQueueClosed = errors.New("queue is closed")
	// SubmitComplete on a queue with a fixed Size.
	ErrBoundedQueue = errors.New("queue has a fixed size")
	ErrNoSuchJob    = errors.New("no such job")

	// A job reported Done left its exit file behind.
	ErrExitFile = errors.New("job left an exit file")
	// A job reported Done never wrote its OK file.
	ErrNoOKFile = errors.New("job wrote no OK file")
)

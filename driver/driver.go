package driver

import (
	"context"
	"fmt"
	"strings"
)

// Kind identifies one of the execution backends. The set is closed.
type Kind int

const (
	// An unambiguous 0-value.
	UnknownKind Kind = iota
	// Spawns a local OS process per job.
	Local
	// Fans jobs out over a list of hosts with a remote shell.
	RemoteShell
	// Submits jobs to an external batch system.
	Cluster
)

func (k Kind) String() string {
	switch k {
	case Local:
		return "LOCAL"
	case RemoteShell:
		return "RSH"
	case Cluster:
		return "CLUSTER"
	default:
		return "UNKNOWN"
	}
}

// ParseKind is the inverse of Kind.String; it is case-insensitive.
func ParseKind(s string) (Kind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LOCAL":
		return Local, nil
	case "RSH", "REMOTE", "REMOTESHELL":
		return RemoteShell, nil
	case "CLUSTER", "LSF", "BATCH":
		return Cluster, nil
	}
	return UnknownKind, fmt.Errorf("unrecognized driver kind %q", s)
}

// Token is the opaque execution handle a Driver returns from Submit.
// Its contents only mean something to the Driver that produced it.
type Token string

// Options understood by every Driver.
const (
	MaxRunningOption = "MAX_RUNNING"
)

//go:generate mockgen -source=driver.go -package=driver -destination=mock_driver.go

// Driver is an execution backend. A Driver starts, polls and kills jobs on its
// medium and owns whatever synchronization that medium needs; callers may
// invoke Status for distinct tokens concurrently with Submit and Kill.
//
// A Driver does not do admission control. It never refuses a Submit because
// MaxRunning active tokens exist; keeping below that cap is the caller's job.
type Driver interface {
	Kind() Kind

	// Submit starts spec on the backend and returns a token for it.
	// Returns a *SpawnError if the job could not be started, ErrNoCapacity if
	// the backend has no slot to place it right now, and an error matching
	// ErrDriverUnavailable if the medium itself cannot be reached.
	Submit(ctx context.Context, spec JobSpec) (Token, error)

	// Status polls the backend and maps its answer to one of Pending, Running,
	// Done or Exit. Safe to call repeatedly.
	Status(ctx context.Context, tok Token) (JobStatus, error)

	// Kill is best effort and idempotent; killing a token that already
	// finished is not an error.
	Kill(ctx context.Context, tok Token) error

	// SetOption tunes backend specific behavior. It returns false for keys
	// the driver does not recognize.
	SetOption(key, value string) bool
	Option(key string) (string, bool)

	// 0 means no limit.
	SetMaxRunning(n int)
	MaxRunning() int
}

package drivers

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/scootdev/ensemble/common"
	"github.com/scootdev/ensemble/driver"
	"github.com/scootdev/ensemble/runner/execer"
)

// ErrUnreachable marks a batch system command that could not reach the
// batch system at all. The cluster driver retries these.
var ErrUnreachable = errors.New("batch system unreachable")

// SubmitRequest is what a BatchSystem needs to place one job.
type SubmitRequest struct {
	Spec     driver.JobSpec
	Queue    string
	Resource string
}

// BatchSystem is the cluster driver's view of an external batch scheduler.
// Ids are the batch system's own job ids.
type BatchSystem interface {
	Submit(ctx context.Context, req SubmitRequest) (string, error)
	// Query returns the native state of every job the batch system reports
	// for the current user, keyed by id.
	Query(ctx context.Context) (map[string]string, error)
	Kill(ctx context.Context, id string) error
}

// CommandError is a batch system command that ran and exited non-zero.
type CommandError struct {
	Argv     []string
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s exited %d: %s", e.Argv[0], e.ExitCode, strings.TrimSpace(e.Stderr))
}

// Default commands of an LSF-like batch system.
const (
	DefaultSubmitCmd = "bsub"
	DefaultQueryCmd  = "bjobs"
	DefaultKillCmd   = "bkill"
)

// ShellBatchSystem drives a batch system through its submit/query/kill
// command line tools, run locally or on RemoteServer through RshCmd.
type ShellBatchSystem struct {
	Execer execer.Execer

	mu           sync.Mutex
	submitCmd    string
	queryCmd     string
	killCmd      string
	remoteServer string
	rshCmd       string
}

func NewShellBatchSystem(ex execer.Execer) *ShellBatchSystem {
	return &ShellBatchSystem{
		Execer:    ex,
		submitCmd: DefaultSubmitCmd,
		queryCmd:  DefaultQueryCmd,
		killCmd:   DefaultKillCmd,
		rshCmd:    DefaultRshCmd,
	}
}

// SetOption accepts the command and remote server options of the cluster driver.
func (b *ShellBatchSystem) SetOption(key, value string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch key {
	case SubmitCmdOption:
		b.submitCmd = value
	case QueryCmdOption:
		b.queryCmd = value
	case KillCmdOption:
		b.killCmd = value
	case RemoteServerOption:
		b.remoteServer = value
	case RshCmdOption:
		b.rshCmd = value
	default:
		return false
	}
	return true
}

func (b *ShellBatchSystem) Option(key string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch key {
	case SubmitCmdOption:
		return b.submitCmd, true
	case QueryCmdOption:
		return b.queryCmd, true
	case KillCmdOption:
		return b.killCmd, true
	case RemoteServerOption:
		return b.remoteServer, true
	case RshCmdOption:
		return b.rshCmd, true
	}
	return "", false
}

// SubmitArgv is the submit command line for req.
func (b *ShellBatchSystem) SubmitArgv(req SubmitRequest) []string {
	b.mu.Lock()
	argv := strings.Fields(b.submitCmd)
	b.mu.Unlock()
	spec := req.Spec
	if spec.RunPath != "" {
		base := strings.TrimRight(spec.RunPath, "/") + "/" + spec.Name
		argv = append(argv, "-o", base+".stdout", "-e", base+".stderr")
	}
	if req.Queue != "" {
		argv = append(argv, "-q", req.Queue)
	}
	argv = append(argv, "-J", spec.Name)
	if spec.NumCPU > 0 {
		argv = append(argv, "-n", strconv.Itoa(spec.NumCPU))
	}
	if req.Resource != "" {
		argv = append(argv, "-R", req.Resource)
	}
	return append(argv, spec.Argv()...)
}

var submittedIdRe = regexp.MustCompile(`<(\d+)>`)
var firstNumberRe = regexp.MustCompile(`\b(\d+)\b`)

// ParseSubmitOutput finds the job id in the submit command's output:
// "Job <123> is submitted to queue <normal>." or a bare id.
func ParseSubmitOutput(out string) (string, error) {
	if m := submittedIdRe.FindStringSubmatch(out); m != nil {
		return m[1], nil
	}
	if m := firstNumberRe.FindStringSubmatch(out); m != nil {
		return m[1], nil
	}
	return "", fmt.Errorf("no job id in submit output %q", strings.TrimSpace(out))
}

// ParseQueryOutput reads the query command's table: one job per line, the
// id in the first column and the native state in the third. Lines whose
// first column is not numeric, like the header, are skipped.
func ParseQueryOutput(out string) map[string]string {
	states := make(map[string]string)
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		if _, err := strconv.ParseUint(fields[0], 10, 64); err != nil {
			continue
		}
		states[fields[0]] = fields[2]
	}
	return states
}

func (b *ShellBatchSystem) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	out, err := b.run(ctx, b.SubmitArgv(req))
	if err != nil {
		return "", err
	}
	return ParseSubmitOutput(out)
}

func (b *ShellBatchSystem) Query(ctx context.Context) (map[string]string, error) {
	b.mu.Lock()
	argv := append(strings.Fields(b.queryCmd), "-a")
	b.mu.Unlock()
	out, err := b.run(ctx, argv)
	if err != nil {
		return nil, err
	}
	return ParseQueryOutput(out), nil
}

func (b *ShellBatchSystem) Kill(ctx context.Context, id string) error {
	b.mu.Lock()
	argv := append(strings.Fields(b.killCmd), id)
	b.mu.Unlock()
	_, err := b.run(ctx, argv)
	return err
}

// run executes argv, on the remote server if one is set, and returns its stdout.
// Failing to start the command, or the remote shell failing to connect, is
// ErrUnreachable; any other non-zero exit is a *CommandError.
func (b *ShellBatchSystem) run(ctx context.Context, argv []string) (string, error) {
	b.mu.Lock()
	remote, rsh := b.remoteServer, b.rshCmd
	b.mu.Unlock()
	if remote != "" {
		argv = append(strings.Fields(rsh), remote, common.ShellJoin(argv))
	}

	var stdout, stderr bytes.Buffer
	proc, err := b.Execer.Exec(execer.Command{Argv: argv, Stdout: &stdout, Stderr: &stderr})
	if err != nil {
		return "", errors.Wrapf(ErrUnreachable, "starting %s: %v", argv[0], err)
	}

	done := make(chan execer.ProcessStatus, 1)
	go func() { done <- proc.Wait() }()
	var st execer.ProcessStatus
	select {
	case st = <-done:
	case <-ctx.Done():
		proc.Abort()
		return "", errors.Wrapf(ctx.Err(), "running %s", argv[0])
	}

	log.WithFields(
		log.Fields{
			"argv":   argv,
			"status": st,
		}).Debug("Ran batch system command")
	switch {
	case st.State != execer.COMPLETE:
		return "", errors.Wrapf(ErrUnreachable, "running %s: %s", argv[0], st.Error)
	case remote != "" && st.ExitCode == rshConnectFailedExitCode:
		return "", errors.Wrapf(ErrUnreachable, "connecting to %s: %s", remote, strings.TrimSpace(stderr.String()))
	case st.ExitCode != 0:
		return "", &CommandError{Argv: argv, ExitCode: st.ExitCode, Stderr: stderr.String()}
	}
	return stdout.String(), nil
}

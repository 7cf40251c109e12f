package queue

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/scootdev/ensemble/common/stats"
	"github.com/scootdev/ensemble/driver"
)

// How often a finished job's run path is checked for the OK file.
var okFilePollInterval = 100 * time.Millisecond

// verifiesDone is false when a Done from the driver is final.
func (q *JobQueue) verifiesDone() bool {
	return q.doneCheck != nil || q.cfg.OKFile != "" || q.cfg.ExitFile != ""
}

// dispatchDoneChecks starts verifying jobs the driver reported Done. Checks
// beyond the runner's bound wait for a later iteration.
func (q *JobQueue) dispatchDoneChecks(ctx context.Context) {
	for _, node := range q.jobs {
		if !node.checking || node.checkSent {
			continue
		}
		n, tok, job := node, node.token, node.snapshot(q.kind)
		dispatched := q.checker.RunAsync(
			func() error { return q.verifyDone(ctx, job) },
			func(err error) { q.doneChecked(n, tok, err) })
		if !dispatched {
			return
		}
		node.checkSent = true
	}
}

// verifyDone checks the status files, then the caller's DoneCheck.
func (q *JobQueue) verifyDone(ctx context.Context, job Job) error {
	if err := q.checkStatusFiles(ctx, job.Spec.RunPath); err != nil {
		return err
	}
	if q.doneCheck == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, q.cfg.CallTimeout)
	defer cancel()
	return q.doneCheck(ctx, job)
}

// checkStatusFiles fails if the exit file exists, then waits up to MaxOKWait
// for the OK file.
func (q *JobQueue) checkStatusFiles(ctx context.Context, runPath string) error {
	if q.cfg.ExitFile != "" {
		exitPath := filepath.Join(runPath, q.cfg.ExitFile)
		if _, err := os.Stat(exitPath); err == nil {
			return errors.Wrap(ErrExitFile, exitPath)
		}
	}
	if q.cfg.OKFile == "" {
		return nil
	}
	okPath := filepath.Join(runPath, q.cfg.OKFile)
	ctx, cancel := context.WithTimeout(ctx, q.cfg.MaxOKWait)
	defer cancel()
	err := backoff.Retry(func() error {
		_, err := os.Stat(okPath)
		return err
	}, backoff.WithContext(backoff.NewConstantBackOff(okFilePollInterval), ctx))
	if err != nil {
		return errors.Wrapf(ErrNoOKFile, "%s after %s", okPath, q.cfg.MaxOKWait)
	}
	return nil
}

// doneChecked settles a job once its done check returns. A failed check is
// handled like an Exit from the driver.
func (q *JobQueue) doneChecked(node *jobNode, tok driver.Token, err error) {
	if !node.checking || node.token != tok {
		return
	}
	node.checking, node.checkSent = false, false
	switch {
	case node.killRequested:
		q.finishKilled(node)
	case err == nil:
		q.finishDone(node)
	default:
		log.WithFields(
			log.Fields{
				"job":   node.index,
				"name":  node.spec.Name,
				"token": tok,
				"error": err,
			}).Warn("Job reported done but failed verification")
		q.stat.Counter(stats.QueueDoneCheckFailuresCounter).Inc(1)
		node.err = err.Error()
		q.exit(node)
	}
}

package queue

import (
	"context"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/scootdev/ensemble/common/stats"
	"github.com/scootdev/ensemble/driver"
)

// pollResult is one Driver.Status call made with the lock released.
type pollResult struct {
	node   *jobNode
	token  driver.Token
	status driver.JobStatus
	err    error
}

// step runs one loop iteration and reports whether the queue is complete.
// Tests call it directly instead of Run.
func (q *JobQueue) step(ctx context.Context) bool {
	defer q.stat.Latency(stats.QueueLoopLatency_ms).Time().Stop()
	// Driver calls keep working after ctx is cancelled so jobs can be killed.
	callCtx := context.WithoutCancel(ctx)

	q.mu.Lock()
	q.stepFault, q.stepCalls = nil, 0
	if ctx.Err() != nil && !q.userExit {
		log.WithField("error", ctx.Err()).Info("Context done, killing all jobs")
		q.userExit = true
		q.closed = true
	}
	q.killer.ProcessMessages()
	q.checker.ProcessMessages()
	if q.userExit || q.err != nil {
		q.killAll()
	}
	q.checkExpired()
	q.dispatchKills(callCtx)
	polls := q.activePolls()
	q.mu.Unlock()

	q.poll(callCtx, polls)
	maxRunning := q.d.MaxRunning()

	q.mu.Lock()
	q.applyPolls(polls)
	q.dispatchDoneChecks(callCtx)
	q.checkKillTimeouts()
	done := q.isComplete()
	var batch []*jobNode
	if !done {
		batch = q.promote(maxRunning)
	}
	q.mu.Unlock()

	q.submit(callCtx, batch)

	q.mu.Lock()
	q.countDriverFaults()
	q.updateGauges()
	q.mu.Unlock()
	return done
}

// killAll kills Waiting jobs and requests kills for active ones.
func (q *JobQueue) killAll() {
	for _, node := range q.jobs {
		switch {
		case node.status == driver.Waiting:
			q.finishKilled(node)
		case node.status.IsActive():
			node.killRequested = true
		}
	}
}

// checkExpired requests kills for Running jobs past the max duration or the stop time.
func (q *JobQueue) checkExpired() {
	if q.maxJobDuration <= 0 && q.stopTime.IsZero() {
		return
	}
	now := q.now()
	for _, node := range q.jobs {
		if node.status != driver.Running || node.killRequested || node.checking {
			continue
		}
		overdue := q.maxJobDuration > 0 && !node.startTime.IsZero() && now.Sub(node.startTime) > q.maxJobDuration
		stopped := !q.stopTime.IsZero() && !now.Before(q.stopTime)
		if overdue || stopped {
			log.WithFields(
				log.Fields{
					"job":     node.index,
					"name":    node.spec.Name,
					"started": node.startTime,
				}).Info("Killing expired job")
			node.killRequested = true
			q.stat.Counter(stats.QueueJobsExpiredCounter).Inc(1)
		}
	}
}

// dispatchKills sends one Driver.Kill per attempt for jobs with a kill
// request. Dispatches beyond the runner's bound wait for a later iteration.
func (q *JobQueue) dispatchKills(ctx context.Context) {
	for _, node := range q.jobs {
		if !node.killRequested || node.killSent || node.checking || node.token == "" || !node.status.IsActive() {
			continue
		}
		n, tok := node, node.token
		dispatched := q.killer.RunAsync(
			func() error {
				kctx, cancel := context.WithTimeout(ctx, q.cfg.KillTimeout)
				defer cancel()
				return q.d.Kill(kctx, tok)
			},
			func(err error) {
				if err == nil {
					return
				}
				log.WithFields(
					log.Fields{
						"job":   n.index,
						"token": tok,
						"error": err,
					}).Warn("Kill failed")
				q.stat.Counter(stats.QueueKillErrorsCounter).Inc(1)
				n.err = err.Error()
			})
		if !dispatched {
			return
		}
		node.killSent = true
		node.killSentAt = q.now()
		log.WithFields(
			log.Fields{
				"job":   node.index,
				"token": tok,
			}).Debug("Dispatched kill")
	}
}

func (q *JobQueue) activePolls() []pollResult {
	var polls []pollResult
	for _, node := range q.jobs {
		if node.status.IsActive() && !node.submitting && !node.checking && node.token != "" {
			polls = append(polls, pollResult{node: node, token: node.token})
		}
	}
	return polls
}

// poll fills in the status of every entry, PollConcurrency at a time. A
// Status call gets CallTimeout to answer.
func (q *JobQueue) poll(ctx context.Context, polls []pollResult) {
	var g errgroup.Group
	g.SetLimit(q.cfg.PollConcurrency)
	for i := range polls {
		p := &polls[i]
		g.Go(func() error {
			p.status, p.err = withDeadline(ctx, q.cfg.CallTimeout, func(ctx context.Context) (driver.JobStatus, error) {
				return q.d.Status(ctx, p.token)
			})
			if errors.Is(p.err, errCallTimeout) {
				p.err = q.callTimedOut("status", p.err)
			}
			return nil
		})
	}
	g.Wait()
}

// callTimedOut turns a driver call that ran past CallTimeout into an
// unavailable driver, so it counts toward MaxDriverFaults.
func (q *JobQueue) callTimedOut(call string, err error) error {
	q.stat.Counter(stats.QueueCallTimeoutsCounter).Inc(1)
	log.WithFields(
		log.Fields{
			"call":    call,
			"timeout": q.cfg.CallTimeout,
		}).Warn("Driver call timed out")
	return driver.NewUnavailableError(q.kind, err)
}

func (q *JobQueue) applyPolls(polls []pollResult) {
	for _, p := range polls {
		node := p.node
		if node.token != p.token || !node.status.IsActive() {
			continue
		}
		switch {
		case p.err == nil:
			q.stepCalls++
		case errors.Is(p.err, driver.ErrDriverUnavailable):
			q.stepFault = p.err
			continue
		case errors.Is(p.err, driver.ErrUnknownToken):
			q.stepCalls++
			log.WithFields(
				log.Fields{
					"job":   node.index,
					"token": p.token,
				}).Warn("Driver lost track of job")
			node.err = p.err.Error()
			p.status = driver.Exit
		default:
			log.WithFields(
				log.Fields{
					"job":   node.index,
					"token": p.token,
					"error": p.err,
				}).Warn("Couldn't poll job")
			continue
		}
		q.applyStatus(node, p.status)
	}
}

func (q *JobQueue) applyStatus(node *jobNode, status driver.JobStatus) {
	switch status {
	case driver.Pending:
		if node.status != driver.Pending {
			q.setStatus(node, driver.Pending)
		}
	case driver.Running:
		if node.startTime.IsZero() {
			node.startTime = q.now()
		}
		if node.status != driver.Running {
			q.setStatus(node, driver.Running)
		}
	case driver.Done:
		if node.killSent {
			q.finishKilled(node)
			return
		}
		if !q.verifiesDone() {
			q.finishDone(node)
			return
		}
		// Running until the done check says otherwise.
		if node.startTime.IsZero() {
			node.startTime = q.now()
		}
		if node.status != driver.Running {
			q.setStatus(node, driver.Running)
		}
		node.checking = true
	case driver.Exit:
		if node.killRequested {
			q.finishKilled(node)
			return
		}
		q.exit(node)
	default:
		log.WithFields(
			log.Fields{
				"job":    node.index,
				"status": status,
			}).Error("Driver reported a status drivers never report")
	}
}

// checkKillTimeouts gives up on kills the driver never confirmed.
func (q *JobQueue) checkKillTimeouts() {
	now := q.now()
	for _, node := range q.jobs {
		if node.killSent && node.status.IsActive() && now.Sub(node.killSentAt) >= q.cfg.KillTimeout {
			log.WithFields(
				log.Fields{
					"job":   node.index,
					"token": node.token,
				}).Warn("Kill not confirmed in time, marking job killed")
			q.finishKilled(node)
		}
	}
}

func (q *JobQueue) isComplete() bool {
	allTerminal := lo.EveryBy(q.jobs, func(n *jobNode) bool { return n.status.IsTerminal() })
	switch {
	case q.userExit || q.err != nil:
		return allTerminal
	case q.cfg.Size > 0:
		return len(q.jobs) == q.cfg.Size && allTerminal
	default:
		return q.submitComplete && allTerminal
	}
}

// promote moves Waiting jobs to Submitted, oldest first, as far as free
// capacity and SubmitBatch allow. The caller submits them with the lock released.
func (q *JobQueue) promote(maxRunning int) []*jobNode {
	if q.paused || q.userExit || q.err != nil {
		return nil
	}
	free := q.cfg.SubmitBatch
	if maxRunning > 0 {
		active := lo.CountBy(q.jobs, func(n *jobNode) bool { return n.status.IsActive() })
		free = min(free, maxRunning-active)
	}
	var batch []*jobNode
	for _, node := range q.jobs {
		if len(batch) >= free {
			break
		}
		if node.status != driver.Waiting {
			continue
		}
		node.submitting = true
		node.submitTime = q.now()
		q.setStatus(node, driver.Submitted)
		batch = append(batch, node)
	}
	return batch
}

// submit hands batch to the driver in order. When the driver has no room,
// it and the rest of the batch go back to Waiting.
func (q *JobQueue) submit(ctx context.Context, batch []*jobNode) {
	for i, node := range batch {
		q.stat.Counter(stats.QueueSubmitAttemptsCounter).Inc(1)
		spec := node.spec
		tok, err := withDeadline(ctx, q.cfg.CallTimeout, func(ctx context.Context) (driver.Token, error) {
			return q.d.Submit(ctx, spec)
		})
		if errors.Is(err, errCallTimeout) {
			// The driver may still start it; that attempt is abandoned.
			err = q.callTimedOut("submit", err)
		}

		q.mu.Lock()
		retry := q.submitted(node, tok, err)
		if retry {
			for _, rest := range batch[i+1:] {
				rest.submitting = false
				q.requeue(rest)
			}
		}
		q.mu.Unlock()
		if retry {
			return
		}
	}
}

// submitted records the outcome of one Driver.Submit. It returns true if the
// job went back to Waiting through no fault of its own.
func (q *JobQueue) submitted(node *jobNode, tok driver.Token, err error) bool {
	node.submitting = false
	fields := log.Fields{
		"job":     node.index,
		"name":    node.spec.Name,
		"attempt": node.retryCount + 1,
	}
	switch {
	case err == nil:
		q.stepCalls++
		node.token = tok
		fields["token"] = tok
		log.WithFields(fields).Debug("Submitted job")
		return false
	case errors.Is(err, driver.ErrNoCapacity):
		q.stepCalls++
		log.WithFields(fields).Debug("Driver has no capacity, job waits")
		q.requeue(node)
		return true
	case errors.Is(err, driver.ErrDriverUnavailable):
		q.stepFault = err
		fields["error"] = err
		log.WithFields(fields).Warn("Driver unavailable, job waits")
		q.requeue(node)
		return true
	}

	q.stepCalls++
	fields["error"] = err
	log.WithFields(fields).Warn("Couldn't start job")
	q.stat.Counter(stats.QueueSpawnFailuresCounter).Inc(1)
	node.err = err.Error()
	if node.killRequested {
		q.finishKilled(node)
	} else {
		q.exit(node)
	}
	return false
}

// requeue returns a job that never reached the driver to Waiting without
// using up its submit budget.
func (q *JobQueue) requeue(node *jobNode) {
	if node.killRequested {
		q.finishKilled(node)
		return
	}
	node.resetAttempt()
	q.setStatus(node, driver.Waiting)
}

// exit handles a failed attempt: resubmit within budget, otherwise Failed.
func (q *JobQueue) exit(node *jobNode) {
	q.setStatus(node, driver.Exit)
	fields := log.Fields{
		"job":       node.index,
		"name":      node.spec.Name,
		"attempts":  node.retryCount + 1,
		"maxSubmit": node.maxSubmit,
	}
	if node.retryCount+1 < node.maxSubmit {
		node.retryCount++
		node.resetAttempt()
		q.setStatus(node, driver.Waiting)
		q.stat.Counter(stats.QueueResubmitsCounter).Inc(1)
		log.WithFields(fields).Info("Job failed, resubmitting")
		return
	}
	if q.retryHook != nil && q.retryHook(node.snapshot(q.kind)) {
		node.retryCount = 0
		node.resetAttempt()
		q.setStatus(node, driver.Waiting)
		q.stat.Counter(stats.QueueRetryResetsCounter).Inc(1)
		log.WithFields(fields).Info("Job failed, retry hook granted a new budget")
		return
	}
	node.finishTime = q.now()
	q.setStatus(node, driver.Failed)
	q.stat.Counter(stats.QueueJobsFailedCounter).Inc(1)
	log.WithFields(fields).Info("Job failed, no attempts left")
	q.notifyExit(node)
}

func (q *JobQueue) notifyExit(node *jobNode) {
	if q.exitHook != nil {
		q.exitHook(node.snapshot(q.kind))
	}
}

func (q *JobQueue) finishDone(node *jobNode) {
	node.finishTime = q.now()
	if node.startTime.IsZero() {
		node.startTime = node.finishTime
	}
	q.setStatus(node, driver.Done)
	q.statistics.AddTiming(node.submitTime, node.startTime, node.finishTime)
	q.stat.Counter(stats.QueueJobsDoneCounter).Inc(1)
	q.stat.Histogram(stats.QueueJobRunLatency_ms).Update(node.finishTime.Sub(node.submitTime).Milliseconds())
}

func (q *JobQueue) finishKilled(node *jobNode) {
	node.finishTime = q.now()
	node.submitting = false
	node.checking = false
	q.setStatus(node, driver.UserKilled)
	q.stat.Counter(stats.QueueJobsKilledCounter).Inc(1)
	log.WithFields(
		log.Fields{
			"job":   node.index,
			"name":  node.spec.Name,
			"token": node.token,
		}).Info("Job killed")
	q.notifyExit(node)
}

func (q *JobQueue) setStatus(node *jobNode, to driver.JobStatus) {
	from := node.status
	node.status = to
	log.WithFields(
		log.Fields{
			"job":   node.index,
			"from":  from,
			"to":    to,
			"token": node.token,
		}).Debug("Job status changed")
	if q.observe != nil {
		q.observe(node.snapshot(q.kind), from)
	}
}

// countDriverFaults aborts the queue once MaxDriverFaults iterations in a row
// saw the driver unavailable and nothing else. Any iteration with a call
// that reached the driver resets the count.
func (q *JobQueue) countDriverFaults() {
	switch {
	case q.stepFault != nil && q.stepCalls == 0:
		q.driverFaults++
		q.stat.Counter(stats.QueueDriverFaultsCounter).Inc(1)
		if q.driverFaults >= q.cfg.MaxDriverFaults && q.err == nil {
			q.err = errors.Wrapf(q.stepFault, "driver unavailable %d times in a row", q.driverFaults)
			q.closed = true
			log.WithField("error", q.err).Error("Aborting job queue")
		}
	case q.stepCalls > 0:
		q.driverFaults = 0
	}
}

func (q *JobQueue) updateGauges() {
	summary := q.summary()
	q.stat.Gauge(stats.QueueWaitingGauge).Update(int64(summary[driver.Waiting]))
	q.stat.Gauge(stats.QueuePendingGauge).Update(int64(summary[driver.Submitted] + summary[driver.Pending]))
	q.stat.Gauge(stats.QueueRunningGauge).Update(int64(summary[driver.Running]))
}

package drivers

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	log "github.com/sirupsen/logrus"

	"github.com/scootdev/ensemble/common"
	"github.com/scootdev/ensemble/common/stats"
	"github.com/scootdev/ensemble/driver"
	"github.com/scootdev/ensemble/runner/execer"
)

// processes tracks the execer processes a Local or RemoteShell driver started.
// A wait goroutine per process records its final status and moves it from
// running to finished. finished is bounded; a token evicted from it is unknown.
type processes struct {
	kind driver.Kind
	stat stats.StatsReceiver

	mu       sync.Mutex
	running  map[driver.Token]*trackedProcess
	finished *lru.Cache[driver.Token, *trackedProcess]
}

type trackedProcess struct {
	name   string
	proc   execer.Process
	status driver.JobStatus
	result execer.ProcessStatus
}

func newProcesses(kind driver.Kind, stat stats.StatsReceiver, size int) *processes {
	finished, err := lru.New[driver.Token, *trackedProcess](size)
	if err != nil {
		panic(err)
	}
	return &processes{
		kind:     kind,
		stat:     stat,
		running:  make(map[driver.Token]*trackedProcess),
		finished: finished,
	}
}

// start execs cmd and returns a fresh token for it. onExit, if set, runs once
// the process has finished and its status is recorded.
func (p *processes) start(ex execer.Execer, cmd execer.Command, onExit func(execer.ProcessStatus)) (driver.Token, error) {
	proc, err := ex.Exec(cmd)
	if err != nil {
		return "", err
	}
	tok := driver.Token(common.GenToken(p.kind.String()))
	tp := &trackedProcess{name: cmd.JobName, proc: proc, status: driver.Running}

	p.mu.Lock()
	p.running[tok] = tp
	p.updateGauge()
	p.mu.Unlock()

	go func() {
		st := proc.Wait()
		p.mu.Lock()
		tp.result = st
		if st.Succeeded() {
			tp.status = driver.Done
		} else {
			tp.status = driver.Exit
		}
		delete(p.running, tok)
		p.finished.Add(tok, tp)
		p.updateGauge()
		p.mu.Unlock()
		log.WithFields(
			log.Fields{
				"job":    cmd.JobName,
				"token":  tok,
				"result": st,
			}).Debug("Process finished")
		if onExit != nil {
			onExit(st)
		}
	}()
	return tok, nil
}

// Called with p.mu held.
func (p *processes) updateGauge() {
	p.stat.Gauge(stats.DriverTrackedJobsGauge).Update(int64(len(p.running)))
}

// Called with p.mu held.
func (p *processes) lookup(tok driver.Token) (*trackedProcess, bool) {
	if tp, ok := p.running[tok]; ok {
		return tp, true
	}
	return p.finished.Get(tok)
}

func (p *processes) status(tok driver.Token) (driver.JobStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	tp, ok := p.lookup(tok)
	if !ok {
		return driver.Exit, driver.ErrUnknownToken
	}
	return tp.status, nil
}

// result returns the final process status of a finished token.
func (p *processes) result(tok driver.Token) (execer.ProcessStatus, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	tp, ok := p.finished.Get(tok)
	if !ok {
		return execer.ProcessStatus{}, false
	}
	return tp.result, true
}

// kill aborts the process behind tok. It blocks until the process is gone.
// Killing a finished process is a no-op.
func (p *processes) kill(tok driver.Token) error {
	p.mu.Lock()
	tp, running := p.running[tok]
	finished := !running && p.finished.Contains(tok)
	p.mu.Unlock()
	if finished {
		return nil
	}
	if !running {
		return driver.ErrUnknownToken
	}
	st := tp.proc.Abort()
	log.WithFields(
		log.Fields{
			"job":    tp.name,
			"token":  tok,
			"result": st,
		}).Info("Aborted process")
	return nil
}

// count is the number of processes still running.
func (p *processes) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.running)
}

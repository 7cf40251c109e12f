package ice

import "fmt"

type pollInterval struct {
	seconds int
}

func defaultPollInterval() pollInterval {
	return pollInterval{seconds: 1}
}

type backend interface {
	Start(name string) (string, error)
	Started() []string
}

type fakeBackend struct {
	started []string
}

func (b *fakeBackend) Start(name string) (string, error) {
	b.started = append(b.started, name)
	return fmt.Sprintf("tok-%d", len(b.started)), nil
}

func (b *fakeBackend) Started() []string { return b.started }

func newFakeBackend() backend { return &fakeBackend{} }

type limiter interface {
	Allow(active int) bool
}

type fixedLimiter struct{ max int }

func (l fixedLimiter) Allow(active int) bool { return l.max == 0 || active < l.max }

func newFixedLimiter() limiter { return fixedLimiter{max: 2} }

type scheduler struct {
	b      backend
	l      limiter
	active int
}

func newScheduler(b backend, l limiter) *scheduler { return &scheduler{b: b, l: l} }

func (s *scheduler) Submit(name string) (string, error) {
	if !s.l.Allow(s.active) {
		return "", fmt.Errorf("no capacity for %s", name)
	}
	s.active++
	return s.b.Start(name)
}

type loop struct {
	poller *poller
}

func newLoop(p *poller) *loop { return &loop{p} }

type poller struct {
	loop *loop
}

func newPoller(l *loop) *poller { return &poller{l} }

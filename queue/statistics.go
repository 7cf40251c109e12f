package queue

import (
	"sync"
	"time"
)

// StatisticsTracker accumulates waiting and running time of completed jobs
// to estimate throughput. The window restarts on Reset; the lifetime
// completed count does not.
type StatisticsTracker struct {
	mu  sync.Mutex
	now func() time.Time

	start     time.Time
	waiting   time.Duration
	running   time.Duration
	completed int
	lifetime  int
}

func NewStatisticsTracker() *StatisticsTracker {
	return newStatisticsTracker(time.Now)
}

func newStatisticsTracker(now func() time.Time) *StatisticsTracker {
	return &StatisticsTracker{now: now, start: now()}
}

// AddTiming records one completed job.
func (s *StatisticsTracker) AddTiming(submit, start, finish time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if start.After(submit) {
		s.waiting += start.Sub(submit)
	}
	if finish.After(start) {
		s.running += finish.Sub(start)
	}
	s.completed++
	s.lifetime++
}

func (s *StatisticsTracker) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.start = s.now()
	s.waiting = 0
	s.running = 0
	s.completed = 0
}

func (s *StatisticsTracker) elapsed() time.Duration {
	return s.now().Sub(s.start)
}

// JobsPerSecond is the completion rate since the last Reset.
func (s *StatisticsTracker) JobsPerSecond() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	elapsed := s.elapsed().Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(s.completed) / elapsed
}

// AverageConcurrency is the mean number of jobs running at once since the last Reset.
func (s *StatisticsTracker) AverageConcurrency() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.averageConcurrency()
}

func (s *StatisticsTracker) averageConcurrency() float64 {
	elapsed := s.elapsed().Seconds()
	if elapsed <= 0 {
		return 0
	}
	return s.running.Seconds() / elapsed
}

func (s *StatisticsTracker) AverageWaiting() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completed == 0 {
		return 0
	}
	return s.waiting / time.Duration(s.completed)
}

func (s *StatisticsTracker) AverageRunning() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.averageRunning()
}

func (s *StatisticsTracker) averageRunning() time.Duration {
	if s.completed == 0 {
		return 0
	}
	return s.running / time.Duration(s.completed)
}

// EstimateRemaining estimates the time until totalJobs have completed.
// ok is false, and the estimate -1, until there is enough data.
func (s *StatisticsTracker) EstimateRemaining(totalJobs int) (estimate time.Duration, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	remaining := totalJobs - s.lifetime
	if remaining <= 0 {
		return 0, true
	}
	concurrency := s.averageConcurrency()
	if s.completed == 0 || concurrency <= 0 {
		return -1, false
	}
	perJob := float64(s.averageRunning()) / concurrency
	return time.Duration(float64(remaining) * perJob), true
}

// Completed counts jobs since the last Reset.
func (s *StatisticsTracker) Completed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed
}

func (s *StatisticsTracker) LifetimeCompleted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lifetime
}

package drivers

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/scootdev/ensemble/driver"
)

// Option keys understood by the RemoteShell driver.
const (
	// "host" or "host:n"; appends to the host list.
	RshHostOption = "RSH_HOST"
	// Any value empties the host list.
	RshClearHostListOption = "RSH_CLEAR_HOSTLIST"
	RshCmdOption           = "RSH_CMD"
)

// Option keys understood by the Cluster driver. RSH_CMD is shared.
const (
	QueueOption        = "QUEUE"
	ResourceOption     = "RESOURCE"
	SubmitCmdOption    = "SUBMIT_CMD"
	QueryCmdOption     = "QUERY_CMD"
	KillCmdOption      = "KILL_CMD"
	RemoteServerOption = "REMOTE_SERVER"
	// A duration, e.g. "10s".
	QueryRefreshOption = "QUERY_REFRESH"
	// Submissions per second; 0 means unthrottled.
	SubmitRateOption = "SUBMIT_RATE"
)

const DefaultRshCmd = "/usr/bin/ssh"

// OptionKeys lists the option keys each driver kind accepts.
var OptionKeys = map[driver.Kind][]string{
	driver.Local:       {driver.MaxRunningOption},
	driver.RemoteShell: {driver.MaxRunningOption, RshHostOption, RshClearHostListOption, RshCmdOption},
	driver.Cluster: {driver.MaxRunningOption, QueueOption, ResourceOption, SubmitCmdOption, QueryCmdOption,
		KillCmdOption, RemoteServerOption, RshCmdOption, QueryRefreshOption, SubmitRateOption},
}

// maxRunning is the MAX_RUNNING bookkeeping every driver carries.
type maxRunning struct {
	mu sync.Mutex
	n  int
}

func (m *maxRunning) SetMaxRunning(n int) {
	if n < 0 {
		n = 0
	}
	m.mu.Lock()
	m.n = n
	m.mu.Unlock()
}

func (m *maxRunning) MaxRunning() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.n
}

func (m *maxRunning) setOption(value string) bool {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n < 0 {
		return false
	}
	m.SetMaxRunning(n)
	return true
}

func (m *maxRunning) option() string {
	return strconv.Itoa(m.MaxRunning())
}

// parseHost parses "host" or "host:n". A bare host takes one job at a time.
func parseHost(s string) (string, int, error) {
	s = strings.TrimSpace(s)
	name, count, found := strings.Cut(s, ":")
	if name == "" {
		return "", 0, fmt.Errorf("empty host in %q", s)
	}
	if !found {
		return name, 1, nil
	}
	n, err := strconv.Atoi(count)
	if err != nil || n < 1 {
		return "", 0, fmt.Errorf("bad job count in host %q", s)
	}
	return name, n, nil
}

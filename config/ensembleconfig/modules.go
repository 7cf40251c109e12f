// Package ensembleconfig holds the JSON configuration modules of the ensemble
// binary. Each section of the config names an implementation by "Type"; the
// chosen implementation installs its providers into an ice.MagicBag.
package ensembleconfig

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/scootdev/ensemble/config/jsonconfig"
	"github.com/scootdev/ensemble/ice"
	"github.com/scootdev/ensemble/queue"
	"github.com/scootdev/ensemble/runmodel"
)

// Schema returns the sections the ensemble binary understands. A missing
// section uses its "" implementation.
func Schema() jsonconfig.Schema {
	return jsonconfig.Schema{
		"Driver": jsonconfig.Implementations{
			"local":   &LocalDriverConfig{},
			"rsh":     &RemoteShellDriverConfig{},
			"cluster": &ClusterDriverConfig{},
			"":        &LocalDriverConfig{Type: "local"},
		},
		"Queue": jsonconfig.Implementations{
			"default": &QueueConfig{},
			"":        &QueueConfig{Type: "default"},
		},
		"Run": jsonconfig.Implementations{
			"default": &RunConfig{},
			"":        &RunConfig{Type: "default"},
		},
	}
}

// Queue settings. Durations are strings like "250ms"; zero values take the
// queue's defaults. OKFile and ExitFile name files in each run path that are
// checked when a job finishes; empty means unchecked.
type QueueConfig struct {
	Type            string
	PollInterval    string
	SubmitBatch     int
	PollConcurrency int
	KillTimeout     string
	MaxSubmit       int
	MaxDriverFaults int
	CallTimeout     string
	OKFile          string
	ExitFile        string
	MaxOKWait       string
}

func (c *QueueConfig) Install(bag *ice.MagicBag) {
	bag.Put(c.Create)
}

func (c *QueueConfig) Create() (queue.Config, error) {
	cfg := queue.Config{
		SubmitBatch:     c.SubmitBatch,
		PollConcurrency: c.PollConcurrency,
		MaxSubmit:       c.MaxSubmit,
		MaxDriverFaults: c.MaxDriverFaults,
		OKFile:          c.OKFile,
		ExitFile:        c.ExitFile,
	}
	var err error
	for _, d := range []struct {
		field string
		value string
		dst   *time.Duration
	}{
		{"PollInterval", c.PollInterval, &cfg.PollInterval},
		{"KillTimeout", c.KillTimeout, &cfg.KillTimeout},
		{"CallTimeout", c.CallTimeout, &cfg.CallTimeout},
		{"MaxOKWait", c.MaxOKWait, &cfg.MaxOKWait},
	} {
		if *d.dst, err = parseDuration(d.field, d.value); err != nil {
			return queue.Config{}, err
		}
	}
	return cfg, nil
}

// The ensemble to run. Command line flags of the binary override these.
// ActiveRealizations - ranges like "0-9,12"; empty means all
type RunConfig struct {
	Type               string
	Name               string
	Command            string
	Args               []string
	RunPathFormat      string
	Realizations       int
	ActiveRealizations string
	MinRealizations    int
	MaxSubmit          int
	NumCPU             int
	EnvVars            map[string]string
	CreateRunPaths     bool
	StopLongRunning    bool
	ProgressInterval   string
}

func (c *RunConfig) Install(bag *ice.MagicBag) {
	bag.Put(c.Create)
}

// Create does not validate; the binary checks the config after applying flags.
func (c *RunConfig) Create() (runmodel.Config, error) {
	cfg := runmodel.Config{
		Name:            c.Name,
		Command:         c.Command,
		Args:            c.Args,
		RunPathFormat:   c.RunPathFormat,
		Realizations:    c.Realizations,
		MinRealizations: c.MinRealizations,
		MaxSubmit:       c.MaxSubmit,
		NumCPU:          c.NumCPU,
		EnvVars:         c.EnvVars,
		CreateRunPaths:  c.CreateRunPaths,
		StopLongRunning: c.StopLongRunning,
	}
	if cfg.Name == "" {
		cfg.Name = "ensemble"
	}
	var err error
	if cfg.ProgressInterval, err = parseDuration("ProgressInterval", c.ProgressInterval); err != nil {
		return runmodel.Config{}, err
	}
	if c.ActiveRealizations != "" {
		if cfg.ActiveMask, err = ParseActiveMask(c.ActiveRealizations, c.Realizations); err != nil {
			return runmodel.Config{}, err
		}
	}
	return cfg, nil
}

func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %v", field, s, err)
	}
	return d, nil
}

// ParseActiveMask turns "0-3,7" into a mask over n realizations.
func ParseActiveMask(ranges string, n int) ([]bool, error) {
	mask := make([]bool, n)
	for _, part := range strings.Split(ranges, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi := part, part
		if i := strings.Index(part, "-"); i >= 0 {
			lo, hi = part[:i], part[i+1:]
		}
		from, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("invalid realization range %q", part)
		}
		to, err := strconv.Atoi(strings.TrimSpace(hi))
		if err != nil || to < from {
			return nil, fmt.Errorf("invalid realization range %q", part)
		}
		if from < 0 || to >= n {
			return nil, fmt.Errorf("realization range %q is outside 0-%d", part, n-1)
		}
		for r := from; r <= to; r++ {
			mask[r] = true
		}
	}
	return mask, nil
}

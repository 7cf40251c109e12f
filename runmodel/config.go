package runmodel

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/scootdev/ensemble/driver"
)

// Placeholders replaced in Args and EnvVars values for each realization.
const (
	RealizationPlaceholder = "<IENS>"
	RunPathPlaceholder     = "<RUNPATH>"
)

// Environment variable every job gets, holding its realization number.
const RealizationEnvVar = "IENS"

const DefaultProgressInterval = 10 * time.Second

// Config describes one ensemble run.
type Config struct {
	// Prefix of job names, "<Name>-<realization>".
	Name    string
	Command string
	Args    []string
	// fmt format with one %d for the realization, e.g. "/scratch/case/realization-%d".
	RunPathFormat string
	Realizations  int
	// nil means every realization is active; otherwise it needs one entry per realization.
	ActiveMask []bool
	// Number of realizations that must succeed; 0 means all active ones.
	MinRealizations int
	// Attempts per realization; 0 means the queue's default.
	MaxSubmit int
	NumCPU    int
	EnvVars   map[string]string

	// Create run path directories before submitting.
	CreateRunPaths bool
	// Once MinRealizations succeeded, stop realizations that run much
	// longer than the successful ones.
	StopLongRunning  bool
	ProgressInterval time.Duration
}

func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Command) == "":
		return fmt.Errorf("run %q has no command", c.Name)
	case c.Realizations <= 0:
		return fmt.Errorf("run %q needs at least one realization, was %d", c.Name, c.Realizations)
	case c.ActiveMask != nil && len(c.ActiveMask) != c.Realizations:
		return fmt.Errorf("run %q has %d realizations but an active mask of %d", c.Name, c.Realizations, len(c.ActiveMask))
	case c.MinRealizations < 0:
		return fmt.Errorf("run %q has negative min realizations %d", c.Name, c.MinRealizations)
	case c.MaxSubmit < 0 || c.NumCPU < 0:
		return fmt.Errorf("run %q has negative max submit or cpu count", c.Name)
	case c.RunPathFormat != "" && strings.Count(c.RunPathFormat, "%d") != 1:
		return fmt.Errorf("run path format %q needs exactly one %%d", c.RunPathFormat)
	}
	active := len(c.active())
	if active == 0 {
		return fmt.Errorf("run %q has no active realizations", c.Name)
	}
	if c.MinRealizations > active {
		return fmt.Errorf("run %q needs %d realizations to succeed but only %d are active", c.Name, c.MinRealizations, active)
	}
	return nil
}

// active lists the active realization numbers in order.
func (c Config) active() []int {
	all := lo.Range(c.Realizations)
	if c.ActiveMask == nil {
		return all
	}
	return lo.Filter(all, func(r int, _ int) bool { return r < len(c.ActiveMask) && c.ActiveMask[r] })
}

// required is the number of successes the run needs to be viable.
func (c Config) required() int {
	if c.MinRealizations == 0 {
		return len(c.active())
	}
	return c.MinRealizations
}

func (c Config) progressInterval() time.Duration {
	if c.ProgressInterval <= 0 {
		return DefaultProgressInterval
	}
	return c.ProgressInterval
}

func (c Config) runPath(realization int) string {
	if c.RunPathFormat == "" {
		return ""
	}
	return fmt.Sprintf(c.RunPathFormat, realization)
}

// JobSpec builds the job for one realization.
func (c Config) JobSpec(realization int) driver.JobSpec {
	runPath := c.runPath(realization)
	r := strings.NewReplacer(RealizationPlaceholder, strconv.Itoa(realization), RunPathPlaceholder, runPath)
	env := lo.MapValues(c.EnvVars, func(v string, _ string) string { return r.Replace(v) })
	return driver.JobSpec{
		Name:      fmt.Sprintf("%s-%d", c.Name, realization),
		Command:   c.Command,
		Args:      lo.Map(c.Args, func(a string, _ int) string { return r.Replace(a) }),
		RunPath:   runPath,
		NumCPU:    c.NumCPU,
		MaxSubmit: c.MaxSubmit,
		EnvVars:   lo.Assign(env, map[string]string{RealizationEnvVar: strconv.Itoa(realization)}),
	}
}

func (c Config) createRunPath(realization int) error {
	p := c.runPath(realization)
	if !c.CreateRunPaths || p == "" {
		return nil
	}
	return os.MkdirAll(p, 0755)
}

func (c Config) String() string {
	return fmt.Sprintf("%s: %d/%d active realizations, min %d, command %q", c.Name, len(c.active()), c.Realizations, c.required(), c.Command)
}

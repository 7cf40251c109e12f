package testhelpers

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/leanovate/gopter"

	"github.com/scootdev/ensemble/driver"
	"github.com/scootdev/ensemble/runner/execer/execers"
)

// generates a new random number seeded with
func NewRand() *rand.Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// Generates an AlphaNumericString of random length (0, 21]
func GenRandomAlphaNumericString(rng *rand.Rand) string {
	const chars = "abcdefghijklmnopqrstuvwxyz0123456789"
	length := rng.Intn(20) + 1
	result := make([]byte, length)
	for i := 0; i < length; i++ {
		result[i] = chars[rng.Intn(len(chars))]
	}

	return string(result)
}

// Generates the spec of a realization that runs under a SimExecer:
// it sleeps a little and then exits 0, or non-zero one time in four.
func GenJobSpec(rng *rand.Rand, realization int) driver.JobSpec {
	exitCode := 0
	if rng.Intn(4) == 0 {
		exitCode = rng.Intn(3) + 1
	}
	return driver.JobSpec{
		Name:    fmt.Sprintf("realization-%d-%s", realization, GenRandomAlphaNumericString(rng)),
		Command: execers.UseSimExecerArg,
		Args: []string{
			fmt.Sprintf("sleep %d", rng.Intn(5)),
			fmt.Sprintf("complete %d", exitCode),
		},
		RunPath:   fmt.Sprintf("/scratch/ensemble/realization-%d", realization),
		NumCPU:    rng.Intn(4) + 1,
		MaxSubmit: rng.Intn(3),
		EnvVars:   map[string]string{"IENS": fmt.Sprint(realization)},
	}
}

// Generates a random number of realization specs, at most max.
func GopterGenJobSpecs(max int) gopter.Gen {
	return func(genParams *gopter.GenParameters) *gopter.GenResult {
		n := genParams.Rng.Intn(max) + 1
		specs := make([]driver.JobSpec, n)
		for i := range specs {
			specs[i] = GenJobSpec(genParams.Rng, i)
		}
		return gopter.NewGenResult(specs, gopter.NoShrinker)
	}
}

// QueueOp is one action of a random queue workload.
type QueueOp int

const (
	OpSubmit QueueOp = iota
	OpStep
	// Finish a random active job successfully.
	OpFinish
	// Finish a random active job with an error.
	OpFail
	OpPause
	OpResume
	OpKill
	numQueueOps
)

func (o QueueOp) String() string {
	return [...]string{"submit", "step", "finish", "fail", "pause", "resume", "kill"}[o]
}

// Weights of each QueueOp in generated workloads. Steps are weighted up so
// the queue makes progress.
var queueOpWeights = [numQueueOps]int{
	OpSubmit: 3,
	OpStep:   6,
	OpFinish: 3,
	OpFail:   2,
	OpPause:  1,
	OpResume: 1,
	OpKill:   1,
}

// Generates a random queue operation.
func GenQueueOp(rng *rand.Rand) QueueOp {
	total := 0
	for _, w := range queueOpWeights {
		total += w
	}
	pick := rng.Intn(total)
	for op, w := range queueOpWeights {
		if pick < w {
			return QueueOp(op)
		}
		pick -= w
	}
	return OpStep
}

// Generates sequences of up to maxLen queue operations.
func GopterGenQueueOps(maxLen int) gopter.Gen {
	return func(genParams *gopter.GenParameters) *gopter.GenResult {
		ops := make([]QueueOp, genParams.Rng.Intn(maxLen)+1)
		for i := range ops {
			ops[i] = GenQueueOp(genParams.Rng)
		}
		return gopter.NewGenResult(ops, gopter.NoShrinker)
	}
}

package common

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitCommaSepToMap(t *testing.T) {
	assert.Equal(t, map[string]string{"OMP_NUM_THREADS": "1", "DATA": "a=b"},
		SplitCommaSepToMap("OMP_NUM_THREADS=1,,bogus,DATA=a=b"))
	assert.Empty(t, SplitCommaSepToMap(""))
}

func TestShellJoin(t *testing.T) {
	assert.Equal(t, "''", ShellQuote(""))
	assert.Equal(t, "/scratch/case/realization-1", ShellQuote("/scratch/case/realization-1"))
	assert.Equal(t, `'it'"'"'s'`, ShellQuote("it's"))
	assert.Equal(t, `flow 'CASE 0' --threads=4`, ShellJoin([]string{"flow", "CASE 0", "--threads=4"}))
}

func TestGenToken(t *testing.T) {
	a, b := GenToken("RSH"), GenToken("RSH")
	assert.True(t, strings.HasPrefix(a, "rsh-"), a)
	assert.Len(t, a, len("rsh-")+36)
	assert.NotEqual(t, a, b)
}

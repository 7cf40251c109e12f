package endpoints

import (
	"time"

	"github.com/scootdev/ensemble/common/stats"
	"github.com/scootdev/ensemble/ice"
)

type Addr string

// Module provides a StatsReceiver for a StatScope and a TwitterServer on Addr.
func Module() ice.Module {
	return module{}
}

type module struct{}

func (m module) Install(b *ice.MagicBag) {
	b.PutMany(
		func(scope StatScope) stats.StatsReceiver {
			return MakeStatsReceiver(scope).Precision(time.Millisecond)
		},
		func(addr Addr, stat stats.StatsReceiver) *TwitterServer {
			return NewTwitterServer(string(addr), stat)
		},
	)
}

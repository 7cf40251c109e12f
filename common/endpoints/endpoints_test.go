package endpoints

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scootdev/ensemble/common/stats"
	"github.com/scootdev/ensemble/ice"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
	return rec
}

func TestHealthAndHelp(t *testing.T) {
	s := NewTwitterServer("localhost:0", stats.NilStatsReceiver())
	rec := get(t, s.Handler(), "/health")
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	assert.Equal(t, 501, get(t, s.Handler(), "/").Code)
	assert.Equal(t, 404, get(t, s.Handler(), "/nope").Code)
}

func TestMetrics(t *testing.T) {
	stat, _ := stats.NewCustomStatsReceiver(stats.NewFinagleStatsRegistry, 0)
	stat.Scope("queue").Counter("jobsDoneCounter").Inc(3)
	s := NewTwitterServer("localhost:0", stat)

	rec := get(t, s.Handler(), "/admin/metrics.json")
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	var metrics map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &metrics))
	assert.Equal(t, float64(3), metrics["queue/jobsDoneCounter"])
}

func TestHandleJSON(t *testing.T) {
	s := NewTwitterServer("localhost:0", stats.NilStatsReceiver())
	s.HandleJSON("/admin/progress.json", func() interface{} {
		return map[string]int{"Done": 7}
	})
	rec := get(t, s.Handler(), "/admin/progress.json")
	assert.JSONEq(t, `{"Done": 7}`, rec.Body.String())
}

func TestServeUntilCancelled(t *testing.T) {
	ln, err := net.Listen("tcp", "localhost:0")
	require.NoError(t, err)
	s := NewTwitterServer(ln.Addr().String(), stats.NilStatsReceiver())
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.ServeListener(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "ok", string(body))

	cancel()
	assert.NoError(t, <-errCh)
}

func TestModule(t *testing.T) {
	bag := ice.NewMagicBag()
	bag.PutMany(
		func() StatScope { return "ensemble" },
		func() Addr { return "localhost:0" },
	)
	require.NoError(t, bag.InstallModule(Module()))
	var s *TwitterServer
	require.NoError(t, bag.Extract(&s))
	assert.Equal(t, "localhost:0", s.Addr)
	assert.NotNil(t, s.Stats)
}

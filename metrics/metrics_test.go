package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/YewRongDe/HTR/config"
)

type failSink struct {
	err   error
	calls int
}

func (f *failSink) Record(ctx context.Context, p Point) error {
	f.calls++
	return f.err
}

func TestLogSink(t *testing.T) {
	c := qt.New(t)

	core, logs := observer.New(zap.InfoLevel)
	sink := &LogSink{Logger: zap.New(core)}
	c.Assert(sink.Record(context.Background(), Point{Step: 7, Loss: 1.5, Rate: 0.01}), qt.IsNil)

	entries := logs.All()
	c.Assert(entries, qt.HasLen, 1)
	fields := entries[0].ContextMap()
	c.Check(fields["step"], qt.Equals, int64(7))
	c.Check(fields["loss"], qt.Equals, 1.5)
	c.Check(fields["rate"], qt.Equals, 0.01)
}

func TestMulti(t *testing.T) {
	c := qt.New(t)

	errA := errors.New("a failed")
	errB := errors.New("b failed")
	a := &failSink{err: errA}
	ok := &failSink{}
	b := &failSink{err: errB}

	err := Multi{a, ok, b}.Record(context.Background(), Point{})
	c.Assert(err, qt.ErrorIs, errA)
	c.Assert(err, qt.ErrorIs, errB)
	c.Check(a.calls, qt.Equals, 1)
	c.Check(ok.calls, qt.Equals, 1)
	c.Check(b.calls, qt.Equals, 1)

	c.Check(Multi{ok, Discard{}}.Record(context.Background(), Point{}), qt.IsNil)
}

func TestInfluxSink(t *testing.T) {
	c := qt.New(t)

	var lock sync.Mutex
	var bodies []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/write" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		c.Check(r.URL.Query().Get("org"), qt.Equals, "lab")
		c.Check(r.URL.Query().Get("bucket"), qt.Equals, "training")
		body, _ := io.ReadAll(r.Body)
		lock.Lock()
		bodies = append(bodies, string(body))
		lock.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	sink, err := NewInfluxSink(config.InfluxDBConfig{
		URL:         server.URL,
		Token:       "secret",
		Org:         "lab",
		Bucket:      "training",
		Measurement: "htr_train",
	})
	c.Assert(err, qt.IsNil)
	defer sink.Close()

	err = sink.Record(context.Background(), Point{Step: 3, Loss: 2.5, Rate: 0.001})
	c.Assert(err, qt.IsNil)

	lock.Lock()
	defer lock.Unlock()
	c.Assert(bodies, qt.HasLen, 1)
	line := bodies[0]
	c.Check(strings.HasPrefix(line, "htr_train,run="+sink.RunID+" "), qt.IsTrue, qt.Commentf(line))
	c.Check(strings.Contains(line, "loss=2.5"), qt.IsTrue, qt.Commentf(line))
	c.Check(strings.Contains(line, "step=3i"), qt.IsTrue, qt.Commentf(line))
	c.Check(strings.Contains(line, "rate=0.001"), qt.IsTrue, qt.Commentf(line))
}

func TestInfluxSinkServerError(t *testing.T) {
	c := qt.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"code":"unauthorized","message":"bad token"}`))
	}))
	defer server.Close()

	sink, err := NewInfluxSink(config.InfluxDBConfig{URL: server.URL, Org: "o", Bucket: "b"})
	c.Assert(err, qt.IsNil)
	defer sink.Close()

	c.Check(sink.Record(context.Background(), Point{Step: 1}), qt.IsNotNil)
}

func TestNewInfluxSinkNoURL(t *testing.T) {
	c := qt.New(t)
	_, err := NewInfluxSink(config.InfluxDBConfig{})
	c.Assert(err, qt.IsNotNil)
}

package supervisor

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"uchat/internal/logging"
	"uchat/internal/metrics"
	"uchat/internal/query"
)

type fakeServer struct {
	stop     chan struct{}
	once     sync.Once
	listen   error
	shutdown atomic.Bool
}

func newFakeServer() *fakeServer { return &fakeServer{stop: make(chan struct{})} }

func (f *fakeServer) ListenAndServe() error {
	if f.listen != nil {
		return f.listen
	}
	<-f.stop
	return http.ErrServerClosed
}

func (f *fakeServer) Shutdown(context.Context) error {
	f.shutdown.Store(true)
	f.once.Do(func() { close(f.stop) })
	return nil
}

func TestHTTPServiceGracefulShutdown(t *testing.T) {
	c := qt.New(t)
	srv := newFakeServer()
	svc := NewHTTPService(srv, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()
	cancel()

	select {
	case err := <-done:
		c.Assert(errors.Is(err, context.Canceled), qt.IsTrue)
	case <-time.After(5 * time.Second):
		c.Fatal("service did not stop")
	}
	c.Assert(srv.shutdown.Load(), qt.IsTrue)
}

func TestHTTPServiceListenFailure(t *testing.T) {
	c := qt.New(t)
	srv := newFakeServer()
	srv.listen = errors.New("address in use")

	err := NewHTTPService(srv, time.Second).Serve(context.Background())
	c.Assert(err, qt.ErrorMatches, "http server failed: address in use")
}

func TestSessionReaper(t *testing.T) {
	c := qt.New(t)

	var calls atomic.Int32
	reaper := NewSessionReaper(nil, 10*time.Millisecond)
	reaper.reap = func(context.Context, query.DB) (int64, error) {
		if calls.Add(1) == 2 {
			return 0, errors.New("connection refused")
		}
		return 3, nil
	}

	before := testutil.ToFloat64(metrics.SessionsReapedTotal)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- reaper.Serve(ctx) }()

	deadline := time.After(5 * time.Second)
	for calls.Load() < 3 {
		select {
		case <-deadline:
			c.Fatal("reaper did not tick")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	c.Assert(errors.Is(<-done, context.Canceled), qt.IsTrue)

	reaped := testutil.ToFloat64(metrics.SessionsReapedTotal) - before
	c.Assert(reaped >= 6, qt.IsTrue, qt.Commentf("reaped %v", reaped))
}

func TestTreeRunsServices(t *testing.T) {
	c := qt.New(t)
	tree := NewTree(logging.NewSlogLogger(), TreeConfig{ShutdownTimeout: time.Second})

	srv := newFakeServer()
	tree.AddAPIService(NewHTTPService(srv, time.Second))
	var reaps atomic.Int32
	reaper := NewSessionReaper(nil, time.Hour)
	reaper.reap = func(context.Context, query.DB) (int64, error) {
		reaps.Add(1)
		return 0, nil
	}
	tree.AddMaintenanceService(reaper)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	deadline := time.After(5 * time.Second)
	for reaps.Load() == 0 {
		select {
		case <-deadline:
			c.Fatal("reaper never ran")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-errCh
	c.Assert(srv.shutdown.Load(), qt.IsTrue)

	report, err := tree.UnstoppedServiceReport()
	c.Assert(err, qt.IsNil)
	c.Assert(report, qt.HasLen, 0)
}

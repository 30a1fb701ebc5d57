package workflow

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func newTestLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestRunExecutesSteps(t *testing.T) {
	r := NewRunner(newTestLogger(), 1, time.Second)

	var order []string
	err := r.Run(context.Background(), "provision", func(run *Run) error {
		if err := run.Step("clone", func(ctx context.Context) error {
			order = append(order, "clone")
			return nil
		}); err != nil {
			return err
		}
		return run.Step("install", func(ctx context.Context) error {
			order = append(order, "install")
			return nil
		})
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(order) != 2 || order[0] != "clone" || order[1] != "install" {
		t.Fatalf("unexpected step order: %v", order)
	}
}

func TestStepFailureAbortsWithoutRetry(t *testing.T) {
	r := NewRunner(newTestLogger(), 1, time.Second)

	var attempts int32
	err := r.Run(context.Background(), "provision", func(run *Run) error {
		return run.Step("clone", func(ctx context.Context) error {
			atomic.AddInt32(&attempts, 1)
			return errors.New("git exited 128")
		})
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), `step "clone"`) {
		t.Fatalf("error must name the failed step: %v", err)
	}
	if attempts != 1 {
		t.Fatalf("steps must not retry, got %d attempts", attempts)
	}
}

func TestConcurrencyLimitQueues(t *testing.T) {
	r := NewRunner(newTestLogger(), 2, time.Second)

	var running, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.Run(context.Background(), "job", func(run *Run) error {
				n := atomic.AddInt32(&running, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				atomic.AddInt32(&running, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	if peak > 2 {
		t.Fatalf("expected at most 2 concurrent jobs, saw %d", peak)
	}
}

func TestGoSignalsCompletion(t *testing.T) {
	r := NewRunner(newTestLogger(), 1, time.Second)

	var ran atomic.Bool
	done := r.Go(context.Background(), "job", func(run *Run) error {
		ran.Store(true)
		return nil
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("done not closed after job finished")
	}
	if !ran.Load() {
		t.Fatal("job did not run")
	}

	// A run cancelled while queued behind the concurrency limit still
	// signals completion without running.
	started := make(chan struct{})
	release := make(chan struct{})
	holder := r.Go(context.Background(), "hold", func(run *Run) error {
		close(started)
		<-release
		return nil
	})
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done = r.Go(ctx, "skipped", func(run *Run) error {
		t.Error("job must not run with a cancelled context")
		return nil
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("done not closed for cancelled context")
	}
	close(release)
	<-holder
}

func TestTimeoutCancelsRun(t *testing.T) {
	r := NewRunner(newTestLogger(), 1, 30*time.Millisecond)

	err := r.Run(context.Background(), "slow", func(run *Run) error {
		return run.Sleep(time.Second)
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestStepSkippedAfterCancel(t *testing.T) {
	r := NewRunner(newTestLogger(), 1, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	err := r.Run(ctx, "job", func(run *Run) error {
		cancel()
		// Give the timeout context time to observe the parent cancel.
		time.Sleep(10 * time.Millisecond)
		return run.Step("never", func(ctx context.Context) error {
			t.Fatal("step must not run after cancel")
			return nil
		})
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
}

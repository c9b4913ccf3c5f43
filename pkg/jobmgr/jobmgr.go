// Package jobmgr runs named background jobs with cancellation and in-memory
// tracking of what is running.
//
//	jm := jobmgr.NewManager(func(msg string) { log.Println("job:", msg) })
//	_ = jm.StartPeriodic(ctx, "cleanup", time.Hour, func(ctx context.Context) error {
//	    return cleanup(ctx)
//	})
//	defer jm.StopAll()
package jobmgr

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

var ErrNotRunning = errors.New("job not running")

// Job is a running unit of work.
type Job struct {
	Name    string
	Started time.Time
	cancel  context.CancelFunc
	done    chan struct{}
}

// StatusReporter receives lifecycle events, formatted as
//
//	running:cleanup
//	error:cleanup:context deadline exceeded
//	done:cleanup
type StatusReporter func(string)

// Manager starts, stops and tracks jobs. It is safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	jobs     map[string]*Job
	wg       sync.WaitGroup
	reporter StatusReporter
}

// NewManager returns a Manager. reporter may be nil.
func NewManager(reporter StatusReporter) *Manager {
	return &Manager{
		jobs:     make(map[string]*Job),
		reporter: reporter,
	}
}

// StartAsync runs runner in its own goroutine under a context derived from
// parent. Names are unique among running jobs. The job is forgotten once
// runner returns.
func (m *Manager) StartAsync(parent context.Context, name string, runner func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(parent)
	job := &Job{Name: name, Started: time.Now(), cancel: cancel, done: make(chan struct{})}

	m.mu.Lock()
	if _, exists := m.jobs[name]; exists {
		m.mu.Unlock()
		cancel()
		return fmt.Errorf("job %q is already running", name)
	}
	m.jobs[name] = job
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		defer close(job.done)
		defer cancel()

		m.report("running:" + name)
		if err := runner(ctx); err != nil && !errors.Is(err, context.Canceled) {
			m.report("error:" + name + ":" + err.Error())
		} else {
			m.report("done:" + name)
		}

		m.mu.Lock()
		if m.jobs[name] == job {
			delete(m.jobs, name)
		}
		m.mu.Unlock()
	}()
	return nil
}

// StartPeriodic runs tick every interval until the job is stopped or parent
// is done. A failing tick is reported and does not end the job.
func (m *Manager) StartPeriodic(parent context.Context, name string, interval time.Duration, tick func(ctx context.Context) error) error {
	if interval <= 0 {
		return fmt.Errorf("job %q: interval must be positive, got %s", name, interval)
	}
	return m.StartAsync(parent, name, func(ctx context.Context) error {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				if err := tick(ctx); err != nil {
					m.report("error:" + name + ":" + err.Error())
				}
			}
		}
	})
}

// Stop cancels a running job and waits for it to return.
func (m *Manager) Stop(name string) error {
	m.mu.Lock()
	job, ok := m.jobs[name]
	if ok {
		delete(m.jobs, name)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %q", ErrNotRunning, name)
	}
	job.cancel()
	<-job.done
	return nil
}

// StopAll cancels every job and waits for all of them.
func (m *Manager) StopAll() {
	m.mu.Lock()
	for name, job := range m.jobs {
		job.cancel()
		delete(m.jobs, name)
	}
	m.mu.Unlock()
	m.wg.Wait()
}

// List returns the running job names, sorted.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.jobs))
	for k := range m.jobs {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Status is a one-line summary such as "Running jobs: cleanup, gateway".
func (m *Manager) Status() string {
	active := m.List()
	if len(active) == 0 {
		return "No jobs are running."
	}
	return "Running jobs: " + strings.Join(active, ", ")
}

func (m *Manager) report(s string) {
	if m.reporter != nil {
		m.reporter(s)
	}
}

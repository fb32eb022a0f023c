// Package lifecycle coordinates background services and their shutdown.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Manager hands out service handles and broadcasts shutdown to them
type Manager struct {
	wg       sync.WaitGroup
	mu       sync.Mutex
	services map[string]bool
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager creates a manager. A nil logger uses slog.Default().
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		services: make(map[string]bool),
		logger:   logger,
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m
}

// NewServiceHandle registers a service under a unique name
func (m *Manager) NewServiceHandle(name string) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.services[name] {
		return nil, fmt.Errorf("lifecycle: service %q already registered", name)
	}
	m.services[name] = true
	m.wg.Add(1)
	m.logger.Debug("Service registered", slog.String("service", name))

	return &Handle{
		ctx: m.ctx,
		Close: func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if _, exists := m.services[name]; !exists {
				return
			}
			delete(m.services, name)
			m.wg.Done()
		},
	}, nil
}

// Go registers name and runs fn in its own goroutine, closing the handle
// when fn returns.
func (m *Manager) Go(name string, fn func(h *Handle)) error {
	h, err := m.NewServiceHandle(name)
	if err != nil {
		return err
	}
	go func() {
		defer h.Close()
		fn(h)
	}()
	return nil
}

// Shutdown broadcasts cancellation to every handle
func (m *Manager) Shutdown() {
	m.logger.Info("Broadcasting shutdown")
	m.cancel()
}

// WaitWithTimeout waits for all services, returning the names of those
// still running when the timeout expires.
func (m *Manager) WaitWithTimeout(timeout time.Duration) []string {
	doneChan := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(doneChan)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-doneChan:
		return nil
	case <-timer.C:
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.remainingServices()
	}
}

func (m *Manager) remainingServices() []string {
	remaining := make([]string, 0, len(m.services))
	for name := range m.services {
		remaining = append(remaining, name)
	}
	sort.Strings(remaining)
	return remaining
}

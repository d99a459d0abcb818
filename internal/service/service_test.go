// SPDX-FileCopyrightText: 2026 The smpart Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeService records lifecycle calls. Which interfaces it exposes is
// controlled per test by wrapping it.
type fakeService struct {
	mu sync.Mutex

	name    string
	initErr error
	runErr  error
	inits   int
	order   *[]string // shared shutdown order log
}

func (f *fakeService) Name() string { return f.name }

func (f *fakeService) Init() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inits++
	return f.initErr
}

func (f *fakeService) Run(ctx context.Context) error {
	if f.runErr != nil {
		return f.runErr
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeService) Shutdown() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.order != nil {
		*f.order = append(*f.order, f.name)
	}
	return nil
}

func TestInit(t *testing.T) {
	a := &fakeService{name: "a"}
	b := &fakeService{name: "b"}

	err := Init(nil, []Service{a, b})
	require.NoError(t, err)
	assert.Equal(t, 1, a.inits)
	assert.Equal(t, 1, b.inits)
}

func TestInitFailureShutsDownInReverse(t *testing.T) {
	var order []string
	a := &fakeService{name: "a", order: &order}
	b := &fakeService{name: "b", order: &order}
	bad := &fakeService{name: "bad", initErr: errors.New("boom")}

	err := Init(nil, []Service{a, b, bad})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
	assert.Equal(t, []string{"b", "a"}, order, "initialized services shut down in reverse")
}

func TestRunStopsGroupOnFirstReturn(t *testing.T) {
	failing := &fakeService{name: "failing", runErr: errors.New("crashed")}
	blocking := &fakeService{name: "blocking"}

	done := make(chan error, 1)
	go func() {
		done <- Run(context.Background(), nil, []Service{blocking, failing})
	}()

	select {
	case err := <-done:
		assert.ErrorContains(t, err, "crashed")
	case <-time.After(5 * time.Second):
		t.Fatal("run group did not unwind after a service failed")
	}
}

func TestRunHonorsOuterContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	blocking := &fakeService{name: "blocking"}

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, nil, []Service{blocking})
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("run group ignored outer context cancellation")
	}
}

func TestSignalHandler(t *testing.T) {
	sh := NewSignalHandler(nil, syscall.SIGUSR1)
	assert.Equal(t, "signal-handler", sh.Name())

	done := make(chan error, 1)
	go func() {
		done <- sh.Run(context.Background())
	}()

	// give Run a moment to install the notifier
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGUSR1))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("signal handler did not return on signal")
	}
}

func TestSignalHandlerContextDone(t *testing.T) {
	sh := NewSignalHandler(nil, syscall.SIGUSR2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- sh.Run(ctx)
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("signal handler did not return on context cancellation")
	}
}

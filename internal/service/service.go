// SPDX-FileCopyrightText: 2026 The smpart Authors
// SPDX-License-Identifier: Apache-2.0

// Package service defines the lifecycle contract shared by the long-running
// parts of the process and the helpers that initialize and run them.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/oklog/run"
)

type Service interface {
	// Name returns the name of the service
	Name() string
}

// Initializer is implemented by services that need a setup step before Run.
type Initializer interface {
	Service
	Init() error
}

// Runner is implemented by services that run in the background. Run is
// expected to block until ctx is done.
type Runner interface {
	Service
	Run(ctx context.Context) error
}

// Shutdowner is implemented by services that need cleanup on termination.
type Shutdowner interface {
	Service
	Shutdown() error
}

// Init initializes all services that implement Initializer, in order. On
// failure, services already initialized are shut down in reverse.
func Init(logger *slog.Logger, services []Service) error {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	var retErr error
	initialized := make([]Service, 0, len(services))

	for _, s := range services {
		srv, ok := s.(Initializer)
		if !ok {
			continue
		}

		logger.Info("Initializing service", "service", s.Name())
		if err := srv.Init(); err != nil {
			retErr = fmt.Errorf("failed to initialize service %s: %w", s.Name(), err)
			break
		}
		initialized = append(initialized, s)
	}

	if retErr == nil {
		return nil
	}

	for i := len(initialized) - 1; i >= 0; i-- {
		srv, ok := initialized[i].(Shutdowner)
		if !ok {
			continue
		}
		if err := srv.Shutdown(); err != nil {
			logger.Error("failed to shutdown service", "service", initialized[i].Name(), "error", err)
		}
	}
	return retErr
}

// Run runs all services that implement Runner in a single run group. The
// first service to return cancels all others; services implementing
// Shutdowner are shut down as their run function is interrupted.
func Run(outer context.Context, logger *slog.Logger, services []Service) error {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	ctx, cancel := context.WithCancel(outer)
	defer cancel()

	var g run.Group
	for _, s := range services {
		runner, ok := s.(Runner)
		if !ok {
			continue
		}

		svc := s
		r := runner
		g.Add(
			func() error {
				logger.Info("Running service", "service", svc.Name())
				return r.Run(ctx)
			},
			func(err error) {
				cancel()
				if err != nil {
					logger.Warn("service terminated", "service", svc.Name(), "reason", err)
				}

				shutdowner, ok := svc.(Shutdowner)
				if !ok {
					return
				}
				logger.Info("shutting down", "service", svc.Name())
				if shutdownErr := shutdowner.Shutdown(); shutdownErr != nil {
					logger.Warn("service shutdown failed", "service", svc.Name(), "error", shutdownErr)
				}
			},
		)
	}

	return g.Run()
}

// SPDX-FileCopyrightText: 2026 The smpart Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/smpart/smpart/internal/service"
)

// Checker reports whether the partitioning runtime is healthy. A non-nil
// error means mask operations have degraded to no-ops.
type Checker interface {
	Err() error
}

type health struct {
	api     APIService
	checker Checker
}

var (
	_ service.Service     = (*health)(nil)
	_ service.Initializer = (*health)(nil)
)

// NewHealth creates a service exposing the controller state on /health.
func NewHealth(api APIService, checker Checker) *health {
	return &health{
		api:     api,
		checker: checker,
	}
}

func (h *health) Name() string {
	return "health"
}

func (h *health) Init() error {
	return h.api.Register("/health", "Health", "Partitioning controller state", h.handler())
}

func (h *health) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		response := map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}

		if err := h.checker.Err(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			response["status"] = "error"
			response["error"] = err.Error()
		} else {
			w.WriteHeader(http.StatusOK)
		}

		_ = json.NewEncoder(w).Encode(response)
	})
}

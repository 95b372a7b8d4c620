// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Frontclaw Contributors

// Package metrics exposes the prometheus instruments for the orchestration
// core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the core's instruments.
type Metrics struct {
	SyscallsTotal *prometheus.CounterVec
	HookDuration  *prometheus.HistogramVec
	ChatRequests  *prometheus.CounterVec
}

// New registers the instruments on reg and returns them. Passing
// prometheus.DefaultRegisterer is the usual call.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SyscallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frontclaw",
			Name:      "syscalls_total",
			Help:      "System calls dispatched, by plugin, method, and outcome.",
		}, []string{"plugin", "method", "outcome"}),
		HookDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "frontclaw",
			Name:      "hook_duration_seconds",
			Help:      "Plugin hook call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"plugin", "hook"}),
		ChatRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frontclaw",
			Name:      "chat_requests_total",
			Help:      "Chat requests, by terminal outcome.",
		}, []string{"outcome"}),
	}

	if reg != nil {
		reg.MustRegister(m.SyscallsTotal, m.HookDuration, m.ChatRequests)
	}
	return m
}

// Nop returns unregistered instruments for tests and callers that do not
// scrape.
func Nop() *Metrics {
	return New(nil)
}

// Package testingx provides testing helpers and fakes for usagemon packages.
//
// # Overview
//
// testingx contains small utilities to speed up unit tests: a mock logger
// with capture capabilities and helpers that lay out fake cgroup and procfs
// trees in a temporary directory.
//
// # Features
//
//   - MockLogger with in-memory capture and assertions
//   - File tree helpers for cgroup and /proc fixtures
//   - Error assertion helpers for core/errors codes
//
// # Usage
//
//	logger := testingx.NewMockLogger(t)
//	root := testingx.WriteFiles(t, map[string]string{
//		"sys/fs/cgroup/cpu.stat": "usage_usec 1000\n",
//	})
//
// # Layer
//
// testingx is an auxiliary package for tests only and depends on core.
//
// # Stability
//
// Stable since v0.1.0.
package testingx

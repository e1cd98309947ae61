// Package k8sx provides Kubernetes ConfigMap loading and watching.
//
// # Overview
//
// k8sx offers a small API surface to read and watch ConfigMaps that carry
// dynamic configuration. It hides client-go behind a watcher that accepts
// any kubernetes.Interface, so tests run against the client-go fake.
//
// # Features
//
//   - ConfigMap Load with NotFound treated as empty
//   - Background watch with automatic reopen after failures
//   - In-cluster client with KUBECONFIG fallback
//   - Context cancellation and resource-safe stop semantics
//
// # Usage
//
//	err := k8sx.WatchConfigMap(ctx, "usagemon-config", k8sx.WatchOptions{Namespace: "shop", Logger: logger}, func(data map[string]string) {
//		// apply updates
//	})
//
// # Layer
//
// k8sx is an auxiliary module and depends on core only.
//
// # Stability
//
// Experimental until v0.1.0.
package k8sx

// Package internal provides internal implementation for the servicex package.
package internal

// BuildTime is the release timestamp (YYYYMMDDHHMMSS), set at link time:
//
//	go build -ldflags "-X go.eggybyte.com/usagemon/servicex/internal.BuildTime=20251030132945"
//
// It is logged at service startup to identify the running build.
var BuildTime = "unknown"

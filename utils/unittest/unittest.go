// Package unittest holds fixtures shared by the package tests.
package unittest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// RequireReturnsBefore requires that f returns before duration expires.
func RequireReturnsBefore(t testing.TB, f func(), duration time.Duration, msg string) {
	done := make(chan struct{})
	go func() {
		f()
		close(done)
	}()

	select {
	case <-time.After(duration):
		require.Fail(t, "function did not return in time", msg)
	case <-done:
	}
}

// RequireClosedBefore requires that ch is closed before duration expires.
func RequireClosedBefore[T any](t testing.TB, ch <-chan T, duration time.Duration, msg string) {
	timeout := time.After(duration)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-timeout:
			require.Fail(t, "channel was not closed in time", msg)
			return
		}
	}
}

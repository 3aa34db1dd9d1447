// SPDX-License-Identifier: MIT

package api

import "net/http"

// workerPool bounds in-flight request handling to n concurrent requests,
// standing in for spec.md §5's configurable worker pool on top of Go's
// goroutine-per-request net/http model.
func workerPool(n int) func(http.Handler) http.Handler {
	sem := make(chan struct{}, n)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sem <- struct{}{}
			defer func() { <-sem }()
			next.ServeHTTP(w, r)
		})
	}
}

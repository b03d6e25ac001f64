// Package providers holds the samber/do constructors for every long-lived
// service. Each service that owns goroutines or files is wrapped in a
// handle whose Shutdown releases them when the injector shuts down.
package providers

import "time"

// shutdownTimeout bounds how long a single handle may take to stop.
const shutdownTimeout = 30 * time.Second

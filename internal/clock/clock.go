// Package clock provides the monotonic and wall-clock time sources used
// throughout gossipcore. All expiry comparisons use wall-ms (NowMs);
// all failure-detector inter-arrival statistics use monotonic ns
// (NowNs). Both are substitutable so tests never depend on real time.
package clock

import "time"

// Clock is the time source every gossipcore component depends on
// instead of calling time.Now directly.
type Clock interface {
	// NowNs returns a monotonic instant in nanoseconds. Only
	// differences between two NowNs calls are meaningful.
	NowNs() int64
	// NowMs returns the current wall-clock time in milliseconds since
	// the Unix epoch.
	NowMs() int64
}

// System is the production Clock, backed by the Go runtime.
type System struct{}

func (System) NowNs() int64 { return time.Now().UnixNano() }
func (System) NowMs() int64 { return time.Now().UnixMilli() }

package gossipcore

import (
	"errors"
	"fmt"

	cerrdefs "github.com/containerd/errdefs"
)

// ErrNotRunning is returned by API-surface calls made before Start or
// after Stop.
var ErrNotRunning = errors.New("gossipcore: engine is not running")

// InvalidPayloadError reports a null field or wrong payload subtype in
// a gossip API call.
type InvalidPayloadError struct {
	Field  string
	Reason string
}

func (e *InvalidPayloadError) Error() string {
	return fmt.Sprintf("gossipcore: invalid payload: %s: %s", e.Field, e.Reason)
}

// VoteFailedError reports that a LockManager could not establish
// consensus on a key.
type VoteFailedError struct {
	Key    string
	Reason string
}

func (e *VoteFailedError) Error() string {
	return fmt.Sprintf("gossipcore: vote failed for key %q: %s", e.Key, e.Reason)
}

// NewTransportUnavailableError wraps cause as an unrecoverable send-path
// failure for endpoint. The result satisfies errors.Is against
// errdefs.ErrUnavailable so callers that classify errors the
// containerd/errdefs way get consistent treatment.
func NewTransportUnavailableError(endpoint Endpoint, cause error) error {
	return fmt.Errorf("gossipcore: transport unavailable for %s: %w: %w", endpoint, cerrdefs.ErrUnavailable, cause)
}

package ids

import "github.com/segmentio/ksuid"

// New returns a sortable unique identifier. Used for broadcast origin IDs
// so an instance can recognize and skip its own events.
func New() string {
	return ksuid.New().String()
}

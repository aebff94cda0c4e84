package memory

import "context"

// StaticDirectory resolves display names from a fixed map, typically loaded
// from configuration. Unknown ids resolve to the empty string.
type StaticDirectory map[string]string

func (d StaticDirectory) DisplayName(_ context.Context, participantID string) (string, error) {
	return d[participantID], nil
}

package pose

import "context"

// Source yields poses on demand. Estimate must not block indefinitely:
// ok=false means no person was detected in the current sample, which is an
// expected outcome. A source that has run out of samples returns io.EOF.
type Source interface {
	Estimate(ctx context.Context) (p Pose, ok bool, err error)
}

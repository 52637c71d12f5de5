package analysis

// Signal is the outcome of analyzing a single frame. A failed frame
// carries Err and contributes its neutral value to the aggregate.
type Signal[T any] struct {
	Value T
	Err   error
}

// Or returns the value, or fallback when the frame failed.
func (s Signal[T]) Or(fallback T) T {
	if s.Err != nil {
		return fallback
	}
	return s.Value
}

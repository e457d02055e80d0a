package fetcher

// Result represents the outcome of a fetch operation.
// It's designed to be sent through channels from worker goroutines
// to a coordinator that collects them in input order.
type Result struct {
	// Index is the position of the fetcher in the input set.
	Index int

	// Key is the Redis-compatible hierarchical key for this fetcher
	Key string

	// Record is the normalized entity.
	Record Record

	// Error contains any error that occurred during the fetch operation.
	// If Error is not nil, Record should be considered invalid.
	Error error
}

// OK reports whether the fetch succeeded.
func (r Result) OK() bool {
	return r.Error == nil
}

// Package result provides the discriminated success/failure union returned by
// every application-service port method. Expected business failures travel as
// the error arm with a domain-error code; transports map them to status codes.
package result

// Result holds either a value or an error, never both.
type Result[T any] struct {
	value T
	err   error
	ok    bool
}

// Ok wraps a successful value.
func Ok[T any](value T) Result[T] {
	return Result[T]{value: value, ok: true}
}

// Err wraps a failure.
func Err[T any](err error) Result[T] {
	return Result[T]{err: err}
}

// From lifts a conventional (value, error) pair into a Result.
func From[T any](value T, err error) Result[T] {
	if err != nil {
		return Err[T](err)
	}
	return Ok(value)
}

// OK reports whether the result carries a value.
func (r Result[T]) OK() bool { return r.ok }

// Value returns the success value, or the zero value on failure.
func (r Result[T]) Value() T { return r.value }

// Err returns the failure, or nil on success.
func (r Result[T]) Err() error { return r.err }

// Unwrap converts back to the conventional pair.
func (r Result[T]) Unwrap() (T, error) { return r.value, r.err }

// MapErr transforms the error arm, leaving successes untouched. Services use
// it to translate infrastructure errors at the port boundary.
func (r Result[T]) MapErr(fn func(error) error) Result[T] {
	if r.ok || fn == nil {
		return r
	}
	return Err[T](fn(r.err))
}

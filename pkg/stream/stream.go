// Package stream provides helpers over the iterator sequences returned by
// the pagination engines. Sequences are lazy, finite and forward-only;
// breaking out of a range loop is the caller's cancellation point.
package stream

import "iter"

// Collect drains a sequence into a slice. It stops at the first error and
// returns the values yielded before it.
func Collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	var out []T
	for v, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Filter yields only the values matching keep. Errors pass through and
// terminate the sequence, as they do at the source.
func Filter[T any](seq iter.Seq2[T, error], keep func(T) bool) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for v, err := range seq {
			if err != nil {
				yield(v, err)
				return
			}
			if !keep(v) {
				continue
			}
			if !yield(v, nil) {
				return
			}
		}
	}
}

// Take yields at most n values from the sequence.
func Take[T any](seq iter.Seq2[T, error], n int) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		if n <= 0 {
			return
		}
		seen := 0
		for v, err := range seq {
			if err != nil {
				yield(v, err)
				return
			}
			if !yield(v, nil) {
				return
			}
			seen++
			if seen >= n {
				return
			}
		}
	}
}

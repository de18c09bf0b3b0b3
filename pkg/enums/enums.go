// Package enums holds the closed string sets persisted in order, payment and
// notification rows. Every set rejects values outside its declared members.
package enums

import (
	"fmt"
	"slices"
)

type closedSet[T ~string] []T

func (s closedSet[T]) has(v T) bool {
	return slices.Contains(s, v)
}

func (s closedSet[T]) parse(kind, raw string) (T, error) {
	if v := T(raw); s.has(v) {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, raw)
}

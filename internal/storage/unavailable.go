package storage

import (
	"context"
	"fmt"
)

// unavailableBackend stands in for a durable backend that could not be
// opened. Every Load and Save reports the open error so the seen-set stays
// degraded, and nothing is written over the unopened store.
type unavailableBackend struct {
	name  string
	cause error
}

// NewUnavailableBackend returns a Backend that always fails with cause.
func NewUnavailableBackend(name string, cause error) Backend {
	return &unavailableBackend{name: name, cause: cause}
}

func (u *unavailableBackend) Name() string { return u.name }

func (u *unavailableBackend) Load(context.Context) (State, error) {
	return State{}, u.err()
}

func (u *unavailableBackend) Save(context.Context, State) error {
	return u.err()
}

func (u *unavailableBackend) Close() error { return nil }

func (u *unavailableBackend) err() error {
	return fmt.Errorf("%s storage unavailable: %w", u.name, u.cause)
}

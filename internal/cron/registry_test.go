package cron

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryKeepsRegistrationOrder(t *testing.T) {
	reconcile := &stubJob{name: "payment-reconcile"}
	retention := &stubJob{name: "outbox-retention"}
	registry := NewRegistry(reconcile, nil)
	registry.RegisterEvery(retention, 24*time.Hour)

	entries := registry.Entries()
	require.Len(t, entries, 2)
	require.Equal(t, Entry{Job: reconcile}, entries[0])
	require.Equal(t, Entry{Job: retention, Every: 24 * time.Hour}, entries[1])

	entries[0].Job = nil
	require.NotNil(t, registry.Jobs()[0], "internal slice leaked")
}

func TestRegistryClampsNegativeCadence(t *testing.T) {
	registry := NewRegistry()
	registry.RegisterEvery(&stubJob{name: "x"}, -time.Minute)
	require.Zero(t, registry.Entries()[0].Every)
}

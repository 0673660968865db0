package events

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishDeliversInOrder(t *testing.T) {
	b := New()
	var got []Type
	b.Subscribe(func(e Event) { got = append(got, e.Type) })
	b.Subscribe(func(e Event) { got = append(got, e.Type) })

	b.Publish(Event{Type: TypeSpilled})

	require.Equal(t, []Type{TypeSpilled, TypeSpilled}, got)
}

func TestPublishNoSubscribers(t *testing.T) {
	b := New()
	require.NotPanics(t, func() { b.Publish(Event{Type: TypeHeartbeatSent}) })
}

func TestHandlerPanicDoesNotStopOthers(t *testing.T) {
	b := New()
	called := false
	b.Subscribe(func(Event) { panic("boom") })
	b.Subscribe(func(Event) { called = true })

	require.NotPanics(t, func() { b.Publish(Event{Type: TypeLeafApplied}) })
	require.True(t, called)
}

func TestGetType(t *testing.T) {
	require.Equal(t, "leaf_applied", Event{Type: TypeLeafApplied}.GetType())
}

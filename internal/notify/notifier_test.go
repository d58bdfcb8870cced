package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSender struct {
	name string
	sent []Notification
	err  error
}

func (c *captureSender) Send(ctx context.Context, n Notification) error {
	c.sent = append(c.sent, n)
	return c.err
}

func (c *captureSender) Name() string { return c.name }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifierFiltersEvents(t *testing.T) {
	s := &captureSender{name: "capture"}
	n := NewNotifier([]Sender{s}, []string{EventError}, testLogger())

	require.NoError(t, n.Notify(context.Background(), EventPositionAcquired, "opened", "details"))
	require.NoError(t, n.Notify(context.Background(), EventError, "boom", "details"))

	require.Len(t, s.sent, 1)
	assert.Equal(t, EventError, s.sent[0].Event)
	assert.Equal(t, "boom", s.sent[0].Title)
}

func TestNotifierEmptyFilterAllowsAll(t *testing.T) {
	s := &captureSender{name: "capture"}
	n := NewNotifier([]Sender{s}, nil, testLogger())

	require.NoError(t, n.Notify(context.Background(), EventPositionClosed, "closed", "details"))
	require.Len(t, s.sent, 1)
}

func TestNotifierCollectsSenderFailures(t *testing.T) {
	bad := &captureSender{name: "bad", err: errors.New("http 500")}
	good := &captureSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, testLogger())

	err := n.Notify(context.Background(), EventError, "boom", "details")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")

	// One failing sender must not block the others.
	require.Len(t, good.sent, 1)
}

func TestDiscordEventColors(t *testing.T) {
	assert.Equal(t, 0xe74c3c, eventColor(EventError))
	assert.Equal(t, 0xe74c3c, eventColor(EventFollowupDegraded))
	assert.Equal(t, 0xe67e22, eventColor(EventProtocolDisconnected))
	assert.Equal(t, 0x2ecc71, eventColor(EventPositionClosed))
	assert.Equal(t, 0x3498db, eventColor(EventPositionAcquired))
}

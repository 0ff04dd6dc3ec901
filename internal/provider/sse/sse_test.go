package sse

import (
	"errors"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, body string) []Event {
	t.Helper()
	var out []Event
	for ev, err := range Events(strings.NewReader(body)) {
		require.NoError(t, err)
		out = append(out, ev)
	}
	return out
}

func TestEventsDataOnly(t *testing.T) {
	body := "data: {\"a\":1}\n\ndata: {\"a\":2}\n\ndata: [DONE]\n\n"
	events := collect(t, body)

	require.Len(t, events, 3)
	assert.Equal(t, `{"a":1}`, events[0].Data)
	assert.Equal(t, `{"a":2}`, events[1].Data)
	assert.Equal(t, "[DONE]", events[2].Data)
	assert.Empty(t, events[0].Name)
}

func TestEventsNamedAndComments(t *testing.T) {
	body := ": ping\nevent: content_block_delta\ndata: one\ndata: two\n\nevent: message_stop\ndata: {}\n"
	events := collect(t, body)

	require.Len(t, events, 2)
	assert.Equal(t, Event{Name: "content_block_delta", Data: "one\ntwo"}, events[0])
	assert.Equal(t, Event{Name: "message_stop", Data: "{}"}, events[1])
}

func TestEventsSkipsEmptyBlocks(t *testing.T) {
	events := collect(t, "event: ping\n\n\n\ndata:x\n\n")
	require.Len(t, events, 1)
	assert.Equal(t, "x", events[0].Data)
	assert.Empty(t, events[0].Name)
}

func TestEventsStopsWhenConsumerBreaks(t *testing.T) {
	body := "data: 1\n\ndata: 2\n\ndata: 3\n\n"
	var seen []string
	for ev, err := range Events(strings.NewReader(body)) {
		require.NoError(t, err)
		seen = append(seen, ev.Data)
		if len(seen) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"1", "2"}, seen)
}

func TestEventsReadError(t *testing.T) {
	boom := errors.New("connection reset")

	var gotErr error
	for _, err := range Events(iotest.ErrReader(boom)) {
		if err != nil {
			gotErr = err
		}
	}
	assert.ErrorIs(t, gotErr, boom)
}

package workflow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

const scenarioStream = "data: {\"node_type\":\"Message\",\"content\":\"{\\\"result\\\":\\\"You gain favor\\\"}\",\"node_is_finish\":true}\n" +
	"data: not-json\n" +
	"event: Message\n" +
	": keepalive\n" +
	"data: {\"node_type\":\"WorkflowOutput\",\"content\":\"{\\\"newstory\\\":\\\"A new choice appears\\\",\\\"choose1\\\":\\\"Flee\\\",\\\"choose2\\\":\\\"Fight\\\"}\"}\n" +
	"data: [DONE]\n"

func collect(t *testing.T, d *Decoder, chunks ...string) []Event {
	t.Helper()
	var out []Event
	for _, c := range chunks {
		out = append(out, d.Feed([]byte(c))...)
	}
	return append(out, d.Flush()...)
}

func TestDecoder_Scenario(t *testing.T) {
	events := collect(t, NewDecoder(discard), scenarioStream)
	require.Len(t, events, 2)

	assert.Equal(t, NodeMessage, events[0].NodeType)
	assert.True(t, events[0].IsFinished)
	assert.Equal(t, `{"result":"You gain favor"}`, events[0].ContentText())
	assert.False(t, events[0].IsStructured())

	assert.Equal(t, NodeWorkflowOutput, events[1].Class())
	assert.Contains(t, events[1].ContentText(), "A new choice appears")
}

func TestDecoder_ChunkBoundaryIndependence(t *testing.T) {
	want := collect(t, NewDecoder(discard), scenarioStream)

	// Every single split point, plus byte-at-a-time delivery
	for i := 0; i <= len(scenarioStream); i++ {
		got := collect(t, NewDecoder(discard), scenarioStream[:i], scenarioStream[i:])
		require.Equal(t, want, got, "split at %d", i)
	}

	var bytewise []string
	for i := 0; i < len(scenarioStream); i++ {
		bytewise = append(bytewise, scenarioStream[i:i+1])
	}
	assert.Equal(t, want, collect(t, NewDecoder(discard), bytewise...))
}

func TestDecoder_MultibyteSplit(t *testing.T) {
	stream := "data: {\"node_type\":\"Message\",\"content\":\"命运之轮\"}\n"
	// Split inside the first multi-byte rune
	cut := strings.Index(stream, "命") + 1
	events := collect(t, NewDecoder(discard), stream[:cut], stream[cut:])
	require.Len(t, events, 1)
	assert.Equal(t, "命运之轮", events[0].ContentText())
}

func TestDecoder_CarriesRemainder(t *testing.T) {
	d := NewDecoder(discard)
	events := d.Feed([]byte("data: {\"node_type\":\"Message\",\"content\":\"a\"}\ndata: {\"node_ty"))
	require.Len(t, events, 1)
	assert.Equal(t, len("data: {\"node_ty"), d.Pending())

	events = d.Feed([]byte("pe\":\"Message\",\"content\":\"b\"}\r\n"))
	require.Len(t, events, 1)
	assert.Equal(t, "b", events[0].ContentText())
	assert.Zero(t, d.Pending())
}

func TestDecoder_FlushUnterminatedLine(t *testing.T) {
	d := NewDecoder(discard)
	assert.Empty(t, d.Feed([]byte(`data: {"node_type":"WorkflowOutput","content":"end-2"}`)))
	events := d.Flush()
	require.Len(t, events, 1)
	assert.Equal(t, "end-2", events[0].ContentText())
	assert.Empty(t, d.Flush())
}

func TestDecoder_IgnoresNoise(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"not json", "data: not-json\n"},
		{"done sentinel", "data: [DONE]\n"},
		{"empty data", "data:\n"},
		{"blank line", "\n"},
		{"event line", "event: Done\n"},
		{"comment", ": ping\n"},
		{"truncated json", "data: {\"node_type\":\"Mess\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Empty(t, collect(t, NewDecoder(discard), tt.line))
		})
	}
}

func TestEvent_Helpers(t *testing.T) {
	tests := []struct {
		name       string
		event      Event
		text       string
		structured bool
		hasError   bool
		class      NodeType
	}{
		{"string content", Event{NodeType: NodeMessage, Content: []byte(`"hello"`)}, "hello", false, false, NodeMessage},
		{"object content", Event{NodeType: "Custom", Content: []byte(`{"newstory":"x"}`)}, `{"newstory":"x"}`, true, false, NodeOther},
		{"null content", Event{Content: []byte(`null`)}, "", false, false, NodeOther},
		{"numeric error", Event{ErrorCode: []byte(`4000`), ErrorMessage: "bad"}, "", false, true, NodeOther},
		{"zero error", Event{ErrorCode: []byte(`0`)}, "", false, false, NodeOther},
		{"string error", Event{ErrorCode: []byte(`"E1"`)}, "", false, true, NodeOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.text, tt.event.ContentText())
			assert.Equal(t, tt.structured, tt.event.IsStructured())
			assert.Equal(t, tt.hasError, tt.event.HasError())
			assert.Equal(t, tt.class, tt.event.Class())
		})
	}
}

type failingReader struct {
	data string
	done bool
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.done {
		return 0, errors.New("connection reset")
	}
	r.done = true
	return copy(p, r.data), nil
}

func TestDecode_ReadFailure(t *testing.T) {
	var got []Event
	err := Decode(context.Background(), &failingReader{data: "data: {\"node_type\":\"Message\",\"content\":\"a\"}\n"}, discard, func(ev Event) error {
		got = append(got, ev)
		return nil
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStreamFailure))
	assert.Len(t, got, 1)
}

func TestDecode_CallbackError(t *testing.T) {
	stop := errors.New("stop")
	err := Decode(context.Background(), strings.NewReader(scenarioStream), discard, func(Event) error {
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.False(t, errors.Is(err, ErrStreamFailure))
}

func TestDecode_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Decode(ctx, strings.NewReader(scenarioStream), discard, func(Event) error { return nil })
	assert.ErrorIs(t, err, ErrStreamFailure)
	assert.ErrorIs(t, err, context.Canceled)
}

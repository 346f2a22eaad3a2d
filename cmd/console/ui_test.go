package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/jwebster45206/fateweaver/internal/handlers"
	"github.com/jwebster45206/fateweaver/pkg/engine"
)

func TestConsoleUI_QuitCancelsOpenStream(t *testing.T) {
	closed := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("event: begin_streaming\ndata: {\"type\":\"begin_streaming\",\"text\":\"...\"}\n\n"))
		w.(http.Flusher).Flush()

		// Hold the exchange open until the client goes away
		<-r.Context().Done()
		close(closed)
	}))
	defer srv.Close()

	api := &apiClient{client: srv.Client(), streamClient: srv.Client(), baseURL: srv.URL}
	m := NewConsoleUI(context.Background(), api, language.Chinese, uuid.Nil)
	m.id = uuid.New()

	msg := m.startAction(handlers.ActionContinue, nil)()
	first, ok := msg.(commandMsg)
	require.True(t, ok, "got %T", msg)
	assert.Equal(t, engine.CmdBeginStreaming, first.cmd.Type)

	m.showQuitModal = true
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("y")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("action stream still open after quit")
	}

	drained := make(chan struct{})
	go func() {
		for range m.events {
		}
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(2 * time.Second):
		t.Fatal("stream goroutine did not exit")
	}
}

func TestConsoleUI_CancelWithoutStream(t *testing.T) {
	m := NewConsoleUI(context.Background(), &apiClient{}, language.English, uuid.Nil)
	m.showQuitModal = true

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	assert.ErrorIs(t, m.ctx.Err(), context.Canceled)
}

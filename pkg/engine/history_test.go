package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildHistoryText(t *testing.T) {
	tests := []struct {
		name    string
		history []HistoryEntry
		window  int
		want    string
	}{
		{
			name: "empty",
			want: "",
		},
		{
			name:    "single entry omits its summary",
			history: []HistoryEntry{{Question: "Q1", Choice: "C1", Summary: "S1"}},
			want:    "题目：Q1\n选择：C1",
		},
		{
			name: "earlier summaries included",
			history: []HistoryEntry{
				{Question: "Q1", Choice: "C1", Summary: "S1"},
				{Question: "Q2", Choice: "C2"},
			},
			want: "题目：Q1\n选择：C1\n结果：S1\n\n题目：Q2\n选择：C2",
		},
		{
			name: "missing fields render as none",
			history: []HistoryEntry{
				{Choice: "C1"},
				{Question: "Q2"},
			},
			want: "题目：无\n选择：C1\n\n题目：Q2\n选择：无",
		},
		{
			name: "zero window falls back to default",
			history: []HistoryEntry{
				{Question: "Q1", Choice: "C1"},
			},
			window: 0,
			want:   "题目：Q1\n选择：C1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildHistoryText(tt.history, tt.window))
		})
	}
}

func TestBuildHistoryText_Window(t *testing.T) {
	var history []HistoryEntry
	for i := 1; i <= 7; i++ {
		history = append(history, HistoryEntry{
			Question: fmt.Sprintf("Q%d", i),
			Choice:   fmt.Sprintf("C%d", i),
			Summary:  fmt.Sprintf("S%d", i),
		})
	}

	got := BuildHistoryText(history, 5)
	assert.NotContains(t, got, "Q1")
	assert.NotContains(t, got, "Q2")
	assert.Contains(t, got, "题目：Q3\n选择：C3\n结果：S3")
	assert.Contains(t, got, "题目：Q7\n选择：C7")
	assert.NotContains(t, got, "S7")

	assert.Equal(t, "题目：Q7\n选择：C7", BuildHistoryText(history, 1))
}

func TestFormatTranscript(t *testing.T) {
	history := []HistoryEntry{
		{Scene: AuthoredRef("scene1"), Question: "You arrive at court.", Choice: "Bow", Summary: "You gain favor"},
		{Scene: AIRef(1), Question: "A new choice appears", Choice: "Flee"},
	}

	want := "[1] scene1\nYou arrive at court.\n> Bow\n= You gain favor\n" +
		"\n[2] AI-1\nA new choice appears\n> Flee\n"
	assert.Equal(t, want, FormatTranscript(history))
	assert.Empty(t, FormatTranscript(nil))
}

func TestSinkFunc_ApplyRoundTrip(t *testing.T) {
	src := NewRecorder()
	src.RenderScene(SceneView{SceneID: "scene1", Text: "t"})
	src.RenderChoices([]string{"a", "b"})
	src.BeginStreaming("…")
	src.AppendStreaming("Hel")
	src.ResetStreaming("Hello")
	src.ShowContinue("go")
	src.ShowWaiting("wait")
	src.ShowEnding(EndingView{ID: "ending1"})
	src.ShowError("oops")

	dst := NewRecorder()
	for _, c := range src.Commands {
		Apply(dst, c)
	}
	assert.Equal(t, src.Commands, dst.Commands)
	assert.Equal(t, "Hello", dst.Streamed())
}

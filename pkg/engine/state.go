package engine

import (
	"fmt"

	"github.com/jwebster45206/fateweaver/pkg/payload"
)

// Phase is the position of a playthrough in the scene state machine
type Phase string

const (
	PhaseAuthoredScene Phase = "authored_scene" // Showing a hand-written key scene
	PhaseAwaitingAI    Phase = "awaiting_ai"    // One workflow exchange in flight or awaiting Continue
	PhaseAIScene       Phase = "ai_scene"       // Showing a generated scene
	PhaseEnding        Phase = "ending"         // Terminal until Restart
	PhaseError         Phase = "error"          // Exchange failed, Retry available
)

const (
	DefaultMaxAIGenerated = 10
	DefaultHistoryWindow  = 5
	DefaultStatValue      = 50
)

// RefKind distinguishes authored scenes from generated turns
type RefKind string

const (
	RefAuthored RefKind = "authored"
	RefAI       RefKind = "ai"
)

// SceneRef identifies the scene a history entry was recorded in
type SceneRef struct {
	Kind    RefKind `json:"kind"`
	SceneID string  `json:"scene_id,omitempty"` // Set for authored scenes
	AITurn  int     `json:"ai_turn,omitempty"`  // AI turns since the last authored scene
}

func AuthoredRef(id string) SceneRef {
	return SceneRef{Kind: RefAuthored, SceneID: id}
}

func AIRef(turn int) SceneRef {
	return SceneRef{Kind: RefAI, AITurn: turn}
}

func (r SceneRef) String() string {
	if r.Kind == RefAI {
		return fmt.Sprintf("AI-%d", r.AITurn)
	}
	return r.SceneID
}

// Stats are the player attributes snapshotted into each history entry
type Stats struct {
	Favor  int `json:"favor"`
	Power  int `json:"power"`
	Wisdom int `json:"wisdom"`
}

func DefaultStats() Stats {
	return Stats{Favor: DefaultStatValue, Power: DefaultStatValue, Wisdom: DefaultStatValue}
}

// HistoryEntry records one player decision.
// Summary starts empty and is filled when the outcome of the turn arrives.
type HistoryEntry struct {
	Scene    SceneRef `json:"scene"`
	Question string   `json:"question"`
	Choice   string   `json:"choice"`
	Summary  string   `json:"summary"`
	Stats    Stats    `json:"stats"`
}

// State is the complete mutable state of one playthrough
type State struct {
	CurrentScene     string         `json:"current_scene"`
	CurrentKeyScene  string         `json:"current_key_scene"` // Last authored scene reached
	AIGeneratedCount int            `json:"ai_generated_count"`
	MaxAIGenerated   int            `json:"max_ai_generated"`
	History          []HistoryEntry `json:"history"`
	Stats            Stats          `json:"stats"`
	Phase            Phase          `json:"phase"`

	// In-flight exchange
	StreamedText      string           `json:"streamed_text,omitempty"` // Raw Message content received so far
	PendingAI         *payload.Content `json:"pending_ai,omitempty"`
	Ready             bool             `json:"ready,omitempty"`
	StreamDone        bool             `json:"stream_done,omitempty"`
	ContinueShown     bool             `json:"continue_shown,omitempty"`
	ContinueRequested bool             `json:"continue_requested,omitempty"`
	FallbackShown     bool             `json:"fallback_shown,omitempty"`

	CurrentAI    *payload.Content `json:"current_ai,omitempty"` // Payload of the AI scene on screen
	EndingID     string           `json:"ending_id,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
}

func newState(startScene string, maxAI int) State {
	return State{
		CurrentScene:    startScene,
		CurrentKeyScene: startScene,
		MaxAIGenerated:  maxAI,
		History:         []HistoryEntry{},
		Stats:           DefaultStats(),
		Phase:           PhaseAuthoredScene,
	}
}

// clone returns a copy that shares no slices with s.
func (s State) clone() State {
	c := s
	c.History = append([]HistoryEntry(nil), s.History...)
	if c.History == nil {
		c.History = []HistoryEntry{}
	}
	if s.PendingAI != nil {
		p := *s.PendingAI
		c.PendingAI = &p
	}
	if s.CurrentAI != nil {
		a := *s.CurrentAI
		c.CurrentAI = &a
	}
	return c
}

func (s *State) clearExchange() {
	s.StreamedText = ""
	s.PendingAI = nil
	s.Ready = false
	s.StreamDone = false
	s.ContinueShown = false
	s.ContinueRequested = false
	s.FallbackShown = false
}

// EmptySummaries counts history entries still waiting for an outcome.
func (s State) EmptySummaries() int {
	n := 0
	for _, h := range s.History {
		if h.Summary == "" {
			n++
		}
	}
	return n
}

package model

type TurnRole string

const (
	RoleUser      TurnRole = "user"
	RoleAssistant TurnRole = "assistant"
)

// Turn is one message in a conversation. Turns are append-only and strictly
// time-ordered within a session.
type Turn struct {
	Role      TurnRole `json:"role"`
	Text      string   `json:"text"`
	ChunkIDs  []string `json:"chunk_ids,omitempty"`
	Timestamp int64    `json:"timestamp"`
}

type SessionState string

const (
	SessionActive SessionState = "active"
	SessionClosed SessionState = "closed"
)

// Feedback is one user rating of an exchange. Entries are append-only;
// nothing in the serving path ever reads them back.
type Feedback struct {
	SessionID         string `json:"session_id,omitempty"`
	UserMessage       string `json:"user_message"`
	AssistantResponse string `json:"assistant_response"`
	Rating            int    `json:"rating"`
	Comments          string `json:"comments,omitempty"`
	Helpful           bool   `json:"helpful"`
	Timestamp         int64  `json:"timestamp"`
}

// Session holds the full turn history of one conversation. Prompt assembly
// applies the token budget as a logical window; the stored history keeps
// every turn until the session expires or is cleared.
type Session struct {
	ID           string       `json:"id"`
	State        SessionState `json:"state"`
	Turns        []Turn       `json:"turns"`
	CreatedAt    int64        `json:"created_at"`
	LastActiveAt int64        `json:"last_active_at"`
}

// Answer is the result of one ask round-trip.
type Answer struct {
	Text        string   `json:"text"`
	Sources     []string `json:"sources,omitempty"`
	ChunkIDs    []string `json:"chunk_ids,omitempty"`
	ContextUsed bool     `json:"context_used"`
	Model       string   `json:"model"`
}

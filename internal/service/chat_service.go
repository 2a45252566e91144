package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/webrag/internal/ai"
	"github.com/xxxsen/webrag/internal/feedback"
	"github.com/xxxsen/webrag/internal/model"
	apperrors "github.com/xxxsen/webrag/internal/pkg/errors"
	"github.com/xxxsen/webrag/internal/prompt"
	"github.com/xxxsen/webrag/internal/responder"
	"github.com/xxxsen/webrag/internal/retriever"
	"github.com/xxxsen/webrag/internal/session"
	"github.com/xxxsen/webrag/internal/store"
)

const (
	NoContextGeneral = "general"
	NoContextDecline = "decline"
)

// ChatService is the single entry point the HTTP surface calls for one ask
// round-trip: retrieve grounding, assemble the prompt, generate, record the
// exchange.
type ChatService struct {
	retriever     *retriever.Retriever
	prompts       *prompt.Assembler
	responder     *responder.Responder
	sessions      *session.Manager
	index         store.VectorStore
	feedback      *feedback.Recorder
	noContextMode string
	suggested     []string
}

func NewChatService(
	ret *retriever.Retriever,
	prompts *prompt.Assembler,
	resp *responder.Responder,
	sessions *session.Manager,
	index store.VectorStore,
	fb *feedback.Recorder,
	noContextMode string,
	suggested []string,
) *ChatService {
	if noContextMode == "" {
		noContextMode = NoContextGeneral
	}
	return &ChatService{
		retriever:     ret,
		prompts:       prompts,
		responder:     resp,
		sessions:      sessions,
		index:         index,
		feedback:      fb,
		noContextMode: noContextMode,
		suggested:     suggested,
	}
}

// Ask answers one user message within a session. Service failures degrade to
// a user-facing answer; the only errors returned are invalid input and a
// question too long to fit the prompt budget.
func (s *ChatService) Ask(ctx context.Context, sessionID, text string) (*model.Answer, error) {
	p, retrieved, err := s.prepare(ctx, sessionID, text)
	if err != nil {
		return nil, err
	}
	if p == nil {
		// Declined for lack of grounding; recorded so the conversation
		// keeps its thread.
		answer := &model.Answer{Text: responder.DeclineAnswer, Model: s.responder.Model()}
		if err := s.sessions.CommitExchange(sessionID, text, answer.Text, nil); err != nil {
			return nil, err
		}
		return answer, nil
	}

	answerText, ok := s.responder.Generate(ctx, p.Messages)
	if !ok {
		// The fallback apology is not committed: a failed round-trip
		// leaves the session exactly as it was.
		return &model.Answer{Text: answerText, Model: s.responder.Model()}, nil
	}
	if err := s.sessions.CommitExchange(sessionID, text, answerText, p.UsedChunkIDs); err != nil {
		return nil, err
	}
	return &model.Answer{
		Text:        answerText,
		Sources:     sourcesFor(retrieved, p.UsedChunkIDs),
		ChunkIDs:    p.UsedChunkIDs,
		ContextUsed: p.ContextUsed,
		Model:       s.responder.Model(),
	}, nil
}

// AskStream is Ask with a fragment stream instead of a single answer. The
// exchange commits only after the final fragment, so a cancelled stream
// leaves no partial turn.
func (s *ChatService) AskStream(ctx context.Context, sessionID, text string) (<-chan ai.Fragment, error) {
	p, _, err := s.prepare(ctx, sessionID, text)
	if err != nil {
		return nil, err
	}
	out := make(chan ai.Fragment)
	if p == nil {
		go func() {
			defer close(out)
			if err := s.sessions.CommitExchange(sessionID, text, responder.DeclineAnswer, nil); err != nil {
				out <- ai.Fragment{Err: err}
				return
			}
			out <- ai.Fragment{Text: responder.DeclineAnswer}
			out <- ai.Fragment{Done: true}
		}()
		return out, nil
	}
	stream, err := s.responder.GenerateStream(ctx, p.Messages)
	if err != nil {
		return nil, err
	}
	go func() {
		defer close(out)
		var full strings.Builder
		for fragment := range stream {
			if fragment.Err != nil {
				out <- fragment
				return
			}
			if fragment.Done {
				if err := s.sessions.CommitExchange(sessionID, text, full.String(), p.UsedChunkIDs); err != nil {
					out <- ai.Fragment{Err: err}
					return
				}
				out <- fragment
				return
			}
			full.WriteString(fragment.Text)
			select {
			case out <- fragment:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// prepare runs retrieval and prompt assembly. A nil prompt with nil error
// means the service should decline for lack of grounding.
func (s *ChatService) prepare(ctx context.Context, sessionID, text string) (*prompt.Prompt, []model.SearchResult, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, nil, apperrors.ErrInvalid
	}
	history := s.sessions.History(sessionID)

	retrieved, err := s.retriever.Retrieve(ctx, trimmed, 0)
	if err != nil {
		// Retrieval trouble degrades to an ungrounded answer; the user
		// still gets a response.
		logutil.GetLogger(ctx).Error("retrieval failed, answering without context",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		retrieved = nil
	}
	if len(retrieved) == 0 && s.noContextMode == NoContextDecline {
		return nil, nil, nil
	}
	p, err := s.prompts.Assemble(history, retrieved, trimmed)
	if err != nil {
		return nil, nil, err
	}
	return p, retrieved, nil
}

// Search exposes raw retrieval results with scores for the search endpoint.
func (s *ChatService) Search(ctx context.Context, query string, k int) ([]model.SearchResult, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil, apperrors.ErrInvalid
	}
	return s.retriever.Retrieve(ctx, trimmed, k)
}

func (s *ChatService) History(sessionID string) []model.Turn {
	return s.sessions.History(sessionID)
}

func (s *ChatService) ClearHistory(sessionID string) {
	s.sessions.Clear(sessionID)
}

func (s *ChatService) Suggested() []string {
	return s.suggested
}

// RecordFeedback validates and persists one user feedback entry. When no
// recorder is configured the entry is dropped with a warning.
func (s *ChatService) RecordFeedback(ctx context.Context, fb model.Feedback) error {
	if fb.Rating < 0 || fb.Rating > 5 {
		return fmt.Errorf("%w: rating must be between 0 and 5", apperrors.ErrInvalid)
	}
	if fb.Rating == 0 && strings.TrimSpace(fb.UserMessage) == "" &&
		strings.TrimSpace(fb.Comments) == "" {
		return fmt.Errorf("%w: empty feedback", apperrors.ErrInvalid)
	}
	if s.feedback == nil {
		logutil.GetLogger(ctx).Warn("feedback recording disabled, entry dropped",
			zap.String("session_id", fb.SessionID),
		)
		return nil
	}
	return s.feedback.Record(ctx, fb)
}

type SystemInfo struct {
	Model       string `json:"model"`
	ChunkCount  int    `json:"chunk_count"`
	Sessions    int    `json:"sessions"`
	StoreOnline bool   `json:"store_online"`
}

func (s *ChatService) Info(ctx context.Context) SystemInfo {
	info := SystemInfo{
		Model:    s.responder.Model(),
		Sessions: s.sessions.Count(),
	}
	count, err := s.index.Count(ctx)
	if err != nil {
		logutil.GetLogger(ctx).Warn("store count failed", zap.Error(err))
		return info
	}
	info.ChunkCount = count
	info.StoreOnline = true
	return info
}

func sourcesFor(retrieved []model.SearchResult, usedChunkIDs []string) []string {
	used := make(map[string]struct{}, len(usedChunkIDs))
	for _, id := range usedChunkIDs {
		used[id] = struct{}{}
	}
	seen := make(map[string]struct{})
	var sources []string
	for _, item := range retrieved {
		if _, ok := used[item.Chunk.ID]; !ok {
			continue
		}
		if _, dup := seen[item.Chunk.SourceURL]; dup {
			continue
		}
		seen[item.Chunk.SourceURL] = struct{}{}
		sources = append(sources, item.Chunk.SourceURL)
	}
	return sources
}

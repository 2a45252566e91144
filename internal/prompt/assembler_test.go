package prompt

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/webrag/internal/ai"
	"github.com/xxxsen/webrag/internal/model"
	apperrors "github.com/xxxsen/webrag/internal/pkg/errors"
	"github.com/xxxsen/webrag/internal/pkg/tokencount"
)

func result(id, source, text string, score float32) model.SearchResult {
	return model.SearchResult{
		Chunk: model.Chunk{ID: id, SourceURL: source, Text: text},
		Score: score,
	}
}

func turn(role model.TurnRole, text string) model.Turn {
	return model.Turn{Role: role, Text: text, Timestamp: time.Now().UnixMilli()}
}

func TestAssemble_BasicShape(t *testing.T) {
	a := NewAssembler(Config{})
	retrieved := []model.SearchResult{
		result("c1", "https://example.org/solar", "Solar panels convert sunlight to power.", 0.9),
	}
	p, err := a.Assemble(nil, retrieved, "How do panels work?")
	require.NoError(t, err)
	require.True(t, p.ContextUsed)
	require.Equal(t, []string{"c1"}, p.UsedChunkIDs)

	require.Equal(t, ai.RoleSystem, p.Messages[0].Role)
	require.Equal(t, ai.RoleSystem, p.Messages[1].Role)
	require.Contains(t, p.Messages[1].Content, "Source: https://example.org/solar")
	require.Contains(t, p.Messages[1].Content, "Solar panels convert sunlight to power.")
	last := p.Messages[len(p.Messages)-1]
	require.Equal(t, ai.RoleUser, last.Role)
	require.Equal(t, "How do panels work?", last.Content)
}

func TestAssemble_NoRetrievedChunks(t *testing.T) {
	a := NewAssembler(Config{})
	p, err := a.Assemble(nil, nil, "Hello there")
	require.NoError(t, err)
	require.False(t, p.ContextUsed)
	require.Empty(t, p.UsedChunkIDs)
	require.Len(t, p.Messages, 2)
}

func TestAssemble_ContextBudgetDropsLowestScore(t *testing.T) {
	big := strings.Repeat("word ", 60)
	a := NewAssembler(Config{ContextBudget: 150})
	retrieved := []model.SearchResult{
		result("top", "https://example.org/1", big, 0.95),
		result("mid", "https://example.org/2", big, 0.85),
		result("low", "https://example.org/3", big, 0.75),
	}
	p, err := a.Assemble(nil, retrieved, "question")
	require.NoError(t, err)
	require.True(t, p.ContextUsed)
	require.Contains(t, p.UsedChunkIDs, "top")
	require.NotContains(t, p.UsedChunkIDs, "low")
}

func TestAssemble_OversizeChunkSkippedNotTerminal(t *testing.T) {
	giant := strings.Repeat("word ", 60)
	a := NewAssembler(Config{ContextBudget: 50})
	retrieved := []model.SearchResult{
		result("giant", "https://example.org/1", giant, 0.95),
		result("small", "https://example.org/2", "Panels last decades.", 0.6),
	}
	p, err := a.Assemble(nil, retrieved, "question")
	require.NoError(t, err)
	require.True(t, p.ContextUsed)
	require.Equal(t, []string{"small"}, p.UsedChunkIDs)
}

func TestAssemble_HistoryEvictsOldestFirst(t *testing.T) {
	filler := strings.Repeat("word ", 40)
	a := NewAssembler(Config{HistoryBudget: 70})
	history := []model.Turn{
		turn(model.RoleUser, "oldest "+filler),
		turn(model.RoleAssistant, "older "+filler),
		turn(model.RoleUser, "recent question"),
		turn(model.RoleAssistant, "recent answer"),
	}
	p, err := a.Assemble(history, nil, "next question")
	require.NoError(t, err)

	var texts []string
	for _, msg := range p.Messages {
		texts = append(texts, msg.Content)
	}
	joined := strings.Join(texts, "|")
	require.Contains(t, joined, "recent question")
	require.Contains(t, joined, "recent answer")
	require.NotContains(t, joined, "oldest")
}

func TestAssemble_HistoryKeepsOrder(t *testing.T) {
	a := NewAssembler(Config{})
	history := []model.Turn{
		turn(model.RoleUser, "first question"),
		turn(model.RoleAssistant, "first answer"),
		turn(model.RoleUser, "second question"),
		turn(model.RoleAssistant, "second answer"),
	}
	p, err := a.Assemble(history, nil, "third question")
	require.NoError(t, err)

	// system, four history turns, current question
	require.Len(t, p.Messages, 6)
	require.Equal(t, "first question", p.Messages[1].Content)
	require.Equal(t, ai.RoleUser, p.Messages[1].Role)
	require.Equal(t, "first answer", p.Messages[2].Content)
	require.Equal(t, ai.RoleAssistant, p.Messages[2].Role)
	require.Equal(t, "second answer", p.Messages[4].Content)
}

func TestAssemble_QuestionTooLong(t *testing.T) {
	a := NewAssembler(Config{MaxInputTokens: 50})
	question := strings.Repeat("word ", 200)
	_, err := a.Assemble(nil, nil, question)
	require.Error(t, err)
	require.ErrorIs(t, err, apperrors.ErrCapacityExceeded)
}

func TestAssemble_TotalNeverExceedsBudget(t *testing.T) {
	maxInput := 300
	a := NewAssembler(Config{MaxInputTokens: maxInput, ContextBudget: 120, HistoryBudget: 80})
	big := strings.Repeat("word ", 50)
	retrieved := []model.SearchResult{
		result("c1", "https://example.org/1", big, 0.9),
		result("c2", "https://example.org/2", big, 0.8),
		result("c3", "https://example.org/3", big, 0.7),
	}
	history := []model.Turn{
		turn(model.RoleUser, big),
		turn(model.RoleAssistant, big),
		turn(model.RoleUser, big),
	}
	p, err := a.Assemble(history, retrieved, "short question")
	require.NoError(t, err)

	total := 0
	for _, msg := range p.Messages {
		total += tokencount.Estimate(msg.Content)
	}
	require.LessOrEqual(t, total, maxInput)
}

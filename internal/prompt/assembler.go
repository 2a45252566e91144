// Package prompt assembles the model input from the system instruction,
// retrieved grounding and conversation history, under a hard token budget.
// Retrieved chunks yield first (lowest score dropped before any history);
// history evicts oldest-first; the latest user message never yields — if it
// cannot fit by itself the question is rejected as too long.
package prompt

import (
	"fmt"
	"strings"

	"github.com/xxxsen/webrag/internal/ai"
	"github.com/xxxsen/webrag/internal/model"
	apperrors "github.com/xxxsen/webrag/internal/pkg/errors"
	"github.com/xxxsen/webrag/internal/pkg/tokencount"
)

const defaultSystemPrompt = `You are an AI assistant answering questions about an organization's published website.
Base your answers on the provided context from the site. Be helpful, accurate and professional.
If the context does not contain the answer, say so clearly instead of guessing.
Cite the source URL when you rely on a passage.`

const contextPreamble = `Use the following passages from the website to answer the user's question.
If the passages do not answer the question completely, say so.`

const (
	DefaultMaxInputTokens = 6000
	DefaultContextBudget  = 2000
	DefaultHistoryBudget  = 1500
)

type Config struct {
	SystemPrompt   string
	MaxInputTokens int
	ContextBudget  int
	HistoryBudget  int
}

type Assembler struct {
	systemPrompt  string
	maxInput      int
	contextBudget int
	historyBudget int
}

func NewAssembler(cfg Config) *Assembler {
	system := strings.TrimSpace(cfg.SystemPrompt)
	if system == "" {
		system = defaultSystemPrompt
	}
	maxInput := cfg.MaxInputTokens
	if maxInput <= 0 {
		maxInput = DefaultMaxInputTokens
	}
	contextBudget := cfg.ContextBudget
	if contextBudget <= 0 {
		contextBudget = DefaultContextBudget
	}
	historyBudget := cfg.HistoryBudget
	if historyBudget <= 0 {
		historyBudget = DefaultHistoryBudget
	}
	return &Assembler{
		systemPrompt:  system,
		maxInput:      maxInput,
		contextBudget: contextBudget,
		historyBudget: historyBudget,
	}
}

// Prompt is an assembled model input plus bookkeeping about what made it in.
type Prompt struct {
	Messages     []ai.Message
	UsedChunkIDs []string
	ContextUsed  bool
}

// Assemble builds the message list for one ask round-trip. retrieved must be
// sorted by descending score, which is what the retriever returns.
func (a *Assembler) Assemble(history []model.Turn, retrieved []model.SearchResult, userText string) (*Prompt, error) {
	systemTokens := tokencount.Estimate(a.systemPrompt)
	questionTokens := tokencount.Estimate(userText)
	available := a.maxInput - systemTokens - questionTokens
	if available < 0 {
		return nil, fmt.Errorf("question of %d tokens does not fit input budget: %w",
			questionTokens, apperrors.ErrCapacityExceeded)
	}

	contextMsg, chunkIDs := a.buildContext(retrieved, minInt(available, a.contextBudget))
	if contextMsg != "" {
		available -= tokencount.Estimate(contextMsg)
	}

	turns := a.selectHistory(history, minInt(available, a.historyBudget))

	messages := make([]ai.Message, 0, len(turns)+3)
	messages = append(messages, ai.Message{Role: ai.RoleSystem, Content: a.systemPrompt})
	if contextMsg != "" {
		messages = append(messages, ai.Message{Role: ai.RoleSystem, Content: contextMsg})
	}
	for _, turn := range turns {
		role := ai.RoleUser
		if turn.Role == model.RoleAssistant {
			role = ai.RoleAssistant
		}
		messages = append(messages, ai.Message{Role: role, Content: turn.Text})
	}
	messages = append(messages, ai.Message{Role: ai.RoleUser, Content: userText})

	return &Prompt{
		Messages:     messages,
		UsedChunkIDs: chunkIDs,
		ContextUsed:  contextMsg != "",
	}, nil
}

// buildContext packs retrieved chunks highest-score-first. A chunk that
// does not fit is dropped rather than ending the scan, so a smaller
// lower-scored chunk can still use the remaining budget.
func (a *Assembler) buildContext(retrieved []model.SearchResult, budget int) (string, []string) {
	if len(retrieved) == 0 || budget <= 0 {
		return "", nil
	}
	preambleTokens := tokencount.Estimate(contextPreamble)
	used := preambleTokens
	var parts []string
	var chunkIDs []string
	for _, item := range retrieved {
		block := fmt.Sprintf("Source: %s\n%s", item.Chunk.SourceURL, item.Chunk.Text)
		blockTokens := tokencount.Estimate(block)
		if used+blockTokens > budget {
			continue
		}
		used += blockTokens
		parts = append(parts, block)
		chunkIDs = append(chunkIDs, item.Chunk.ID)
	}
	if len(parts) == 0 {
		return "", nil
	}
	return contextPreamble + "\n\n" + strings.Join(parts, "\n\n"), chunkIDs
}

// selectHistory keeps the newest turns that fit the budget and returns them
// oldest first, which is the eviction order the conversation contract asks
// for: old turns fall out before recent ones.
func (a *Assembler) selectHistory(history []model.Turn, budget int) []model.Turn {
	if len(history) == 0 || budget <= 0 {
		return nil
	}
	used := 0
	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		turnTokens := tokencount.Estimate(history[i].Text)
		if used+turnTokens > budget {
			break
		}
		used += turnTokens
		start = i
	}
	return history[start:]
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

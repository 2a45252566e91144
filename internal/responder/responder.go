// Package responder wraps the chat-completion provider with the shared
// retry policy. Failures never escape as raw errors on the ask path: the
// caller gets a user-facing fallback answer and the failure class lands in
// the log.
package responder

import (
	"context"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/webrag/internal/ai"
	apperrors "github.com/xxxsen/webrag/internal/pkg/errors"
)

const FallbackAnswer = "I apologize, but I'm experiencing technical difficulties. Please try again later."

// DeclineAnswer is returned when nothing in the index grounds the question
// and the pipeline is configured to decline rather than answer freely.
const DeclineAnswer = "I don't have information about that in the indexed site content, so I'd rather not guess. Try rephrasing, or ask about a topic covered on the site."

type Config struct {
	Model string
	Retry ai.RetryPolicy
}

type Responder struct {
	provider ai.IAIProvider
	model    string
	retry    ai.RetryPolicy
}

func New(provider ai.IAIProvider, cfg Config) *Responder {
	retry := cfg.Retry
	if retry.MaxAttempts <= 0 {
		retry = ai.DefaultRetryPolicy()
	}
	return &Responder{
		provider: provider,
		model:    cfg.Model,
		retry:    retry,
	}
}

func (r *Responder) Model() string {
	return r.model
}

// Generate produces the answer text for an assembled prompt. The returned
// ok flag is false when the provider failed and the text is the fallback
// answer; callers must not record a fallback as a real assistant turn
// grounded in chunks.
func (r *Responder) Generate(ctx context.Context, messages []ai.Message) (string, bool) {
	var answer string
	err := r.retry.Do(ctx, "generate", func(ctx context.Context) error {
		text, err := r.provider.Generate(ctx, r.model, messages)
		if err != nil {
			return err
		}
		if strings.TrimSpace(text) == "" {
			return apperrors.ErrPermanent
		}
		answer = strings.TrimSpace(text)
		return nil
	})
	if err != nil {
		logutil.GetLogger(ctx).Error("generation failed",
			zap.String("model", r.model),
			zap.Bool("transient", apperrors.IsTransient(err)),
			zap.Bool("permanent", apperrors.IsPermanent(err)),
			zap.Error(err),
		)
		return FallbackAnswer, false
	}
	return answer, true
}

// GenerateStream emits the answer as fragments when the provider supports
// streaming, falling back to a single fragment otherwise. The channel is
// closed after a Done fragment; cancelling ctx abandons the stream.
func (r *Responder) GenerateStream(ctx context.Context, messages []ai.Message) (<-chan ai.Fragment, error) {
	if streamer, ok := r.provider.(ai.IStreamProvider); ok {
		return streamer.GenerateStream(ctx, r.model, messages)
	}
	out := make(chan ai.Fragment, 2)
	text, ok := r.Generate(ctx, messages)
	if !ok {
		out <- ai.Fragment{Err: apperrors.ErrUnavailable}
		close(out)
		return out, nil
	}
	out <- ai.Fragment{Text: text}
	out <- ai.Fragment{Done: true}
	close(out)
	return out, nil
}

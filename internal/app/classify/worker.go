package classify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/iris-network/iris/internal/domain"
	"github.com/iris-network/iris/internal/log"
)

// Remote dispatches a classification prompt to a connected worker and
// returns the raw verdict text. The gateway implements it by picking the
// fastest available node.
type Remote interface {
	ClassifyRemote(ctx context.Context, prompt string) (string, error)
}

// Worker offloads classification to the network itself, with a silent
// lexical fallback when no worker answers in time.
type Worker struct {
	remote   Remote
	fallback *Lexical
	logger   zerolog.Logger
}

// NewWorker creates a worker-offload classifier.
func NewWorker(remote Remote, fallback *Lexical) *Worker {
	return &Worker{
		remote:   remote,
		fallback: fallback,
		logger:   log.WithComponent("classify"),
	}
}

// Classify sends the prompt to a worker; any failure falls back to lexical
// scoring without surfacing an error.
func (w *Worker) Classify(ctx context.Context, prompt string, subtaskCount int) domain.Difficulty {
	truncated := prompt
	if len(truncated) > llmPromptLimit {
		truncated = truncated[:llmPromptLimit]
	}

	output, err := w.remote.ClassifyRemote(ctx, truncated)
	if err != nil {
		w.logger.Debug().Err(err).Msg("worker classification failed, using lexical")
		return w.fallback.Classify(ctx, prompt, subtaskCount)
	}
	verdict, err := ParseVerdict(output)
	if err != nil {
		w.logger.Debug().Err(err).Msg("unparseable worker verdict, using lexical")
		return w.fallback.Classify(ctx, prompt, subtaskCount)
	}
	return verdict
}

package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Route selects which response path handles a message.
type Route int

const (
	RouteCasual Route = iota
	RouteSensitive
)

func (r Route) String() string {
	if r == RouteSensitive {
		return "sensitive"
	}
	return "casual"
}

// Completer produces a one-shot model completion.
type Completer interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// sensitiveKeywords short-circuit classification: any substring match routes
// the message to the sensitive path without a model call.
var sensitiveKeywords = []string{
	"depressed", "depression", "anxiety", "anxious", "stressed", "stress",
	"sad", "sadness", "worried", "worry", "panic", "scared", "fear",
	"overwhelmed", "hopeless", "helpless", "help", "support", "crisis",
	"therapy", "counseling", "mental health", "suicide", "suicidal",
	"self-harm", "hurt myself", "end it", "give up", "worthless",
	"lonely", "alone", "isolated", "crying", "tears", "breakdown",
}

// Classifier decides whether a message needs the sensitive response path.
type Classifier struct {
	completer Completer
	model     string
	logger    *slog.Logger
}

func New(completer Completer, model string, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		completer: completer,
		model:     model,
		logger:    logger,
	}
}

// Classify routes the message. Keyword matches are decisive; otherwise the
// router model gives a binary verdict. A failed model call routes sensitive:
// sending a distressed user to the casual path is the worse mistake, so
// "unknown" resolves toward care.
func (c *Classifier) Classify(ctx context.Context, text string) Route {
	lowered := strings.ToLower(text)
	for _, kw := range sensitiveKeywords {
		if strings.Contains(lowered, kw) {
			return RouteSensitive
		}
	}

	prompt := buildVerdictPrompt(text)
	response, err := c.completer.Generate(ctx, c.model, prompt)
	if err != nil {
		c.logger.Warn("routing verdict failed, defaulting to sensitive", "error", err)
		return RouteSensitive
	}

	if strings.Contains(strings.ToUpper(response), "SENSITIVE") {
		return RouteSensitive
	}
	return RouteCasual
}

func buildVerdictPrompt(text string) string {
	return fmt.Sprintf(`Analyze this message for emotional distress or mental health concerns: %q

Respond with only "SENSITIVE" if the message indicates:
- Emotional distress or mental health concerns
- Need for support or help
- Complex personal problems
- Signs of depression, anxiety, or other mental health issues

Respond with only "CASUAL" if the message is:
- General conversation or greetings
- Simple questions about the service
- Small talk or light topics`, text)
}

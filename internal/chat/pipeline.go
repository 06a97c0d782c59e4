package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/havenchat/haven/internal/classifier"
	"github.com/havenchat/haven/internal/profile"
	"github.com/havenchat/haven/internal/responder"
	"github.com/havenchat/haven/internal/storage"
)

// Turn is one message in a conversation, as the UI layer holds it.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// TurnInput is one incoming user message plus the conversation so far.
// History is read-only context; the pipeline never truncates or mutates it.
type TurnInput struct {
	UserID  string
	History []Turn
	Message string
}

// TurnResult is what one completed turn hands back to the caller.
type TurnResult struct {
	Response  string
	Profile   *profile.Profile
	Sensitive bool
}

// ErrorResponse is returned when turn processing fails unrecoverably.
const ErrorResponse = "I'm sorry, I encountered an error. Please try again."

// JournalJobType tags jobs that persist a completed turn to the journal.
const JournalJobType = "journal_turn"

// JournalPayload is the job payload for a journal_turn job.
type JournalPayload struct {
	TurnID      string    `json:"turn_id"`
	UserID      string    `json:"user_id"`
	UserMessage string    `json:"user_message"`
	Response    string    `json:"response"`
	Sensitive   bool      `json:"sensitive"`
	CreatedAt   time.Time `json:"created_at"`
}

// Enqueuer accepts background jobs for later processing.
type Enqueuer interface {
	EnqueueJob(job storage.Job) error
}

// Pipeline runs the per-turn workflow: classify the message, generate a
// response on the selected path, then fold the turn into the user's profile.
// Flow is strictly linear; the profile updater is the only step that writes
// persisted state on the turn path itself.
type Pipeline struct {
	classifier *classifier.Classifier
	responder  *responder.Responder
	profiles   *profile.Manager
	updater    *profile.Updater
	jobs       Enqueuer
	logger     *slog.Logger
}

func NewPipeline(
	cls *classifier.Classifier,
	rsp *responder.Responder,
	profiles *profile.Manager,
	updater *profile.Updater,
	jobs Enqueuer,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		classifier: cls,
		responder:  rsp,
		profiles:   profiles,
		updater:    updater,
		jobs:       jobs,
		logger:     logger,
	}
}

// ProcessTurn runs one full turn. It always returns a usable result: every
// internal failure degrades to a fallback or the generic error response
// instead of surfacing to the user.
func (p *Pipeline) ProcessTurn(ctx context.Context, input TurnInput) (result TurnResult) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("turn processing panicked", "user_id", input.UserID, "panic", r)
			result = TurnResult{Response: ErrorResponse}
		}
	}()

	prof := p.profiles.Load(input.UserID)

	route := p.classifier.Classify(ctx, input.Message)
	p.logger.Debug("message routed", "user_id", input.UserID, "route", route.String())

	history := make([]responder.Message, len(input.History))
	for i, t := range input.History {
		history[i] = responder.Message{Role: t.Role, Content: t.Content}
	}

	response := p.responder.Respond(ctx, route, responder.State{
		Profile: prof,
		History: history,
		Input:   input.Message,
	})

	updated := p.updater.Update(ctx, prof, input.Message, response)

	p.journal(input, response, route)

	return TurnResult{
		Response:  response,
		Profile:   updated,
		Sensitive: route == classifier.RouteSensitive,
	}
}

// journal enqueues a background job recording the completed turn. Best
// effort: a journaling failure never affects the turn result.
func (p *Pipeline) journal(input TurnInput, response string, route classifier.Route) {
	if p.jobs == nil {
		return
	}

	payload, err := json.Marshal(JournalPayload{
		TurnID:      uuid.NewString(),
		UserID:      input.UserID,
		UserMessage: input.Message,
		Response:    response,
		Sensitive:   route == classifier.RouteSensitive,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		p.logger.Warn("encoding journal payload failed", "user_id", input.UserID, "error", err)
		return
	}

	job := storage.Job{
		ID:          uuid.NewString(),
		Type:        JournalJobType,
		PayloadJSON: string(payload),
		MaxAttempts: 3,
	}
	if err := p.jobs.EnqueueJob(job); err != nil {
		p.logger.Warn("enqueueing journal job failed", "user_id", input.UserID, "error", err)
	}
}

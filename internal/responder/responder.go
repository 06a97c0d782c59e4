package responder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/havenchat/haven/internal/classifier"
	"github.com/havenchat/haven/internal/profile"
)

// Context windows per response path. The sensitive path reads a deeper
// history suffix so the model sees more of what led up to the moment.
const (
	casualWindow    = 5
	sensitiveWindow = 10
)

// Message is one prior conversation message as seen by the prompt builder.
type Message struct {
	Role    string
	Content string
}

// State carries everything a response prompt draws on for one turn.
type State struct {
	Profile *profile.Profile
	History []Message
	Input   string
}

// Completer produces a one-shot model completion.
type Completer interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// Responder generates the assistant reply for a turn. Each route uses its
// own model, prompt shape, and fixed fallback text.
type Responder struct {
	completer    Completer
	casualModel  string
	supportModel string
	logger       *slog.Logger
}

func New(completer Completer, casualModel, supportModel string, logger *slog.Logger) *Responder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Responder{
		completer:    completer,
		casualModel:  casualModel,
		supportModel: supportModel,
		logger:       logger,
	}
}

// CasualFallback is returned when the casual-path completion fails.
const CasualFallback = "I'm here to listen and support you. How can I help you today?"

// SensitiveFallback is returned when the sensitive-path completion fails.
// It must stand on its own as a safe reply, so it carries crisis contacts.
const SensitiveFallback = `I understand you're going through something difficult. I'm here to listen and support you.

Would you like to share more about what's on your mind? Sometimes talking through our feelings can help.

If you're in crisis or having thoughts of self-harm, please reach out to:
- iCall (Tata Institute of Social Sciences): +91 9152987821
- AASRA (24/7 Helpline): +91 9820466726
- Or contact your local emergency services: 100`

// Respond generates a reply for the given route. A failed completion never
// propagates: the route's fixed fallback text is substituted and the turn
// continues.
func (r *Responder) Respond(ctx context.Context, route classifier.Route, state State) string {
	var model, prompt, fallback string
	if route == classifier.RouteSensitive {
		model = r.supportModel
		prompt = buildSensitivePrompt(state)
		fallback = SensitiveFallback
	} else {
		model = r.casualModel
		prompt = buildCasualPrompt(state)
		fallback = CasualFallback
	}

	response, err := r.completer.Generate(ctx, model, prompt)
	if err != nil {
		r.logger.Warn("response generation failed, using fallback",
			"route", route.String(), "error", err)
		return fallback
	}

	// A blank completion is a failure too; the reply must never be empty.
	response = strings.TrimSpace(response)
	if response == "" {
		r.logger.Warn("model returned an empty response, using fallback",
			"route", route.String(), "model", model)
		return fallback
	}
	return response
}

// historyWindow renders the last n messages as "role: content" lines.
func historyWindow(history []Message, n int) string {
	if len(history) > n {
		history = history[len(history)-n:]
	}
	lines := make([]string, len(history))
	for i, m := range history {
		lines[i] = fmt.Sprintf("%s: %s", m.Role, m.Content)
	}
	return strings.Join(lines, "\n")
}

func buildCasualPrompt(state State) string {
	p := state.Profile
	return fmt.Sprintf(`You are a friendly, supportive mental health chatbot assistant. Keep your response brief, warm, and helpful.

User Profile Summary: %s
Session Count: %d

Recent Conversation:
%s

User: %s

Respond in a caring, conversational tone. Keep it concise but warm. If this seems like a deeper issue,
gently suggest they share more about how they're feeling.`,
		p.Summary, p.SessionCount, historyWindow(state.History, casualWindow), state.Input)
}

func buildSensitivePrompt(state State) string {
	p := state.Profile

	moodLines := "No mood history available"
	if moods := p.RecentMoods(3); len(moods) > 0 {
		lines := make([]string, len(moods))
		for i, m := range moods {
			lines[i] = fmt.Sprintf("- %s: %s", m.Mood, m.ReasonSummary)
		}
		moodLines = strings.Join(lines, "\n")
	}

	return fmt.Sprintf(`You are an empathetic, professional mental health support chatbot. Your role is to provide emotional support,
active listening, and helpful guidance. You are not a replacement for professional therapy.

IMPORTANT: If someone expresses suicidal thoughts or immediate danger, encourage them to contact emergency services
or a crisis hotline immediately.

User Profile:
- Summary: %s
- Sessions: %d
- Recurring topics: %s
- Effective techniques: %s
- Recent mood patterns:
%s

Conversation History:
%s

User: %s

Guidelines:
- Be empathetic and validate their feelings
- Use active listening techniques
- Ask thoughtful follow-up questions when appropriate
- Suggest coping strategies or techniques that have worked for them before
- Encourage professional help when needed (therapist, counselor, doctor)
- If they mention suicidal thoughts, provide crisis resources
- Keep responses supportive but not overly long

Respond with genuine care and understanding:`,
		p.Summary, p.SessionCount,
		strings.Join(p.RecurringTopics, ", "), strings.Join(p.EffectiveTechniques, ", "),
		moodLines, historyWindow(state.History, sensitiveWindow), state.Input)
}

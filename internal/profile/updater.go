package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// Completer produces a one-shot model completion.
type Completer interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// Updater derives profile changes from each completed conversation turn
// using a model, then persists them. Updating is best-effort: any failure
// leaves the stored profile untouched and the turn still succeeds.
type Updater struct {
	completer Completer
	model     string
	manager   *Manager
	logger    *slog.Logger
}

func NewUpdater(completer Completer, model string, manager *Manager, logger *slog.Logger) *Updater {
	if logger == nil {
		logger = slog.Default()
	}
	return &Updater{
		completer: completer,
		model:     model,
		manager:   manager,
		logger:    logger,
	}
}

// Update asks the profile model to fold the latest turn into the user's
// profile and persists the result. On any failure the original profile is
// returned unchanged and nothing is persisted, so the session count
// increment is lost along with the rest of that turn's insights.
func (u *Updater) Update(ctx context.Context, current *Profile, userMessage, botResponse string) *Profile {
	working := current.Clone()
	working.SessionCount++

	prompt, err := buildUpdatePrompt(working, userMessage, botResponse)
	if err != nil {
		u.logger.Warn("building profile update prompt failed", "user_id", current.UserID, "error", err)
		return current
	}

	response, err := u.completer.Generate(ctx, u.model, prompt)
	if err != nil {
		u.logger.Warn("profile update completion failed", "user_id", current.UserID, "error", err)
		return current
	}

	raw, err := extractJSON(response)
	if err != nil {
		u.logger.Warn("no JSON object in profile update response", "user_id", current.UserID, "error", err)
		return current
	}

	var updated Profile
	if err := json.Unmarshal([]byte(raw), &updated); err != nil {
		u.logger.Warn("decoding profile update response failed", "user_id", current.UserID, "error", err)
		return current
	}

	if updated.UserID == "" {
		updated.UserID = current.UserID
	}
	updated.Clamp()

	if err := u.manager.Save(&updated); err != nil {
		u.logger.Warn("persisting updated profile failed", "user_id", current.UserID, "error", err)
		return &updated
	}

	u.logger.Debug("profile updated", "user_id", updated.UserID, "session_count", updated.SessionCount)
	return &updated
}

// extractJSON returns the substring between the first '{' and the last '}'.
// Models often wrap the object in prose or code fences despite instructions.
func extractJSON(text string) (string, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return "", fmt.Errorf("no JSON object found in response")
	}
	return text[start : end+1], nil
}

func buildUpdatePrompt(p *Profile, userMessage, botResponse string) (string, error) {
	serialized, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(`Based on the following conversation, update the user's profile. Extract insights and patterns
without storing personal identifiable information. Focus on emotional patterns, coping preferences,
and general themes that could help provide better support.

Current User Profile:
%s

Latest Conversation:
User: %s
Bot: %s

Instructions:
1. Update the summary with new insights about their emotional state and patterns
2. Add a new mood entry if emotional state is clearly expressed (mood + brief reason)
3. Update recurring topics if new themes emerge (work, relationships, sleep, etc.)
4. Note effective techniques if the user responds positively to suggestions
5. Keep all information general and supportive - no personal details
6. Limit mood_history to last %d entries, recurring_topics to %d items, effective_techniques to %d items

Respond with ONLY a valid JSON object containing the updated profile. No additional text.`,
		serialized, userMessage, botResponse, MaxMoodEntries, MaxTopics, MaxTechniques), nil
}

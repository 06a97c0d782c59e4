package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/havenchat/haven/internal/classifier"
	"github.com/havenchat/haven/internal/profile"
	"github.com/havenchat/haven/internal/responder"
	"github.com/havenchat/haven/internal/storage"
)

// fakeCompleter routes canned responses by model name, counting calls.
type fakeCompleter struct {
	responses map[string]string // model -> response
	errs      map[string]error  // model -> error
	calls     map[string]int    // model -> call count
	prompts   map[string]string // model -> last prompt
}

func newFakeCompleter() *fakeCompleter {
	return &fakeCompleter{
		responses: make(map[string]string),
		errs:      make(map[string]error),
		calls:     make(map[string]int),
		prompts:   make(map[string]string),
	}
}

func (f *fakeCompleter) Generate(ctx context.Context, model, prompt string) (string, error) {
	f.calls[model]++
	f.prompts[model] = prompt
	if err, ok := f.errs[model]; ok {
		return "", err
	}
	if resp, ok := f.responses[model]; ok {
		return resp, nil
	}
	return "ok", nil
}

// memStore backs the profile manager and job queue in tests.
type memStore struct {
	profiles map[string]storage.ProfileRecord
	jobs     []storage.Job
	getErr   error
}

func newMemStore() *memStore {
	return &memStore{profiles: make(map[string]storage.ProfileRecord)}
}

func (m *memStore) GetProfile(userID string) (storage.ProfileRecord, error) {
	if m.getErr != nil {
		return storage.ProfileRecord{}, m.getErr
	}
	rec, ok := m.profiles[userID]
	if !ok {
		return storage.ProfileRecord{}, storage.ErrNotFound
	}
	return rec, nil
}

func (m *memStore) UpsertProfile(p storage.ProfileRecord) error {
	m.profiles[p.UserID] = p
	return nil
}

func (m *memStore) EnqueueJob(job storage.Job) error {
	m.jobs = append(m.jobs, job)
	return nil
}

const (
	routerModel  = "router"
	casualModel  = "casual"
	supportModel = "support"
	profileModel = "profiler"
)

func newTestPipeline(completer *fakeCompleter, store *memStore) *Pipeline {
	mgr := profile.NewManager(store, nil)
	return NewPipeline(
		classifier.New(completer, routerModel, nil),
		responder.New(completer, casualModel, supportModel, nil),
		mgr,
		profile.NewUpdater(completer, profileModel, mgr, nil),
		store,
		nil,
	)
}

func manyTurns(n int) []Turn {
	turns := make([]Turn, n)
	for i := range turns {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		turns[i] = Turn{Role: role, Content: "earlier message"}
	}
	return turns
}

func TestProcessTurn_KeywordRoutesSensitive(t *testing.T) {
	completer := newFakeCompleter()
	completer.responses[supportModel] = "That sounds heavy. I'm here with you."
	store := newMemStore()
	p := newTestPipeline(completer, store)

	result := p.ProcessTurn(context.Background(), TurnInput{
		UserID:  "u1",
		History: manyTurns(12),
		Message: "I feel really anxious today",
	})

	if !result.Sensitive {
		t.Error("Sensitive = false, want true for keyword match")
	}
	if result.Response != "That sounds heavy. I'm here with you." {
		t.Errorf("Response = %q", result.Response)
	}
	if completer.calls[routerModel] != 0 {
		t.Errorf("router model called %d times, want 0 (keyword short-circuit)", completer.calls[routerModel])
	}
	if completer.calls[supportModel] != 1 {
		t.Errorf("support model called %d times, want 1", completer.calls[supportModel])
	}
	if completer.calls[casualModel] != 0 {
		t.Errorf("casual model called %d times, want 0", completer.calls[casualModel])
	}

	// Sensitive prompt carries up to 10 history turns: 12 given, 10 lines expected.
	if got := strings.Count(completer.prompts[supportModel], "earlier message"); got != 10 {
		t.Errorf("sensitive prompt has %d history lines, want 10", got)
	}
}

func TestProcessTurn_CasualVerdictRoutesCasual(t *testing.T) {
	completer := newFakeCompleter()
	completer.responses[routerModel] = "CASUAL"
	completer.responses[casualModel] = "Hey! Going well, how about you?"
	store := newMemStore()
	p := newTestPipeline(completer, store)

	result := p.ProcessTurn(context.Background(), TurnInput{
		UserID:  "u1",
		History: manyTurns(8),
		Message: "hey, how's it going",
	})

	if result.Sensitive {
		t.Error("Sensitive = true, want false")
	}
	if result.Response != "Hey! Going well, how about you?" {
		t.Errorf("Response = %q", result.Response)
	}
	if completer.calls[routerModel] != 1 {
		t.Errorf("router model called %d times, want 1", completer.calls[routerModel])
	}
	if completer.calls[supportModel] != 0 {
		t.Error("support model should not be called on the casual path")
	}

	// Casual prompt carries up to 5 history turns.
	if got := strings.Count(completer.prompts[casualModel], "earlier message"); got != 5 {
		t.Errorf("casual prompt has %d history lines, want 5", got)
	}
}

func TestProcessTurn_ProfileUpdateParseFailureKeepsProfile(t *testing.T) {
	completer := newFakeCompleter()
	completer.responses[routerModel] = "CASUAL"
	completer.responses[casualModel] = "Nice to hear from you!"
	completer.responses[profileModel] = "I could not produce a profile."
	store := newMemStore()
	p := newTestPipeline(completer, store)

	result := p.ProcessTurn(context.Background(), TurnInput{UserID: "u1", Message: "hello there"})

	if result.Response != "Nice to hear from you!" {
		t.Errorf("Response = %q, turn should succeed despite update failure", result.Response)
	}
	if result.Profile.SessionCount != 0 {
		t.Errorf("SessionCount = %d, want 0 (increment lost on parse failure)", result.Profile.SessionCount)
	}
	// Only the lazily created default profile is stored; no update overwrote it.
	rec := store.profiles["u1"]
	if rec.SessionCount != 0 {
		t.Errorf("persisted SessionCount = %d, want 0", rec.SessionCount)
	}
	if rec.Summary != profile.DefaultSummary {
		t.Errorf("persisted Summary = %q, want default", rec.Summary)
	}
}

func TestProcessTurn_StoreReadFailureUsesDefaultProfile(t *testing.T) {
	completer := newFakeCompleter()
	completer.responses[routerModel] = "CASUAL"
	completer.responses[casualModel] = "Hello! How are you today?"
	store := newMemStore()
	store.getErr = errors.New("database is locked")
	p := newTestPipeline(completer, store)

	result := p.ProcessTurn(context.Background(), TurnInput{UserID: "u1", Message: "hello"})

	// A broken store costs persisted context, not the turn.
	if result.Response != "Hello! How are you today?" {
		t.Errorf("Response = %q, want the generated reply", result.Response)
	}
	if result.Profile == nil {
		t.Fatal("Profile is nil, want the in-memory default")
	}
	if result.Profile.Summary != profile.DefaultSummary {
		t.Errorf("Summary = %q, want default", result.Profile.Summary)
	}
	if completer.calls[casualModel] != 1 {
		t.Errorf("casual model called %d times, want 1", completer.calls[casualModel])
	}
}

func TestProcessTurn_AllCompletionsFailOnSensitivePath(t *testing.T) {
	completer := newFakeCompleter()
	offline := errors.New("connection refused")
	completer.errs[routerModel] = offline
	completer.errs[casualModel] = offline
	completer.errs[supportModel] = offline
	completer.errs[profileModel] = offline
	store := newMemStore()
	p := newTestPipeline(completer, store)

	result := p.ProcessTurn(context.Background(), TurnInput{UserID: "u1", Message: "thinking about things"})

	// Router failure fails safe to sensitive, so the sensitive fallback applies.
	if !result.Sensitive {
		t.Error("Sensitive = false, want true when the router call fails")
	}
	if result.Response != responder.SensitiveFallback {
		t.Errorf("Response = %q, want sensitive fallback", result.Response)
	}
	if !strings.Contains(result.Response, "+91 9152987821") {
		t.Error("fallback missing crisis contact")
	}
}

func TestProcessTurn_SuccessfulProfileUpdate(t *testing.T) {
	completer := newFakeCompleter()
	completer.responses[routerModel] = "CASUAL"
	completer.responses[casualModel] = "Glad to hear it!"
	completer.responses[profileModel] = `{
		"user_id": "u1",
		"summary": "upbeat today",
		"mood_history": [{"mood": "happy", "reason_summary": "good news"}],
		"recurring_topics": [],
		"effective_techniques": [],
		"session_count": 1
	}`
	store := newMemStore()
	p := newTestPipeline(completer, store)

	result := p.ProcessTurn(context.Background(), TurnInput{UserID: "u1", Message: "got some good news"})

	if result.Profile.SessionCount != 1 {
		t.Errorf("SessionCount = %d, want 1", result.Profile.SessionCount)
	}
	if result.Profile.Summary != "upbeat today" {
		t.Errorf("Summary = %q", result.Profile.Summary)
	}
	if store.profiles["u1"].SessionCount != 1 {
		t.Errorf("persisted SessionCount = %d, want 1", store.profiles["u1"].SessionCount)
	}
}

func TestProcessTurn_EnqueuesJournalJob(t *testing.T) {
	completer := newFakeCompleter()
	completer.responses[routerModel] = "CASUAL"
	completer.responses[casualModel] = "hi!"
	store := newMemStore()
	p := newTestPipeline(completer, store)

	p.ProcessTurn(context.Background(), TurnInput{UserID: "u7", Message: "hello"})

	if len(store.jobs) != 1 {
		t.Fatalf("enqueued %d jobs, want 1", len(store.jobs))
	}
	job := store.jobs[0]
	if job.Type != JournalJobType {
		t.Errorf("job type = %q, want %q", job.Type, JournalJobType)
	}
	if !strings.Contains(job.PayloadJSON, `"user_id":"u7"`) {
		t.Errorf("payload missing user id: %s", job.PayloadJSON)
	}
	if !strings.Contains(job.PayloadJSON, `"user_message":"hello"`) {
		t.Errorf("payload missing message: %s", job.PayloadJSON)
	}
}

func TestProcessTurn_NilEnqueuer(t *testing.T) {
	completer := newFakeCompleter()
	completer.responses[routerModel] = "CASUAL"
	store := newMemStore()
	mgr := profile.NewManager(store, nil)
	p := NewPipeline(
		classifier.New(completer, routerModel, nil),
		responder.New(completer, casualModel, supportModel, nil),
		mgr,
		profile.NewUpdater(completer, profileModel, mgr, nil),
		nil,
		nil,
	)

	result := p.ProcessTurn(context.Background(), TurnInput{UserID: "u1", Message: "hello"})
	if result.Response == ErrorResponse {
		t.Error("turn failed with a nil job queue; journaling must be optional")
	}
}

package game

import (
	"context"
	"errors"
	"testing"

	"StoryLoom/server/internal/models"
	"StoryLoom/server/internal/storage"
	"StoryLoom/server/internal/tasks"
)

type stubNarrator struct {
	opening     string
	openingErr  error
	next        *NarrationResult
	nextErr     error
	nextCalls   int
	epilogue    string
	epilogueErr error
}

func (s *stubNarrator) OpeningNarration(ctx context.Context, scenario models.ScenarioOption, players map[string]*models.Player) (string, error) {
	return s.opening, s.openingErr
}

func (s *stubNarrator) NextScene(ctx context.Context, nc NarrationContext) (*NarrationResult, error) {
	s.nextCalls++
	if s.nextErr != nil {
		return nil, s.nextErr
	}
	if s.next == nil {
		return &NarrationResult{Narration: "the story continues"}, nil
	}
	// Copy so tests mutating s.next between rounds see fresh state.
	result := *s.next
	return &result, nil
}

func (s *stubNarrator) EpilogueNarrative(ctx context.Context, ec EpilogueContext) (string, error) {
	return s.epilogue, s.epilogueErr
}

type stubScenarios struct {
	options []models.ScenarioOption
	err     error
}

func (s *stubScenarios) GenerateScenarios(ctx context.Context, req ScenarioRequest) ([]models.ScenarioOption, error) {
	return s.options, s.err
}

var errGeneratorDown = errors.New("generator unavailable")

func testScenarioOptions() []models.ScenarioOption {
	mk := func(id string) models.ScenarioOption {
		return models.ScenarioOption{
			ID:      id,
			Title:   "Scenario " + id,
			Summary: "Summary " + id,
			EndConditions: models.EndConditions{
				PrimaryObjectives:   []string{"first objective", "second objective"},
				CompletionThreshold: 0.75,
				MaxRounds:           30,
			},
		}
	}
	return []models.ScenarioOption{mk("a"), mk("b"), mk("c")}
}

// newTestService wires a service over the in-memory store with stub
// collaborators. The task queue is never started, so scheduled
// background work stays queued and tests drive it explicitly.
func newTestService(t *testing.T) (*Service, *stubNarrator, *stubScenarios) {
	t.Helper()
	narrator := &stubNarrator{opening: "the adventure begins"}
	scenarios := &stubScenarios{options: testScenarioOptions()}
	queue := tasks.NewQueue(1, 64)
	svc := NewService(storage.NewMemoryStore(), narrator, scenarios, queue, Options{RoomSize: 4})
	return svc, narrator, scenarios
}

// startedSession drives a session through lobby, voting, character
// creation and game start for the given players. The first player is
// the host. Every player votes for scenario "a".
func startedSession(t *testing.T, svc *Service, players ...string) *models.Session {
	t.Helper()
	ctx := context.Background()

	sess, err := svc.CreateSession(ctx, players[0])
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	for _, p := range players[1:] {
		if _, err := svc.Join(ctx, sess.RoomID, p); err != nil {
			t.Fatalf("Join(%s): %v", p, err)
		}
	}
	if _, err := svc.StartVoting(ctx, sess.ID, players[0], VotingOptions{Difficulty: "normal"}); err != nil {
		t.Fatalf("StartVoting: %v", err)
	}
	for _, p := range players {
		if _, err := svc.SubmitVote(ctx, sess.ID, p, "a"); err != nil {
			t.Fatalf("SubmitVote(%s): %v", p, err)
		}
	}
	for _, p := range players {
		if _, err := svc.CreateCharacter(ctx, sess.ID, p, CharacterInput{Name: "Hero " + p}); err != nil {
			t.Fatalf("CreateCharacter(%s): %v", p, err)
		}
	}
	if _, err := svc.ProceedToReady(ctx, sess.ID, players[0]); err != nil {
		t.Fatalf("ProceedToReady: %v", err)
	}
	updated, err := svc.StartGame(ctx, sess.ID, players[0])
	if err != nil {
		t.Fatalf("StartGame: %v", err)
	}
	return updated
}

func boolPtr(b bool) *bool { return &b }

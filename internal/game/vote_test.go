package game

import (
	"context"
	"errors"
	"testing"

	"StoryLoom/server/internal/models"
)

func votingSession(t *testing.T, svc *Service, players ...string) *models.Session {
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
	updated, err := svc.StartVoting(ctx, sess.ID, players[0], VotingOptions{Difficulty: "normal"})
	if err != nil {
		t.Fatalf("StartVoting: %v", err)
	}
	return updated
}

func TestVoteTallyClosesOnLastVote(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	sess := votingSession(t, svc, "host", "p2", "p3")

	if _, err := svc.SubmitVote(ctx, sess.ID, "host", "a"); err != nil {
		t.Fatalf("SubmitVote: %v", err)
	}
	mid, err := svc.SubmitVote(ctx, sess.ID, "p2", "b")
	if err != nil {
		t.Fatalf("SubmitVote: %v", err)
	}
	if mid.Status != models.StatusVoting {
		t.Fatalf("status after 2 of 3 votes = %s, want voting", mid.Status)
	}

	final, err := svc.SubmitVote(ctx, sess.ID, "p3", "a")
	if err != nil {
		t.Fatalf("SubmitVote: %v", err)
	}
	if final.Status != models.StatusCreatingChar {
		t.Fatalf("status after last vote = %s, want creating_char", final.Status)
	}
	if final.DecidedScenarioID != "a" {
		t.Fatalf("decided = %s, want a", final.DecidedScenarioID)
	}
	if final.EndConditions == nil || len(final.EndConditions.PrimaryObjectives) == 0 {
		t.Fatal("end conditions not copied from the winning scenario")
	}
	if len(final.Votes) != 0 {
		t.Fatalf("votes not cleared after tally: %v", final.Votes)
	}
}

func TestRevoteMovesVoteInsteadOfAdding(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	sess := votingSession(t, svc, "host", "p2")

	if _, err := svc.SubmitVote(ctx, sess.ID, "host", "a"); err != nil {
		t.Fatalf("SubmitVote: %v", err)
	}
	updated, err := svc.SubmitVote(ctx, sess.ID, "host", "b")
	if err != nil {
		t.Fatalf("SubmitVote: %v", err)
	}

	if updated.Status != models.StatusVoting {
		t.Fatalf("status = %s, re-vote must not close the tally", updated.Status)
	}
	if got := updated.TotalVotes(); got != 1 {
		t.Fatalf("total votes = %d, want 1", got)
	}
	for _, sv := range updated.Votes {
		if sv.ScenarioID == "a" && len(sv.Voters) != 0 {
			t.Fatalf("old vote still counted: %v", sv)
		}
		if sv.ScenarioID == "b" && len(sv.Voters) != 1 {
			t.Fatalf("new vote missing: %v", sv)
		}
	}
}

func TestTieBreakFirstToReachMax(t *testing.T) {
	// With a 1-1 tie, the winner is the scenario that entered the vote
	// list first, so the same tie resolves differently depending on
	// voting order.
	t.Run("a voted first", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		ctx := context.Background()
		sess := votingSession(t, svc, "host", "p2")

		if _, err := svc.SubmitVote(ctx, sess.ID, "host", "a"); err != nil {
			t.Fatalf("SubmitVote: %v", err)
		}
		final, err := svc.SubmitVote(ctx, sess.ID, "p2", "b")
		if err != nil {
			t.Fatalf("SubmitVote: %v", err)
		}
		if final.DecidedScenarioID != "a" {
			t.Fatalf("decided = %s, want a", final.DecidedScenarioID)
		}
	})

	t.Run("b voted first", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		ctx := context.Background()
		sess := votingSession(t, svc, "host", "p2")

		if _, err := svc.SubmitVote(ctx, sess.ID, "p2", "b"); err != nil {
			t.Fatalf("SubmitVote: %v", err)
		}
		final, err := svc.SubmitVote(ctx, sess.ID, "host", "a")
		if err != nil {
			t.Fatalf("SubmitVote: %v", err)
		}
		if final.DecidedScenarioID != "b" {
			t.Fatalf("decided = %s, want b", final.DecidedScenarioID)
		}
	})
}

func TestVotePreconditions(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	lobby, err := svc.CreateSession(ctx, "host")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, err := svc.SubmitVote(ctx, lobby.ID, "host", "a"); !errors.Is(err, ErrWrongState) {
		t.Fatalf("vote in lobby error = %v, want %v", err, ErrWrongState)
	}

	sess := votingSession(t, svc, "host2", "p2")
	if _, err := svc.SubmitVote(ctx, sess.ID, "stranger", "a"); !errors.Is(err, ErrNotMember) {
		t.Fatalf("vote by non-member error = %v, want %v", err, ErrNotMember)
	}
	if _, err := svc.SubmitVote(ctx, sess.ID, "host2", "nope"); !errors.Is(err, ErrInvalidScenario) {
		t.Fatalf("vote for unknown scenario error = %v, want %v", err, ErrInvalidScenario)
	}

	// Failed votes must not count toward the tally.
	current, err := svc.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got := current.TotalVotes(); got != 0 {
		t.Fatalf("total votes after rejected submissions = %d, want 0", got)
	}
}

func TestVotingUsesFallbackScenariosOnGeneratorFailure(t *testing.T) {
	svc, _, scenarios := newTestService(t)
	scenarios.err = errGeneratorDown
	scenarios.options = nil
	ctx := context.Background()

	sess, err := svc.CreateSession(ctx, "host")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	updated, err := svc.StartVoting(ctx, sess.ID, "host", VotingOptions{Difficulty: "hard"})
	if err != nil {
		t.Fatalf("StartVoting: %v", err)
	}
	if updated.Status != models.StatusVoting {
		t.Fatalf("status = %s, want voting", updated.Status)
	}
	if len(updated.ScenarioOptions) != 3 {
		t.Fatalf("fallback options = %d, want 3", len(updated.ScenarioOptions))
	}
	for _, opt := range updated.ScenarioOptions {
		if opt.EndConditions.MaxRounds != 25 || opt.EndConditions.CompletionThreshold != 0.8 {
			t.Fatalf("fallback end conditions missing hard preset: %+v", opt.EndConditions)
		}
	}
}

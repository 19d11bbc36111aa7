package game

import (
	"context"
	"fmt"
	"log"
	"strings"

	"StoryLoom/server/internal/models"
)

// SubmitAction records one player's action for the current round. The
// transaction only records state; when this insert makes the pending
// set complete it signals the caller, and resolution is scheduled once,
// after the commit. Exactly one transaction can observe the count
// reaching the player total, which is what makes resolution
// exactly-once.
func (s *Service) SubmitAction(ctx context.Context, sessionID, playerID, actionText string) (*models.Session, error) {
	if strings.TrimSpace(actionText) == "" {
		return nil, ErrEmptyAction
	}

	var (
		roundClosed bool
		round       int
	)

	updated, err := s.store.Update(ctx, sessionID, func(sess *models.Session) error {
		roundClosed = false
		if err := requireStatus(sess, models.StatusPlaying); err != nil {
			return err
		}
		if err := requireMember(sess, playerID); err != nil {
			return err
		}
		if _, acted := sess.PendingActions[playerID]; acted {
			return ErrAlreadyActed
		}

		sess.Log = append(sess.Log, models.LogEntry{
			Round:     sess.CurrentRound,
			Kind:      models.LogPlayerAction,
			Content:   actionText,
			PlayerID:  playerID,
			Timestamp: s.clock(),
		})
		if sess.PendingActions == nil {
			sess.PendingActions = map[string]string{}
		}
		sess.PendingActions[playerID] = actionText

		if len(sess.PendingActions) == len(sess.Players) {
			roundClosed = true
			round = sess.CurrentRound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if roundClosed {
		s.scheduleResolution(updated.ID, round)
	}
	s.notify(updated)
	return updated, nil
}

func (s *Service) scheduleResolution(sessionID string, round int) {
	label := fmt.Sprintf("resolve:%s:%d", sessionID, round)
	ok := s.queue.Submit(label, func(ctx context.Context) error {
		return s.ResolveRound(ctx, sessionID, round)
	})
	if !ok {
		// The queue is full; resolve inline rather than leaving the
		// round stuck with a complete action set.
		go func() {
			if err := s.ResolveRound(context.Background(), sessionID, round); err != nil {
				log.Printf("[Game] inline resolution failed for %s round %d: %v", sessionID, round, err)
			}
		}()
	}
}

const fallbackRoundNarration = "The game master pauses, weighing the party's actions. The world shifts subtly around the adventurers, and the story moves on."

// ResolveRound performs round resolution for the given round. It is
// safe to call more than once: the final transaction is a no-op unless
// the session is still playing that exact round, so a replayed
// resolution cannot double-append entries or double-increment the
// round counter.
func (s *Service) ResolveRound(ctx context.Context, sessionID string, round int) error {
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Status != models.StatusPlaying || sess.CurrentRound != round {
		return nil
	}

	result := s.narrateRound(ctx, sess)
	entries := s.buildRoundEntries(ctx, sess, result)

	var completion *models.CompletionResult
	if j := s.judgeRound(sess, result); j != nil {
		res := BuildCompletionResult(*j, primaryObjectives(sess))
		if res.IsCompleted {
			completion = &res
		}
	}

	updated, err := s.store.Update(ctx, sessionID, func(sess *models.Session) error {
		if sess.Status != models.StatusPlaying || sess.CurrentRound != round {
			return nil
		}
		sess.Log = append(sess.Log, entries...)
		sess.CurrentRound++
		sess.PendingActions = map[string]string{}
		if completion != nil && sess.CompletionResult == nil {
			sess.CompletionResult = completion
			return advance(sess, models.StatusCompleted)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.recordMemories(sessionID, entries)
	s.notify(updated)
	return nil
}

// narrateRound asks the narration collaborator for the next scene. Any
// failure degrades to a fallback narration so the session never gets
// stuck with a full pending set.
func (s *Service) narrateRound(ctx context.Context, sess *models.Session) *NarrationResult {
	scenario := sess.DecidedScenario()
	if scenario == nil {
		return &NarrationResult{Narration: fallbackRoundNarration}
	}

	nc := NarrationContext{
		Scenario:  *scenario,
		Round:     sess.CurrentRound,
		Players:   sess.Players,
		Actions:   sess.PendingActions,
		LogTail:   logTail(sess.Log, s.logTail),
		MaxRounds: 0,
	}
	if sess.EndConditions != nil {
		nc.EndConditions = *sess.EndConditions
		nc.MaxRounds = sess.EndConditions.MaxRounds
	}
	nc.Memories = s.recallMemories(ctx, sess)

	result, err := s.narrator.NextScene(ctx, nc)
	if err != nil || result == nil || result.Narration == "" {
		log.Printf("[Game] narration failed for %s round %d, using fallback: %v", sess.ID, sess.CurrentRound, err)
		return &NarrationResult{Narration: fallbackRoundNarration}
	}
	return result
}

// buildRoundEntries executes the collaborator's dice requests, runs
// image generation when a prompt is present, and assembles the log
// entries for the round in order: dice rolls, then the game master's
// response.
func (s *Service) buildRoundEntries(ctx context.Context, sess *models.Session, result *NarrationResult) []models.LogEntry {
	round := sess.CurrentRound
	entries := make([]models.LogEntry, 0, len(result.DiceRequests)+1)

	for _, req := range result.DiceRequests {
		roll, err := s.roller.Roll(req.NumDice, req.NumSides)
		if err != nil {
			log.Printf("[Game] ignoring invalid dice request %dd%d: %v", req.NumDice, req.NumSides, err)
			continue
		}
		content := roll.String()
		if req.Reason != "" {
			content = req.Reason + ": " + content
		}
		entries = append(entries, models.LogEntry{
			Round:     round,
			Kind:      models.LogDiceRoll,
			Content:   content,
			Timestamp: s.clock(),
		})
	}

	gmEntry := models.LogEntry{
		Round:     round,
		Kind:      models.LogGMResponse,
		Content:   result.Narration,
		Timestamp: s.clock(),
	}
	if result.ImagePrompt != "" && s.images != nil {
		url, err := s.images.GenerateImage(ctx, result.ImagePrompt)
		if err != nil {
			log.Printf("[Game] scene image failed for %s round %d: %v", sess.ID, round, err)
		} else {
			gmEntry.ImageURL = url
		}
	}
	return append(entries, gmEntry)
}

// judgeRound normalizes the collaborator's completion judgement,
// deriving a percentage from objectives when none was supplied and
// forcing the ending at the round limit. The limit applies regardless
// of what the collaborator returned; a session never plays past
// MaxRounds.
func (s *Service) judgeRound(sess *models.Session, result *NarrationResult) *Judgement {
	j := result.Judgement

	atLimit := sess.EndConditions != nil &&
		sess.EndConditions.MaxRounds > 0 &&
		sess.CurrentRound >= sess.EndConditions.MaxRounds

	if j == nil {
		if !atLimit {
			return nil
		}
		pct, err := PercentageFromObjectives(nil, sess.EndConditions.PrimaryObjectives)
		if err != nil {
			pct = 0
		}
		return &Judgement{Percentage: pct, ForceEnding: true}
	}

	if j.Percentage == 0 && len(j.AchievedObjectives) > 0 && sess.EndConditions != nil {
		if pct, err := PercentageFromObjectives(j.AchievedObjectives, sess.EndConditions.PrimaryObjectives); err == nil {
			j.Percentage = pct
		}
	}
	if atLimit {
		j.ForceEnding = true
	}
	return j
}

func (s *Service) recallMemories(ctx context.Context, sess *models.Session) []string {
	if s.memories == nil {
		return nil
	}
	query := make([]string, 0, len(sess.PendingActions))
	for _, action := range sess.PendingActions {
		query = append(query, action)
	}
	memories, err := s.memories.Related(ctx, sess.ID, strings.Join(query, "\n"), s.memoryHits)
	if err != nil {
		log.Printf("[Game] memory recall failed for %s: %v", sess.ID, err)
		return nil
	}
	return memories
}

func primaryObjectives(sess *models.Session) []string {
	if sess.EndConditions == nil {
		return nil
	}
	return sess.EndConditions.PrimaryObjectives
}

func logTail(entries []models.LogEntry, n int) []models.LogEntry {
	if len(entries) <= n {
		return entries
	}
	return entries[len(entries)-n:]
}

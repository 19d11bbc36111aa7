package game

import (
	"context"
	"fmt"
	"log"
	"strings"

	"StoryLoom/server/internal/models"
)

// BeginEpilogue is the host-only completed→epilogue transition. The
// epilogue itself is generated by a background task; the command only
// transitions state and schedules the work.
func (s *Service) BeginEpilogue(ctx context.Context, sessionID, playerID string) (*models.Session, error) {
	updated, err := s.store.Update(ctx, sessionID, func(sess *models.Session) error {
		if err := requireHost(sess, playerID); err != nil {
			return err
		}
		return advance(sess, models.StatusEpilogue)
	})
	if err != nil {
		return nil, err
	}

	ok := s.queue.Submit("epilogue:"+sessionID, func(ctx context.Context) error {
		return s.BuildEpilogue(ctx, sessionID)
	})
	if !ok {
		go func() {
			if err := s.BuildEpilogue(context.Background(), sessionID); err != nil {
				log.Printf("[Game] inline epilogue build failed for %s: %v", sessionID, err)
			}
		}()
	}

	s.notify(updated)
	return updated, nil
}

const fallbackEpilogueNarrative = "The adventure has come to its end. Whatever was won or lost along the way, the party walks on, carrying the story with them."

// BuildEpilogue generates the epilogue and performs the
// epilogue→finished transition. Replays are no-ops: the final
// transaction only applies while the session is still in the epilogue
// state without an epilogue attached.
func (s *Service) BuildEpilogue(ctx context.Context, sessionID string) error {
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Status != models.StatusEpilogue || sess.Epilogue != nil {
		return nil
	}

	contributions := buildContributions(sess)
	summary := adventureSummary(sess.Log)

	result := models.CompletionResult{EndingType: models.EndingSuccess, Percentage: 75}
	if sess.CompletionResult != nil {
		result = *sess.CompletionResult
	}

	var scenario models.ScenarioOption
	if opt := sess.DecidedScenario(); opt != nil {
		scenario = *opt
	}

	narrative, err := s.narrator.EpilogueNarrative(ctx, EpilogueContext{
		Scenario:      scenario,
		Result:        result,
		TotalRounds:   sess.CurrentRound,
		Summary:       summary,
		Contributions: contributions,
	})
	if err != nil || narrative == "" {
		log.Printf("[Game] epilogue narrative failed for %s, using fallback: %v", sessionID, err)
		narrative = fallbackEpilogueNarrative
	}

	epilogue := &models.Epilogue{
		EndingNarrative:      narrative,
		EndingType:           result.EndingType,
		PlayerContributions:  contributions,
		AdventureSummary:     summary,
		TotalRounds:          sess.CurrentRound,
		CompletionPercentage: result.Percentage,
		GeneratedAt:          s.clock(),
	}

	updated, err := s.store.Update(ctx, sessionID, func(sess *models.Session) error {
		if sess.Status != models.StatusEpilogue || sess.Epilogue != nil {
			return nil
		}
		sess.Epilogue = epilogue
		return advance(sess, models.StatusFinished)
	})
	if err != nil {
		return err
	}

	s.archiveSession(updated)
	s.notify(updated)
	return nil
}

// buildContributions summarizes each player's part from the log: their
// first few actions, the round's dice rolls, and highlight moments.
func buildContributions(sess *models.Session) []models.PlayerContribution {
	diceRolls := make([]string, 0, 5)
	for _, entry := range sess.Log {
		if entry.Kind == models.LogDiceRoll && len(diceRolls) < 5 {
			diceRolls = append(diceRolls, entry.Content)
		}
	}

	contributions := make([]models.PlayerContribution, 0, len(sess.Players))
	for _, playerID := range sess.PlayerOrder {
		player, ok := sess.Players[playerID]
		if !ok {
			continue
		}

		var actions []string
		for _, entry := range sess.Log {
			if entry.Kind == models.LogPlayerAction && entry.PlayerID == playerID {
				actions = append(actions, entry.Content)
			}
		}

		var highlights []string
		if len(actions) > 0 {
			highlights = append(highlights, "First action: "+actions[0])
			if len(actions) > 1 {
				highlights = append(highlights, "Memorable action: "+actions[len(actions)-1])
			}
		}

		key := actions
		if len(key) > 3 {
			key = key[:3]
		}

		contributions = append(contributions, models.PlayerContribution{
			PlayerID:         playerID,
			CharacterName:    player.CharacterName,
			KeyActions:       key,
			DiceRolls:        diceRolls,
			HighlightMoments: highlights,
		})
	}
	return contributions
}

// adventureSummary condenses the narrative beats of the log into a few
// lines for the epilogue prompt.
func adventureSummary(entries []models.LogEntry) string {
	var lines []string
	for _, entry := range entries {
		if entry.Kind != models.LogNarration && entry.Kind != models.LogGMResponse {
			continue
		}
		content := entry.Content
		if runes := []rune(content); len(runes) > 100 {
			content = string(runes[:100]) + "..."
		}
		lines = append(lines, fmt.Sprintf("Round %d: %s", entry.Round, content))
		if len(lines) >= 5 {
			break
		}
	}
	return strings.Join(lines, "\n")
}

// archiveSession writes the finished session to the archive store as a
// fire-and-forget side effect. Failures are logged, never surfaced.
func (s *Service) archiveSession(sess *models.Session) {
	if s.archiver == nil || sess.Status != models.StatusFinished {
		return
	}

	archive := &models.SessionArchive{
		ID:          sess.ID,
		RoomID:      sess.RoomID,
		HostID:      sess.HostID,
		PlayerCount: len(sess.Players),
		TotalRounds: sess.CurrentRound,
		FinishedAt:  s.clock(),
	}
	if opt := sess.DecidedScenario(); opt != nil {
		archive.ScenarioTitle = opt.Title
	}
	if sess.CompletionResult != nil {
		archive.EndingType = sess.CompletionResult.EndingType
		archive.CompletionPercentage = sess.CompletionResult.Percentage
	}
	if sess.Epilogue != nil {
		archive.EndingNarrative = sess.Epilogue.EndingNarrative
	}
	archive.LogEntryCount = len(sess.Log)

	entries := make([]models.ArchivedLogEntry, 0, len(sess.Log))
	for _, entry := range sess.Log {
		entries = append(entries, models.ArchivedLogEntry{
			SessionID: sess.ID,
			Round:     entry.Round,
			Kind:      entry.Kind,
			Content:   entry.Content,
			ImageURL:  entry.ImageURL,
			PlayerID:  entry.PlayerID,
			Timestamp: entry.Timestamp,
		})
	}

	go func() {
		if err := s.archiver.ArchiveSession(archive, entries); err != nil {
			log.Printf("[Game] failed to archive session %s: %v", sess.ID, err)
		}
	}()
}

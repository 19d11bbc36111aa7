package game

import (
	"context"
	"log"
	"time"

	"StoryLoom/server/internal/models"
)

// SubmitVote records one player's scenario vote inside a single store
// transaction. A player may change their vote any number of times
// before the tally closes. The transaction that brings the total vote
// count to the player count also decides the winner and performs the
// voting→creating_char transition, so the tally closes exactly once.
func (s *Service) SubmitVote(ctx context.Context, sessionID, playerID, scenarioID string) (*models.Session, error) {
	var decided bool

	updated, err := s.store.Update(ctx, sessionID, func(sess *models.Session) error {
		decided = false
		if err := requireStatus(sess, models.StatusVoting); err != nil {
			return err
		}
		if err := requireMember(sess, playerID); err != nil {
			return err
		}
		if !scenarioExists(sess, scenarioID) {
			return ErrInvalidScenario
		}

		removeVoter(sess, playerID)
		addVoter(sess, scenarioID, playerID)

		if sess.TotalVotes() < len(sess.Players) {
			return nil
		}

		// Last vote: close the tally in the same transaction.
		winner := tallyWinner(sess)
		scenario := scenarioByID(sess, winner)
		sess.DecidedScenarioID = winner
		cond := scenario.EndConditions
		sess.EndConditions = &cond
		sess.Votes = nil
		decided = true
		return advance(sess, models.StatusCreatingChar)
	})
	if err != nil {
		return nil, err
	}

	if decided {
		s.scheduleOpeningMedia(updated)
	}
	s.notify(updated)
	return updated, nil
}

// tallyWinner picks the scenario with the largest voter set. Ties go to
// the scenario that reaches the maximum first in the existing insertion
// order of the vote list, not to any score-based rule.
func tallyWinner(sess *models.Session) string {
	winner := ""
	max := -1
	for i := range sess.Votes {
		if n := len(sess.Votes[i].Voters); n > max {
			max = n
			winner = sess.Votes[i].ScenarioID
		}
	}
	return winner
}

func scenarioExists(sess *models.Session, scenarioID string) bool {
	return scenarioByID(sess, scenarioID) != nil
}

func scenarioByID(sess *models.Session, scenarioID string) *models.ScenarioOption {
	for i := range sess.ScenarioOptions {
		if sess.ScenarioOptions[i].ID == scenarioID {
			return &sess.ScenarioOptions[i]
		}
	}
	return nil
}

// removeVoter drops the player from whichever voter set holds them. A
// voter id appears in at most one set, but all sets are checked anyway.
func removeVoter(sess *models.Session, playerID string) {
	for i := range sess.Votes {
		voters := sess.Votes[i].Voters
		for j, v := range voters {
			if v == playerID {
				sess.Votes[i].Voters = append(voters[:j], voters[j+1:]...)
				break
			}
		}
	}
}

func addVoter(sess *models.Session, scenarioID, playerID string) {
	for i := range sess.Votes {
		if sess.Votes[i].ScenarioID == scenarioID {
			sess.Votes[i].Voters = append(sess.Votes[i].Voters, playerID)
			return
		}
	}
	sess.Votes = append(sess.Votes, models.ScenarioVotes{
		ScenarioID: scenarioID,
		Voters:     []string{playerID},
	})
}

// scheduleOpeningMedia dispatches opening-scene generation after the
// tally transaction has committed. The session stays playable whether
// the media succeeds, fails, or was disabled by the host.
func (s *Service) scheduleOpeningMedia(sess *models.Session) {
	if sess.OpeningMedia == nil || sess.OpeningMedia.Status != models.MediaGenerating {
		return
	}
	scenario := sess.DecidedScenario()
	if scenario == nil {
		return
	}

	sessionID := sess.ID
	title, summary := scenario.Title, scenario.Summary
	ok := s.queue.Submit("opening-media:"+sessionID, func(ctx context.Context) error {
		return s.generateOpeningMedia(ctx, sessionID, title, summary)
	})
	if !ok {
		s.markOpeningMedia(sessionID, models.MediaError, "")
	}
}

func (s *Service) generateOpeningMedia(ctx context.Context, sessionID, title, summary string) error {
	prompt := "Opening scene for a tabletop adventure titled \"" + title + "\": " + summary

	url := ""
	var err error
	switch {
	case s.videos != nil:
		url, err = s.videos.GenerateVideo(ctx, prompt)
	case s.images != nil:
		url, err = s.images.GenerateImage(ctx, prompt)
	}

	if err != nil || url == "" {
		log.Printf("[Game] opening media generation failed for %s: %v", sessionID, err)
		s.markOpeningMedia(sessionID, models.MediaError, "")
		return nil
	}
	s.markOpeningMedia(sessionID, models.MediaReady, url)
	return nil
}

func (s *Service) markOpeningMedia(sessionID, status, url string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	updated, err := s.store.Update(ctx, sessionID, func(sess *models.Session) error {
		if sess.OpeningMedia == nil || sess.OpeningMedia.Status != models.MediaGenerating {
			return nil
		}
		sess.OpeningMedia.Status = status
		sess.OpeningMedia.URL = url
		return nil
	})
	if err != nil {
		log.Printf("[Game] failed to record opening media status for %s: %v", sessionID, err)
		return
	}
	s.notify(updated)
}

package game

import (
	"fmt"

	"StoryLoom/server/internal/models"
)

// forward lists the allowed transitions. No state is ever revisited;
// there are no backward edges.
var forward = map[string][]string{
	models.StatusLobby:        {models.StatusVoting},
	models.StatusVoting:       {models.StatusCreatingChar},
	models.StatusCreatingChar: {models.StatusReadyToStart},
	models.StatusReadyToStart: {models.StatusPlaying},
	models.StatusPlaying:      {models.StatusCompleted},
	models.StatusCompleted:    {models.StatusEpilogue},
	models.StatusEpilogue:     {models.StatusFinished},
	models.StatusFinished:     nil,
}

// advance moves the session to the target state, failing with
// ErrWrongState unless the edge exists in the forward graph.
func advance(sess *models.Session, to string) error {
	for _, next := range forward[sess.Status] {
		if next == to {
			sess.Status = to
			return nil
		}
	}
	return fmt.Errorf("%w: cannot move from %s to %s", ErrWrongState, sess.Status, to)
}

// requireStatus fails with ErrWrongState unless the session is in one
// of the given states.
func requireStatus(sess *models.Session, statuses ...string) error {
	for _, st := range statuses {
		if sess.Status == st {
			return nil
		}
	}
	return fmt.Errorf("%w: session is %s", ErrWrongState, sess.Status)
}

func requireHost(sess *models.Session, playerID string) error {
	if sess.HostID != playerID {
		return ErrNotHost
	}
	return nil
}

func requireMember(sess *models.Session, playerID string) error {
	if !sess.IsMember(playerID) {
		return ErrNotMember
	}
	return nil
}

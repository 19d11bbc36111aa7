package game

import "errors"

// Precondition errors. These are reported to the caller immediately,
// cause no state change, and are never retried.
var (
	ErrNotHost             = errors.New("only the host can perform this action")
	ErrNotMember           = errors.New("player is not a member of this session")
	ErrWrongState          = errors.New("session is not in the required state")
	ErrRoomFull            = errors.New("room is full")
	ErrInvalidScenario     = errors.New("scenario is not one of the current options")
	ErrAlreadyActed        = errors.New("player has already acted this round")
	ErrEmptyAction         = errors.New("action text must not be empty")
	ErrEmptyCharacterName  = errors.New("character name must not be empty")
	ErrCharactersNotReady  = errors.New("not all players have completed character creation")
	ErrNoPrimaryObjectives = errors.New("scenario has no primary objectives")
)

// IsPrecondition reports whether err belongs to the precondition class
// of the error taxonomy, as opposed to conflicts or internal failures.
func IsPrecondition(err error) bool {
	for _, p := range []error{
		ErrNotHost, ErrNotMember, ErrWrongState, ErrRoomFull,
		ErrInvalidScenario, ErrAlreadyActed, ErrEmptyAction,
		ErrEmptyCharacterName, ErrCharactersNotReady, ErrNoPrimaryObjectives,
	} {
		if errors.Is(err, p) {
			return true
		}
	}
	return false
}

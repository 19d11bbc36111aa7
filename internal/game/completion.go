package game

import "StoryLoom/server/internal/models"

// Completion thresholds. All bounds are inclusive; a boundary value
// belongs to the higher band.
const (
	completedThreshold    = 75.0
	greatSuccessThreshold = 95.0
	successThreshold      = 75.0
	failureThreshold      = 50.0
	tragicThreshold       = 50.0
)

// Judgement carries the narration collaborator's view of story
// progress. Completed, when non-nil, is authoritative over the
// percentage-based fallback rule.
type Judgement struct {
	Percentage         float64
	Completed          *bool
	ForceEnding        bool
	AchievedObjectives []string
}

// EvaluateCompletion classifies the ending for a given completion
// percentage. forceEnding marks death, total-party-loss or another
// irrecoverable state and always completes the scenario.
func EvaluateCompletion(percentage float64, forceEnding bool, asserted *bool) (bool, string) {
	if forceEnding {
		if percentage >= tragicThreshold {
			return true, models.EndingTragicSuccess
		}
		return true, models.EndingDisaster
	}

	completed := percentage >= completedThreshold
	if asserted != nil {
		completed = *asserted
	}

	var ending string
	switch {
	case percentage >= greatSuccessThreshold:
		ending = models.EndingGreatSuccess
	case percentage >= successThreshold:
		ending = models.EndingSuccess
	case percentage >= failureThreshold:
		ending = models.EndingFailure
	default:
		ending = models.EndingDisaster
	}
	return completed, ending
}

// PercentageFromObjectives derives a completion percentage from raw
// objective lists. Used only when the collaborator supplies no
// percentage of its own.
func PercentageFromObjectives(achieved, primary []string) (float64, error) {
	if len(primary) == 0 {
		return 0, ErrNoPrimaryObjectives
	}
	done := 0
	for _, obj := range primary {
		if containsString(achieved, obj) {
			done++
		}
	}
	return float64(done) / float64(len(primary)) * 100.0, nil
}

// BuildCompletionResult turns a judgement plus the session's primary
// objectives into the final persisted result.
func BuildCompletionResult(j Judgement, primary []string) models.CompletionResult {
	completed, ending := EvaluateCompletion(j.Percentage, j.ForceEnding, j.Completed)

	remaining := make([]string, 0, len(primary))
	for _, obj := range primary {
		if !containsString(j.AchievedObjectives, obj) {
			remaining = append(remaining, obj)
		}
	}

	return models.CompletionResult{
		Percentage:          j.Percentage,
		IsCompleted:         completed,
		EndingType:          ending,
		RemainingObjectives: remaining,
		AchievedObjectives:  append([]string(nil), j.AchievedObjectives...),
		ForceEnding:         j.ForceEnding,
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

package engine

import (
	"encoding/json"
	"fmt"
	"strings"

	"StoryLoom/server/internal/game"
	"StoryLoom/server/internal/models"
)

// StripFences removes a surrounding markdown code fence and trims to
// the outermost JSON value. Models wrap JSON in ```json fences often
// enough that every parse goes through this first.
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	// Trim any prose around the outermost object.
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	var end int
	if s[start] == '{' {
		end = strings.LastIndex(s, "}")
	} else {
		end = strings.LastIndex(s, "]")
	}
	if end <= start {
		return s
	}
	return s[start : end+1]
}

// rawRoundResult mirrors the round-resolution JSON with every field
// name variant models have been seen to produce.
type rawRoundResult struct {
	Narration    string `json:"narration"`
	GMNarration  string `json:"gm_narration"`
	Text         string `json:"text"`
	ImagePrompt  string `json:"imagePrompt"`
	ImagePrompt2 string `json:"image_prompt"`
	DiceRequests []struct {
		NumDice  int    `json:"numDice"`
		NumDice2 int    `json:"num_dice"`
		NumSides int    `json:"numSides"`
		Sides    int    `json:"sides"`
		Reason   string `json:"reason"`
	} `json:"diceRequests"`
	Completion *rawJudgement `json:"completion"`
	Judgement  *rawJudgement `json:"judgement"`
}

type rawJudgement struct {
	Percentage         float64  `json:"percentage"`
	IsCompleted        *bool    `json:"isCompleted"`
	IsCompleted2       *bool    `json:"is_completed"`
	ForceEnding        bool     `json:"forceEnding"`
	ForceEnding2       bool     `json:"force_ending"`
	AchievedObjectives []string `json:"achievedObjectives"`
	Achieved2          []string `json:"achieved_objectives"`
}

// ParseRoundResult decodes a round-resolution completion. It tolerates
// the common field-name drift and missing optional sections; only an
// empty narration is an error.
func ParseRoundResult(raw string) (*game.NarrationResult, error) {
	var parsed rawRoundResult
	if err := json.Unmarshal([]byte(StripFences(raw)), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse round result: %w", err)
	}

	narration := firstNonEmpty(parsed.Narration, parsed.GMNarration, parsed.Text)
	if narration == "" {
		return nil, fmt.Errorf("round result has no narration")
	}

	result := &game.NarrationResult{
		Narration:   narration,
		ImagePrompt: firstNonEmpty(parsed.ImagePrompt, parsed.ImagePrompt2),
	}

	for _, dr := range parsed.DiceRequests {
		numDice := dr.NumDice
		if numDice == 0 {
			numDice = dr.NumDice2
		}
		numSides := dr.NumSides
		if numSides == 0 {
			numSides = dr.Sides
		}
		if numDice <= 0 || numSides <= 0 {
			continue
		}
		result.DiceRequests = append(result.DiceRequests, game.DiceRequest{
			NumDice:  numDice,
			NumSides: numSides,
			Reason:   dr.Reason,
		})
	}

	rj := parsed.Completion
	if rj == nil {
		rj = parsed.Judgement
	}
	if rj != nil {
		completed := rj.IsCompleted
		if completed == nil {
			completed = rj.IsCompleted2
		}
		achieved := rj.AchievedObjectives
		if len(achieved) == 0 {
			achieved = rj.Achieved2
		}
		result.Judgement = &game.Judgement{
			Percentage:         rj.Percentage,
			Completed:          completed,
			ForceEnding:        rj.ForceEnding || rj.ForceEnding2,
			AchievedObjectives: achieved,
		}
	}

	return result, nil
}

type rawScenarioList struct {
	Scenarios []rawScenario `json:"scenarios"`
	Options   []rawScenario `json:"options"`
}

type rawScenario struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Summary       string `json:"summary"`
	Description   string `json:"description"`
	EndConditions struct {
		PrimaryObjectives   []string `json:"primaryObjectives"`
		Primary2            []string `json:"primary_objectives"`
		SuccessCriteria     []string `json:"successCriteria"`
		FailureCriteria     []string `json:"failureCriteria"`
		CompletionThreshold float64  `json:"completionThreshold"`
		MaxRounds           int      `json:"maxRounds"`
	} `json:"endConditions"`
}

// ParseScenarios decodes a scenario-generation completion. Missing
// thresholds and round limits fall back to the request's difficulty
// preset; scenarios without objectives are dropped.
func ParseScenarios(raw string, req game.ScenarioRequest) ([]models.ScenarioOption, error) {
	cleaned := StripFences(raw)

	var parsed rawScenarioList
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		// Some models return a bare array.
		var list []rawScenario
		if err2 := json.Unmarshal([]byte(cleaned), &list); err2 != nil {
			return nil, fmt.Errorf("failed to parse scenarios: %w", err)
		}
		parsed.Scenarios = list
	}

	scenarios := parsed.Scenarios
	if len(scenarios) == 0 {
		scenarios = parsed.Options
	}

	options := make([]models.ScenarioOption, 0, len(scenarios))
	for i, rs := range scenarios {
		objectives := rs.EndConditions.PrimaryObjectives
		if len(objectives) == 0 {
			objectives = rs.EndConditions.Primary2
		}
		if rs.Title == "" || len(objectives) == 0 {
			continue
		}

		threshold := rs.EndConditions.CompletionThreshold
		if threshold <= 0 || threshold > 1 {
			threshold = req.Threshold
		}
		maxRounds := rs.EndConditions.MaxRounds
		if maxRounds <= 0 {
			maxRounds = req.MaxRounds
		}

		id := rs.ID
		if id == "" {
			id = fmt.Sprintf("scenario-%d", i+1)
		}

		options = append(options, models.ScenarioOption{
			ID:      id,
			Title:   rs.Title,
			Summary: firstNonEmpty(rs.Summary, rs.Description),
			EndConditions: models.EndConditions{
				PrimaryObjectives:   objectives,
				SuccessCriteria:     rs.EndConditions.SuccessCriteria,
				FailureCriteria:     rs.EndConditions.FailureCriteria,
				CompletionThreshold: threshold,
				MaxRounds:           maxRounds,
			},
		})
	}

	if len(options) == 0 {
		return nil, fmt.Errorf("no usable scenarios in response")
	}
	return options, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

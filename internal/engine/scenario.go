package engine

import (
	"context"
	"fmt"
	"strings"

	"StoryLoom/server/internal/game"
	"StoryLoom/server/internal/models"
	"StoryLoom/server/internal/prompts"
)

// ScenarioGenerator produces the candidate scenarios offered for the
// lobby vote.
type ScenarioGenerator struct {
	client  *GMClient
	prompts *prompts.Engine
}

// NewScenarioGenerator wires a generator over a GM client.
func NewScenarioGenerator(client *GMClient, engine *prompts.Engine) *ScenarioGenerator {
	if engine == nil {
		engine = prompts.NewEngine()
	}
	return &ScenarioGenerator{client: client, prompts: engine}
}

// GenerateScenarios asks the model for three candidate scenarios tuned
// to the requested difficulty.
func (g *ScenarioGenerator) GenerateScenarios(ctx context.Context, req game.ScenarioRequest) ([]models.ScenarioOption, error) {
	theme := req.Theme
	if theme == "" {
		theme = "any setting that suits a small adventuring party"
	}
	keywords := "(none)"
	if len(req.Keywords) > 0 {
		keywords = strings.Join(req.Keywords, ", ")
	}
	threshold := req.Threshold
	if threshold <= 0 {
		threshold = 0.75
	}
	maxRounds := req.MaxRounds
	if maxRounds <= 0 {
		maxRounds = 30
	}

	prompt, err := g.prompts.Render("scenario_generation", map[string]string{
		"difficulty": req.Difficulty,
		"theme":      theme,
		"keywords":   keywords,
		"threshold":  fmt.Sprintf("%.2f", threshold),
		"max_rounds": fmt.Sprintf("%d", maxRounds),
	})
	if err != nil {
		return nil, err
	}

	raw, err := g.client.ChatJSON(ctx, gmSystem, prompt)
	if err != nil {
		return nil, err
	}
	return ParseScenarios(raw, req)
}

package engine

import (
	"context"
	"fmt"
	"strings"

	"StoryLoom/server/internal/game"
	"StoryLoom/server/internal/models"
	"StoryLoom/server/internal/prompts"
)

const gmSystem = "You are an experienced tabletop role-playing game master. You run cooperative stories for a small party, keep every player involved, and always follow the requested output format exactly."

// Narrator produces all game master text: the opening scene, round
// resolutions and the epilogue.
type Narrator struct {
	client  *GMClient
	prompts *prompts.Engine
}

// NewNarrator wires a narrator over a GM client.
func NewNarrator(client *GMClient, engine *prompts.Engine) *Narrator {
	if engine == nil {
		engine = prompts.NewEngine()
	}
	return &Narrator{client: client, prompts: engine}
}

// OpeningNarration writes the scene that starts the game.
func (n *Narrator) OpeningNarration(ctx context.Context, scenario models.ScenarioOption, players map[string]*models.Player) (string, error) {
	prompt, err := n.prompts.Render("opening_narration", map[string]string{
		"title":      scenario.Title,
		"summary":    scenario.Summary,
		"objectives": prompts.FormatList(scenario.EndConditions.PrimaryObjectives),
		"characters": formatCharacters(players),
	})
	if err != nil {
		return "", err
	}
	text, err := n.client.Chat(ctx, gmSystem, prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// NextScene resolves one round of simultaneous actions into narration,
// an optional image prompt, dice requests and a completion judgement.
func (n *Narrator) NextScene(ctx context.Context, nc game.NarrationContext) (*game.NarrationResult, error) {
	memories := "(none)"
	if len(nc.Memories) > 0 {
		memories = strings.Join(nc.Memories, "\n")
	}

	prompt, err := n.prompts.Render("round_resolution", map[string]string{
		"title":      nc.Scenario.Title,
		"summary":    nc.Scenario.Summary,
		"objectives": prompts.FormatList(nc.EndConditions.PrimaryObjectives),
		"round":      fmt.Sprintf("%d", nc.Round),
		"max_rounds": fmt.Sprintf("%d", nc.MaxRounds),
		"threshold":  fmt.Sprintf("%.0f%%", nc.EndConditions.CompletionThreshold*100),
		"log_tail":   formatLogTail(nc.LogTail),
		"memories":   memories,
		"actions":    formatActions(nc.Players, nc.Actions),
	})
	if err != nil {
		return nil, err
	}

	raw, err := n.client.ChatJSON(ctx, gmSystem, prompt)
	if err != nil {
		return nil, err
	}
	return ParseRoundResult(raw)
}

// EpilogueNarrative writes the closing text for a finished session.
func (n *Narrator) EpilogueNarrative(ctx context.Context, ec game.EpilogueContext) (string, error) {
	prompt, err := n.prompts.Render("epilogue", map[string]string{
		"title":         ec.Scenario.Title,
		"ending_type":   ec.Result.EndingType,
		"percentage":    fmt.Sprintf("%.0f", ec.Result.Percentage),
		"total_rounds":  fmt.Sprintf("%d", ec.TotalRounds),
		"summary":       ec.Summary,
		"contributions": formatContributions(ec.Contributions),
	})
	if err != nil {
		return "", err
	}
	text, err := n.client.Chat(ctx, gmSystem, prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func formatCharacters(players map[string]*models.Player) string {
	var lines []string
	for _, p := range players {
		name := p.CharacterName
		if name == "" {
			name = p.Name
		}
		line := "- " + name
		if p.CharacterDescription != "" {
			line += ": " + p.CharacterDescription
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return "(no characters)"
	}
	return strings.Join(lines, "\n")
}

func formatActions(players map[string]*models.Player, actions map[string]string) string {
	var lines []string
	for playerID, action := range actions {
		name := playerID
		if p, ok := players[playerID]; ok && p.CharacterName != "" {
			name = p.CharacterName
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", name, action))
	}
	if len(lines) == 0 {
		return "(no actions)"
	}
	return strings.Join(lines, "\n")
}

func formatLogTail(entries []models.LogEntry) string {
	if len(entries) == 0 {
		return "(the story has just begun)"
	}
	var lines []string
	for _, entry := range entries {
		lines = append(lines, fmt.Sprintf("[round %d, %s] %s", entry.Round, entry.Kind, entry.Content))
	}
	return strings.Join(lines, "\n")
}

func formatContributions(contributions []models.PlayerContribution) string {
	var lines []string
	for _, c := range contributions {
		name := c.CharacterName
		if name == "" {
			name = c.PlayerID
		}
		line := "- " + name
		if len(c.KeyActions) > 0 {
			line += ": " + strings.Join(c.KeyActions, "; ")
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return "(no party record)"
	}
	return strings.Join(lines, "\n")
}

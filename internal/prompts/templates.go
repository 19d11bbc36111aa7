// Package prompts holds the game master prompt templates and a small
// rendering engine over them. Templates use {{variable}} placeholders.
package prompts

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// Template is one named prompt with its placeholder variables.
type Template struct {
	Name        string   `json:"name"`
	Content     string   `json:"content"`
	Variables   []string `json:"variables"`
	Description string   `json:"description"`
}

// Engine stores registered templates and renders them.
type Engine struct {
	templates map[string]*Template
	mu        sync.RWMutex
}

// NewEngine creates an engine preloaded with the default templates.
func NewEngine() *Engine {
	e := &Engine{templates: make(map[string]*Template)}
	e.registerDefaults()
	return e
}

// Register adds or replaces a template.
func (e *Engine) Register(tmpl *Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(tmpl.Variables) == 0 {
		tmpl.Variables = ParseVariables(tmpl.Content)
	}
	e.templates[tmpl.Name] = tmpl
}

// Get retrieves a template by name.
func (e *Engine) Get(name string) (*Template, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	tmpl, ok := e.templates[name]
	if !ok {
		return nil, fmt.Errorf("template not found: %s", name)
	}
	return tmpl, nil
}

var varRegex = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Render substitutes vars into the named template. Unknown placeholders
// are left in place so a missing variable is visible in the output
// rather than silently blank.
func (e *Engine) Render(name string, vars map[string]string) (string, error) {
	tmpl, err := e.Get(name)
	if err != nil {
		return "", err
	}
	result := varRegex.ReplaceAllStringFunc(tmpl.Content, func(match string) string {
		key := varRegex.FindStringSubmatch(match)[1]
		if value, ok := vars[key]; ok {
			return value
		}
		return match
	})
	return result, nil
}

// ParseVariables extracts the placeholder names from template content.
func ParseVariables(content string) []string {
	matches := varRegex.FindAllStringSubmatch(content, -1)
	seen := make(map[string]bool)
	var vars []string
	for _, match := range matches {
		if len(match) > 1 && !seen[match[1]] {
			seen[match[1]] = true
			vars = append(vars, match[1])
		}
	}
	return vars
}

// FormatList renders a string slice as a numbered list for prompt
// interpolation.
func FormatList(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for i, item := range items {
		fmt.Fprintf(&b, "%d. %s\n", i+1, item)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (e *Engine) registerDefaults() {
	templates := []*Template{
		{
			Name:        "scenario_generation",
			Description: "Generates candidate scenarios for the lobby vote",
			Content: `You are the game master of a cooperative tabletop role-playing session.

Create exactly 3 distinct adventure scenarios for a group vote.

Difficulty: {{difficulty}}
Theme: {{theme}}
Keywords: {{keywords}}

Respond with a JSON object only, no surrounding prose, in this shape:
{
  "scenarios": [
    {
      "id": "short-slug",
      "title": "Scenario title",
      "summary": "Two or three sentences a player reads before voting.",
      "endConditions": {
        "primaryObjectives": ["objective 1", "objective 2", "objective 3"],
        "successCriteria": ["what counts as success"],
        "failureCriteria": ["what counts as failure"],
        "completionThreshold": {{threshold}},
        "maxRounds": {{max_rounds}}
      }
    }
  ]
}

Each scenario must have 2 to 4 primary objectives that can be achieved
through play. Make the three scenarios differ in setting and mood.`,
		},
		{
			Name:        "opening_narration",
			Description: "Narrates the opening scene when the game starts",
			Content: `You are the game master of a cooperative tabletop role-playing session.

Scenario: {{title}}
{{summary}}

Primary objectives:
{{objectives}}

The party:
{{characters}}

Write the opening narration in 150-250 words. Set the scene, introduce
the stakes, and place every character in it by name. Address the party
in the second person plural. End at a moment that invites the players
to act. Respond with the narration text only.`,
		},
		{
			Name:        "round_resolution",
			Description: "Resolves one round of simultaneous player actions",
			Content: `You are the game master of a cooperative tabletop role-playing session.

Scenario: {{title}}
{{summary}}

Primary objectives:
{{objectives}}

Round {{round}} of at most {{max_rounds}}.
Completion threshold: {{threshold}}.

Recent events:
{{log_tail}}

Relevant earlier moments:
{{memories}}

This round every player acted at once:
{{actions}}

Respond with a JSON object only, no surrounding prose:
{
  "narration": "200-350 words continuing the story, weaving in every player's action",
  "imagePrompt": "one sentence describing the round's key visual moment",
  "diceRequests": [
    {"numDice": 1, "numSides": 20, "reason": "why this roll happens"}
  ],
  "completion": {
    "percentage": 0,
    "isCompleted": false,
    "forceEnding": false,
    "achievedObjectives": []
  }
}

Rules:
- Weave all actions into one coherent scene; never resolve them as a list.
- Ask for dice only when an outcome is genuinely uncertain, at most 2 rolls.
- "percentage" estimates overall objective progress from 0 to 100.
- Set "isCompleted" true only when the scenario has truly reached an ending.
- Set "forceEnding" true only when the story cannot reasonably continue,
  for example a total party defeat or an irreversible catastrophe.
- List any primary objectives the party has now achieved in "achievedObjectives".`,
		},
		{
			Name:        "epilogue",
			Description: "Writes the closing narrative for a finished session",
			Content: `You are the game master closing a cooperative tabletop role-playing session.

Scenario: {{title}}
Ending: {{ending_type}} at {{percentage}}% completion after {{total_rounds}} rounds.

What happened:
{{summary}}

The party:
{{contributions}}

Write a 200-300 word epilogue that matches the ending. Honor each
character's part in the story by name. A success ends with earned
resolution; a failure or disaster with consequence and weight; a tragic
success with both victory and cost. Respond with the epilogue text only.`,
		},
		{
			Name:        "opening_image",
			Description: "Image prompt for the opening scene",
			Content: `{{summary}}, establishing shot, dramatic lighting, detailed fantasy illustration, no text`,
		},
	}
	for _, tmpl := range templates {
		e.Register(tmpl)
	}
}

package models

import "time"

// Session status values. Transitions only ever move forward.
const (
	StatusLobby        = "lobby"
	StatusVoting       = "voting"
	StatusCreatingChar = "creating_char"
	StatusReadyToStart = "ready_to_start"
	StatusPlaying      = "playing"
	StatusCompleted    = "completed"
	StatusEpilogue     = "epilogue"
	StatusFinished     = "finished"
)

// Log entry kinds.
const (
	LogNarration    = "narration"
	LogPlayerAction = "player_action"
	LogGMResponse   = "gm_response"
	LogImage        = "image"
	LogDiceRoll     = "dice_roll"
)

// Ending types produced by the completion evaluator.
const (
	EndingGreatSuccess  = "great_success"
	EndingSuccess       = "success"
	EndingFailure       = "failure"
	EndingDisaster      = "disaster"
	EndingTragicSuccess = "tragic_success"
	EndingForced        = "forced"
)

// Opening media generation status.
const (
	MediaGenerating = "generating"
	MediaReady      = "ready"
	MediaError      = "error"
	MediaDisabled   = "disabled"
)

// Abilities holds the six D&D-style ability scores. Bounds are a UI
// concern; the server only requires integers.
type Abilities struct {
	Strength     int `json:"strength"`
	Dexterity    int `json:"dexterity"`
	Constitution int `json:"constitution"`
	Intelligence int `json:"intelligence"`
	Wisdom       int `json:"wisdom"`
	Charisma     int `json:"charisma"`
}

// DefaultAbilities returns the baseline score block.
func DefaultAbilities() Abilities {
	return Abilities{10, 10, 10, 10, 10, 10}
}

// Player is one member of a session.
type Player struct {
	Name                 string    `json:"name"`
	CharacterName        string    `json:"characterName,omitempty"`
	CharacterDescription string    `json:"characterDescription,omitempty"`
	CharacterImageURL    string    `json:"characterImageUrl,omitempty"`
	Abilities            Abilities `json:"abilities"`
	IsReady              bool      `json:"isReady"`
	JoinedAt             time.Time `json:"joinedAt"`
}

// EndConditions are the completion parameters copied from the decided
// scenario onto the session.
type EndConditions struct {
	PrimaryObjectives   []string `json:"primaryObjectives"`
	SuccessCriteria     []string `json:"successCriteria,omitempty"`
	FailureCriteria     []string `json:"failureCriteria,omitempty"`
	CompletionThreshold float64  `json:"completionThreshold"`
	MaxRounds           int      `json:"maxRounds"`
}

// ScenarioOption is one candidate scenario offered during voting.
type ScenarioOption struct {
	ID            string        `json:"id"`
	Title         string        `json:"title"`
	Summary       string        `json:"summary"`
	EndConditions EndConditions `json:"endConditions"`
}

// ScenarioVotes is the voter set for one scenario. Votes are kept as an
// ordered slice rather than a map: the tie-break picks the first
// scenario, in insertion order, that holds the maximum count.
type ScenarioVotes struct {
	ScenarioID string   `json:"scenarioId"`
	Voters     []string `json:"voters"`
}

// LogEntry is one immutable line of the shared narrative log.
type LogEntry struct {
	Round     int       `json:"round"`
	Kind      string    `json:"kind"`
	Content   string    `json:"content"`
	ImageURL  string    `json:"imageUrl,omitempty"`
	PlayerID  string    `json:"playerId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// CompletionResult is set at most once, when completion is first
// detected.
type CompletionResult struct {
	Percentage          float64  `json:"percentage"`
	IsCompleted         bool     `json:"isCompleted"`
	EndingType          string   `json:"endingType"`
	RemainingObjectives []string `json:"remainingObjectives"`
	AchievedObjectives  []string `json:"achievedObjectives"`
	ForceEnding         bool     `json:"forceEnding,omitempty"`
}

// OpeningMedia tracks the fire-and-forget opening-scene generation.
type OpeningMedia struct {
	Status string `json:"status"`
	URL    string `json:"url,omitempty"`
	Prompt string `json:"prompt,omitempty"`
}

// PlayerContribution summarizes one player's part in the adventure for
// the epilogue.
type PlayerContribution struct {
	PlayerID         string   `json:"playerId"`
	CharacterName    string   `json:"characterName"`
	KeyActions       []string `json:"keyActions"`
	DiceRolls        []string `json:"diceRolls"`
	HighlightMoments []string `json:"highlightMoments"`
}

// Epilogue is the generated wrap-up of a finished session.
type Epilogue struct {
	EndingNarrative      string               `json:"endingNarrative"`
	EndingType           string               `json:"endingType"`
	PlayerContributions  []PlayerContribution `json:"playerContributions"`
	AdventureSummary     string               `json:"adventureSummary"`
	TotalRounds          int                  `json:"totalRounds"`
	CompletionPercentage float64              `json:"completionPercentage"`
	GeneratedAt          time.Time            `json:"generatedAt"`
}

// Session is the root document, one per game room. All mutation happens
// inside store transactions; the log is append-only and the status only
// moves forward.
type Session struct {
	ID                string             `json:"id"`
	RoomID            string             `json:"roomId"`
	HostID            string             `json:"hostId"`
	Status            string             `json:"status"`
	CreatedAt         time.Time          `json:"createdAt"`
	Players           map[string]*Player `json:"players"`
	PlayerOrder       []string           `json:"playerOrder"`
	ScenarioOptions   []ScenarioOption   `json:"scenarioOptions,omitempty"`
	Votes             []ScenarioVotes    `json:"votes,omitempty"`
	DecidedScenarioID string             `json:"decidedScenarioId,omitempty"`
	EndConditions     *EndConditions     `json:"endConditions,omitempty"`
	OpeningMedia      *OpeningMedia      `json:"openingMedia,omitempty"`
	CurrentRound      int                `json:"currentRound"`
	PendingActions    map[string]string  `json:"pendingActions,omitempty"`
	Log               []LogEntry         `json:"log"`
	CompletionResult  *CompletionResult  `json:"completionResult,omitempty"`
	Epilogue          *Epilogue          `json:"epilogue,omitempty"`
}

// DecidedScenario returns the scenario option matching
// DecidedScenarioID, or nil before voting concludes.
func (s *Session) DecidedScenario() *ScenarioOption {
	for i := range s.ScenarioOptions {
		if s.ScenarioOptions[i].ID == s.DecidedScenarioID {
			return &s.ScenarioOptions[i]
		}
	}
	return nil
}

// IsMember reports whether the given player id belongs to the session.
func (s *Session) IsMember(playerID string) bool {
	_, ok := s.Players[playerID]
	return ok
}

// TotalVotes sums all voter-set sizes. A voter appears in at most one
// set, so this equals the number of players who have voted.
func (s *Session) TotalVotes() int {
	n := 0
	for i := range s.Votes {
		n += len(s.Votes[i].Voters)
	}
	return n
}

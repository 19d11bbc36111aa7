// Package game implements the session state machine and its two
// transactional aggregation points: scenario-vote tallying and
// per-round action aggregation. Everything long-running is delegated to
// collaborators and runs outside store transactions.
package game

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"math/big"
	"time"

	"StoryLoom/server/internal/dice"
	"StoryLoom/server/internal/models"
	"StoryLoom/server/internal/storage"
	"StoryLoom/server/internal/tasks"
)

// NarrationContext is everything the narration collaborator sees when
// resolving a round.
type NarrationContext struct {
	Scenario      models.ScenarioOption
	EndConditions models.EndConditions
	Round         int
	MaxRounds     int
	Players       map[string]*models.Player
	Actions       map[string]string
	LogTail       []models.LogEntry
	Memories      []string
}

// DiceRequest is one roll the collaborator asks the dice engine to
// perform.
type DiceRequest struct {
	NumDice  int
	NumSides int
	Reason   string
}

// NarrationResult is the canonical shape of a resolved round. Optional
// fields degrade to zero values rather than failing the round.
type NarrationResult struct {
	Narration    string
	ImagePrompt  string
	DiceRequests []DiceRequest
	Judgement    *Judgement
}

// EpilogueContext feeds epilogue narrative generation.
type EpilogueContext struct {
	Scenario      models.ScenarioOption
	Result        models.CompletionResult
	TotalRounds   int
	Summary       string
	Contributions []models.PlayerContribution
}

// Narrator is the text-generation collaborator. Failures never stall a
// session; the service substitutes fallback content.
type Narrator interface {
	OpeningNarration(ctx context.Context, scenario models.ScenarioOption, players map[string]*models.Player) (string, error)
	NextScene(ctx context.Context, nc NarrationContext) (*NarrationResult, error)
	EpilogueNarrative(ctx context.Context, ec EpilogueContext) (string, error)
}

// ScenarioRequest parametrizes scenario generation.
type ScenarioRequest struct {
	Difficulty string
	Keywords   []string
	Theme      string
	MaxRounds  int
	Threshold  float64
}

// ScenarioGenerator produces candidate scenarios for the vote.
type ScenarioGenerator interface {
	GenerateScenarios(ctx context.Context, req ScenarioRequest) ([]models.ScenarioOption, error)
}

// ImageGenerator returns a URL for a generated image.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

// VideoGenerator returns a URL for a generated video clip.
type VideoGenerator interface {
	GenerateVideo(ctx context.Context, prompt string) (string, error)
}

// MemoryStore records narrative moments and recalls related ones for
// the game master's context. Both directions are best-effort.
type MemoryStore interface {
	Record(ctx context.Context, sessionID string, entries []models.LogEntry) error
	Related(ctx context.Context, sessionID, query string, limit int) ([]string, error)
}

// Archiver persists a finished session.
type Archiver interface {
	ArchiveSession(archive *models.SessionArchive, entries []models.ArchivedLogEntry) error
}

// Notifier receives a post-commit signal after every session mutation.
type Notifier interface {
	SessionUpdated(sess *models.Session)
}

// Options bundle the tunables of a Service.
type Options struct {
	RoomSize   int
	LogTail    int
	MemoryHits int
}

// Service orchestrates sessions. All mutation goes through the session
// store's atomic Update; collaborator calls happen before the
// transaction (content generation) or after it commits (scheduling).
type Service struct {
	store     storage.SessionStore
	narrator  Narrator
	scenarios ScenarioGenerator
	images    ImageGenerator
	videos    VideoGenerator
	memories  MemoryStore
	archiver  Archiver
	notifier  Notifier
	queue     *tasks.Queue
	roller    *dice.Roller

	roomSize   int
	logTail    int
	memoryHits int

	clock func() time.Time
	newID func() string
}

// NewService wires a Service. narrator and scenarios are required; the
// remaining collaborators are optional and degrade to fallbacks.
func NewService(store storage.SessionStore, narrator Narrator, scenarios ScenarioGenerator, queue *tasks.Queue, opts Options) *Service {
	roomSize := opts.RoomSize
	if roomSize <= 0 {
		roomSize = 4
	}
	logTail := opts.LogTail
	if logTail <= 0 {
		logTail = 20
	}
	memoryHits := opts.MemoryHits
	if memoryHits <= 0 {
		memoryHits = 5
	}
	return &Service{
		store:      store,
		narrator:   narrator,
		scenarios:  scenarios,
		queue:      queue,
		roller:     dice.NewRoller(),
		roomSize:   roomSize,
		logTail:    logTail,
		memoryHits: memoryHits,
		clock:      time.Now,
		newID:      newSessionID,
	}
}

// SetImageGenerator attaches the image collaborator.
func (s *Service) SetImageGenerator(g ImageGenerator) { s.images = g }

// SetVideoGenerator attaches the video collaborator.
func (s *Service) SetVideoGenerator(g VideoGenerator) { s.videos = g }

// SetMemoryStore attaches the narrative memory collaborator.
func (s *Service) SetMemoryStore(m MemoryStore) { s.memories = m }

// SetArchiver attaches the archive store.
func (s *Service) SetArchiver(a Archiver) { s.archiver = a }

// SetNotifier attaches the post-commit event sink.
func (s *Service) SetNotifier(n Notifier) { s.notifier = n }

func newSessionID() string {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return hex.EncodeToString([]byte(time.Now().String()))[:24]
	}
	return hex.EncodeToString(b)
}

func newRoomID() string {
	const digits = "0123456789"
	id := make([]byte, 6)
	for i := range id {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(digits))))
		if err != nil {
			id[i] = digits[time.Now().Nanosecond()%len(digits)]
			continue
		}
		id[i] = digits[n.Int64()]
	}
	return string(id)
}

func (s *Service) notify(sess *models.Session) {
	if s.notifier != nil && sess != nil {
		s.notifier.SessionUpdated(sess)
	}
}

// CreateSession opens a new room in the lobby state with the host as
// its first player.
func (s *Service) CreateSession(ctx context.Context, hostID string) (*models.Session, error) {
	now := s.clock()
	sess := &models.Session{
		ID:        s.newID(),
		HostID:    hostID,
		Status:    models.StatusLobby,
		CreatedAt: now,
		Players: map[string]*models.Player{
			hostID: {Name: hostID, Abilities: models.DefaultAbilities(), JoinedAt: now},
		},
		PlayerOrder: []string{hostID},
		Log:         []models.LogEntry{},
	}

	// Room ids collide rarely; retry with a fresh one.
	for attempt := 0; attempt < 5; attempt++ {
		sess.RoomID = newRoomID()
		err := s.store.Create(ctx, sess)
		if err == nil {
			s.notify(sess)
			return sess, nil
		}
		if !errors.Is(err, storage.ErrRoomTaken) {
			return nil, err
		}
	}
	return nil, storage.ErrRoomTaken
}

// Join adds a player to a lobby. Joining a room you are already in is
// idempotent.
func (s *Service) Join(ctx context.Context, roomID, playerID string) (*models.Session, error) {
	sess, err := s.store.GetByRoomID(ctx, roomID)
	if err != nil {
		return nil, err
	}

	joined := false
	updated, err := s.store.Update(ctx, sess.ID, func(sess *models.Session) error {
		if sess.IsMember(playerID) {
			return nil
		}
		if err := requireStatus(sess, models.StatusLobby); err != nil {
			return err
		}
		if len(sess.Players) >= s.roomSize {
			return ErrRoomFull
		}
		sess.Players[playerID] = &models.Player{
			Name:      playerID,
			Abilities: models.DefaultAbilities(),
			JoinedAt:  s.clock(),
		}
		sess.PlayerOrder = append(sess.PlayerOrder, playerID)
		joined = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if joined {
		s.notify(updated)
	}
	return updated, nil
}

// Get returns the session document. Side-effect free.
func (s *Service) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	return s.store.Get(ctx, sessionID)
}

// difficulty presets copied onto generated scenarios.
var difficultyPresets = map[string]ScenarioRequest{
	"easy":    {MaxRounds: 40, Threshold: 0.6},
	"normal":  {MaxRounds: 30, Threshold: 0.75},
	"hard":    {MaxRounds: 25, Threshold: 0.8},
	"extreme": {MaxRounds: 20, Threshold: 0.9},
}

// VotingOptions parametrize StartVoting.
type VotingOptions struct {
	Difficulty          string
	Keywords            []string
	Theme               string
	OpeningMediaEnabled bool
}

// StartVoting is the host-only lobby→voting transition. Scenario
// options are generated first; a generator failure falls back to
// built-in scenarios so the lobby still progresses.
func (s *Service) StartVoting(ctx context.Context, sessionID, playerID string, opts VotingOptions) (*models.Session, error) {
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := requireHost(sess, playerID); err != nil {
		return nil, err
	}
	if err := requireStatus(sess, models.StatusLobby); err != nil {
		return nil, err
	}

	preset, ok := difficultyPresets[opts.Difficulty]
	if !ok {
		preset = difficultyPresets["normal"]
	}
	req := ScenarioRequest{
		Difficulty: opts.Difficulty,
		Keywords:   opts.Keywords,
		Theme:      opts.Theme,
		MaxRounds:  preset.MaxRounds,
		Threshold:  preset.Threshold,
	}

	options, err := s.scenarios.GenerateScenarios(ctx, req)
	if err != nil || len(options) == 0 {
		log.Printf("[Game] scenario generation failed for %s, using fallbacks: %v", sessionID, err)
		options = fallbackScenarios(req)
	}

	updated, err := s.store.Update(ctx, sessionID, func(sess *models.Session) error {
		if err := requireHost(sess, playerID); err != nil {
			return err
		}
		if err := advance(sess, models.StatusVoting); err != nil {
			return err
		}
		sess.ScenarioOptions = options
		sess.Votes = []models.ScenarioVotes{}
		media := &models.OpeningMedia{Status: models.MediaDisabled}
		if opts.OpeningMediaEnabled {
			media.Status = models.MediaGenerating
		}
		sess.OpeningMedia = media
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(updated)
	return updated, nil
}

// CharacterInput is the payload of CreateCharacter.
type CharacterInput struct {
	Name        string
	Description string
	Abilities   *models.Abilities
}

// CreateCharacter sets a player's character sheet and generates a
// portrait. Portrait failures substitute a placeholder reference.
func (s *Service) CreateCharacter(ctx context.Context, sessionID, playerID string, in CharacterInput) (*models.Session, error) {
	if in.Name == "" {
		return nil, ErrEmptyCharacterName
	}

	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := requireStatus(sess, models.StatusCreatingChar); err != nil {
		return nil, err
	}
	if err := requireMember(sess, playerID); err != nil {
		return nil, err
	}

	imageURL := s.generatePortrait(ctx, in)

	updated, err := s.store.Update(ctx, sessionID, func(sess *models.Session) error {
		if err := requireStatus(sess, models.StatusCreatingChar); err != nil {
			return err
		}
		if err := requireMember(sess, playerID); err != nil {
			return err
		}
		p := sess.Players[playerID]
		p.CharacterName = in.Name
		p.CharacterDescription = in.Description
		p.CharacterImageURL = imageURL
		if in.Abilities != nil {
			p.Abilities = *in.Abilities
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(updated)
	return updated, nil
}

const placeholderPortraitURL = "https://placehold.co/400x400?text=adventurer"

func (s *Service) generatePortrait(ctx context.Context, in CharacterInput) string {
	if s.images == nil {
		return placeholderPortraitURL
	}
	prompt := fmt.Sprintf("Portrait of %s, %s, face and upper body, fantasy character art", in.Name, in.Description)
	url, err := s.images.GenerateImage(ctx, prompt)
	if err != nil || url == "" {
		log.Printf("[Game] portrait generation failed, using placeholder: %v", err)
		return placeholderPortraitURL
	}
	return url
}

// Ready flags the calling player as ready.
func (s *Service) Ready(ctx context.Context, sessionID, playerID string) (*models.Session, error) {
	updated, err := s.store.Update(ctx, sessionID, func(sess *models.Session) error {
		if err := requireStatus(sess, models.StatusCreatingChar, models.StatusReadyToStart); err != nil {
			return err
		}
		if err := requireMember(sess, playerID); err != nil {
			return err
		}
		sess.Players[playerID].IsReady = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(updated)
	return updated, nil
}

// ProceedToReady is the host-only creating_char→ready_to_start
// transition. Every player must have a character name and a portrait.
func (s *Service) ProceedToReady(ctx context.Context, sessionID, playerID string) (*models.Session, error) {
	updated, err := s.store.Update(ctx, sessionID, func(sess *models.Session) error {
		if err := requireHost(sess, playerID); err != nil {
			return err
		}
		if err := requireStatus(sess, models.StatusCreatingChar); err != nil {
			return err
		}
		for _, p := range sess.Players {
			if p.CharacterName == "" || p.CharacterImageURL == "" {
				return ErrCharactersNotReady
			}
		}
		return advance(sess, models.StatusReadyToStart)
	})
	if err != nil {
		return nil, err
	}
	s.notify(updated)
	return updated, nil
}

const fallbackOpeningNarration = "The adventurers gather as the story begins. An uneasy quiet settles over them; whatever happens next is in their hands."

// StartGame is the host-only ready_to_start→playing transition. It
// generates the opening narration, sets currentRound to 1 and appends
// the opening log entry.
func (s *Service) StartGame(ctx context.Context, sessionID, playerID string) (*models.Session, error) {
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := requireHost(sess, playerID); err != nil {
		return nil, err
	}
	if err := requireStatus(sess, models.StatusReadyToStart); err != nil {
		return nil, err
	}

	scenario := sess.DecidedScenario()
	if scenario == nil {
		return nil, fmt.Errorf("%w: no decided scenario", ErrWrongState)
	}

	narration, err := s.narrator.OpeningNarration(ctx, *scenario, sess.Players)
	if err != nil || narration == "" {
		log.Printf("[Game] opening narration failed for %s, using fallback: %v", sessionID, err)
		narration = fallbackOpeningNarration
	}

	updated, err := s.store.Update(ctx, sessionID, func(sess *models.Session) error {
		if err := requireHost(sess, playerID); err != nil {
			return err
		}
		if err := advance(sess, models.StatusPlaying); err != nil {
			return err
		}
		sess.CurrentRound = 1
		sess.PendingActions = map[string]string{}
		sess.Log = append(sess.Log, models.LogEntry{
			Round:     0,
			Kind:      models.LogNarration,
			Content:   narration,
			Timestamp: s.clock(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recordMemories(updated.ID, updated.Log[len(updated.Log)-1:])
	s.notify(updated)
	return updated, nil
}

// ManualRoll rolls dice on a player's behalf and appends the outcome to
// the log.
func (s *Service) ManualRoll(ctx context.Context, sessionID, playerID string, numDice, numSides int, description string) (dice.Result, error) {
	result, err := s.roller.Roll(numDice, numSides)
	if err != nil {
		return dice.Result{}, err
	}

	content := result.String()
	if description != "" {
		content = description + ": " + content
	}

	updated, err := s.store.Update(ctx, sessionID, func(sess *models.Session) error {
		if err := requireStatus(sess, models.StatusPlaying); err != nil {
			return err
		}
		if err := requireMember(sess, playerID); err != nil {
			return err
		}
		sess.Log = append(sess.Log, models.LogEntry{
			Round:     sess.CurrentRound,
			Kind:      models.LogDiceRoll,
			Content:   content,
			PlayerID:  playerID,
			Timestamp: s.clock(),
		})
		return nil
	})
	if err != nil {
		return dice.Result{}, err
	}
	s.notify(updated)
	return result, nil
}

// ManualComplete is the host-only escape hatch that force-completes a
// running scenario with a 100% forced result.
func (s *Service) ManualComplete(ctx context.Context, sessionID, playerID string) (*models.Session, error) {
	updated, err := s.store.Update(ctx, sessionID, func(sess *models.Session) error {
		if err := requireHost(sess, playerID); err != nil {
			return err
		}
		if err := advance(sess, models.StatusCompleted); err != nil {
			return err
		}
		sess.CompletionResult = &models.CompletionResult{
			Percentage:          100.0,
			IsCompleted:         true,
			EndingType:          models.EndingForced,
			RemainingObjectives: []string{},
			AchievedObjectives:  []string{"Scenario completed by host"},
			ForceEnding:         true,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(updated)
	return updated, nil
}

func (s *Service) recordMemories(sessionID string, entries []models.LogEntry) {
	if s.memories == nil || len(entries) == 0 {
		return
	}
	entries = append([]models.LogEntry(nil), entries...)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.memories.Record(ctx, sessionID, entries); err != nil {
			log.Printf("[Game] memory record failed for %s: %v", sessionID, err)
		}
	}()
}

func fallbackScenarios(req ScenarioRequest) []models.ScenarioOption {
	mk := func(id, title, summary string, objectives []string) models.ScenarioOption {
		return models.ScenarioOption{
			ID:      id,
			Title:   title,
			Summary: summary,
			EndConditions: models.EndConditions{
				PrimaryObjectives:   objectives,
				CompletionThreshold: req.Threshold,
				MaxRounds:           req.MaxRounds,
			},
		}
	}
	return []models.ScenarioOption{
		mk("fallback-forest", "The Vanished Village",
			"Villagers have gone missing in an old enchanted forest. A curse must be found and broken.",
			[]string{"Find the missing villagers", "Discover the source of the curse", "Break the curse"}),
		mk("fallback-station", "Signal From Station Nine",
			"A mining station on the system's edge went silent. The crew must learn why and survive the answer.",
			[]string{"Restore contact with the station", "Identify what silenced the crew", "Escape with the survivors"}),
		mk("fallback-harbor", "Fog Over Blackharbor",
			"Ships vanish in the harbor fog and the city looks the other way. Someone has to look closer.",
			[]string{"Trace the missing ships", "Expose who profits from the disappearances", "End the vanishings"}),
	}
}

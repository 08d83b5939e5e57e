// core.go
//
// The session/reconciliation core: who is signed in, which senior's records are active,
// and the live preferences and history for that target.
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of eagleview.
// eagleview is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// eagleview is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with eagleview.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/localnerve/eagleview/internal/gateway"
	"github.com/localnerve/eagleview/internal/metrics"
	"github.com/localnerve/eagleview/internal/models"
	"github.com/localnerve/eagleview/internal/retry"
	"github.com/localnerve/eagleview/internal/speech"
	"go.uber.org/zap"
)

var (
	ErrNotSignedIn   = errors.New("not signed in")
	ErrCaregiverOnly = errors.New("only a caregiver can do that")
	ErrUnknownSenior = errors.New("senior is not managed by this caregiver")
	ErrNoTarget      = errors.New("no senior selected")
	ErrClosed        = errors.New("session closed")
)

// Banner messages for background persistence failures
const (
	BannerHistoryNotSaved     = "Your scan is shown here but could not be saved. It will not appear on other devices."
	BannerPreferencesNotSaved = "Your settings changed here but could not be saved."
)

const persistTimeout = 30 * time.Second

// Vision analyzes images and answers follow-up questions
type Vision interface {
	Analyze(ctx context.Context, image string, kind models.AnalysisType, schedule string) (json.RawMessage, error)
	Ask(ctx context.Context, result models.AnalysisResult, question string) (string, error)
}

// Speaker is the single utterance speech slot
type Speaker interface {
	Speak(text string)
	Cancel()
}

// Options tune reconciliation
type Options struct {
	Retry            retry.Policy
	HistoryPageSize  int
	NoteReadoutDelay time.Duration
	// Healer dedupes profile resolution across cores; one is created when nil
	Healer *retry.Healer[models.User]
	// Now is the clock for analysis timestamps
	Now func() time.Time
}

// DefaultOptions match the observed client behavior
func DefaultOptions() Options {
	return Options{
		Retry:            retry.Policy{Attempts: 3, Delay: 800 * time.Millisecond},
		HistoryPageSize:  50,
		NoteReadoutDelay: 1500 * time.Millisecond,
	}
}

// Snapshot is a read-only copy of the session state
type Snapshot struct {
	User        *models.User            `json:"user"`
	TargetID    string                  `json:"activeTargetId,omitempty"`
	Seniors     []models.User           `json:"seniors"`
	Preferences models.Preferences      `json:"preferences"`
	History     []models.AnalysisResult `json:"history"`
	Banner      string                  `json:"banner,omitempty"`
	HasReadNote bool                    `json:"hasReadNote"`
	OnDashboard bool                    `json:"onDashboard"`
}

type event struct {
	auth  *gateway.AuthEvent
	adopt *models.User
	done  chan struct{}
}

type persistCmd struct {
	op string
	fn func(context.Context) error
}

// Core holds one session. Auth events are handled one at a time on the core's event loop;
// every other operation is safe for concurrent use.
type Core struct {
	store    gateway.Store
	identity gateway.Identity
	vision   Vision
	speaker  Speaker
	log      *zap.Logger
	opts     Options
	healer   *retry.Healer[models.User]

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	user        *models.User
	targetID    string
	seniors     []models.User
	prefs       models.Preferences
	history     []models.AnalysisResult
	banner      string
	hasReadNote bool
	onDashboard bool
	// gen changes on every target switch; callbacks from older generations are dropped
	gen         uint64
	unsubscribe gateway.Unsubscribe
	noteTimer   *time.Timer
	noteSeq     uint64
	processed   uint64
	settled     chan struct{}

	analyzing atomic.Bool

	pendingMu   sync.Mutex
	pendingN    int
	pendingIdle chan struct{}

	events      chan event
	persistQ    chan persistCmd
	closing     chan struct{}
	closeOnce   sync.Once
	loops       sync.WaitGroup
	stopAuthSub gateway.Unsubscribe
}

// New creates a Core and starts its event loop and persist worker. vision and speaker may be nil.
func New(store gateway.Store, identity gateway.Identity, vision Vision, speaker Speaker, log *zap.Logger, opts Options) *Core {
	defaults := DefaultOptions()
	if opts.Retry.Attempts < 1 {
		opts.Retry = defaults.Retry
	}
	if opts.HistoryPageSize < 1 {
		opts.HistoryPageSize = defaults.HistoryPageSize
	}
	if opts.NoteReadoutDelay <= 0 {
		opts.NoteReadoutDelay = defaults.NoteReadoutDelay
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	healer := opts.Healer
	if healer == nil {
		healer = retry.NewHealer[models.User](opts.Retry)
	}
	if speaker == nil {
		speaker = silentSpeaker{}
	}
	if log == nil {
		log = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)

	c := &Core{
		store:       store,
		identity:    identity,
		vision:      vision,
		speaker:     speaker,
		log:         log,
		opts:        opts,
		healer:      healer,
		ctx:         ctx,
		cancel:      cancel,
		settled:     make(chan struct{}),
		pendingIdle: idle,
		events:      make(chan event, 16),
		persistQ:    make(chan persistCmd, 64),
		closing:     make(chan struct{}),
	}

	c.loops.Add(2)
	go c.run()
	go c.persistLoop()

	c.stopAuthSub = identity.OnAuthEvent(c.OnAuthChange)
	return c
}

// OnAuthChange queues a session transition for the event loop
func (c *Core) OnAuthChange(ev gateway.AuthEvent) {
	c.enqueue(event{auth: &ev})
}

func (c *Core) enqueue(ev event) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.closing:
		return false
	}
}

func (c *Core) run() {
	defer c.loops.Done()
	for {
		select {
		case ev := <-c.events:
			c.handle(ev)
			if ev.done != nil {
				close(ev.done)
			}
			c.mu.Lock()
			c.processed++
			close(c.settled)
			c.settled = make(chan struct{})
			c.mu.Unlock()
		case <-c.closing:
			return
		}
	}
}

func (c *Core) handle(ev event) {
	if ev.adopt != nil {
		c.adopt(*ev.adopt)
		return
	}

	switch ev.auth.Kind {
	case gateway.SignedIn, gateway.Restored:
		c.signIn(*ev.auth)
	case gateway.SignedOut:
		c.signOut()
	}
}

// resolveProfile fetches the profile with bounded retries, healing a missing one with a
// default profile. It never fails; a store outage yields an unsaved default profile.
func (c *Core) resolveProfile(id, email string) models.User {
	lookup := func(ctx context.Context) (models.User, error) {
		return c.store.GetProfile(ctx, id)
	}
	heal := func(ctx context.Context) (models.User, error) {
		c.log.Info("profile missing after retries, creating default profile", zap.String("user_id", id))
		metrics.SelfHeals.Inc()
		return c.store.EnsureProfile(ctx, models.DefaultProfile(id, email))
	}
	onRetry := retry.OnRetry(func(attempt int, err error) {
		metrics.ProfileRetries.Inc()
		c.log.Debug("profile lookup retry",
			zap.String("user_id", id), zap.Int("attempt", attempt), zap.Error(err))
	})

	user, _, err := c.healer.Resolve(c.ctx, id, lookup, heal, onRetry)
	if err != nil {
		c.log.Warn("profile unavailable, continuing with default profile",
			zap.String("user_id", id), zap.Error(err))
		return models.DefaultProfile(id, email)
	}
	return user
}

func (c *Core) signIn(ev gateway.AuthEvent) {
	user := c.resolveProfile(ev.IdentityID, ev.Email)

	c.mu.Lock()
	old := c.teardownLocked()
	c.user = &user
	c.seniors = nil
	c.banner = ""
	c.hasReadNote = false
	c.mu.Unlock()
	if old != nil {
		old()
	}

	c.log.Info("signed in",
		zap.String("user_id", user.ID), zap.String("role", string(user.Role)), zap.String("event", ev.Kind.String()))
	c.enterRole(user)
}

func (c *Core) enterRole(user models.User) {
	if user.IsCaregiver() {
		if _, err := c.refreshSeniors(c.ctx, user.ID); err != nil {
			c.log.Warn("failed to load managed seniors", zap.String("caregiver_id", user.ID), zap.Error(err))
		}
		return
	}
	c.switchTarget(user.ID, user.ID)
}

// adopt replaces the signed in profile when it is the same identity, re-entering the role
// if it changed
func (c *Core) adopt(user models.User) {
	c.mu.Lock()
	if c.user == nil || c.user.ID != user.ID {
		c.mu.Unlock()
		return
	}
	roleChanged := c.user.Role != user.Role
	c.user = &user
	var old gateway.Unsubscribe
	if roleChanged {
		old = c.teardownLocked()
		c.seniors = nil
	}
	c.mu.Unlock()
	if old != nil {
		old()
	}

	if roleChanged {
		c.enterRole(user)
	}
}

func (c *Core) signOut() {
	c.mu.Lock()
	old := c.teardownLocked()
	c.user = nil
	c.seniors = nil
	c.banner = ""
	c.onDashboard = false
	c.mu.Unlock()
	if old != nil {
		old()
	}
	c.speaker.Cancel()
	c.log.Info("signed out")
}

// teardownLocked drops the active target and returns its subscription for the caller to
// dispose outside the lock
func (c *Core) teardownLocked() gateway.Unsubscribe {
	c.gen++
	old := c.unsubscribe
	c.unsubscribe = nil
	c.targetID = ""
	c.prefs = models.Preferences{}
	c.history = nil
	c.stopNoteTimerLocked()
	return old
}

// switchTarget makes targetID active for the signed in user userID. An empty targetID clears it.
func (c *Core) switchTarget(userID, targetID string) {
	c.mu.Lock()
	if c.user == nil || c.user.ID != userID {
		c.mu.Unlock()
		return
	}
	if targetID != "" && c.targetID == targetID {
		c.mu.Unlock()
		return
	}
	old := c.teardownLocked()
	c.targetID = targetID
	if targetID != "" {
		c.prefs = models.DefaultPreferences(targetID)
	}
	gen := c.gen
	c.mu.Unlock()

	// the old subscription is gone before the new one starts
	if old != nil {
		old()
	}
	if targetID != "" {
		c.observeTarget(gen, targetID)
	}
}

// observeTarget subscribes to the target's preferences and fetches its history page
func (c *Core) observeTarget(gen uint64, targetID string) {
	unsubscribe, err := c.store.SubscribePreferences(c.ctx, targetID, func(p models.Preferences) {
		c.applyPreferences(gen, targetID, p)
	})
	if err != nil {
		c.log.Warn("preferences subscription failed, preferences will not update",
			zap.String("target_id", targetID), zap.Error(err))
	} else {
		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			unsubscribe()
		} else {
			c.unsubscribe = unsubscribe
			c.mu.Unlock()
		}
	}

	c.fetchHistory(gen, targetID)
}

func (c *Core) applyPreferences(gen uint64, targetID string, p models.Preferences) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen != gen || c.targetID != targetID {
		c.log.Debug("dropping preferences for inactive target", zap.String("target_id", targetID))
		return
	}
	p.TargetID = targetID
	c.prefs = p
	c.maybeScheduleNoteLocked()
}

func (c *Core) fetchHistory(gen uint64, targetID string) {
	results, err := c.store.ListHistory(c.ctx, targetID, c.opts.HistoryPageSize)
	if err != nil {
		c.log.Warn("history fetch failed, showing no history",
			zap.String("target_id", targetID), zap.Error(err))
		results = nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return
	}
	c.history = mergeHistory(c.history, results, c.opts.HistoryPageSize)
}

// mergeHistory keeps locally recorded results the fetch did not return
func mergeHistory(local, fetched []models.AnalysisResult, limit int) []models.AnalysisResult {
	seen := make(map[string]bool, len(fetched))
	merged := make([]models.AnalysisResult, 0, len(local)+len(fetched))
	for _, r := range fetched {
		seen[r.ID] = true
		merged = append(merged, r)
	}
	for _, r := range local {
		if !seen[r.ID] {
			merged = append(merged, r)
		}
	}
	return gateway.SortHistory(merged, limit)
}

func (c *Core) refreshSeniors(ctx context.Context, caregiverID string) ([]models.User, error) {
	seniors, err := c.store.FindSeniorsOfCaregiver(ctx, caregiverID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.user != nil && c.user.ID == caregiverID {
		c.seniors = seniors
	}
	c.mu.Unlock()
	return seniors, nil
}

// SelectTarget makes a managed senior the active target. A senior may only select themselves.
func (c *Core) SelectTarget(seniorID string) error {
	c.mu.Lock()
	if c.user == nil {
		c.mu.Unlock()
		return ErrNotSignedIn
	}
	user := *c.user
	managed := containsUser(c.seniors, seniorID)
	c.mu.Unlock()

	if !user.IsCaregiver() {
		if seniorID == user.ID {
			return nil
		}
		return ErrCaregiverOnly
	}
	if !managed {
		return ErrUnknownSenior
	}

	c.switchTarget(user.ID, seniorID)
	return nil
}

// ClearTarget returns a caregiver to the senior selector
func (c *Core) ClearTarget() error {
	c.mu.Lock()
	if c.user == nil {
		c.mu.Unlock()
		return ErrNotSignedIn
	}
	user := *c.user
	c.mu.Unlock()

	if !user.IsCaregiver() {
		return ErrCaregiverOnly
	}
	c.switchTarget(user.ID, "")
	return nil
}

// Seniors re-reads the caregiver's managed seniors
func (c *Core) Seniors(ctx context.Context) ([]models.User, error) {
	user, err := c.caregiver()
	if err != nil {
		return nil, err
	}
	return c.refreshSeniors(ctx, user.ID)
}

// CreateManagedSenior provisions a senior account for the signed in caregiver without
// disturbing the caregiver's session
func (c *Core) CreateManagedSenior(ctx context.Context, name, email, password string) (models.User, error) {
	caregiver, err := c.caregiver()
	if err != nil {
		return models.User{}, err
	}

	id, err := c.identity.RegisterAsSecondaryIdentity(ctx, gateway.Credential{Email: email, Password: password, Name: name})
	if err != nil {
		return models.User{}, err
	}

	if name == "" {
		name = models.NameFromEmail(email)
	}
	senior := models.User{
		ID:          id,
		Name:        name,
		Email:       email,
		Role:        models.RoleSenior,
		CaregiverID: caregiver.ID,
	}
	if err := c.store.UpsertProfile(ctx, senior); err != nil {
		return models.User{}, err
	}

	seniors, err := c.store.FindSeniorsOfCaregiver(ctx, caregiver.ID)
	if err != nil {
		c.log.Warn("failed to refresh managed seniors", zap.String("caregiver_id", caregiver.ID), zap.Error(err))
		c.mu.Lock()
		seniors = append([]models.User(nil), c.seniors...)
		c.mu.Unlock()
	}
	// the query can lag the write
	if !containsUser(seniors, id) {
		seniors = append(seniors, senior)
	}

	c.mu.Lock()
	if c.user != nil && c.user.ID == caregiver.ID {
		c.seniors = seniors
	}
	c.mu.Unlock()

	c.log.Info("created managed senior", zap.String("caregiver_id", caregiver.ID), zap.String("senior_id", id))
	return senior, nil
}

func (c *Core) caregiver() (models.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.user == nil {
		return models.User{}, ErrNotSignedIn
	}
	if !c.user.IsCaregiver() {
		return models.User{}, ErrCaregiverOnly
	}
	return *c.user, nil
}

// RecordAnalysis shows result at the top of the history immediately and persists it in the
// background. The local entry stays even if the write fails.
func (c *Core) RecordAnalysis(result models.AnalysisResult) error {
	c.mu.Lock()
	if c.user == nil {
		c.mu.Unlock()
		return ErrNotSignedIn
	}
	if result.UserID == c.targetID {
		c.history = append([]models.AnalysisResult{result}, c.history...)
	}
	c.mu.Unlock()

	c.persist("insert_history", func(ctx context.Context) error {
		return c.store.InsertHistory(ctx, result)
	})
	return nil
}

// UpdatePreferences applies patch locally and merges it into the store in the background.
// Without an active target it does nothing.
func (c *Core) UpdatePreferences(patch models.PreferencesPatch) error {
	if err := patch.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.user == nil || c.targetID == "" {
		c.mu.Unlock()
		return nil
	}
	targetID := c.targetID
	patch.Apply(&c.prefs)
	c.maybeScheduleNoteLocked()
	c.mu.Unlock()

	c.persist("upsert_preferences", func(ctx context.Context) error {
		_, err := c.store.UpsertPreferences(ctx, targetID, patch)
		return err
	})
	return nil
}

// OpenDashboard marks the dashboard visible; a senior's caregiver note is read once per session
func (c *Core) OpenDashboard() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDashboard = true
	c.maybeScheduleNoteLocked()
}

// CloseDashboard cancels a pending note readout
func (c *Core) CloseDashboard() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDashboard = false
	c.stopNoteTimerLocked()
}

func (c *Core) maybeScheduleNoteLocked() {
	if c.user == nil || c.user.IsCaregiver() || !c.onDashboard || c.hasReadNote || c.noteTimer != nil {
		return
	}
	if strings.TrimSpace(c.prefs.CaregiverNote) == "" {
		return
	}

	c.noteSeq++
	seq, gen := c.noteSeq, c.gen
	c.noteTimer = time.AfterFunc(c.opts.NoteReadoutDelay, func() {
		c.readNote(seq, gen)
	})
}

func (c *Core) readNote(seq, gen uint64) {
	c.mu.Lock()
	if c.noteSeq != seq {
		c.mu.Unlock()
		return
	}
	c.noteTimer = nil
	note := strings.TrimSpace(c.prefs.CaregiverNote)
	if c.gen != gen || c.user == nil || !c.onDashboard || c.hasReadNote || note == "" {
		c.mu.Unlock()
		return
	}
	c.hasReadNote = true
	c.mu.Unlock()

	c.speaker.Speak("Message from your caregiver: " + note)
}

func (c *Core) stopNoteTimerLocked() {
	if c.noteTimer != nil {
		c.noteTimer.Stop()
		c.noteTimer = nil
	}
	c.noteSeq++
}

// Snapshot copies the current session state
func (c *Core) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		TargetID:    c.targetID,
		Seniors:     append([]models.User(nil), c.seniors...),
		Preferences: c.prefs,
		History:     append([]models.AnalysisResult(nil), c.history...),
		Banner:      c.banner,
		HasReadNote: c.hasReadNote,
		OnDashboard: c.onDashboard,
	}
	if c.user != nil {
		u := *c.user
		snap.User = &u
	}
	return snap
}

// CurrentUser returns the signed in profile
func (c *Core) CurrentUser() (models.User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.user == nil {
		return models.User{}, false
	}
	return *c.user, true
}

// Token is the identity session token, for restoring the session later
func (c *Core) Token() string {
	return c.identity.Token()
}

// Say speaks text in the session's speech slot, cancelling anything in progress
func (c *Core) Say(text string) {
	c.speaker.Speak(text)
}

// StopSpeaking cancels the current utterance
func (c *Core) StopSpeaking() {
	c.speaker.Cancel()
}

// LastUtterance reports the speech slot's latest utterance when the speaker keeps one
func (c *Core) LastUtterance() (speech.Utterance, bool) {
	if src, ok := c.speaker.(interface{ Last() (speech.Utterance, bool) }); ok {
		return src.Last()
	}
	return speech.Utterance{}, false
}

// DismissBanner clears the background error banner
func (c *Core) DismissBanner() {
	c.mu.Lock()
	c.banner = ""
	c.mu.Unlock()
}

// Close stops the session. Queued writes are flushed first.
func (c *Core) Close() {
	c.closeOnce.Do(func() {
		if c.stopAuthSub != nil {
			c.stopAuthSub()
		}
		close(c.closing)
		c.cancel()
		c.loops.Wait()

		c.mu.Lock()
		old := c.teardownLocked()
		c.mu.Unlock()
		if old != nil {
			old()
		}
		c.speaker.Cancel()
	})
}

func containsUser(users []models.User, id string) bool {
	for _, u := range users {
		if u.ID == id {
			return true
		}
	}
	return false
}

type silentSpeaker struct{}

func (silentSpeaker) Speak(string) {}
func (silentSpeaker) Cancel()      {}

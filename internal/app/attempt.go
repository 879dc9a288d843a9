package app

import (
	"context"
	"errors"
	"sync"

	"assessment-service/internal/domain"
)

// Phase is the lifecycle state of an attempt.
type Phase int

const (
	PhaseLoading Phase = iota
	PhaseQuestionActive
	PhaseFeedback
	PhaseCompleted
	PhaseError
)

var phaseNames = [...]string{"loading", "question", "feedback", "completed", "error"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Destination is an opaque navigation request for the presentation layer.
type Destination string

const (
	DestinationNone    Destination = ""
	DestinationListing Destination = "listing"
	DestinationResult  Destination = "result"
	DestinationSignIn  Destination = "sign-in"
)

// EscapeFor maps a failed load to where the user should be sent.
func EscapeFor(err error) Destination {
	if errors.Is(err, domain.ErrUnauthenticated) {
		return DestinationSignIn
	}
	return DestinationListing
}

var (
	errAttemptStarted = errors.New("attempt already started")
	errAttemptClosed  = errors.New("attempt closed")
)

// Feedback describes the outcome of the evaluated question.
type Feedback struct {
	Correct       bool   `json:"correct"`
	Answer        string `json:"answer"`
	CorrectAnswer string `json:"correctAnswer"`
	TimedOut      bool   `json:"timedOut"`
}

// Snapshot is a point-in-time copy of an attempt, safe to hand to observers.
type Snapshot struct {
	AssessmentID   string                   `json:"assessmentId"`
	Title          string                   `json:"title,omitempty"`
	Phase          Phase                    `json:"phase"`
	IsRetake       bool                     `json:"isRetake"`
	QuestionIndex  int                      `json:"questionIndex"`
	TotalQuestions int                      `json:"totalQuestions"`
	Question       string                   `json:"question,omitempty"`
	Options        []string                 `json:"options,omitempty"`
	Selected       string                   `json:"selected,omitempty"`
	TimeRemaining  int                      `json:"timeRemaining"`
	Score          int                      `json:"score"`
	Answers        []string                 `json:"answers,omitempty"`
	Feedback       *Feedback                `json:"feedback,omitempty"`
	Result         *domain.AssessmentResult `json:"result,omitempty"`
	Saved          bool                     `json:"saved"`
	SaveError      string                   `json:"saveError,omitempty"`
	Error          string                   `json:"error,omitempty"`
	Navigate       Destination              `json:"navigate,omitempty"`
}

// Attempt is one user's run through an assessment.
//
// Every transition happens under mu. Deferred callbacks (ticks, the feedback
// window) capture the token current when they were scheduled and do nothing
// once it has moved on, so only the first of a tick and a submit can evaluate
// a question and a stale callback can never advance a later one.
type Attempt struct {
	clock    Clock
	timing   Timing
	shuffler *Shuffler
	recorder *ResultRecorder

	mu           sync.Mutex
	assessmentID string
	user         domain.Identity
	isRetake     bool
	assessment   domain.Assessment
	phase        Phase
	index        int
	options      []string
	selected     string
	answers      []string
	score        int
	feedback     *Feedback
	countdown    *countdown
	advance      Timer
	token        uint64
	closed       bool
	result       *domain.AssessmentResult
	saved        bool
	saveErr      error
	loadErr      error
	navigate     Destination
	subscribers  map[chan Snapshot]struct{}
	done         chan struct{}
}

func NewAttempt(clock Clock, timing Timing, shuffler *Shuffler, recorder *ResultRecorder) *Attempt {
	timing = timing.withDefaults()
	return &Attempt{
		clock:       clock,
		timing:      timing,
		shuffler:    shuffler,
		recorder:    recorder,
		phase:       PhaseLoading,
		countdown:   newCountdown(clock, timing),
		subscribers: make(map[chan Snapshot]struct{}),
		done:        make(chan struct{}),
	}
}

// Begin loads the session and enters the first question. On failure the
// attempt moves to PhaseError with an escape destination and the load error
// is returned.
func (a *Attempt) Begin(ctx context.Context, loader *SessionLoader, assessmentID string, user domain.Identity, isRetake bool) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return errAttemptClosed
	}
	if a.phase != PhaseLoading || a.assessmentID != "" {
		a.mu.Unlock()
		return errAttemptStarted
	}
	a.assessmentID = assessmentID
	a.user = user
	a.isRetake = isRetake
	a.mu.Unlock()

	assessment, err := loader.Load(ctx, assessmentID, user, isRetake)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return errAttemptClosed
	}
	if err != nil {
		a.phase = PhaseError
		a.loadErr = err
		a.navigate = EscapeFor(err)
		a.broadcastLocked()
		return err
	}

	a.assessment = assessment
	a.answers = make([]string, len(assessment.Questions))
	a.enterQuestionLocked(0)
	a.broadcastLocked()
	return nil
}

// Select records the user's current choice. Reselecting replaces the prior
// choice and has no other effect.
func (a *Attempt) Select(option string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed || a.phase != PhaseQuestionActive {
		return domain.ErrAnswerClosed
	}
	if !contains(a.options, option) {
		return domain.ErrOptionNotFound
	}
	if a.selected == option {
		return nil
	}
	a.selected = option
	a.broadcastLocked()
	return nil
}

// Submit evaluates the current selection. It fails with ErrNoSelection when
// nothing is selected and with ErrAnswerClosed when the question was already
// evaluated, either by an earlier submit or by the timer.
func (a *Attempt) Submit() (Feedback, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed || a.phase != PhaseQuestionActive {
		return Feedback{}, domain.ErrAnswerClosed
	}
	if a.selected == "" {
		return Feedback{}, domain.ErrNoSelection
	}
	score := a.evaluateLocked(a.selected, false)
	a.scheduleAdvanceLocked(score)
	a.broadcastLocked()
	return *a.feedback, nil
}

// Close tears the attempt down: pending ticks and feedback windows are
// canceled and subscribers are released. A result write already in flight
// still completes.
func (a *Attempt) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.closed = true
	a.token++
	a.countdown.stop()
	if a.advance != nil {
		a.advance.Stop()
		a.advance = nil
	}
	for ch := range a.subscribers {
		delete(a.subscribers, ch)
		close(ch)
	}
}

// Done is closed once the final result write has finished, successfully or not.
// It is never closed for attempts that do not complete.
func (a *Attempt) Done() <-chan struct{} {
	return a.done
}

// Snapshot returns the current state.
func (a *Attempt) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

// Key identifies the attempt in a registry.
func (a *Attempt) Key() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return AttemptKey(a.assessmentID, a.user.UserID)
}

// Subscribe returns a channel that receives a snapshot after every transition,
// starting with the current state. The caller must invoke the returned cancel
// function to avoid leaks.
func (a *Attempt) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 8)

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	a.subscribers[ch] = struct{}{}
	ch <- a.snapshotLocked()
	a.mu.Unlock()

	cancel := func() {
		a.mu.Lock()
		if _, ok := a.subscribers[ch]; ok {
			delete(a.subscribers, ch)
			close(ch)
		}
		a.mu.Unlock()
	}
	return ch, cancel
}

// AttemptKey is the registry key for a user's attempt at an assessment.
func AttemptKey(assessmentID, userID string) string {
	return assessmentID + ":" + userID
}

func (a *Attempt) enterQuestionLocked(index int) {
	a.index = index
	a.selected = ""
	a.feedback = nil
	a.options = a.shuffler.Options(a.assessment.Questions[index])
	a.phase = PhaseQuestionActive

	a.token++
	token := a.token
	var fire func()
	fire = func() { a.onTick(token, fire) }
	a.countdown.restart(fire)
}

func (a *Attempt) onTick(token uint64, fire func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if token != a.token || a.phase != PhaseQuestionActive {
		return
	}
	if a.countdown.decrement() {
		score := a.evaluateLocked("", true)
		a.scheduleAdvanceLocked(score)
	} else {
		a.countdown.schedule(fire)
	}
	a.broadcastLocked()
}

// evaluateLocked records the answer for the current question, moves to
// feedback and returns the updated score.
func (a *Attempt) evaluateLocked(answer string, timedOut bool) int {
	q := a.assessment.Questions[a.index]
	correct := answer != "" && answer == q.CorrectAnswer

	a.answers[a.index] = answer
	score := a.score
	if correct {
		score++
	}
	a.score = score

	a.countdown.stop()
	a.token++
	a.phase = PhaseFeedback
	a.feedback = &Feedback{
		Correct:       correct,
		Answer:        answer,
		CorrectAnswer: q.CorrectAnswer,
		TimedOut:      timedOut,
	}
	return score
}

func (a *Attempt) scheduleAdvanceLocked(score int) {
	token := a.token
	a.advance = a.clock.AfterFunc(a.timing.FeedbackWindow, func() {
		a.onFeedbackDone(token, score)
	})
}

func (a *Attempt) onFeedbackDone(token uint64, score int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if token != a.token || a.phase != PhaseFeedback {
		return
	}
	a.advance = nil
	if a.index == len(a.assessment.Questions)-1 {
		a.completeLocked(score)
	} else {
		a.enterQuestionLocked(a.index + 1)
	}
	a.broadcastLocked()
}

// completeLocked uses the score carried from the last evaluation rather than
// re-reading a.score, so the recorded value always includes that evaluation.
func (a *Attempt) completeLocked(score int) {
	a.token++
	a.phase = PhaseCompleted
	a.feedback = nil
	result := a.recorder.Build(a.assessment.ID, a.user.UserID, score, a.answers)
	a.result = &result
	go a.persist(result)
}

func (a *Attempt) persist(result domain.AssessmentResult) {
	defer close(a.done)

	ctx, cancel := context.WithTimeout(context.Background(), a.timing.PersistTimeout)
	defer cancel()
	id, err := a.recorder.Record(ctx, result)

	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		a.saveErr = err
		a.navigate = DestinationListing
	} else {
		a.result.ID = id
		a.saved = true
		a.navigate = DestinationResult
	}
	a.broadcastLocked()
}

func (a *Attempt) broadcastLocked() {
	if len(a.subscribers) == 0 {
		return
	}
	snap := a.snapshotLocked()
	for ch := range a.subscribers {
		select {
		case ch <- snap:
		default:
			// drop the oldest snapshot so a slow reader never blocks a transition
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

func (a *Attempt) snapshotLocked() Snapshot {
	snap := Snapshot{
		AssessmentID:   a.assessmentID,
		Title:          a.assessment.Title,
		Phase:          a.phase,
		IsRetake:       a.isRetake,
		QuestionIndex:  a.index,
		TotalQuestions: len(a.assessment.Questions),
		Selected:       a.selected,
		Score:          a.score,
		Answers:        cloneStrings(a.answers),
		Saved:          a.saved,
		Navigate:       a.navigate,
	}
	if a.phase == PhaseQuestionActive || a.phase == PhaseFeedback {
		snap.Question = a.assessment.Questions[a.index].Text
		snap.Options = cloneStrings(a.options)
		snap.TimeRemaining = a.countdown.remaining
	}
	if a.feedback != nil {
		fb := *a.feedback
		snap.Feedback = &fb
	}
	if a.result != nil {
		result := *a.result
		result.Answers = cloneStrings(a.result.Answers)
		snap.Result = &result
	}
	if a.saveErr != nil {
		snap.SaveError = a.saveErr.Error()
	}
	if a.loadErr != nil {
		snap.Error = a.loadErr.Error()
	}
	return snap
}

func contains(options []string, option string) bool {
	for _, o := range options {
		if o == option {
			return true
		}
	}
	return false
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

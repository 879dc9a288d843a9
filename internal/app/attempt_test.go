package app_test

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"assessment-service/internal/app"
	"assessment-service/internal/domain"
	"assessment-service/internal/infra/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const feedbackWindow = 1500 * time.Millisecond

var alice = domain.Identity{UserID: "u1", DisplayName: "Alice"}

func TestCorrectAnswerCompletes(t *testing.T) {
	env := newTestEnv(t, nil)
	attempt := env.start(t, "one", false)

	snap := attempt.Snapshot()
	require.Equal(t, app.PhaseQuestionActive, snap.Phase)
	assert.ElementsMatch(t, []string{"Paris", "London", "Rome"}, snap.Options)
	assert.Equal(t, 30, snap.TimeRemaining)

	require.NoError(t, attempt.Select("Paris"))
	fb, err := attempt.Submit()
	require.NoError(t, err)
	assert.True(t, fb.Correct)
	assert.Equal(t, "Paris", fb.CorrectAnswer)

	snap = attempt.Snapshot()
	require.Equal(t, app.PhaseFeedback, snap.Phase)
	assert.Equal(t, 1, snap.Score)

	env.clock.Advance(feedbackWindow)
	waitDone(t, attempt)

	snap = attempt.Snapshot()
	require.Equal(t, app.PhaseCompleted, snap.Phase)
	require.NotNil(t, snap.Result)
	assert.Equal(t, 1, snap.Result.Score)
	assert.Equal(t, 1, snap.Result.TotalQuestions)
	assert.Equal(t, []string{"Paris"}, snap.Result.Answers)
	assert.True(t, snap.Saved)
	assert.Equal(t, app.DestinationResult, snap.Navigate)

	stored, err := env.results.FindResults(context.Background(), "one", "u1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, snap.Result.ID, stored[0].ID)
	assert.Equal(t, env.clock.Now(), stored[0].CompletedAt)
}

func TestTimeUpRecordsEmptyAnswer(t *testing.T) {
	env := newTestEnv(t, nil)
	attempt := env.start(t, "one", false)

	env.clock.Advance(10 * time.Second)
	assert.Equal(t, 20, attempt.Snapshot().TimeRemaining)

	env.clock.Advance(20 * time.Second)
	snap := attempt.Snapshot()
	require.Equal(t, app.PhaseFeedback, snap.Phase)
	require.NotNil(t, snap.Feedback)
	assert.False(t, snap.Feedback.Correct)
	assert.True(t, snap.Feedback.TimedOut)
	assert.Equal(t, "", snap.Feedback.Answer)
	assert.Equal(t, "Paris", snap.Feedback.CorrectAnswer)
	assert.Equal(t, 0, snap.TimeRemaining)

	env.clock.Advance(feedbackWindow)
	waitDone(t, attempt)

	snap = attempt.Snapshot()
	require.Equal(t, app.PhaseCompleted, snap.Phase)
	assert.Equal(t, 0, snap.Result.Score)
	assert.Equal(t, []string{""}, snap.Result.Answers)
}

func TestTimeUpIgnoresUnsubmittedSelection(t *testing.T) {
	env := newTestEnv(t, nil)
	attempt := env.start(t, "one", false)

	require.NoError(t, attempt.Select("Paris"))
	env.clock.Advance(30 * time.Second)

	_, err := attempt.Submit()
	require.ErrorIs(t, err, domain.ErrAnswerClosed)

	env.clock.Advance(feedbackWindow)
	waitDone(t, attempt)
	snap := attempt.Snapshot()
	assert.Equal(t, 0, snap.Result.Score)
	assert.Equal(t, []string{""}, snap.Result.Answers)
}

func TestReselectHasNoSideEffects(t *testing.T) {
	env := newTestEnv(t, nil)
	attempt := env.start(t, "one", false)

	require.NoError(t, attempt.Select("London"))
	require.NoError(t, attempt.Select("Rome"))
	require.NoError(t, attempt.Select("Paris"))
	require.NoError(t, attempt.Select("Paris"))

	snap := attempt.Snapshot()
	assert.Equal(t, app.PhaseQuestionActive, snap.Phase)
	assert.Equal(t, "Paris", snap.Selected)
	assert.Equal(t, 0, snap.Score)
	assert.Nil(t, snap.Feedback)
	assert.Equal(t, []string{""}, snap.Answers)

	require.ErrorIs(t, attempt.Select("Berlin"), domain.ErrOptionNotFound)
	require.ErrorIs(t, attempt.Select("paris"), domain.ErrOptionNotFound)
	assert.Equal(t, "Paris", attempt.Snapshot().Selected)
}

func TestSubmitWithoutSelectionIsRejected(t *testing.T) {
	env := newTestEnv(t, nil)
	attempt := env.start(t, "one", false)

	_, err := attempt.Submit()
	require.ErrorIs(t, err, domain.ErrNoSelection)

	snap := attempt.Snapshot()
	assert.Equal(t, app.PhaseQuestionActive, snap.Phase)
	assert.Equal(t, 0, snap.Score)

	env.clock.Advance(5 * time.Second)
	assert.Equal(t, 25, attempt.Snapshot().TimeRemaining, "timer keeps running after a rejected submit")
}

func TestSubmitAfterFeedbackIsRejected(t *testing.T) {
	env := newTestEnv(t, nil)
	attempt := env.start(t, "two", false)

	require.NoError(t, attempt.Select("Paris"))
	_, err := attempt.Submit()
	require.NoError(t, err)

	_, err = attempt.Submit()
	require.ErrorIs(t, err, domain.ErrAnswerClosed)
	require.ErrorIs(t, attempt.Select("London"), domain.ErrAnswerClosed)
	assert.Equal(t, 1, attempt.Snapshot().Score)
}

func TestSubmitAndExpiryInSameTickEvaluateOnce(t *testing.T) {
	t.Run("submit first", func(t *testing.T) {
		env := newTestEnv(t, nil)
		attempt := env.start(t, "one", false)
		require.NoError(t, attempt.Select("Paris"))

		var submitErr error
		// Registered before the final tick, so it runs first at t=30s.
		env.clock.AfterFunc(30*time.Second, func() { _, submitErr = attempt.Submit() })
		env.clock.Advance(30 * time.Second)
		require.NoError(t, submitErr)

		snap := attempt.Snapshot()
		require.Equal(t, app.PhaseFeedback, snap.Phase)
		assert.False(t, snap.Feedback.TimedOut)
		assert.Equal(t, 1, snap.Score)

		env.clock.Advance(feedbackWindow)
		waitDone(t, attempt)
		snap = attempt.Snapshot()
		assert.Equal(t, 1, snap.Result.Score)
		assert.Equal(t, []string{"Paris"}, snap.Result.Answers)
	})

	t.Run("expiry first", func(t *testing.T) {
		env := newTestEnv(t, nil)
		attempt := env.start(t, "one", false)
		require.NoError(t, attempt.Select("Paris"))

		env.clock.Advance(29 * time.Second)
		var submitErr error
		// The final tick was armed at t=29s, ahead of this callback.
		env.clock.AfterFunc(time.Second, func() { _, submitErr = attempt.Submit() })
		env.clock.Advance(time.Second)
		require.ErrorIs(t, submitErr, domain.ErrAnswerClosed)

		snap := attempt.Snapshot()
		require.Equal(t, app.PhaseFeedback, snap.Phase)
		assert.True(t, snap.Feedback.TimedOut)
		assert.Equal(t, 0, snap.Score)

		env.clock.Advance(feedbackWindow)
		waitDone(t, attempt)
		assert.Equal(t, []string{""}, attempt.Snapshot().Result.Answers)
	})
}

func TestConcurrentSubmitsEvaluateOnce(t *testing.T) {
	results := memory.NewResultStore()
	service := app.NewAttemptService(testAssessments(), results, memory.NewAttemptRegistry(),
		app.WithTiming(app.Timing{QuestionTime: time.Hour, Tick: time.Hour, FeedbackWindow: time.Hour}))
	attempt, err := service.Start(context.Background(), "one", alice, false)
	require.NoError(t, err)
	defer attempt.Close()
	require.NoError(t, attempt.Select("Paris"))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := attempt.Submit(); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			} else if !errors.Is(err, domain.ErrAnswerClosed) {
				t.Errorf("unexpected error %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
	assert.Equal(t, 1, attempt.Snapshot().Score)
}

func TestManualAdvanceCancelsStaleTicks(t *testing.T) {
	env := newTestEnv(t, nil)
	attempt := env.start(t, "two", false)

	require.NoError(t, attempt.Select("Paris"))
	_, err := attempt.Submit()
	require.NoError(t, err)

	// Feedback ends at 1.5s and the second question's ticks start from there.
	env.clock.Advance(30 * time.Second)

	snap := attempt.Snapshot()
	require.Equal(t, app.PhaseQuestionActive, snap.Phase)
	assert.Equal(t, 1, snap.QuestionIndex)
	assert.Equal(t, 2, snap.TimeRemaining)
	assert.Equal(t, "", snap.Selected)
	assert.Nil(t, snap.Feedback)
	assert.Equal(t, []string{"Paris", ""}, snap.Answers)
	assert.ElementsMatch(t, []string{"Rome", "Milan", "Naples"}, snap.Options)
	assert.Equal(t, 1, env.clock.pending(), "only the current question's tick is armed")
}

func TestScoreMatchesRecordedAnswers(t *testing.T) {
	env := newTestEnv(t, nil)
	attempt := env.start(t, "three", false)
	questions := testAssessmentMap()["three"].Questions

	// correct
	require.NoError(t, attempt.Select(questions[0].CorrectAnswer))
	_, err := attempt.Submit()
	require.NoError(t, err)
	env.clock.Advance(feedbackWindow)

	// wrong
	require.NoError(t, attempt.Select(questions[1].Distractors[0]))
	fb, err := attempt.Submit()
	require.NoError(t, err)
	assert.False(t, fb.Correct)
	env.clock.Advance(feedbackWindow)

	// time-up
	env.clock.Advance(30*time.Second + feedbackWindow)
	waitDone(t, attempt)

	result := attempt.Snapshot().Result
	require.NotNil(t, result)
	require.Len(t, result.Answers, len(questions))
	assert.Equal(t, []string{questions[0].CorrectAnswer, questions[1].Distractors[0], ""}, result.Answers)

	correct := 0
	for i, q := range questions {
		if result.Answers[i] == q.CorrectAnswer {
			correct++
		}
	}
	assert.Equal(t, correct, result.Score)
	assert.Equal(t, 1, result.Score)
}

func TestFinalScoreIncludesLastAnswer(t *testing.T) {
	env := newTestEnv(t, nil)
	attempt := env.start(t, "two", false)

	for _, answer := range []string{"Paris", "Rome"} {
		require.NoError(t, attempt.Select(answer))
		_, err := attempt.Submit()
		require.NoError(t, err)
		env.clock.Advance(feedbackWindow)
	}
	waitDone(t, attempt)

	snap := attempt.Snapshot()
	require.Equal(t, app.PhaseCompleted, snap.Phase)
	assert.Equal(t, 2, snap.Result.Score)
	assert.Equal(t, 2, snap.Score)
}

func TestPersistenceFailureStillCompletes(t *testing.T) {
	failing := &flakyResults{ResultStore: memory.NewResultStore(), failCreate: true}
	env := newTestEnv(t, failing)
	attempt := env.start(t, "one", false)

	require.NoError(t, attempt.Select("Paris"))
	_, err := attempt.Submit()
	require.NoError(t, err)
	env.clock.Advance(feedbackWindow)
	waitDone(t, attempt)

	snap := attempt.Snapshot()
	require.Equal(t, app.PhaseCompleted, snap.Phase)
	assert.False(t, snap.Saved)
	assert.Contains(t, snap.SaveError, domain.ErrPersistence.Error())
	assert.Equal(t, app.DestinationListing, snap.Navigate)
	assert.Equal(t, 1, snap.Result.Score)
}

func TestCloseStopsTimers(t *testing.T) {
	env := newTestEnv(t, nil)
	attempt := env.start(t, "two", false)
	updates, cancel := attempt.Subscribe()
	defer cancel()
	<-updates // initial snapshot

	env.clock.Advance(3 * time.Second)
	attempt.Close()
	attempt.Close()
	env.clock.Advance(time.Minute)

	snap := attempt.Snapshot()
	assert.Equal(t, app.PhaseQuestionActive, snap.Phase)
	assert.Equal(t, 0, snap.QuestionIndex)
	assert.Equal(t, 27, snap.TimeRemaining)
	assert.Equal(t, 0, env.clock.pending())

	for range updates {
	}
	require.ErrorIs(t, attempt.Select("Paris"), domain.ErrAnswerClosed)
	_, err := attempt.Submit()
	require.ErrorIs(t, err, domain.ErrAnswerClosed)
}

func TestCloseDuringFeedbackPreventsAdvance(t *testing.T) {
	env := newTestEnv(t, nil)
	attempt := env.start(t, "two", false)

	require.NoError(t, attempt.Select("Paris"))
	_, err := attempt.Submit()
	require.NoError(t, err)
	attempt.Close()
	env.clock.Advance(time.Minute)

	snap := attempt.Snapshot()
	assert.Equal(t, app.PhaseFeedback, snap.Phase)
	assert.Equal(t, 0, snap.QuestionIndex)
}

func TestSubscribeReceivesTransitions(t *testing.T) {
	env := newTestEnv(t, nil)
	attempt := env.start(t, "one", false)
	updates, cancel := attempt.Subscribe()
	defer cancel()

	initial := <-updates
	assert.Equal(t, app.PhaseQuestionActive, initial.Phase)

	env.clock.Advance(time.Second)
	tick := <-updates
	assert.Equal(t, 29, tick.TimeRemaining)

	require.NoError(t, attempt.Select("Rome"))
	selected := <-updates
	assert.Equal(t, "Rome", selected.Selected)

	_, err := attempt.Submit()
	require.NoError(t, err)
	feedback := <-updates
	require.Equal(t, app.PhaseFeedback, feedback.Phase)
	assert.False(t, feedback.Feedback.Correct)
}

func TestBeginTwiceFails(t *testing.T) {
	env := newTestEnv(t, nil)
	attempt := env.start(t, "one", false)
	loader := app.NewSessionLoader(testAssessments(), env.results)
	require.Error(t, attempt.Begin(context.Background(), loader, "one", alice, false))
}

func TestPhaseMarshalsAsText(t *testing.T) {
	raw, err := app.PhaseFeedback.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "feedback", string(raw))
	assert.Equal(t, "unknown", app.Phase(42).String())
}

type testEnv struct {
	clock   *fakeClock
	results app.ResultRepository
	service *app.AttemptService
}

func newTestEnv(t *testing.T, results app.ResultRepository) *testEnv {
	t.Helper()
	if results == nil {
		results = memory.NewResultStore()
	}
	clock := newFakeClock()
	service := app.NewAttemptService(testAssessments(), results, memory.NewAttemptRegistry(),
		app.WithClock(clock),
		app.WithShuffler(app.NewShufflerWithSource(rand.NewSource(1))),
	)
	return &testEnv{clock: clock, results: results, service: service}
}

func (e *testEnv) start(t *testing.T, assessmentID string, isRetake bool) *app.Attempt {
	t.Helper()
	attempt, err := e.service.Start(context.Background(), assessmentID, alice, isRetake)
	require.NoError(t, err)
	t.Cleanup(attempt.Close)
	return attempt
}

func waitDone(t *testing.T, attempt *app.Attempt) {
	t.Helper()
	select {
	case <-attempt.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("result write did not finish")
	}
}

type flakyResults struct {
	*memory.ResultStore
	failCreate bool
	failDelete bool
	failFind   bool
}

func (f *flakyResults) CreateResult(ctx context.Context, r domain.AssessmentResult) (string, error) {
	if f.failCreate {
		return "", errors.New("network unreachable")
	}
	return f.ResultStore.CreateResult(ctx, r)
}

func (f *flakyResults) DeleteResult(ctx context.Context, id string) error {
	if f.failDelete {
		return errors.New("network unreachable")
	}
	return f.ResultStore.DeleteResult(ctx, id)
}

func (f *flakyResults) FindResults(ctx context.Context, assessmentID, userID string) ([]domain.AssessmentResult, error) {
	if f.failFind {
		return nil, errors.New("network unreachable")
	}
	return f.ResultStore.FindResults(ctx, assessmentID, userID)
}

func testAssessments() *memory.AssessmentRepository {
	return memory.NewAssessmentRepository(memory.NewStaticAssessmentLoader(testAssessmentMap()), time.Minute)
}

func testAssessmentMap() map[string]domain.Assessment {
	paris := domain.Question{Text: "Capital of France?", CorrectAnswer: "Paris", Distractors: []string{"London", "Rome"}}
	rome := domain.Question{Text: "Capital of Italy?", CorrectAnswer: "Rome", Distractors: []string{"Milan", "Naples"}}
	mars := domain.Question{Text: "Red planet?", CorrectAnswer: "Mars", Distractors: []string{"Venus", "Jupiter"}}
	created := time.Date(2024, 11, 22, 9, 0, 0, 0, time.UTC)
	return map[string]domain.Assessment{
		"one":   {ID: "one", Title: "One question", Questions: []domain.Question{paris}, CreatedAt: created},
		"two":   {ID: "two", Title: "Two questions", Questions: []domain.Question{paris, rome}, CreatedAt: created.Add(time.Hour)},
		"three": {ID: "three", Title: "Three questions", Questions: []domain.Question{paris, rome, mars}, CreatedAt: created.Add(2 * time.Hour)},
		"empty": {ID: "empty", Title: "Nothing yet", CreatedAt: created},
	}
}

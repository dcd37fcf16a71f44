package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	mrand "math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"livequiz/internal/domain"
)

// Store persists sessions, participants, question runs, and responses.
// Implementations must enforce uniqueness of (session, order) for runs,
// (session, display name) for participants, and (run, participant) for
// responses, surfacing the latter as domain.ErrAlreadyAnswered.
type Store interface {
	CreateSession(ctx context.Context, session *domain.Session, runs []*domain.QuestionRun) error
	SessionByToken(ctx context.Context, token string) (*domain.Session, error)
	SessionByCode(ctx context.Context, code string) (*domain.Session, error)
	ActiveSessions(ctx context.Context) ([]*domain.Session, error)
	FinishSession(ctx context.Context, sessionID string, at time.Time) error

	GetOrCreateParticipant(ctx context.Context, participant *domain.Participant) (*domain.Participant, bool, error)
	Participants(ctx context.Context, sessionID string) ([]*domain.Participant, error)
	IncrementJokersUsed(ctx context.Context, participantID string) error

	RunByOrder(ctx context.Context, sessionID string, order int) (*domain.QuestionRun, error)
	Runs(ctx context.Context, sessionID string) ([]*domain.QuestionRun, error)
	UpdateRunWindow(ctx context.Context, run *domain.QuestionRun) error

	CreateResponse(ctx context.Context, response *domain.Response) error
	ResponsesForRun(ctx context.Context, runID string) ([]*domain.Response, error)
	ResponsesUpToOrder(ctx context.Context, sessionID string, maxOrder int) ([]*domain.Response, error)
	CountRespondents(ctx context.Context, runID string) (int, error)
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// Publisher pushes an event into a session room. Delivery is best-effort;
// implementations must never block the caller indefinitely.
type Publisher interface {
	Publish(token, name string, payload any)
}

// Identity names the caller of an engine operation: an authenticated user ID,
// a freeform display name for anonymous participants, or both.
type Identity struct {
	UserID string
	Name   string
}

// SubmitResult summarizes an answer submission for the submitting participant.
type SubmitResult struct {
	AlreadyAnswered bool `json:"already_answered"`
	Correct         bool `json:"correct"`
	Points          int  `json:"points"`
	TotalScore      int  `json:"total_score"`
}

// JokerResult is the reduced option set revealed to the requesting
// participant only. Correctness flags are stripped before it leaves the engine.
type JokerOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type JokerResult struct {
	Options         []JokerOption `json:"remaining_answers"`
	JokersRemaining int           `json:"jokers_remaining"`
}

const (
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength   = 6
	createTries  = 5

	minDuration = 5
	maxDuration = 300
	maxJokers   = 3
)

// Engine is the session coordinator: every mutation of live state goes
// through it, and it serializes the per-run critical sections.
type Engine struct {
	store   Store
	quizzes QuizRepository
	pub     Publisher
	now     func() time.Time
	locks   runLocks

	rndMu sync.Mutex
	rnd   *mrand.Rand
}

func NewEngine(store Store, quizzes QuizRepository, pub Publisher) *Engine {
	return &Engine{
		store:   store,
		quizzes: quizzes,
		pub:     pub,
		now:     time.Now,
		rnd:     mrand.New(mrand.NewSource(time.Now().UnixNano())),
	}
}

// NewEngineWithClock is test-only for deterministic timestamps.
func NewEngineWithClock(store Store, quizzes QuizRepository, pub Publisher, now func() time.Time) *Engine {
	e := NewEngine(store, quizzes, pub)
	e.now = now
	return e
}

// SeedRand pins the joker randomness, for tests.
func (e *Engine) SeedRand(seed int64) {
	e.rndMu.Lock()
	e.rnd = mrand.New(mrand.NewSource(seed))
	e.rndMu.Unlock()
}

// CreateSession materializes a live session for a quiz: a fresh join code and
// URL token, plus one idle question run per quiz question in quiz order.
// Uniqueness collisions on code or token are retried with fresh values.
func (e *Engine) CreateSession(ctx context.Context, quizID, hostID string) (*domain.Session, error) {
	quiz, err := e.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if len(quiz.Questions) == 0 {
		return nil, domain.ErrQuizEmpty
	}

	for attempt := 0; attempt < createTries; attempt++ {
		session := &domain.Session{
			ID:        uuid.NewString(),
			QuizID:    quizID,
			HostID:    hostID,
			Code:      randomCode(),
			Token:     randomToken(),
			IsActive:  true,
			StartedAt: e.now(),
		}
		runs := make([]*domain.QuestionRun, 0, len(quiz.Questions))
		for i, q := range quiz.Questions {
			runs = append(runs, &domain.QuestionRun{
				ID:              uuid.NewString(),
				SessionID:       session.ID,
				QuestionID:      q.ID,
				Order:           i + 1,
				DurationSeconds: clampDuration(q.DurationSeconds),
			})
		}
		err := e.store.CreateSession(ctx, session, runs)
		if errors.Is(err, domain.ErrCodeCollision) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return session, nil
	}
	return nil, fmt.Errorf("create session: %w", domain.ErrCodeCollision)
}

// Join registers the caller as a participant, creating the record lazily on
// first interaction. The host never becomes a participant. New joins are
// announced to the room so lobbies update their roster live.
func (e *Engine) Join(ctx context.Context, token string, id Identity) (*domain.Participant, error) {
	session, err := e.activeSession(ctx, token)
	if err != nil {
		return nil, err
	}
	if e.isHost(session, id) {
		return nil, fmt.Errorf("host cannot join as participant: %w", domain.ErrForbidden)
	}

	participant, created, err := e.store.GetOrCreateParticipant(ctx, &domain.Participant{
		ID:          uuid.NewString(),
		SessionID:   session.ID,
		UserID:      id.UserID,
		DisplayName: displayName(id),
		JoinedAt:    e.now(),
	})
	if err != nil {
		return nil, err
	}
	if created {
		e.publishSessionState(ctx, session)
	}
	return participant, nil
}

// StartQuestion starts the run at the given order. Host-only. A repeated
// start is an idempotent no-op that still rebroadcasts state, so a host
// refresh never resets the window but always resyncs clients.
func (e *Engine) StartQuestion(ctx context.Context, token string, id Identity, order int) (*domain.QuestionRun, error) {
	session, err := e.activeSession(ctx, token)
	if err != nil {
		return nil, err
	}
	if !e.isHost(session, id) {
		return nil, fmt.Errorf("only the host can start questions: %w", domain.ErrForbidden)
	}
	run, err := e.store.RunByOrder(ctx, session.ID, order)
	if err != nil {
		return nil, err
	}

	unlock := e.locks.lock(run.ID)
	started := run.StartNow(e.now())
	if started {
		if err := e.store.UpdateRunWindow(ctx, run); err != nil {
			unlock()
			return nil, err
		}
	}
	unlock()

	e.pub.Publish(token, domain.EventSessionState, domain.SessionState{
		State: domain.StateQuestion,
		Order: run.Order,
	})
	e.publishAnswerUpdate(ctx, session, run)
	return run, nil
}

// SubmitAnswer records the caller's answer for the running question.
// Correctness and latency are derived here, never taken from the caller.
// A duplicate submission succeeds without changing anything. When the last
// participant answers, the run is force-closed early; the check-and-close is
// serialized per run so two simultaneous final answers cannot race.
func (e *Engine) SubmitAnswer(ctx context.Context, token string, id Identity, order int, optionID string) (SubmitResult, error) {
	session, err := e.activeSession(ctx, token)
	if err != nil {
		return SubmitResult{}, err
	}
	if e.isHost(session, id) {
		return SubmitResult{}, fmt.Errorf("host cannot submit answers: %w", domain.ErrForbidden)
	}
	run, err := e.store.RunByOrder(ctx, session.ID, order)
	if err != nil {
		return SubmitResult{}, err
	}
	if err := e.runAcceptsAnswers(run); err != nil {
		return SubmitResult{}, err
	}

	question, err := e.question(ctx, session.QuizID, run.QuestionID)
	if err != nil {
		return SubmitResult{}, err
	}
	option := findOption(question, optionID)
	if option == nil {
		return SubmitResult{}, domain.ErrOptionNotFound
	}

	participant, _, err := e.store.GetOrCreateParticipant(ctx, &domain.Participant{
		ID:          uuid.NewString(),
		SessionID:   session.ID,
		UserID:      id.UserID,
		DisplayName: displayName(id),
		JoinedAt:    e.now(),
	})
	if err != nil {
		return SubmitResult{}, err
	}

	answeredAt := e.now()
	response := &domain.Response{
		ID:            uuid.NewString(),
		QuestionRunID: run.ID,
		ParticipantID: participant.ID,
		OptionID:      option.ID,
		Correct:       option.Correct,
		LatencyMS:     domain.Latency(*run.StartsAt, answeredAt),
		AnsweredAt:    answeredAt,
	}

	unlock := e.locks.lock(run.ID)
	err = e.store.CreateResponse(ctx, response)
	if errors.Is(err, domain.ErrAlreadyAnswered) {
		unlock()
		total, terr := e.totalScore(ctx, session.ID, participant.ID, run.Order)
		if terr != nil {
			return SubmitResult{}, terr
		}
		return SubmitResult{AlreadyAnswered: true, TotalScore: total}, nil
	}
	if err != nil {
		unlock()
		return SubmitResult{}, err
	}

	_, err = e.closeIfAllAnswered(ctx, session, run)
	unlock()
	if err != nil {
		return SubmitResult{}, err
	}

	e.publishAnswerUpdate(ctx, session, run)

	total, err := e.totalScore(ctx, session.ID, participant.ID, run.Order)
	if err != nil {
		return SubmitResult{}, err
	}
	return SubmitResult{
		Correct:    response.Correct,
		Points:     domain.Points(response.Correct, response.LatencyMS),
		TotalScore: total,
	}, nil
}

// UseJoker spends one joker and returns the reduced option set. The result
// goes to the requesting participant only; it is never broadcast.
func (e *Engine) UseJoker(ctx context.Context, token string, id Identity, order int) (JokerResult, error) {
	session, err := e.activeSession(ctx, token)
	if err != nil {
		return JokerResult{}, err
	}
	if e.isHost(session, id) {
		return JokerResult{}, fmt.Errorf("host cannot use jokers: %w", domain.ErrForbidden)
	}
	run, err := e.store.RunByOrder(ctx, session.ID, order)
	if err != nil {
		return JokerResult{}, err
	}
	if err := e.runAcceptsAnswers(run); err != nil {
		return JokerResult{}, err
	}

	quiz, err := e.quizzes.GetQuiz(ctx, session.QuizID)
	if err != nil {
		return JokerResult{}, err
	}
	question := findQuestion(quiz, run.QuestionID)
	if question == nil {
		return JokerResult{}, domain.ErrRunNotFound
	}

	participant, _, err := e.store.GetOrCreateParticipant(ctx, &domain.Participant{
		ID:          uuid.NewString(),
		SessionID:   session.ID,
		UserID:      id.UserID,
		DisplayName: displayName(id),
		JoinedAt:    e.now(),
	})
	if err != nil {
		return JokerResult{}, err
	}

	answered, err := e.hasResponse(ctx, run.ID, participant.ID)
	if err != nil {
		return JokerResult{}, err
	}
	if answered {
		return JokerResult{}, domain.ErrAlreadyAnswered
	}
	allowance := clampJokers(quiz.Jokers)
	if participant.JokersUsed >= allowance {
		return JokerResult{}, domain.ErrJokersExhausted
	}

	e.rndMu.Lock()
	reduced := domain.EliminateOptions(question.Options, e.rnd)
	e.rndMu.Unlock()

	if err := e.store.IncrementJokersUsed(ctx, participant.ID); err != nil {
		return JokerResult{}, err
	}

	options := make([]JokerOption, 0, len(reduced))
	for _, opt := range reduced {
		options = append(options, JokerOption{ID: opt.ID, Text: opt.Text})
	}
	return JokerResult{
		Options:         options,
		JokersRemaining: allowance - participant.JokersUsed - 1,
	}, nil
}

// Finish ends the session for good. Host-only and irreversible: no further
// question runs start and no answers are accepted afterwards.
func (e *Engine) Finish(ctx context.Context, token string, id Identity) error {
	session, err := e.store.SessionByToken(ctx, token)
	if err != nil {
		return err
	}
	if !e.isHost(session, id) {
		return fmt.Errorf("only the host can finish the session: %w", domain.ErrForbidden)
	}
	if !session.IsActive {
		return nil
	}
	if err := e.store.FinishSession(ctx, session.ID, e.now()); err != nil {
		return err
	}
	e.pub.Publish(token, domain.EventSessionState, domain.SessionState{State: domain.StateFinished})
	return nil
}

// Status is the pull path: the same snapshot the relay would push, for
// clients that poll instead of (or in addition to) subscribing.
func (e *Engine) Status(ctx context.Context, token string) (domain.Status, error) {
	session, err := e.store.SessionByToken(ctx, token)
	if err != nil {
		return domain.Status{}, err
	}
	if !session.IsActive {
		return domain.Status{SessionState: domain.SessionState{State: domain.StateFinished}}, nil
	}

	state, run, err := e.sessionState(ctx, session)
	if err != nil {
		return domain.Status{}, err
	}
	status := domain.Status{SessionState: state}
	if run != nil {
		update, err := e.answerUpdate(ctx, session, run)
		if err != nil {
			return domain.Status{}, err
		}
		status.Update = &update
	}
	return status, nil
}

// SessionByToken exposes session lookup for the transport layer.
func (e *Engine) SessionByToken(ctx context.Context, token string) (*domain.Session, error) {
	return e.store.SessionByToken(ctx, token)
}

// ResolveCode maps a short join code to its session.
func (e *Engine) ResolveCode(ctx context.Context, code string) (*domain.Session, error) {
	return e.store.SessionByCode(ctx, code)
}

// Tick recomputes and republishes the live snapshot for every active session
// with a currently running question. Driven by the background ticker; this is
// what keeps countdowns and leaderboards moving between submissions.
func (e *Engine) Tick(ctx context.Context) {
	sessions, err := e.store.ActiveSessions(ctx)
	if err != nil {
		return
	}
	for _, session := range sessions {
		run, err := e.currentRun(ctx, session.ID)
		if err != nil || run == nil {
			continue
		}
		e.publishAnswerUpdate(ctx, session, run)
	}
}

func (e *Engine) activeSession(ctx context.Context, token string) (*domain.Session, error) {
	session, err := e.store.SessionByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if !session.IsActive {
		return nil, domain.ErrSessionFinished
	}
	return session, nil
}

func (e *Engine) isHost(session *domain.Session, id Identity) bool {
	return id.UserID != "" && id.UserID == session.HostID
}

// runAcceptsAnswers distinguishes the two NotRunning cases so clients can
// tell "wait for the host" from "too late".
func (e *Engine) runAcceptsAnswers(run *domain.QuestionRun) error {
	if run.StartsAt == nil {
		return domain.ErrNotStarted
	}
	if run.TimeOver(e.now()) {
		return domain.ErrTimeExpired
	}
	return nil
}

// closeIfAllAnswered ends the run early once every participant has a
// response. Callers must hold the run lock. ForceClose is idempotent, so a
// concurrent lazy timeout cannot move the deadline around.
func (e *Engine) closeIfAllAnswered(ctx context.Context, session *domain.Session, run *domain.QuestionRun) (bool, error) {
	participants, err := e.store.Participants(ctx, session.ID)
	if err != nil {
		return false, err
	}
	answered, err := e.store.CountRespondents(ctx, run.ID)
	if err != nil {
		return false, err
	}
	if len(participants) == 0 || answered < len(participants) {
		return false, nil
	}
	if !run.ForceClose(e.now()) {
		return false, nil
	}
	if err := e.store.UpdateRunWindow(ctx, run); err != nil {
		return false, err
	}
	return true, nil
}

// currentRun returns the latest run that is still accepting answers, or nil.
func (e *Engine) currentRun(ctx context.Context, sessionID string) (*domain.QuestionRun, error) {
	runs, err := e.store.Runs(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	now := e.now()
	var current *domain.QuestionRun
	for _, run := range runs {
		if run.ActiveAt(now) && (current == nil || run.Order > current.Order) {
			current = run
		}
	}
	return current, nil
}

func (e *Engine) sessionState(ctx context.Context, session *domain.Session) (domain.SessionState, *domain.QuestionRun, error) {
	participants, err := e.store.Participants(ctx, session.ID)
	if err != nil {
		return domain.SessionState{}, nil, err
	}
	run, err := e.currentRun(ctx, session.ID)
	if err != nil {
		return domain.SessionState{}, nil, err
	}
	if run != nil {
		return domain.SessionState{
			State:             domain.StateQuestion,
			Order:             run.Order,
			TotalParticipants: len(participants),
		}, run, nil
	}
	roster := make([]domain.ParticipantInfo, 0, len(participants))
	for _, p := range participants {
		roster = append(roster, domain.ParticipantInfo{ID: p.ID, Name: p.DisplayName})
	}
	return domain.SessionState{
		State:             domain.StateWaiting,
		TotalParticipants: len(participants),
		Participants:      roster,
	}, nil, nil
}

// answerUpdate assembles the full per-question snapshot defined by the
// client contract: counts per option, who answered what, the running
// leaderboard, and the countdown.
func (e *Engine) answerUpdate(ctx context.Context, session *domain.Session, run *domain.QuestionRun) (domain.AnswerUpdate, error) {
	question, err := e.question(ctx, session.QuizID, run.QuestionID)
	if err != nil {
		return domain.AnswerUpdate{}, err
	}
	participants, err := e.store.Participants(ctx, session.ID)
	if err != nil {
		return domain.AnswerUpdate{}, err
	}
	responses, err := e.store.ResponsesForRun(ctx, run.ID)
	if err != nil {
		return domain.AnswerUpdate{}, err
	}
	leaderboard, err := e.Leaderboard(ctx, session.ID, run.Order)
	if err != nil {
		return domain.AnswerUpdate{}, err
	}

	stats := make(map[string]int, len(question.Options))
	var correctIDs []string
	for _, opt := range question.Options {
		stats[opt.ID] = 0
		if opt.Correct {
			correctIDs = append(correctIDs, opt.ID)
		}
	}
	optionText := make(map[string]string, len(question.Options))
	for _, opt := range question.Options {
		optionText[opt.ID] = opt.Text
	}

	perParticipant := make(map[string]domain.ParticipantResponse, len(responses))
	for _, resp := range responses {
		stats[resp.OptionID]++
		perParticipant[resp.ParticipantID] = domain.ParticipantResponse{
			AnswerText: optionText[resp.OptionID],
			IsCorrect:  resp.Correct,
		}
	}

	now := e.now()
	update := domain.AnswerUpdate{
		QuestionOrder:        run.Order,
		AnsweredCount:        len(perParticipant),
		TotalParticipants:    len(participants),
		AllAnswered:          len(participants) > 0 && len(perParticipant) >= len(participants),
		TimeOver:             run.TimeOver(now),
		AnswerStats:          stats,
		ParticipantResponses: perParticipant,
		CorrectAnswerIDs:     correctIDs,
		Leaderboard:          leaderboard,
	}
	if run.EndsAt != nil {
		remaining := run.Remaining(now)
		update.Remaining = &remaining
	}
	return update, nil
}

func (e *Engine) publishAnswerUpdate(ctx context.Context, session *domain.Session, run *domain.QuestionRun) {
	update, err := e.answerUpdate(ctx, session, run)
	if err != nil {
		return
	}
	e.pub.Publish(session.Token, domain.EventAnswerUpdate, update)
}

func (e *Engine) publishSessionState(ctx context.Context, session *domain.Session) {
	state, _, err := e.sessionState(ctx, session)
	if err != nil {
		return
	}
	e.pub.Publish(session.Token, domain.EventSessionState, state)
}

func (e *Engine) question(ctx context.Context, quizID, questionID string) (*domain.Question, error) {
	quiz, err := e.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	question := findQuestion(quiz, questionID)
	if question == nil {
		return nil, domain.ErrRunNotFound
	}
	return question, nil
}

func (e *Engine) totalScore(ctx context.Context, sessionID, participantID string, upToOrder int) (int, error) {
	responses, err := e.store.ResponsesUpToOrder(ctx, sessionID, upToOrder)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, resp := range responses {
		if resp.ParticipantID == participantID {
			total += domain.Points(resp.Correct, resp.LatencyMS)
		}
	}
	return total, nil
}

func (e *Engine) hasResponse(ctx context.Context, runID, participantID string) (bool, error) {
	responses, err := e.store.ResponsesForRun(ctx, runID)
	if err != nil {
		return false, err
	}
	for _, resp := range responses {
		if resp.ParticipantID == participantID {
			return true, nil
		}
	}
	return false, nil
}

func findQuestion(quiz domain.Quiz, questionID string) *domain.Question {
	for i := range quiz.Questions {
		if quiz.Questions[i].ID == questionID {
			return &quiz.Questions[i]
		}
	}
	return nil
}

func findOption(question *domain.Question, optionID string) *domain.Option {
	for i := range question.Options {
		if question.Options[i].ID == optionID {
			return &question.Options[i]
		}
	}
	return nil
}

func displayName(id Identity) string {
	if id.Name != "" {
		return id.Name
	}
	return id.UserID
}

func clampDuration(seconds int) int {
	if seconds == 0 {
		return 20
	}
	if seconds < minDuration {
		return minDuration
	}
	if seconds > maxDuration {
		return maxDuration
	}
	return seconds
}

func clampJokers(count int) int {
	if count < 0 {
		return 0
	}
	if count > maxJokers {
		return maxJokers
	}
	return count
}

// randomCode draws a short join code from an alphabet without easily
// confused characters (no I, O, 0, 1).
func randomCode() string {
	code := make([]byte, codeLength)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(err) // crypto/rand failure is unrecoverable
		}
		code[i] = codeAlphabet[n.Int64()]
	}
	return string(code)
}

// randomToken returns a 64-char hex token for session URLs and room keys.
func randomToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}

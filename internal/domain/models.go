package domain

import "time"

// Option represents a possible answer for a question.
type Option struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// Question models an MCQ question with at least one correct option.
type Question struct {
	ID              string   `json:"id"`
	Prompt          string   `json:"prompt"`
	Options         []Option `json:"options"`
	DurationSeconds int      `json:"durationSeconds"` // defaults to 20 if zero
}

// Quiz is an ordered collection of questions plus the joker allowance
// (0-3) every participant gets for a live run of it.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
	Jokers    int        `json:"jokers"`
}

// Session is one live run of a quiz. Code is the short join code typed by
// participants, Token the unguessable identifier used in URLs and room keys.
type Session struct {
	ID         string
	QuizID     string
	HostID     string
	Code       string
	Token      string
	IsActive   bool
	StartedAt  time.Time
	FinishedAt *time.Time
}

// Participant is a session-scoped identity. UserID is empty for anonymous
// participants, in which case DisplayName alone identifies them.
type Participant struct {
	ID          string
	SessionID   string
	UserID      string
	DisplayName string
	JoinedAt    time.Time
	JokersUsed  int
}

// QuestionRun is the timed instance of one question within a session.
// Order is 1-based and gapless per session.
type QuestionRun struct {
	ID              string
	SessionID       string
	QuestionID      string
	Order           int
	DurationSeconds int
	StartsAt        *time.Time
	EndsAt          *time.Time
}

// StartNow transitions the run from idle to running, fixing the answer
// window. Calling it again is a no-op so repeated start requests from the
// host never reset a window that is already ticking.
func (r *QuestionRun) StartNow(now time.Time) bool {
	if r.StartsAt != nil {
		return false
	}
	ends := now.Add(time.Duration(r.DurationSeconds) * time.Second)
	r.StartsAt = &now
	r.EndsAt = &ends
	return true
}

// ForceClose ends the run early (all participants answered). It only ever
// pulls the deadline in, never pushes it out, and leaves an already-expired
// window untouched.
func (r *QuestionRun) ForceClose(now time.Time) bool {
	if r.StartsAt == nil {
		return false
	}
	if r.EndsAt != nil && !r.EndsAt.After(now) {
		return false
	}
	r.EndsAt = &now
	return true
}

// ActiveAt reports whether the run is accepting answers at the given time:
// started, and the window has not elapsed.
func (r *QuestionRun) ActiveAt(now time.Time) bool {
	return r.StartsAt != nil && (r.EndsAt == nil || r.EndsAt.After(now))
}

// Remaining returns the whole seconds left in the window, floored at zero.
func (r *QuestionRun) Remaining(now time.Time) int {
	if r.EndsAt == nil {
		return 0
	}
	remaining := int(r.EndsAt.Sub(now).Seconds())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// TimeOver reports whether the answer window has elapsed.
func (r *QuestionRun) TimeOver(now time.Time) bool {
	return r.EndsAt != nil && !r.EndsAt.After(now)
}

// Response records one participant's answer inside a question run.
// Correct and LatencyMS are derived at write time, never trusted from
// the caller, and the record is immutable once stored.
type Response struct {
	ID            string
	QuestionRunID string
	ParticipantID string
	OptionID      string
	Correct       bool
	LatencyMS     int
	AnsweredAt    time.Time
}

// Latency computes milliseconds between the run start and the answer,
// clamped to zero if the answer somehow predates the start.
func Latency(runStart, answeredAt time.Time) int {
	ms := int(answeredAt.Sub(runStart).Milliseconds())
	if ms < 0 {
		return 0
	}
	return ms
}

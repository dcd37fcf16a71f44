package domain

import "errors"

var (
	// ErrForbidden is returned when the wrong actor calls an operation
	// (host submitting answers, non-host starting questions).
	ErrForbidden = errors.New("forbidden")
	// ErrSessionNotFound is returned when no session matches the token or code.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionFinished is returned when acting on a session that is no longer active.
	ErrSessionFinished = errors.New("session already finished")
	// ErrRunNotFound indicates an order with no question run in the session.
	ErrRunNotFound = errors.New("question run not found")
	// ErrOptionNotFound indicates a submitted option ID is invalid for the question.
	ErrOptionNotFound = errors.New("option not found")
	// ErrParticipantNotFound is returned when a user acts before joining.
	ErrParticipantNotFound = errors.New("participant not found in session")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuizEmpty indicates the quiz has no questions and cannot be run live.
	ErrQuizEmpty = errors.New("quiz has no questions")
	// ErrNotStarted means the question run has not been started by the host yet.
	ErrNotStarted = errors.New("question has not started yet")
	// ErrTimeExpired means the answer window for the question run has elapsed.
	ErrTimeExpired = errors.New("time to answer has expired")
	// ErrAlreadyAnswered marks a duplicate submission; stores raise it so the
	// engine can turn it into an idempotent no-op instead of a failure.
	ErrAlreadyAnswered = errors.New("already answered this question")
	// ErrJokersExhausted is returned when a participant has used up the
	// quiz's joker allowance.
	ErrJokersExhausted = errors.New("no jokers remaining")
	// ErrNameTaken is returned when a display name is already used by another
	// participant in the same session.
	ErrNameTaken = errors.New("display name already taken in this session")
	// ErrCodeCollision signals a join code or token uniqueness violation on
	// session insert; the engine retries with fresh values.
	ErrCodeCollision = errors.New("join code or token already in use")
)

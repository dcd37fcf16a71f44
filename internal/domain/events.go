package domain

// Event names pushed to session rooms.
const (
	EventSessionState = "session_state"
	EventAnswerUpdate = "answer_update"
)

// Session states carried by SessionState payloads.
const (
	StateWaiting  = "waiting"
	StateQuestion = "question"
	StateFinished = "finished"
)

// ParticipantInfo is the roster entry sent while a session is waiting.
type ParticipantInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SessionState tells clients which phase the session is in. Order and the
// roster are only meaningful for the question and waiting states.
type SessionState struct {
	State             string            `json:"state"`
	Order             int               `json:"order,omitempty"`
	TotalParticipants int               `json:"total_participants"`
	Participants      []ParticipantInfo `json:"participants,omitempty"`
}

// ParticipantResponse is what a participant answered, keyed by participant ID
// in AnswerUpdate. Only the host view renders it, but pushing it to the room
// is harmless: it never includes eliminated joker options.
type ParticipantResponse struct {
	AnswerText string `json:"answer_text"`
	IsCorrect  bool   `json:"is_correct"`
}

// LeaderboardEntry is one row of the running scoreboard.
type LeaderboardEntry struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// AnswerUpdate is the per-question live snapshot: answer counts, who has
// answered, the running leaderboard, and the countdown. Remaining is nil
// until the run has a deadline.
type AnswerUpdate struct {
	QuestionOrder        int                            `json:"question_order"`
	AnsweredCount        int                            `json:"answered_count"`
	TotalParticipants    int                            `json:"total_participants"`
	AllAnswered          bool                           `json:"all_answered"`
	TimeOver             bool                           `json:"time_over"`
	AnswerStats          map[string]int                 `json:"answer_stats"`
	ParticipantResponses map[string]ParticipantResponse `json:"participant_responses"`
	CorrectAnswerIDs     []string                       `json:"correct_answer_ids"`
	Leaderboard          []LeaderboardEntry             `json:"leaderboard"`
	Remaining            *int                           `json:"remaining"`
}

// Status is the pull-based snapshot served over HTTP. It mirrors exactly
// what the relay pushes so clients can rely on either path.
type Status struct {
	SessionState
	Update *AnswerUpdate `json:"update,omitempty"`
}

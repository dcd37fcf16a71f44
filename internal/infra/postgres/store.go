package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"livequiz/internal/domain"
)

// Store is the bun-backed persistence layer for live session state. The
// schema (see migrations) carries the uniqueness constraints the engine
// relies on: (session, order) for runs, (session, display_name) for
// participants, (question_run, participant) for responses.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

type sessionRow struct {
	bun.BaseModel `bun:"table:sessions,alias:s"`

	ID         string     `bun:"id,pk"`
	QuizID     string     `bun:"quiz_id,notnull"`
	HostID     string     `bun:"host_id,notnull"`
	Code       string     `bun:"code,notnull"`
	Token      string     `bun:"token,notnull"`
	IsActive   bool       `bun:"is_active,notnull"`
	StartedAt  time.Time  `bun:"started_at,notnull"`
	FinishedAt *time.Time `bun:"finished_at"`
}

type participantRow struct {
	bun.BaseModel `bun:"table:participants,alias:p"`

	ID          string    `bun:"id,pk"`
	SessionID   string    `bun:"session_id,notnull"`
	UserID      string    `bun:"user_id"`
	DisplayName string    `bun:"display_name,notnull"`
	JoinedAt    time.Time `bun:"joined_at,notnull"`
	JokersUsed  int       `bun:"jokers_used,notnull"`
}

type questionRunRow struct {
	bun.BaseModel `bun:"table:question_runs,alias:qr"`

	ID              string     `bun:"id,pk"`
	SessionID       string     `bun:"session_id,notnull"`
	QuestionID      string     `bun:"question_id,notnull"`
	Order           int        `bun:"run_order,notnull"`
	DurationSeconds int        `bun:"duration_seconds,notnull"`
	StartsAt        *time.Time `bun:"starts_at"`
	EndsAt          *time.Time `bun:"ends_at"`
}

type responseRow struct {
	bun.BaseModel `bun:"table:responses,alias:r"`

	ID            string    `bun:"id,pk"`
	QuestionRunID string    `bun:"question_run_id,notnull"`
	ParticipantID string    `bun:"participant_id,notnull"`
	OptionID      string    `bun:"option_id,notnull"`
	Correct       bool      `bun:"is_correct,notnull"`
	LatencyMS     int       `bun:"latency_ms,notnull"`
	AnsweredAt    time.Time `bun:"answered_at,notnull"`
}

func (s *Store) CreateSession(ctx context.Context, session *domain.Session, runs []*domain.QuestionRun) error {
	rows := make([]questionRunRow, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, toRunRow(run))
	}
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := toSessionRow(session)
		if _, err := tx.NewInsert().Model(&row).Exec(ctx); err != nil {
			return err
		}
		if len(rows) > 0 {
			if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	if isUniqueViolation(err) {
		return domain.ErrCodeCollision
	}
	return err
}

func (s *Store) SessionByToken(ctx context.Context, token string) (*domain.Session, error) {
	var row sessionRow
	err := s.db.NewSelect().Model(&row).Where("token = ?", token).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromSessionRow(&row), nil
}

func (s *Store) SessionByCode(ctx context.Context, code string) (*domain.Session, error) {
	var row sessionRow
	err := s.db.NewSelect().Model(&row).Where("code = ?", code).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromSessionRow(&row), nil
}

func (s *Store) ActiveSessions(ctx context.Context) ([]*domain.Session, error) {
	var rows []sessionRow
	err := s.db.NewSelect().Model(&rows).Where("is_active").Order("started_at ASC").Scan(ctx)
	if err != nil {
		return nil, err
	}
	sessions := make([]*domain.Session, len(rows))
	for i := range rows {
		sessions[i] = fromSessionRow(&rows[i])
	}
	return sessions, nil
}

func (s *Store) FinishSession(ctx context.Context, sessionID string, at time.Time) error {
	res, err := s.db.NewUpdate().Model((*sessionRow)(nil)).
		Set("is_active = FALSE").
		Set("finished_at = ?", at).
		Where("id = ?", sessionID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (s *Store) GetOrCreateParticipant(ctx context.Context, participant *domain.Participant) (*domain.Participant, bool, error) {
	existing, err := s.findParticipant(ctx, participant)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, err
	}

	row := toParticipantRow(participant)
	_, err = s.db.NewInsert().Model(&row).Exec(ctx)
	if isUniqueViolation(err) {
		// Lost a race for the same identity, or the display name belongs to
		// someone else. The re-read disambiguates.
		if existing, rerr := s.findParticipant(ctx, participant); rerr == nil {
			return existing, false, nil
		}
		return nil, false, domain.ErrNameTaken
	}
	if err != nil {
		return nil, false, err
	}
	return fromParticipantRow(&row), true, nil
}

func (s *Store) findParticipant(ctx context.Context, participant *domain.Participant) (*domain.Participant, error) {
	var row participantRow
	q := s.db.NewSelect().Model(&row).Where("session_id = ?", participant.SessionID)
	if participant.UserID != "" {
		q = q.Where("user_id = ?", participant.UserID)
	} else {
		q = q.Where("user_id = ''").Where("display_name = ?", participant.DisplayName)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return fromParticipantRow(&row), nil
}

func (s *Store) Participants(ctx context.Context, sessionID string) ([]*domain.Participant, error) {
	var rows []participantRow
	err := s.db.NewSelect().Model(&rows).
		Where("session_id = ?", sessionID).
		Order("joined_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	participants := make([]*domain.Participant, len(rows))
	for i := range rows {
		participants[i] = fromParticipantRow(&rows[i])
	}
	return participants, nil
}

func (s *Store) IncrementJokersUsed(ctx context.Context, participantID string) error {
	res, err := s.db.NewUpdate().Model((*participantRow)(nil)).
		Set("jokers_used = jokers_used + 1").
		Where("id = ?", participantID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrParticipantNotFound
	}
	return nil
}

func (s *Store) RunByOrder(ctx context.Context, sessionID string, order int) (*domain.QuestionRun, error) {
	var row questionRunRow
	err := s.db.NewSelect().Model(&row).
		Where("session_id = ?", sessionID).
		Where("run_order = ?", order).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromRunRow(&row), nil
}

func (s *Store) Runs(ctx context.Context, sessionID string) ([]*domain.QuestionRun, error) {
	var rows []questionRunRow
	err := s.db.NewSelect().Model(&rows).
		Where("session_id = ?", sessionID).
		Order("run_order ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	runs := make([]*domain.QuestionRun, len(rows))
	for i := range rows {
		runs[i] = fromRunRow(&rows[i])
	}
	return runs, nil
}

func (s *Store) UpdateRunWindow(ctx context.Context, run *domain.QuestionRun) error {
	res, err := s.db.NewUpdate().Model((*questionRunRow)(nil)).
		Set("starts_at = ?", run.StartsAt).
		Set("ends_at = ?", run.EndsAt).
		Where("id = ?", run.ID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrRunNotFound
	}
	return nil
}

func (s *Store) CreateResponse(ctx context.Context, response *domain.Response) error {
	row := toResponseRow(response)
	_, err := s.db.NewInsert().Model(&row).Exec(ctx)
	if isUniqueViolation(err) {
		return domain.ErrAlreadyAnswered
	}
	return err
}

func (s *Store) ResponsesForRun(ctx context.Context, runID string) ([]*domain.Response, error) {
	var rows []responseRow
	err := s.db.NewSelect().Model(&rows).
		Where("question_run_id = ?", runID).
		Order("answered_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return fromResponseRows(rows), nil
}

func (s *Store) ResponsesUpToOrder(ctx context.Context, sessionID string, maxOrder int) ([]*domain.Response, error) {
	var rows []responseRow
	err := s.db.NewSelect().Model(&rows).
		Join("JOIN question_runs AS qr ON qr.id = r.question_run_id").
		Where("qr.session_id = ?", sessionID).
		Where("qr.run_order <= ?", maxOrder).
		Order("r.answered_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return fromResponseRows(rows), nil
}

func (s *Store) CountRespondents(ctx context.Context, runID string) (int, error) {
	var count int
	err := s.db.NewSelect().
		ColumnExpr("count(DISTINCT participant_id)").
		Table("responses").
		Where("question_run_id = ?", runID).
		Scan(ctx, &count)
	return count, err
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == "23505"
}

func toSessionRow(s *domain.Session) sessionRow {
	return sessionRow{
		ID:         s.ID,
		QuizID:     s.QuizID,
		HostID:     s.HostID,
		Code:       s.Code,
		Token:      s.Token,
		IsActive:   s.IsActive,
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
	}
}

func fromSessionRow(row *sessionRow) *domain.Session {
	return &domain.Session{
		ID:         row.ID,
		QuizID:     row.QuizID,
		HostID:     row.HostID,
		Code:       row.Code,
		Token:      row.Token,
		IsActive:   row.IsActive,
		StartedAt:  row.StartedAt,
		FinishedAt: row.FinishedAt,
	}
}

func toParticipantRow(p *domain.Participant) participantRow {
	return participantRow{
		ID:          p.ID,
		SessionID:   p.SessionID,
		UserID:      p.UserID,
		DisplayName: p.DisplayName,
		JoinedAt:    p.JoinedAt,
		JokersUsed:  p.JokersUsed,
	}
}

func fromParticipantRow(row *participantRow) *domain.Participant {
	return &domain.Participant{
		ID:          row.ID,
		SessionID:   row.SessionID,
		UserID:      row.UserID,
		DisplayName: row.DisplayName,
		JoinedAt:    row.JoinedAt,
		JokersUsed:  row.JokersUsed,
	}
}

func toRunRow(r *domain.QuestionRun) questionRunRow {
	return questionRunRow{
		ID:              r.ID,
		SessionID:       r.SessionID,
		QuestionID:      r.QuestionID,
		Order:           r.Order,
		DurationSeconds: r.DurationSeconds,
		StartsAt:        r.StartsAt,
		EndsAt:          r.EndsAt,
	}
}

func fromRunRow(row *questionRunRow) *domain.QuestionRun {
	return &domain.QuestionRun{
		ID:              row.ID,
		SessionID:       row.SessionID,
		QuestionID:      row.QuestionID,
		Order:           row.Order,
		DurationSeconds: row.DurationSeconds,
		StartsAt:        row.StartsAt,
		EndsAt:          row.EndsAt,
	}
}

func toResponseRow(r *domain.Response) responseRow {
	return responseRow{
		ID:            r.ID,
		QuestionRunID: r.QuestionRunID,
		ParticipantID: r.ParticipantID,
		OptionID:      r.OptionID,
		Correct:       r.Correct,
		LatencyMS:     r.LatencyMS,
		AnsweredAt:    r.AnsweredAt,
	}
}

func fromResponseRows(rows []responseRow) []*domain.Response {
	responses := make([]*domain.Response, len(rows))
	for i, row := range rows {
		responses[i] = &domain.Response{
			ID:            row.ID,
			QuestionRunID: row.QuestionRunID,
			ParticipantID: row.ParticipantID,
			OptionID:      row.OptionID,
			Correct:       row.Correct,
			LatencyMS:     row.LatencyMS,
			AnsweredAt:    row.AnsweredAt,
		}
	}
	return responses
}

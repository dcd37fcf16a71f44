package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"livequiz/internal/domain"
)

// Store is the in-memory persistence layer: good for tests, demos, and
// single-process deployments without Postgres. All getters return copies so
// callers can mutate records freely and write them back explicitly.
type Store struct {
	mu           sync.RWMutex
	sessions     map[string]*domain.Session // by ID
	byToken      map[string]string
	byCode       map[string]string
	participants map[string][]*domain.Participant            // by session ID
	runs         map[string][]*domain.QuestionRun            // by session ID
	responses    map[string]map[string]*domain.Response      // run ID -> participant ID
}

func NewStore() *Store {
	return &Store{
		sessions:     make(map[string]*domain.Session),
		byToken:      make(map[string]string),
		byCode:       make(map[string]string),
		participants: make(map[string][]*domain.Participant),
		runs:         make(map[string][]*domain.QuestionRun),
		responses:    make(map[string]map[string]*domain.Response),
	}
}

func (s *Store) CreateSession(_ context.Context, session *domain.Session, runs []*domain.QuestionRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byToken[session.Token]; ok {
		return domain.ErrCodeCollision
	}
	if _, ok := s.byCode[session.Code]; ok {
		return domain.ErrCodeCollision
	}
	stored := *session
	s.sessions[session.ID] = &stored
	s.byToken[session.Token] = session.ID
	s.byCode[session.Code] = session.ID
	ordered := make([]*domain.QuestionRun, len(runs))
	for i, run := range runs {
		r := *run
		ordered[i] = &r
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })
	s.runs[session.ID] = ordered
	return nil
}

func (s *Store) SessionByToken(_ context.Context, token string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byToken[token]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	session := *s.sessions[id]
	return &session, nil
}

func (s *Store) SessionByCode(_ context.Context, code string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byCode[code]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	session := *s.sessions[id]
	return &session, nil
}

func (s *Store) ActiveSessions(_ context.Context) ([]*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var active []*domain.Session
	for _, session := range s.sessions {
		if session.IsActive {
			dup := *session
			active = append(active, &dup)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })
	return active, nil
}

func (s *Store) FinishSession(_ context.Context, sessionID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	session.IsActive = false
	session.FinishedAt = &at
	return nil
}

// GetOrCreateParticipant matches by user ID when present, otherwise by
// display name. A display name held by a different identity is a conflict.
func (s *Store) GetOrCreateParticipant(_ context.Context, participant *domain.Participant) (*domain.Participant, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.participants[participant.SessionID] {
		if participant.UserID != "" && existing.UserID == participant.UserID {
			found := *existing
			return &found, false, nil
		}
		if existing.DisplayName == participant.DisplayName {
			if participant.UserID == "" && existing.UserID == "" {
				found := *existing
				return &found, false, nil
			}
			return nil, false, domain.ErrNameTaken
		}
	}
	stored := *participant
	s.participants[participant.SessionID] = append(s.participants[participant.SessionID], &stored)
	created := stored
	return &created, true, nil
}

func (s *Store) Participants(_ context.Context, sessionID string) ([]*domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.participants[sessionID]
	out := make([]*domain.Participant, len(list))
	for i, p := range list {
		dup := *p
		out[i] = &dup
	}
	return out, nil
}

func (s *Store) IncrementJokersUsed(_ context.Context, participantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, list := range s.participants {
		for _, p := range list {
			if p.ID == participantID {
				p.JokersUsed++
				return nil
			}
		}
	}
	return domain.ErrParticipantNotFound
}

func (s *Store) RunByOrder(_ context.Context, sessionID string, order int) (*domain.QuestionRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, run := range s.runs[sessionID] {
		if run.Order == order {
			found := *run
			return &found, nil
		}
	}
	return nil, domain.ErrRunNotFound
}

func (s *Store) Runs(_ context.Context, sessionID string) ([]*domain.QuestionRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.runs[sessionID]
	out := make([]*domain.QuestionRun, len(list))
	for i, run := range list {
		dup := *run
		out[i] = &dup
	}
	return out, nil
}

func (s *Store) UpdateRunWindow(_ context.Context, run *domain.QuestionRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, stored := range s.runs[run.SessionID] {
		if stored.ID == run.ID {
			stored.StartsAt = run.StartsAt
			stored.EndsAt = run.EndsAt
			return nil
		}
	}
	return domain.ErrRunNotFound
}

// CreateResponse enforces at most one response per (run, participant);
// a second write surfaces domain.ErrAlreadyAnswered instead of overwriting.
func (s *Store) CreateResponse(_ context.Context, response *domain.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byParticipant, ok := s.responses[response.QuestionRunID]
	if !ok {
		byParticipant = make(map[string]*domain.Response)
		s.responses[response.QuestionRunID] = byParticipant
	}
	if _, ok := byParticipant[response.ParticipantID]; ok {
		return domain.ErrAlreadyAnswered
	}
	stored := *response
	byParticipant[response.ParticipantID] = &stored
	return nil
}

func (s *Store) ResponsesForRun(_ context.Context, runID string) ([]*domain.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Response, 0, len(s.responses[runID]))
	for _, resp := range s.responses[runID] {
		dup := *resp
		out = append(out, &dup)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AnsweredAt.Before(out[j].AnsweredAt) })
	return out, nil
}

func (s *Store) ResponsesUpToOrder(_ context.Context, sessionID string, maxOrder int) ([]*domain.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Response
	for _, run := range s.runs[sessionID] {
		if run.Order > maxOrder {
			continue
		}
		for _, resp := range s.responses[run.ID] {
			dup := *resp
			out = append(out, &dup)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AnsweredAt.Before(out[j].AnsweredAt) })
	return out, nil
}

func (s *Store) CountRespondents(_ context.Context, runID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.responses[runID]), nil
}

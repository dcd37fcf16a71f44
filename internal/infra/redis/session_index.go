package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"livequiz/internal/domain"
)

// SessionIndex mirrors live-session liveness into Redis:
//   - session:live:{token}  "1"         marks an active session
//   - session:code:{code}   {token}     resolves a join code to its token
//
// The persistence store stays authoritative; the index lets other instances
// (or ops tooling) see which sessions are live and route join codes without
// touching Postgres. All writes are best-effort.
type SessionIndex struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSessionIndex(client *redis.Client, ttl time.Duration) *SessionIndex {
	return &SessionIndex{client: client, ttl: ttl}
}

// Mark registers the session as live and maps its join code.
func (i *SessionIndex) Mark(ctx context.Context, session *domain.Session) {
	_ = i.client.Set(ctx, i.liveKey(session.Token), "1", i.ttl).Err()
	_ = i.client.Set(ctx, i.codeKey(session.Code), session.Token, i.ttl).Err()
}

// Refresh extends the liveness TTL; the ticker calls this for running sessions.
func (i *SessionIndex) Refresh(ctx context.Context, session *domain.Session) {
	_ = i.client.Expire(ctx, i.liveKey(session.Token), i.ttl).Err()
	_ = i.client.Expire(ctx, i.codeKey(session.Code), i.ttl).Err()
}

// Clear drops the index entries once the session is finished.
func (i *SessionIndex) Clear(ctx context.Context, session *domain.Session) {
	_ = i.client.Del(ctx, i.liveKey(session.Token), i.codeKey(session.Code)).Err()
}

// TokenForCode resolves a join code, returning false on miss.
func (i *SessionIndex) TokenForCode(ctx context.Context, code string) (string, bool) {
	token, err := i.client.Get(ctx, i.codeKey(code)).Result()
	if err != nil {
		return "", false
	}
	return token, true
}

func (i *SessionIndex) liveKey(token string) string {
	return "session:live:" + token
}

func (i *SessionIndex) codeKey(code string) string {
	return "session:code:" + code
}

package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"livequiz/internal/domain"
)

type countingLoader struct {
	calls int64
	inner QuizLoader
}

func (l *countingLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	atomic.AddInt64(&l.calls, 1)
	return l.inner.LoadQuiz(ctx, quizID)
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID: "quiz-1",
		Questions: []domain.Question{
			{ID: "q1", Options: []domain.Option{{ID: "a", Correct: true}, {ID: "b"}}},
		},
	}
}

func TestQuizRepositoryCachesUntilTTL(t *testing.T) {
	loader := &countingLoader{inner: NewStaticQuizLoader(map[string]domain.Quiz{"quiz-1": sampleQuiz()})}
	repo := NewQuizRepository(loader, time.Minute)

	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	repo.clock = func() time.Time { return now }

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		quiz, err := repo.GetQuiz(ctx, "quiz-1")
		if err != nil {
			t.Fatalf("GetQuiz: %v", err)
		}
		if quiz.ID != "quiz-1" || len(quiz.Questions) != 1 {
			t.Fatalf("unexpected quiz %+v", quiz)
		}
	}
	if got := atomic.LoadInt64(&loader.calls); got != 1 {
		t.Fatalf("loader calls = %d, want 1 (cache hit expected)", got)
	}

	// Past the TTL (plus maximum jitter) the loader is consulted again.
	now = now.Add(2 * time.Minute)
	if _, err := repo.GetQuiz(ctx, "quiz-1"); err != nil {
		t.Fatalf("GetQuiz after expiry: %v", err)
	}
	if got := atomic.LoadInt64(&loader.calls); got != 2 {
		t.Fatalf("loader calls after expiry = %d, want 2", got)
	}
}

func TestQuizRepositoryCollapsesConcurrentLoads(t *testing.T) {
	loader := &countingLoader{inner: NewStaticQuizLoader(map[string]domain.Quiz{"quiz-1": sampleQuiz()})}
	repo := NewQuizRepository(loader, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.GetQuiz(context.Background(), "quiz-1"); err != nil {
				t.Errorf("GetQuiz: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt64(&loader.calls); got != 1 {
		t.Fatalf("loader calls = %d, want 1 (singleflight expected)", got)
	}
}

func TestQuizRepositoryPropagatesNotFound(t *testing.T) {
	repo := NewQuizRepository(NewStaticQuizLoader(nil), time.Minute)
	if _, err := repo.GetQuiz(context.Background(), "ghost"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("got %v, want ErrQuizNotFound", err)
	}
}

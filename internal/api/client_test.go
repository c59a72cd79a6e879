package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/balance/internal/model"
)

func TestClientEndpoints(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /game/config", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"minValue":1,"maxValue":20,"numOptions":5,"timeLimit":30,
			"visualFeedbackSensitivity":0.7,"levels":{"1":{"requiredScore":0,"targetRange":[1,10]}}}`))
	})
	mux.HandleFunc("GET /game/problem", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2", r.URL.Query().Get("level"))
		_, _ = w.Write([]byte(`{"id":"p1","targetNumber":9,"options":[4,5,1,8,2]}`))
	})
	mux.HandleFunc("POST /game/submit", func(w http.ResponseWriter, r *http.Request) {
		var req model.SubmitRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, model.SubmitRequest{UserID: "u1", ProblemID: "p1", SelectedOptions: []int{4, 5}}, req)
		_, _ = w.Write([]byte(`{"correct":true,"feedback":"ok","tiltAngle":0,"newStreak":1,"newScore":10,"newLevel":1}`))
	})
	mux.HandleFunc("POST /api/game/sync", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "u1", r.Header.Get(UserHeader))
		var raw map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		assert.Equal(t, float64(30), raw["xp"])
		assert.Equal(t, float64(1_700_000_000_000), raw["timestamp"])
		_, _ = w.Write([]byte(`{"currentLevel":2,"currentScore":30,"streak":0,"totalProblems":4}`))
	})
	mux.HandleFunc("GET /user/{id}/progress", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "u 1", r.PathValue("id"))
		_, _ = w.Write([]byte(`{"currentLevel":3,"currentScore":99,"streak":2,"totalProblems":12}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := New(srv.URL+"/", nil)
	require.NoError(t, err)
	ctx := context.Background()

	cfg, err := c.GetConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.NumOptions)
	assert.Equal(t, [2]int{1, 10}, cfg.Levels[1].TargetRange)
	assert.Equal(t, 30*time.Second, cfg.TimeLimit())

	p, err := c.GetProblem(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "p1", p.ID)
	assert.False(t, p.Local)

	res, err := c.Submit(ctx, model.SubmitRequest{UserID: "u1", ProblemID: "p1", SelectedOptions: []int{4, 5}})
	require.NoError(t, err)
	assert.Equal(t, 10, res.NewScore)

	up, err := c.Sync(ctx, "u1", model.LocalProgress{Level: 2, XP: 30, QuestionsCorrect: 3, QuestionsAttempted: 4,
		Timestamp: time.UnixMilli(1_700_000_000_000)})
	require.NoError(t, err)
	assert.Equal(t, model.UserProgress{CurrentLevel: 2, CurrentScore: 30, TotalProblems: 4}, up)

	up, err = c.UserProgress(ctx, "u 1")
	require.NoError(t, err)
	assert.Equal(t, 99, up.CurrentScore)
}

func TestClientStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "payload rejected", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c, err := New(srv.URL, nil)
	require.NoError(t, err)
	_, err = c.Sync(context.Background(), "u1", model.LocalProgress{Level: 1})
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnprocessableEntity, statusErr.Code)
	assert.Equal(t, "payload rejected", statusErr.Body)
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New("ftp://example.com", nil)
	assert.Error(t, err)
	_, err = New("://", nil)
	assert.Error(t, err)
}

func TestHealthURL(t *testing.T) {
	c, err := New("http://localhost:8080/", nil)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/health", c.HealthURL())
}

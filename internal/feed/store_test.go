package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cecal/internal/model"
)

type stubLoader struct {
	res Result
	err error
}

func (s *stubLoader) Fetch(context.Context) (Result, error) {
	return s.res, s.err
}

func TestStoreRefreshReplacesWholesale(t *testing.T) {
	loader := &stubLoader{res: Result{
		Events: []model.Event{
			{ID: "1", Title: "A"},
			{ID: "2", Title: "B"},
		},
		Source:    "https://x.example/feed.json",
		FetchedAt: time.Now(),
	}}
	s := NewStore(loader)
	assert.False(t, s.Snapshot().Loaded())
	assert.NotNil(t, s.Events())

	require.NoError(t, s.Refresh(context.Background()))
	assert.Len(t, s.Events(), 2)

	ev, ok := s.Find("2")
	require.True(t, ok)
	assert.Equal(t, "B", ev.Title)
	_, ok = s.Find("nope")
	assert.False(t, ok)

	loader.res = Result{Events: []model.Event{{ID: "3"}}, FetchedAt: time.Now()}
	require.NoError(t, s.Refresh(context.Background()))
	assert.Len(t, s.Events(), 1)
	_, ok = s.Find("1")
	assert.False(t, ok)
}

func TestStoreRefreshFailureKeepsPreviousEvents(t *testing.T) {
	loader := &stubLoader{res: Result{Events: []model.Event{{ID: "1"}}, FetchedAt: time.Now()}}
	s := NewStore(loader)
	require.NoError(t, s.Refresh(context.Background()))

	loader.err = errors.New("offline")
	err := s.Refresh(context.Background())
	require.Error(t, err)

	snap := s.Snapshot()
	assert.Len(t, snap.Events, 1)
	assert.Equal(t, "offline", snap.LastError)
	assert.False(t, snap.LastAttempt.IsZero())
}

func TestStoreAllSourcesFailedNoCache(t *testing.T) {
	f := newTestFetcher(t, t.TempDir(), time.Hour, "http://127.0.0.1:1/eventos.json")
	s := NewStore(f)

	err := s.Refresh(context.Background())
	require.ErrorIs(t, err, ErrAllSourcesFailed)

	snap := s.Snapshot()
	assert.Empty(t, snap.Events)
	assert.NotEmpty(t, snap.LastError)
	assert.False(t, snap.Loaded())
}

func TestStoreDuplicateIDsKeepFirst(t *testing.T) {
	s := NewStore(&stubLoader{})
	s.Replace(Result{Events: []model.Event{{ID: "1", Title: "first"}, {ID: "1", Title: "second"}}})

	ev, ok := s.Find("1")
	require.True(t, ok)
	assert.Equal(t, "first", ev.Title)
}

package session

import (
	"strings"
	"testing"
	"time"

	"github.com/cloudcompute/webclient/internal/logging"
	"github.com/cloudcompute/webclient/internal/page"
	"github.com/cloudcompute/webclient/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, max int) (*Manager, *testutil.MockStorage) {
	t.Helper()
	store := testutil.NewMockStorage()
	be := testutil.NewFakeBackend()
	m := NewManager(func(id string) *page.Controller {
		return page.New(page.Options{
			ID:          id,
			Store:       store,
			Backend:     be,
			PreviewBase: "/api/preview/",
			Logger:      logging.Discard(),
		})
	}, max, logging.Discard())
	t.Cleanup(m.CloseAll)
	return m, store
}

func TestManager_OpenGetClose(t *testing.T) {
	m, _ := newTestManager(t, 4)

	p, err := m.Open()
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID())
	assert.Equal(t, 1, m.Count())

	got, ok := m.Get(p.ID())
	require.True(t, ok)
	assert.Same(t, p, got)

	require.NoError(t, m.Close(p.ID()))
	_, ok = m.Get(p.ID())
	assert.False(t, ok)
	assert.ErrorIs(t, m.Close(p.ID()), ErrNotFound)
}

func TestManager_CloseReleasesPreview(t *testing.T) {
	m, store := newTestManager(t, 4)

	p, err := m.Open()
	require.NoError(t, err)
	require.NoError(t, p.ChangeFile("a.py", strings.NewReader("x")))
	assert.Equal(t, 1, store.LivePreviews())

	require.NoError(t, m.Close(p.ID()))
	assert.Equal(t, 0, store.LivePreviews())
}

func TestManager_CleanupOldSessions(t *testing.T) {
	m, _ := newTestManager(t, 4)

	stale, err := m.Open()
	require.NoError(t, err)
	fresh, err := m.Open()
	require.NoError(t, err)

	state, _ := m.sessions.Load(stale.ID())
	state.touch(time.Now().Add(-time.Hour))

	assert.Equal(t, 1, m.CleanupOldSessions(30*time.Minute))
	assert.False(t, m.TouchSession(stale.ID()))
	assert.True(t, m.TouchSession(fresh.ID()))
}

func TestManager_LimitEvictsIdle(t *testing.T) {
	m, _ := newTestManager(t, 2)

	first, err := m.Open()
	require.NoError(t, err)
	_, err = m.Open()
	require.NoError(t, err)

	// both sessions are inside the keep-alive window
	_, err = m.Open()
	assert.ErrorIs(t, err, ErrTooManySessions)

	state, _ := m.sessions.Load(first.ID())
	state.touch(time.Now().Add(-SessionKeepAliveWindow - time.Minute))

	third, err := m.Open()
	require.NoError(t, err)
	assert.Equal(t, 2, m.Count())
	_, ok := m.Get(first.ID())
	assert.False(t, ok, "oldest idle session should be evicted")
	_, ok = m.Get(third.ID())
	assert.True(t, ok)
}

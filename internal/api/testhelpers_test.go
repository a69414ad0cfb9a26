package api

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloudcompute/webclient/internal/logging"
	"github.com/cloudcompute/webclient/internal/page"
	"github.com/cloudcompute/webclient/internal/session"
	"github.com/cloudcompute/webclient/internal/testutil"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	e        *echo.Echo
	store    *testutil.MockStorage
	backend  *testutil.FakeBackend
	sessions *session.Manager
	handlers *Handlers
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := testutil.NewMockStorage()
	be := testutil.NewFakeBackend()
	sessions := session.NewManager(func(id string) *page.Controller {
		return page.New(page.Options{
			ID:          id,
			Store:       store,
			Backend:     be,
			PreviewBase: PreviewPath,
			Logger:      logging.Discard(),
		})
	}, 8, logging.Discard())
	t.Cleanup(sessions.CloseAll)

	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler
	handlers := NewHandlers(&Dependencies{
		Store:    store,
		Sessions: sessions,
		Version:  "test",
		Logger:   logging.Discard(),
	})
	RegisterRoutes(e, handlers)

	return &testEnv{e: e, store: store, backend: be, sessions: sessions, handlers: handlers}
}

// openPage creates a session and returns its controller
func (env *testEnv) openPage(t *testing.T) *page.Controller {
	t.Helper()
	p, err := env.sessions.Open()
	require.NoError(t, err)
	return p
}

// newContext builds an echo context for a request made by the given session
func (env *testEnv) newContext(method, target string, body io.Reader, sessionID string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, body)
	if sessionID != "" {
		req.Header.Set(SessionHeader, sessionID)
	}
	rec := httptest.NewRecorder()
	return env.e.NewContext(req, rec), rec
}

func (env *testEnv) jsonContext(method, target, body, sessionID string) (echo.Context, *httptest.ResponseRecorder) {
	c, rec := env.newContext(method, target, bytes.NewBufferString(body), sessionID)
	c.Request().Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return c, rec
}

func multipartFile(t *testing.T, field, name, content string) (*bytes.Buffer, string) {
	t.Helper()
	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(field, name)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func (env *testEnv) uploadFile(t *testing.T, sessionID, name, content string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartFile(t, "file", name, content)
	c, rec := env.newContext(http.MethodPost, "/api/file", body, sessionID)
	c.Request().Header.Set(echo.HeaderContentType, contentType)
	require.NoError(t, env.handlers.Page.HandleChangeFile(c))
	return rec
}

func requireAPIError(t *testing.T, err error, status int, code string) {
	t.Helper()
	require.Error(t, err)
	apiErr, ok := err.(*APIError)
	require.Truef(t, ok, "expected APIError, got %T", err)
	require.Equal(t, status, apiErr.Status)
	require.Equal(t, code, apiErr.Code)
}

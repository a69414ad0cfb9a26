package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/cloudcompute/webclient/internal/models"
	"github.com/cloudcompute/webclient/internal/page"
	"github.com/cloudcompute/webclient/internal/submission"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeView(t *testing.T, body []byte) models.ResultView {
	t.Helper()
	var view models.ResultView
	require.NoError(t, json.Unmarshal(body, &view))
	return view
}

func TestPageHandler_SetAPIKeyAndToggle(t *testing.T) {
	env := newTestEnv(t)
	p := env.openPage(t)

	c, rec := env.jsonContext(http.MethodPut, "/api/apikey", `{"value":"abc"}`, p.ID())
	require.NoError(t, env.handlers.Page.HandleSetAPIKey(c))
	assert.JSONEq(t, `{"value":"abc","inputType":"password","icon":"fa-eye"}`, rec.Body.String())

	c, rec = env.newContext(http.MethodPost, "/api/apikey/toggle", nil, p.ID())
	require.NoError(t, env.handlers.Page.HandleToggleAPIKey(c))
	assert.JSONEq(t, `{"value":"abc","inputType":"text","icon":"fa-eye-slash"}`, rec.Body.String())

	c, rec = env.newContext(http.MethodPost, "/api/apikey/toggle", nil, p.ID())
	require.NoError(t, env.handlers.Page.HandleToggleAPIKey(c))
	assert.JSONEq(t, `{"value":"abc","inputType":"password","icon":"fa-eye"}`, rec.Body.String())
}

func TestPageHandler_ChangeAndDeleteFile(t *testing.T) {
	env := newTestEnv(t)
	p := env.openPage(t)

	rec := env.uploadFile(t, p.ID(), "main.py", "print('hi')")
	assert.Equal(t, http.StatusOK, rec.Code)

	var panel models.FileInfoPanel
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &panel))
	assert.True(t, panel.Visible)
	assert.Equal(t, "main.py", panel.FileName)
	assert.Equal(t, "main.py", panel.Download)
	assert.True(t, strings.HasPrefix(panel.Href, PreviewPath))

	c, rec := env.newContext(http.MethodDelete, "/api/file", nil, p.ID())
	require.NoError(t, env.handlers.Page.HandleDeleteFile(c))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &panel))
	assert.False(t, panel.Visible)
	assert.Equal(t, "#", panel.Href)
	assert.Equal(t, 0, env.store.LivePreviews())
}

func TestPageHandler_ChangeFileWithoutPartClears(t *testing.T) {
	env := newTestEnv(t)
	p := env.openPage(t)
	env.uploadFile(t, p.ID(), "main.py", "x")

	c, rec := env.newContext(http.MethodPost, "/api/file", nil, p.ID())
	require.NoError(t, env.handlers.Page.HandleChangeFile(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, p.State().FileInfo.Visible)
	assert.Equal(t, 0, env.store.LivePreviews())
}

func TestPageHandler_Submit(t *testing.T) {
	tests := []struct {
		name       string
		withFile   bool
		apiKey     string
		setup      func(env *testEnv)
		wantState  models.ResultState
		wantText   string
		wantCalled bool
	}{
		{
			name:      "missing file",
			apiKey:    "k",
			wantState: models.ResultStateValidationError,
			wantText:  submission.MsgMissingFile,
		},
		{
			name:      "blank key",
			withFile:  true,
			apiKey:    "   ",
			wantState: models.ResultStateValidationError,
			wantText:  submission.MsgMissingAPIKey,
		},
		{
			name:       "success",
			withFile:   true,
			apiKey:     "k",
			setup:      func(env *testEnv) { env.backend.RespondWith(&models.ExecutionResult{Output: "<b>hi</b>"}, nil) },
			wantState:  models.ResultStateSuccess,
			wantText:   "&lt;b&gt;hi&lt;/b&gt;",
			wantCalled: true,
		},
		{
			name:       "unauthorized",
			withFile:   true,
			apiKey:     "k",
			setup:      func(env *testEnv) { env.backend.RespondWithStatus(http.StatusUnauthorized, "Unauthorized") },
			wantState:  models.ResultStateHTTPError,
			wantText:   "Помилка 401: Неправильний або відсутній API ключ. Доступ заборонено.",
			wantCalled: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			p := env.openPage(t)
			if tt.setup != nil {
				tt.setup(env)
			}
			if tt.withFile {
				env.uploadFile(t, p.ID(), "main.py", "print('hi')")
			}
			require.NoError(t, p.SetAPIKey(tt.apiKey))

			c, rec := env.newContext(http.MethodPost, "/api/submit", nil, p.ID())
			require.NoError(t, env.handlers.Page.HandleSubmit(c))
			assert.Equal(t, http.StatusOK, rec.Code)

			view := decodeView(t, rec.Body.Bytes())
			assert.Equal(t, tt.wantState, view.State)
			assert.Contains(t, view.Message+view.HTML, tt.wantText)
			assert.Equal(t, tt.wantCalled, len(env.backend.ProcessCalls()) == 1)
		})
	}
}

func TestPageHandler_SubmitCarriesAPIKey(t *testing.T) {
	env := newTestEnv(t)
	p := env.openPage(t)
	env.uploadFile(t, p.ID(), "main.py", "x")

	// the stored field is still empty when the click arrives
	c, rec := env.jsonContext(http.MethodPost, "/api/submit", `{"apiKey":"pasted-key"}`, p.ID())
	require.NoError(t, env.handlers.Page.HandleSubmit(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	view := decodeView(t, rec.Body.Bytes())
	assert.Equal(t, models.ResultStateSuccess, view.State)
	calls := env.backend.ProcessCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "pasted-key", calls[0].APIKey)
	assert.Equal(t, "pasted-key", p.State().APIKey.Value)
}

func TestPageHandler_SubmitInFlightAndCancel(t *testing.T) {
	env := newTestEnv(t)
	p := env.openPage(t)
	env.uploadFile(t, p.ID(), "main.py", "x")
	require.NoError(t, p.SetAPIKey("k"))
	release := env.backend.HoldSubmissions()
	defer release()

	done := make(chan *httpResult, 1)
	go func() {
		c, rec := env.newContext(http.MethodPost, "/api/submit", nil, p.ID())
		err := env.handlers.Page.HandleSubmit(c)
		done <- &httpResult{err: err, body: rec.Body.Bytes()}
	}()

	select {
	case <-env.backend.Started():
	case <-time.After(2 * time.Second):
		t.Fatal("submission never reached the backend")
	}

	c, _ := env.newContext(http.MethodPost, "/api/submit", nil, p.ID())
	requireAPIError(t, env.handlers.Page.HandleSubmit(c), http.StatusConflict, "CONFLICT")

	c, rec := env.newContext(http.MethodDelete, "/api/submit", nil, p.ID())
	require.NoError(t, env.handlers.Page.HandleCancelSubmit(c))
	assert.Equal(t, models.ResultStateCancelled, decodeView(t, rec.Body.Bytes()).State)

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, submission.MsgCancelled, decodeView(t, res.body).Message)
	assert.Len(t, env.backend.ProcessCalls(), 1)

	c, _ = env.newContext(http.MethodDelete, "/api/submit", nil, p.ID())
	requireAPIError(t, env.handlers.Page.HandleCancelSubmit(c), http.StatusConflict, "CONFLICT")
}

type httpResult struct {
	err  error
	body []byte
}

func TestPageHandler_Registration(t *testing.T) {
	env := newTestEnv(t)
	p := env.openPage(t)

	c, rec := env.newContext(http.MethodPost, "/api/register/open", nil, p.ID())
	require.NoError(t, env.handlers.Page.HandleOpenRegistration(c))
	assert.Contains(t, rec.Body.String(), `"open":true`)

	c, rec = env.jsonContext(http.MethodPost, "/api/register", `{"username":"ann","email":"ann@example.com"}`, p.ID())
	require.NoError(t, env.handlers.Page.HandleRegister(c))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	var resp registerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Generated)
	assert.Regexp(t, `^api_[0-9a-z]+$`, resp.APIKey)
	assert.Equal(t, resp.APIKey, p.State().APIKey.Value)

	p.Wait()
	require.Len(t, env.backend.Registrations(), 1)

	c, rec = env.newContext(http.MethodPost, "/api/register/close", nil, p.ID())
	require.NoError(t, env.handlers.Page.HandleCloseRegistration(c))
	assert.JSONEq(t, `{"open":false,"username":"","email":""}`, rec.Body.String())
}

func TestPageHandler_RegistrationEmptyFields(t *testing.T) {
	env := newTestEnv(t)
	p := env.openPage(t)

	c, rec := env.jsonContext(http.MethodPost, "/api/register", `{"username":"ann","email":""}`, p.ID())
	require.NoError(t, env.handlers.Page.HandleRegister(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"generated":false}`, rec.Body.String())
	p.Wait()
	assert.Empty(t, env.backend.Registrations())
}

func TestPageHandler_AckAlert(t *testing.T) {
	env := newTestEnv(t)
	p := env.openPage(t)
	env.backend.RegisterWith(&models.RegistrationResponse{Error: "User already exists"}, nil)

	_, ok, err := p.SubmitRegistration("ann", "ann@example.com")
	require.NoError(t, err)
	require.True(t, ok)
	p.Wait()

	c, rec := env.newContext(http.MethodPost, "/api/alerts/ack", nil, p.ID())
	require.NoError(t, env.handlers.Page.HandleAckAlert(c))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	c, _ = env.newContext(http.MethodPost, "/api/alerts/ack", nil, p.ID())
	requireAPIError(t, env.handlers.Page.HandleAckAlert(c), http.StatusNotFound, "NOT_FOUND")
}

func TestPageHandler_ClosedPage(t *testing.T) {
	env := newTestEnv(t)
	p := env.openPage(t)

	// a request that resolved the page just before teardown
	require.NoError(t, p.Close())
	c, _ := env.newContext(http.MethodGet, "/api/state", nil, p.ID())
	requireAPIError(t, pageError(c, p.SetAPIKey("k")), http.StatusNotFound, "SESSION_NOT_FOUND")
	assert.ErrorIs(t, p.SetAPIKey("k"), page.ErrClosed)
}

func TestPreviewHandler(t *testing.T) {
	env := newTestEnv(t)
	p := env.openPage(t)
	env.uploadFile(t, p.ID(), "main.py", "print('hi')")
	token := strings.TrimPrefix(p.State().FileInfo.Href, PreviewPath)

	c, rec := env.newContext(http.MethodGet, "/api/preview/"+token, nil, "")
	c.SetParamNames("token")
	c.SetParamValues(token)
	require.NoError(t, env.handlers.Preview.HandlePreview(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename=main.py`, rec.Header().Get(echo.HeaderContentDisposition))
	body, _ := io.ReadAll(rec.Body)
	assert.Equal(t, "print('hi')", string(body))

	require.NoError(t, p.DeleteFile())

	c, _ = env.newContext(http.MethodGet, "/api/preview/"+token, nil, "")
	c.SetParamNames("token")
	c.SetParamValues(token)
	requireAPIError(t, env.handlers.Preview.HandlePreview(c), http.StatusNotFound, "NOT_FOUND")
}

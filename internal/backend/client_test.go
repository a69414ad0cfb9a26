package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cloudcompute/webclient/internal/logging"
	"github.com/cloudcompute/webclient/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(srv *httptest.Server, timeout time.Duration) *Client {
	return New(Options{
		ProcessURL:  srv.URL + "/process-code",
		RegisterURL: srv.URL + "/register",
		Timeout:     timeout,
	}, logging.Discard())
}

func TestProcessCode_SendsMultipartForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/process-code", r.URL.Path)
		assert.Equal(t, "Bearer key-123", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "key-123", r.FormValue(FieldAPIKey))

		f, hdr, err := r.FormFile(FieldCodeFile)
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "pi_10.py", hdr.Filename)
		data, _ := io.ReadAll(f)
		assert.Equal(t, "print(3.14)", string(data))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"output": "3.14\n"})
	}))
	defer srv.Close()

	c := newTestClient(srv, 0)
	res, err := c.ProcessCode(context.Background(), "key-123", "pi_10.py", strings.NewReader("print(3.14)"))
	require.NoError(t, err)
	assert.Equal(t, "3.14\n", res.Output)
	assert.Empty(t, res.Error)
}

func TestProcessCode_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "unauthorized keeps status",
			status: http.StatusUnauthorized,
			body:   `{"error":"Missing or malformed API key"}`,
			check: func(t *testing.T, err error) {
				var se *StatusError
				require.True(t, errors.As(err, &se))
				assert.Equal(t, 401, se.Code)
				assert.Equal(t, "Unauthorized", se.StatusText)
			},
		},
		{
			name:   "teapot reason phrase",
			status: http.StatusTeapot,
			body:   "",
			check: func(t *testing.T, err error) {
				var se *StatusError
				require.True(t, errors.As(err, &se))
				assert.Equal(t, 418, se.Code)
				assert.Equal(t, "I'm a teapot", se.StatusText)
			},
		},
		{
			name:   "malformed json",
			status: http.StatusOK,
			body:   "<html>oops</html>",
			check: func(t *testing.T, err error) {
				var pe *ParseError
				assert.True(t, errors.As(err, &pe))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := newTestClient(srv, 0).ProcessCode(context.Background(), "k", "a.py", strings.NewReader("x"))
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestProcessCode_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := newTestClient(srv, 0).ProcessCode(context.Background(), "k", "a.py", strings.NewReader("x"))
	var te *TransportError
	assert.True(t, errors.As(err, &te))
}

func TestProcessCode_TimeoutIsTransportError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := newTestClient(srv, 50*time.Millisecond).ProcessCode(context.Background(), "k", "a.py", strings.NewReader("x"))
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRegister(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantErr  bool
		wantResp models.RegistrationResponse
	}{
		{
			name:     "issued key",
			status:   http.StatusOK,
			body:     `{"message":"User registered successfully","api_key":"abc123"}`,
			wantResp: models.RegistrationResponse{Message: "User registered successfully", APIKey: "abc123"},
		},
		{
			name:     "conflict carries error field",
			status:   http.StatusConflict,
			body:     `{"error":"User with this username or email or API key already exists"}`,
			wantResp: models.RegistrationResponse{Error: "User with this username or email or API key already exists"},
		},
		{
			name:    "server error without body",
			status:  http.StatusInternalServerError,
			body:    "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var got models.RegistrationRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				assert.Equal(t, models.RegistrationRequest{Username: "ann", Email: "ann@example.com", APIKey: "api_x1"}, got)
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			resp, err := newTestClient(srv, 0).Register(context.Background(), models.RegistrationRequest{
				Username: "ann", Email: "ann@example.com", APIKey: "api_x1",
			})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantResp, *resp)
		})
	}
}

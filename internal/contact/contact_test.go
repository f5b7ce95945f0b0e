package contact

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neuroexpert/site/internal/domain"
)

type fakeSubmissions struct {
	mu       sync.Mutex
	saved    []*domain.ContactSubmission
	notified []int64
	saveErr  error
	pingErr  error
}

func (f *fakeSubmissions) SaveContactSubmission(_ context.Context, sub *domain.ContactSubmission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	sub.ID = int64(len(f.saved) + 1)
	f.saved = append(f.saved, sub)
	return nil
}

func (f *fakeSubmissions) MarkContactNotified(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified = append(f.notified, id)
	return nil
}

func (f *fakeSubmissions) Ping(context.Context) error { return f.pingErr }

type fakeNotifier struct {
	configured bool
	err        error
	pingErr    error
	texts      []string
}

func (n *fakeNotifier) Configured() bool { return n.configured }

func (n *fakeNotifier) Notify(_ context.Context, text string) error {
	n.texts = append(n.texts, text)
	return n.err
}

func (n *fakeNotifier) Ping(context.Context) error { return n.pingErr }

func serve(h *Handler, method, path, body string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	h.RegisterRoutes(r, nil)
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

const validBody = `{"name":"  Анна ","contact":"+7 900 000-00-00","service":"Сайт","message":"<b>Срочно</b>"}`

func TestSubmitSuccess(t *testing.T) {
	repo := &fakeSubmissions{}
	notifier := &fakeNotifier{configured: true}
	w := serve(NewHandler(repo, notifier, 0, nil), http.MethodPost, "/api/contact", validBody)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, SuccessMessage, resp.Message)
	assert.NotEmpty(t, resp.Timestamp)

	require.Len(t, repo.saved, 1)
	assert.Equal(t, "Анна", repo.saved[0].Name)
	assert.Equal(t, []int64{1}, repo.notified)

	require.Len(t, notifier.texts, 1)
	assert.Contains(t, notifier.texts[0], "Имя: Анна")
	assert.Contains(t, notifier.texts[0], "&lt;b&gt;Срочно&lt;/b&gt;")
}

func TestSubmitValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing fields", `{"name":"Анна"}`},
		{"short name", `{"name":"А","contact":"+7 900","service":"Сайт"}`},
		{"short contact", `{"name":"Анна","contact":"123","service":"Сайт"}`},
		{"short service", `{"name":"Анна","contact":"+7 900 000","service":" С "}`},
		{"blank name", `{"name":"   ","contact":"+7 900 000","service":"Сайт"}`},
		{"invalid json", `{"name":`},
		{"empty body", ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notifier := &fakeNotifier{configured: true}
			w := serve(NewHandler(&fakeSubmissions{}, notifier, 0, nil), http.MethodPost, "/api/contact", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Empty(t, notifier.texts)
		})
	}
}

func TestSubmitMethodNotAllowed(t *testing.T) {
	w := serve(NewHandler(nil, &fakeNotifier{configured: true}, 0, nil), http.MethodGet, "/api/contact", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, http.MethodPost, w.Header().Get("Allow"))
}

func TestSubmitTelegramNotConfigured(t *testing.T) {
	repo := &fakeSubmissions{}
	w := serve(NewHandler(repo, &fakeNotifier{}, 0, nil), http.MethodPost, "/api/contact", validBody)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, repo.saved)
}

func TestSubmitNotificationFailure(t *testing.T) {
	repo := &fakeSubmissions{}
	notifier := &fakeNotifier{configured: true, err: &TelegramError{Method: "sendMessage", Status: 400}}
	w := serve(NewHandler(repo, notifier, 0, nil), http.MethodPost, "/api/contact", validBody)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	require.Len(t, repo.saved, 1, "submission is stored before notifying")
	assert.Empty(t, repo.notified)
}

func TestSubmitStoreFailureStillNotifies(t *testing.T) {
	repo := &fakeSubmissions{saveErr: errors.New("disk full")}
	notifier := &fakeNotifier{configured: true}
	w := serve(NewHandler(repo, notifier, 0, nil), http.MethodPost, "/api/contact", validBody)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, notifier.texts, 1)
	assert.Empty(t, repo.notified)
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name         string
		repo         *fakeSubmissions
		notifier     *fakeNotifier
		wantStatus   string
		wantTelegram string
	}{
		{"healthy", &fakeSubmissions{}, &fakeNotifier{configured: true}, "healthy", "connected"},
		{"telegram down", &fakeSubmissions{}, &fakeNotifier{configured: true, pingErr: errors.New("401")}, "healthy", "connection_failed"},
		{"not configured", &fakeSubmissions{}, &fakeNotifier{}, "healthy", "not_configured"},
		{"database down", &fakeSubmissions{pingErr: errors.New("closed")}, &fakeNotifier{}, "degraded", "not_configured"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(NewHandler(tt.repo, tt.notifier, 0, nil), http.MethodGet, "/api/contact/health", "")
			require.Equal(t, http.StatusOK, w.Code)

			var body struct {
				Status   string `json:"status"`
				Telegram struct {
					Status string `json:"status"`
				} `json:"telegram"`
			}
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.Equal(t, tt.wantStatus, body.Status)
			assert.Equal(t, tt.wantTelegram, body.Telegram.Status)
		})
	}
}

func TestTelegramNotify(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bottok/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":1}}`)
	}))
	defer srv.Close()

	n := NewTelegramNotifier("tok", "42", srv.URL, srv.Client())
	require.True(t, n.Configured())
	require.NoError(t, n.Notify(context.Background(), "hi"))
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "HTML", got["parse_mode"])
	assert.Equal(t, "hi", got["text"])
}

func TestTelegramErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/getMe") {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"ok":false,"description":"Unauthorized"}`)
			return
		}
		// HTTP 200 with ok=false still fails.
		_, _ = io.WriteString(w, `{"ok":false,"description":"chat not found"}`)
	}))
	defer srv.Close()

	n := NewTelegramNotifier("tok", "42", srv.URL, srv.Client())

	err := n.Notify(context.Background(), "hi")
	var tgErr *TelegramError
	require.ErrorAs(t, err, &tgErr)
	assert.Equal(t, "chat not found", tgErr.Description)

	err = n.Ping(context.Background())
	require.ErrorAs(t, err, &tgErr)
	assert.Equal(t, http.StatusUnauthorized, tgErr.Status)

	assert.ErrorIs(t, NewTelegramNotifier("", "", "", nil).Notify(context.Background(), "hi"), ErrNotConfigured)
}

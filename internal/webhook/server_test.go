package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/shop-bot/internal/common"
)

type recordingFinalizer struct {
	mu    sync.Mutex
	calls [][2]string // (operation_id, status)
	err   error
}

func (f *recordingFinalizer) TryFinalize(_ context.Context, operationID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, [2]string{operationID, status})
	return f.err
}

const testSecret = "ipn-secret"

func sign(body string) string {
	mac := hmac.New(sha512.New, []byte(testSecret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func newTestServer(fin *recordingFinalizer, secret string) *Server {
	return NewServer(":0", fin, NewSecurityMonitor(testConfig()), secret)
}

func postIPN(t *testing.T, srv *Server, body, sig, forwardedFor string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/nowpayments-ipn", strings.NewReader(body))
	req.RemoteAddr = "10.0.0.1:54321"
	if sig != "" {
		req.Header.Set("x-nowpayments-sig", sig)
	}
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestIPNValidSignature(t *testing.T) {
	fin := &recordingFinalizer{}
	srv := newTestServer(fin, testSecret)

	body := `{"payment_id": 5077125051, "payment_status": "finished"}`
	w := postIPN(t, srv, body, sign(body), "")

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, fin.calls, 1)
	assert.Equal(t, [2]string{"5077125051", "finished"}, fin.calls[0])
}

func TestIPNInvalidSignature(t *testing.T) {
	fin := &recordingFinalizer{}
	srv := newTestServer(fin, testSecret)

	body := `{"payment_id": 1, "payment_status": "finished"}`
	w := postIPN(t, srv, body, sign(body+"tampered"), "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, fin.calls)
}

func TestIPNMissingSignature(t *testing.T) {
	fin := &recordingFinalizer{}
	srv := newTestServer(fin, testSecret)

	w := postIPN(t, srv, `{"payment_id": 1, "payment_status": "finished"}`, "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, fin.calls)
}

func TestIPNEmptySecretSkipsVerification(t *testing.T) {
	fin := &recordingFinalizer{}
	srv := newTestServer(fin, "")

	w := postIPN(t, srv, `{"payment_id": 42, "payment_status": "failed"}`, "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, fin.calls, 1)
	assert.Equal(t, [2]string{"42", "failed"}, fin.calls[0])
}

func TestIPNMalformedBody(t *testing.T) {
	fin := &recordingFinalizer{}
	srv := newTestServer(fin, testSecret)

	body := `not json at all`
	w := postIPN(t, srv, body, sign(body), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, fin.calls)
}

func TestIPNDuplicateCallbackIsOK(t *testing.T) {
	// повтор колбэка по уже закрытому счёту — 200, чтобы провайдер
	// не продолжал ретраи
	fin := &recordingFinalizer{err: common.ErrAlreadyHandled}
	srv := newTestServer(fin, testSecret)

	body := `{"payment_id": 1, "payment_status": "finished"}`
	w := postIPN(t, srv, body, sign(body), "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestIPNFailureSeriesBlocksIP(t *testing.T) {
	fin := &recordingFinalizer{}
	srv := newTestServer(fin, testSecret)

	for i := 0; i < 3; i++ {
		w := postIPN(t, srv, `{"payment_id": 1}`, "wrong-signature", "203.0.113.7")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}

	// IP заблокирован, валидная подпись уже не помогает;
	// блокировка отвечает тем же 429, что и лимит
	body := `{"payment_id": 1, "payment_status": "finished"}`
	w := postIPN(t, srv, body, sign(body), "203.0.113.7")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Empty(t, fin.calls)

	// другой IP работает как обычно
	w = postIPN(t, srv, body, sign(body), "203.0.113.8")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestClientIPForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "10.0.0.1:54321"
	assert.Equal(t, "10.0.0.1", clientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", clientIP(req))
}

// Package webhook — server.go принимает IPN-колбэки NOWPayments.
// Подпись x-nowpayments-sig — HMAC-SHA512 от сырого тела запроса;
// запрос без валидной подписи не доходит до расчётного ядра.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/shop-bot/internal/common"
)

const maxBodySize = 64 << 10

// finalizer — расчётное ядро с точки зрения вебхука.
type finalizer interface {
	TryFinalize(ctx context.Context, operationID, status string) error
}

// Server — HTTP-приёмник IPN.
type Server struct {
	settle    finalizer
	monitor   *SecurityMonitor
	ipnSecret string
	httpSrv   *http.Server
}

func NewServer(addr string, settle finalizer, monitor *SecurityMonitor, ipnSecret string) *Server {
	s := &Server{
		settle:    settle,
		monitor:   monitor,
		ipnSecret: ipnSecret,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	// провайдер настраивается и на корень, и на явный путь
	r.Post("/", s.handleIPN)
	r.Post("/nowpayments-ipn", s.handleIPN)

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
	return s
}

// ListenAndServe блокирует до остановки сервера.
func (s *Server) ListenAndServe() error {
	log.WithField("addr", s.httpSrv.Addr).Info("IPN-сервер запущен")
	return s.httpSrv.ListenAndServe()
}

// Shutdown останавливает сервер, дожидаясь активных запросов.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// Handler отдаёт роутер (для тестов).
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// ipnPayload — интересующая часть тела колбэка.
// payment_id приходит и числом, и строкой.
type ipnPayload struct {
	PaymentID     json.Number `json:"payment_id"`
	PaymentStatus string      `json:"payment_status"`
}

func (s *Server) handleIPN(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	logger := log.WithField("ip", ip)

	// и лимит, и блокировка отвечают 429 — провайдеру без разницы,
	// а абьюзеру нечего сообщать о причине
	if s.monitor.Check(ip) != VerdictAllow {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		s.monitor.RecordFailure(ip)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if !s.verifySignature(body, r.Header.Get("x-nowpayments-sig")) {
		s.monitor.RecordFailure(ip)
		logger.Warn("IPN с невалидной подписью")
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	var payload ipnPayload
	if err := json.Unmarshal(body, &payload); err != nil || payload.PaymentID.String() == "" {
		s.monitor.RecordFailure(ip)
		logger.Warn("IPN с нечитаемым телом")
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	err = s.settle.TryFinalize(r.Context(), payload.PaymentID.String(), payload.PaymentStatus)
	switch {
	case err == nil, errors.Is(err, common.ErrAlreadyHandled):
		// повтор колбэка по закрытому счёту — штатный случай
	default:
		logger.WithError(err).WithField("operation_id", payload.PaymentID.String()).
			Error("Ошибка финализации по IPN")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// verifySignature сверяет HMAC-SHA512 тела с заголовком.
// Пустой секрет — режим песочницы, подпись не проверяется.
func (s *Server) verifySignature(body []byte, sig string) bool {
	if s.ipnSecret == "" {
		return true
	}
	if sig == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(s.ipnSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(sig)))
}

// clientIP берёт первый адрес из X-Forwarded-For (сервер стоит за
// reverse proxy), иначе — адрес соединения.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

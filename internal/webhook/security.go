// Package webhook — security.go следит за источниками IPN-колбэков.
// Провайдер шлёт запросы с ограниченного числа адресов, поэтому
// всплеск трафика или серия невалидных подписей с одного IP — признак
// перебора, и адрес блокируется на время.
package webhook

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// SecurityConfig — лимиты монитора.
type SecurityConfig struct {
	RateLimit        int // запросов с IP в окне RateWindow
	RateWindow       time.Duration
	FailureLimit     int // невалидных запросов с IP до блокировки
	FailureWindow    time.Duration
	AnomalyThreshold int // запросов в окне, после которых IP блокируется сразу
	BlockDuration    time.Duration
}

// Verdict — решение монитора по запросу.
type Verdict int

const (
	VerdictAllow   Verdict = iota
	VerdictLimited         // превышен лимит запросов, но блокировки нет
	VerdictBlocked         // IP заблокирован
)

// SecurityMonitor ведёт скользящие окна запросов и ошибок по IP.
type SecurityMonitor struct {
	cfg SecurityConfig
	now func() time.Time

	mu       sync.Mutex
	requests map[string][]time.Time
	failures map[string][]time.Time
	blocked  map[string]time.Time // IP → когда блокировка истекает
}

func NewSecurityMonitor(cfg SecurityConfig) *SecurityMonitor {
	return &SecurityMonitor{
		cfg:      cfg,
		now:      time.Now,
		requests: make(map[string][]time.Time),
		failures: make(map[string][]time.Time),
		blocked:  make(map[string]time.Time),
	}
}

// Check регистрирует запрос с IP и выносит вердикт.
func (m *SecurityMonitor) Check(ip string) Verdict {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if until, ok := m.blocked[ip]; ok {
		if now.Before(until) {
			return VerdictBlocked
		}
		delete(m.blocked, ip)
	}

	window := prune(append(m.requests[ip], now), now.Add(-m.cfg.RateWindow))
	m.requests[ip] = window

	if m.cfg.AnomalyThreshold > 0 && len(window) >= m.cfg.AnomalyThreshold {
		m.block(ip, now)
		log.WithFields(log.Fields{
			"ip":       ip,
			"requests": len(window),
		}).Warn("Аномальный трафик IPN, IP заблокирован")
		return VerdictBlocked
	}
	if m.cfg.RateLimit > 0 && len(window) > m.cfg.RateLimit {
		return VerdictLimited
	}
	return VerdictAllow
}

// RecordFailure регистрирует невалидный запрос (плохая подпись, мусор
// в теле). Серия ошибок в окне блокирует IP.
func (m *SecurityMonitor) RecordFailure(ip string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	window := prune(append(m.failures[ip], now), now.Add(-m.cfg.FailureWindow))
	m.failures[ip] = window

	if m.cfg.FailureLimit > 0 && len(window) >= m.cfg.FailureLimit {
		m.block(ip, now)
		log.WithFields(log.Fields{
			"ip":       ip,
			"failures": len(window),
		}).Warn("Серия невалидных IPN-запросов, IP заблокирован")
	}
}

func (m *SecurityMonitor) block(ip string, now time.Time) {
	m.blocked[ip] = now.Add(m.cfg.BlockDuration)
	delete(m.requests, ip)
	delete(m.failures, ip)
}

// Cleanup выбрасывает устаревшие окна и истёкшие блокировки.
// Вызывается по крону, чтобы карты не росли бесконечно.
func (m *SecurityMonitor) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for ip, ts := range m.requests {
		if kept := prune(ts, now.Add(-m.cfg.RateWindow)); len(kept) == 0 {
			delete(m.requests, ip)
		} else {
			m.requests[ip] = kept
		}
	}
	for ip, ts := range m.failures {
		if kept := prune(ts, now.Add(-m.cfg.FailureWindow)); len(kept) == 0 {
			delete(m.failures, ip)
		} else {
			m.failures[ip] = kept
		}
	}
	for ip, until := range m.blocked {
		if !now.Before(until) {
			delete(m.blocked, ip)
		}
	}
}

// prune отбрасывает отметки старше cutoff (срез отсортирован по времени).
func prune(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && ts[i].Before(cutoff) {
		i++
	}
	return ts[i:]
}

// Package settlement — status.go классифицирует статусы платёжного
// провайдера. Любой незнакомый статус считается промежуточным:
// по нему ничего не делаем и ждём следующего сигнала.
package settlement

import "strings"

// Outcome — исход классификации статуса платежа.
type Outcome int

const (
	// OutcomeInconclusive — платёж ещё в пути, побочных эффектов нет.
	OutcomeInconclusive Outcome = iota
	// OutcomeSuccess — деньги получены, счёт можно проводить.
	OutcomeSuccess
	// OutcomeFailure — платёж не состоится, счёт закрывается без зачисления.
	OutcomeFailure
)

var successStatuses = map[string]bool{
	"finished":       true,
	"confirmed":      true,
	"sending":        true,
	"paid":           true,
	"partially_paid": true,
}

var failureStatuses = map[string]bool{
	"failed":    true,
	"refunded":  true,
	"expired":   true,
	"cancelled": true,
}

// Classify относит статус провайдера к одному из трёх исходов.
func Classify(status string) Outcome {
	s := strings.ToLower(strings.TrimSpace(status))
	switch {
	case successStatuses[s]:
		return OutcomeSuccess
	case failureStatuses[s]:
		return OutcomeFailure
	default:
		return OutcomeInconclusive
	}
}

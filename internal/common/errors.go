// Package common — errors.go определяет пользовательские ошибки,
// которые используются во всех модулях расчётного ядра.
// Эти ошибки позволяют вызывающему коду различать типы проблем
// через errors.Is и отправлять пользователю понятные сообщения.
package common

import "errors"

// Ошибки валидации (суммы, переводы)
var (
	// ErrInvalidAmount — некорректная сумма (ноль или отрицательная)
	ErrInvalidAmount = errors.New("сумма должна быть положительной")
	// ErrInsufficientBalance — недостаточно средств на счёте
	ErrInsufficientBalance = errors.New("недостаточно средств на счёте")
)

// Ошибки поиска
var (
	// ErrUserNotFound — пользователь не найден в базе
	ErrUserNotFound = errors.New("пользователь не найден")
	// ErrItemNotFound — товар не найден в каталоге
	ErrItemNotFound = errors.New("товар не найден")
	// ErrInvoiceNotFound — счёт не найден (уже обработан или не существовал)
	ErrInvoiceNotFound = errors.New("счёт не найден")
)

// Ошибки расчёта продажи
var (
	// ErrOutOfStock — на складе нет ни одной позиции товара
	ErrOutOfStock = errors.New("товар закончился на складе")
	// ErrAlreadyHandled — счёт уже финализирован другим вызовом.
	// Это штатный исход гонки вебхука и поллера, а не сбой.
	ErrAlreadyHandled = errors.New("счёт уже обработан")
)

// ErrExternal — сбой вызова платёжного провайдера.
// Поллер повторит попытку; до таймаута счёта наружу не выносится.
var ErrExternal = errors.New("ошибка платёжного провайдера")

// RejectReason — код отказа при проверке промокода.
// Каждый шаг валидации возвращает свой код, чтобы пользователю
// можно было объяснить, что именно не подошло.
type RejectReason string

const (
	RejectNotFound            RejectReason = "not_found"
	RejectExpired             RejectReason = "expired"
	RejectAlreadyUsed         RejectReason = "already_used"
	RejectProductNotEligible  RejectReason = "product_not_eligible"
	RejectLocationNotEligible RejectReason = "location_not_eligible"
)

// PromoRejectedError — отказ резолвера промокодов с конкретной причиной.
type PromoRejectedError struct {
	Reason RejectReason
}

func (e *PromoRejectedError) Error() string {
	return "промокод отклонён: " + string(e.Reason)
}

// RejectReasonOf возвращает код отказа промокода из ошибки,
// либо пустую строку, если ошибка не про промокод.
func RejectReasonOf(err error) RejectReason {
	var pe *PromoRejectedError
	if errors.As(err, &pe) {
		return pe.Reason
	}
	return ""
}

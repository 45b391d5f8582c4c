// Package stock — service.go содержит аллокатор склада.
// Claim сперва пробует бесконечную позицию (без удаления), потом
// атомарно забирает конечную. Release возвращает конечную позицию
// в пул, если продажу после захвата пришлось отменить.
package stock

import (
	"context"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/shop-bot/internal/common"
)

// store — операции с БД, которые нужны аллокатору.
type store interface {
	ClaimFinite(ctx context.Context, itemName string) (*Entry, error)
	GetInfinite(ctx context.Context, itemName string) (*Entry, error)
	Insert(ctx context.Context, e *Entry) error
	CountByItem(ctx context.Context, itemName string) (int, error)
}

// Service — аллокатор склада.
type Service struct {
	repo store
}

func NewService(repo store) *Service {
	return &Service{repo: repo}
}

// Claim забирает одну продаваемую единицу товара.
// Если нет ни бесконечной, ни конечной позиции — common.ErrOutOfStock.
func (s *Service) Claim(ctx context.Context, itemName string) (*Entry, error) {
	inf, err := s.repo.GetInfinite(ctx, itemName)
	if err != nil {
		return nil, err
	}
	if inf != nil {
		return inf, nil
	}

	entry, err := s.repo.ClaimFinite(ctx, itemName)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, common.ErrOutOfStock
	}
	return entry, nil
}

// Release возвращает захваченную конечную позицию в пул «непроданных».
// Обязателен для любого пути, где после Claim доставка не состоялась:
// захваченную позицию нельзя молча потерять.
func (s *Service) Release(ctx context.Context, e *Entry) error {
	if e == nil || e.IsInfinity {
		// бесконечные позиции не удалялись — возвращать нечего
		return nil
	}
	if err := s.repo.Insert(ctx, &Entry{
		ItemName:   e.ItemName,
		Value:      e.Value,
		IsInfinity: false,
	}); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"item": e.ItemName,
	}).Info("Позиция возвращена на склад")
	return nil
}

// Add пополняет склад.
func (s *Service) Add(ctx context.Context, itemName, value string, infinite bool) error {
	return s.repo.Insert(ctx, &Entry{ItemName: itemName, Value: value, IsInfinity: infinite})
}

// Remaining возвращает остаток конечных позиций товара.
func (s *Service) Remaining(ctx context.Context, itemName string) (int, error) {
	return s.repo.CountByItem(ctx, itemName)
}

// Available сообщает, можно ли вообще продавать товар:
// есть бесконечная позиция или ненулевой остаток конечных.
func (s *Service) Available(ctx context.Context, itemName string) (bool, error) {
	inf, err := s.repo.GetInfinite(ctx, itemName)
	if err != nil {
		return false, err
	}
	if inf != nil {
		return true, nil
	}
	n, err := s.repo.CountByItem(ctx, itemName)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

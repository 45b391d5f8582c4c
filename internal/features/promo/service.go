// Package promo — service.go содержит резолвер промокодов.
// Resolve только проверяет и считает цену, ничего не мутируя:
// факт применения фиксирует координатор расчёта при успешной продаже.
package promo

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"serotonyl.ru/shop-bot/internal/common"
)

// store — операции с БД, которые нужны резолверу.
type store interface {
	GetByCode(ctx context.Context, code string) (*Code, error)
	IsUsed(ctx context.Context, userID int64, code, itemName string) (bool, error)
	MarkUsed(ctx context.Context, u *Usage) error
}

// Service проверяет промокоды и считает цену со скидкой.
type Service struct {
	repo store
}

func NewService(repo store) *Service {
	return &Service{repo: repo}
}

// ResolveRequest — входные данные резолвера, только плоские значения.
type ResolveRequest struct {
	Code     string
	UserID   int64
	ItemName string
	// Замыкание категорий-предков товара (нижний регистр), от категории
	// товара до корня. Считает catalog.Service.AncestorChain.
	CategoryChain []string
	BasePrice     decimal.Decimal
	City          string
	District      *string
	Now           time.Time
}

// Resolution — успешный результат: нормализованный код и цена со скидкой.
type Resolution struct {
	Code     string
	Discount int
	Price    decimal.Decimal
	City     *string
	District *string
}

// Resolve проверяет код по шагам, каждый шаг — свой код отказа:
// существование → срок действия → повторное использование →
// фильтр каталога → гео-фильтр. Порядок фиксирован: пользователю
// сообщается первая причина, по которой код не подошёл.
func (s *Service) Resolve(ctx context.Context, req ResolveRequest) (*Resolution, error) {
	code, err := s.repo.GetByCode(ctx, req.Code)
	if err != nil {
		return nil, err
	}
	if code == nil {
		return nil, &common.PromoRejectedError{Reason: common.RejectNotFound}
	}

	if code.ExpiresAt != nil && code.ExpiresAt.Before(req.Now) {
		return nil, &common.PromoRejectedError{Reason: common.RejectExpired}
	}

	used, err := s.repo.IsUsed(ctx, req.UserID, code.Code, req.ItemName)
	if err != nil {
		return nil, err
	}
	if used {
		return nil, &common.PromoRejectedError{Reason: common.RejectAlreadyUsed}
	}

	if !matchesProduct(code.Filters, req.ItemName, req.CategoryChain) {
		return nil, &common.PromoRejectedError{Reason: common.RejectProductNotEligible}
	}

	city := NormalizeCity(req.City)
	var district *string
	if req.District != nil {
		district = NormalizeDistrict(*req.District)
	}
	if !matchesGeo(code.Geo, city, district) {
		return nil, &common.PromoRejectedError{Reason: common.RejectLocationNotEligible}
	}

	res := &Resolution{
		Code:     code.Code,
		Discount: code.Discount,
		Price:    common.DiscountedPrice(req.BasePrice, code.Discount),
		District: district,
	}
	if city != "" {
		res.City = &city
	}
	return res, nil
}

// MarkUsed фиксирует применение кода после успешной продажи.
func (s *Service) MarkUsed(ctx context.Context, u *Usage) error {
	return s.repo.MarkUsed(ctx, u)
}

// matchesGeo: пустой набор таргетов — код действует везде (открытый
// матч). Строка с district == NULL покрывает любой район города;
// иначе требуется точное совпадение пары (город, район).
func matchesGeo(targets []GeoTarget, city string, district *string) bool {
	if len(targets) == 0 {
		return true
	}
	for _, t := range targets {
		if !foldEqual(t.City, city) {
			continue
		}
		if t.District == nil {
			return true
		}
		if district != nil && foldEqual(*t.District, *district) {
			return true
		}
	}
	return false
}

// matchesProduct: пустой набор фильтров — все товары подходят.
// Непустой белый список требует попадания товара или категории-предка;
// вето из чёрного списка срабатывает после и безусловно.
func matchesProduct(filters []ProductFilter, itemName string, categoryChain []string) bool {
	if len(filters) == 0 {
		return true
	}

	chain := make(map[string]bool, len(categoryChain))
	for _, c := range categoryChain {
		chain[c] = true
	}

	matches := func(f ProductFilter) bool {
		switch f.Type {
		case FilterItem:
			return foldEqual(f.Name, itemName)
		case FilterCategory:
			return chain[NormalizeCode(f.Name)]
		}
		return false
	}

	var hasAllowed, allowedHit bool
	for _, f := range filters {
		if f.Allowed {
			hasAllowed = true
			if matches(f) {
				allowedHit = true
			}
		}
	}
	if hasAllowed && !allowedHit {
		return false
	}
	for _, f := range filters {
		if !f.Allowed && matches(f) {
			return false
		}
	}
	return true
}

// Package wheel — service.go считает положенные спины и крутит колесо.
// Evaluate идемпотентен: положенное число выводится заново из общего
// числа покупок, поэтому повторный вызов ничего не доначисляет.
package wheel

import (
	"context"
	"math/rand"

	log "github.com/sirupsen/logrus"
)

// store — операции с БД, которые нужны колесу.
type store interface {
	Spins(ctx context.Context, userID int64) (int, error)
	AddSpins(ctx context.Context, userID int64, n int) error
	ConsumeSpin(ctx context.Context, userID int64) (bool, error)
	ClearSpins(ctx context.Context, userID int64) error
	CountWins(ctx context.Context, userID int64) (int, error)
	RecordWin(ctx context.Context, userID int64, prize string) error
	ActivePrizes(ctx context.Context) ([]Prize, error)
	CreatePrize(ctx context.Context, name string) error
	DeactivatePrize(ctx context.Context, id int64) error
	IsBanned(ctx context.Context, userID int64) (bool, error)
	Ban(ctx context.Context, userID int64) error
	Unban(ctx context.Context, userID int64) error
}

// Service начисляет спины за покупки и проводит розыгрыши.
type Service struct {
	repo      store
	spinEvery int // покупок на один спин
}

func NewService(repo store, spinEvery int) *Service {
	if spinEvery <= 0 {
		spinEvery = 5
	}
	return &Service{repo: repo, spinEvery: spinEvery}
}

// Evaluate доначисляет спины по общему числу покупок пользователя.
// Положено purchaseCount/spinEvery, уже выдано — спины плюс выигрыши;
// разница (если положительная) доначисляется. Возвращает доначисленное.
// Бан и пустой пул призов отключают начисление.
func (s *Service) Evaluate(ctx context.Context, userID int64, purchaseCount int) (int, error) {
	banned, err := s.repo.IsBanned(ctx, userID)
	if err != nil {
		return 0, err
	}
	if banned {
		return 0, nil
	}

	prizes, err := s.repo.ActivePrizes(ctx)
	if err != nil {
		return 0, err
	}
	if len(prizes) == 0 {
		return 0, nil
	}

	spins, err := s.repo.Spins(ctx, userID)
	if err != nil {
		return 0, err
	}
	wins, err := s.repo.CountWins(ctx, userID)
	if err != nil {
		return 0, err
	}

	expected := purchaseCount / s.spinEvery
	missing := expected - (spins + wins)
	if missing <= 0 {
		return 0, nil
	}

	if err := s.repo.AddSpins(ctx, userID, missing); err != nil {
		return 0, err
	}
	log.WithFields(log.Fields{
		"user_id": userID,
		"granted": missing,
	}).Info("Начислены спины колеса фортуны")
	return missing, nil
}

// Spin списывает спин и разыгрывает приз из активного пула.
// (nil, nil) — спинов нет или пул пуст.
func (s *Service) Spin(ctx context.Context, userID int64) (*Prize, error) {
	prizes, err := s.repo.ActivePrizes(ctx)
	if err != nil {
		return nil, err
	}
	if len(prizes) == 0 {
		return nil, nil
	}

	ok, err := s.repo.ConsumeSpin(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	prize := prizes[rand.Intn(len(prizes))]
	if err := s.repo.RecordWin(ctx, userID, prize.Name); err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"user_id": userID,
		"prize":   prize.Name,
	}).Info("Выигрыш в колесе фортуны")
	return &prize, nil
}

// SpinsLeft возвращает доступные спины пользователя.
func (s *Service) SpinsLeft(ctx context.Context, userID int64) (int, error) {
	return s.repo.Spins(ctx, userID)
}

// Ban закрывает колесо для пользователя и сжигает его спины.
func (s *Service) Ban(ctx context.Context, userID int64) error {
	if err := s.repo.Ban(ctx, userID); err != nil {
		return err
	}
	return s.repo.ClearSpins(ctx, userID)
}

// Unban снова открывает колесо.
func (s *Service) Unban(ctx context.Context, userID int64) error {
	return s.repo.Unban(ctx, userID)
}

// AddPrize добавляет приз в пул.
func (s *Service) AddPrize(ctx context.Context, name string) error {
	return s.repo.CreatePrize(ctx, name)
}

// RemovePrize выводит приз из розыгрыша; история выигрышей остаётся.
func (s *Service) RemovePrize(ctx context.Context, id int64) error {
	return s.repo.DeactivatePrize(ctx, id)
}

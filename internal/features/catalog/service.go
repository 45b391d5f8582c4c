// Package catalog — service.go содержит бизнес-логику каталога:
// чтение товара и вычисление цепочки категорий-предков.
package catalog

import (
	"context"
	"strings"
)

// store — операции с БД, которые нужны сервису каталога.
type store interface {
	GetItem(ctx context.Context, name string) (*Item, error)
	GetCategoryParent(ctx context.Context, name string) (*string, error)
}

// Service отдаёт ядру данные каталога: цену, категорию, цепочку предков.
type Service struct {
	repo store
}

func NewService(repo store) *Service {
	return &Service{repo: repo}
}

// GetItem возвращает товар по имени.
func (s *Service) GetItem(ctx context.Context, name string) (*Item, error) {
	return s.repo.GetItem(ctx, name)
}

// AncestorChain возвращает замыкание категорий-предков: саму категорию
// товара и всех её родителей до корня. Ключи приведены к нижнему
// регистру — по ним матчится фильтр промокода «category».
// Обход защищён от циклов в дереве категорий.
func (s *Service) AncestorChain(ctx context.Context, category string) ([]string, error) {
	var chain []string
	visited := make(map[string]bool)

	current := strings.TrimSpace(category)
	for current != "" && !visited[current] {
		visited[current] = true
		chain = append(chain, strings.ToLower(current))

		parent, err := s.repo.GetCategoryParent(ctx, current)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			break
		}
		current = strings.TrimSpace(*parent)
	}
	return chain, nil
}

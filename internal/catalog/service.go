package catalog

import (
	"context"
	"fmt"
	"strings"
)

// Service coordinates catalog reads and price-validated writes.
type Service struct {
	repo  RepositoryPort
	cache *PriceCache
}

// NewService builds Service. The cache may be nil.
func NewService(repo RepositoryPort, cache *PriceCache) *Service {
	return &Service{repo: repo, cache: cache}
}

func validateProduct(p Product) error {
	if strings.TrimSpace(p.Code) == "" {
		return fmt.Errorf("catalog: product code is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("catalog: product name is required")
	}
	if p.Price <= 0 {
		return ErrInvalidPrice
	}
	if p.Cost < 0 {
		return fmt.Errorf("catalog: product cost must not be negative")
	}
	return nil
}

func validateLens(l Lens) error {
	if strings.TrimSpace(l.Code) == "" {
		return fmt.Errorf("catalog: lens code is required")
	}
	if strings.TrimSpace(l.Name) == "" {
		return fmt.Errorf("catalog: lens name is required")
	}
	if l.Price <= 0 {
		return ErrInvalidPrice
	}
	if l.Cost < 0 {
		return fmt.Errorf("catalog: lens cost must not be negative")
	}
	return nil
}

// SaveProduct validates and persists a product, then invalidates its cache
// entry.
func (s *Service) SaveProduct(ctx context.Context, p Product) (*Product, error) {
	if err := validateProduct(p); err != nil {
		return nil, err
	}
	saved, err := s.repo.SaveProduct(ctx, p)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, ItemRef{Kind: KindProduct, ID: saved.ID})
	return saved, nil
}

// SaveLens validates and persists a lens, then invalidates its cache entry.
func (s *Service) SaveLens(ctx context.Context, l Lens) (*Lens, error) {
	if err := validateLens(l); err != nil {
		return nil, err
	}
	saved, err := s.repo.SaveLens(ctx, l)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, ItemRef{Kind: KindLens, ID: saved.ID})
	return saved, nil
}

// GetProduct returns one product, read-through cached.
func (s *Service) GetProduct(ctx context.Context, id int64) (*Product, error) {
	if p := s.cache.GetProduct(ctx, id); p != nil {
		return p, nil
	}
	p, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.StoreProduct(ctx, p)
	return p, nil
}

// GetLens returns one lens, read-through cached.
func (s *Service) GetLens(ctx context.Context, id int64) (*Lens, error) {
	if l := s.cache.GetLens(ctx, id); l != nil {
		return l, nil
	}
	l, err := s.repo.GetLens(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.StoreLens(ctx, l)
	return l, nil
}

// PriceOf resolves the list price for a tagged item reference through the
// per-variant lookup.
func (s *Service) PriceOf(ctx context.Context, ref ItemRef) (float64, error) {
	switch ref.Kind {
	case KindProduct:
		p, err := s.GetProduct(ctx, ref.ID)
		if err != nil {
			return 0, err
		}
		return p.Price, nil
	case KindLens:
		l, err := s.GetLens(ctx, ref.ID)
		if err != nil {
			return 0, err
		}
		return l.Price, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidRef, ref.Kind)
	}
}

// ListProducts returns a page of products.
func (s *Service) ListProducts(ctx context.Context, limit, offset int) ([]Product, error) {
	return s.repo.ListProducts(ctx, limit, offset)
}

// ListLenses returns a page of lenses.
func (s *Service) ListLenses(ctx context.Context, limit, offset int) ([]Lens, error) {
	return s.repo.ListLenses(ctx, limit, offset)
}

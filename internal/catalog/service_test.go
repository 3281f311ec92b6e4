package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type memoryCatalogRepo struct {
	products map[int64]*Product
	lenses   map[int64]*Lens
	nextID   int64
	reads    int
}

func newMemoryCatalogRepo() *memoryCatalogRepo {
	return &memoryCatalogRepo{products: make(map[int64]*Product), lenses: make(map[int64]*Lens)}
}

func (r *memoryCatalogRepo) GetProduct(ctx context.Context, id int64) (*Product, error) {
	r.reads++
	p, ok := r.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memoryCatalogRepo) GetLens(ctx context.Context, id int64) (*Lens, error) {
	r.reads++
	l, ok := r.lenses[id]
	if !ok {
		return nil, ErrNotFound
	}
	cl := *l
	return &cl, nil
}

func (r *memoryCatalogRepo) SaveProduct(ctx context.Context, p Product) (*Product, error) {
	if p.ID == 0 {
		r.nextID++
		p.ID = r.nextID
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = time.Now()
	r.products[p.ID] = &p
	return &p, nil
}

func (r *memoryCatalogRepo) SaveLens(ctx context.Context, l Lens) (*Lens, error) {
	if l.ID == 0 {
		r.nextID++
		l.ID = r.nextID
	}
	l.CreatedAt = time.Now()
	l.UpdatedAt = time.Now()
	r.lenses[l.ID] = &l
	return &l, nil
}

func (r *memoryCatalogRepo) ListProducts(ctx context.Context, limit, offset int) ([]Product, error) {
	var out []Product
	for _, p := range r.products {
		out = append(out, *p)
	}
	return out, nil
}

func (r *memoryCatalogRepo) ListLenses(ctx context.Context, limit, offset int) ([]Lens, error) {
	var out []Lens
	for _, l := range r.lenses {
		out = append(out, *l)
	}
	return out, nil
}

func TestSaveProductRejectsNonPositivePrice(t *testing.T) {
	svc := NewService(newMemoryCatalogRepo(), nil)

	_, err := svc.SaveProduct(context.Background(), Product{Code: "FR-01", Name: "Frame", Price: 0})
	require.ErrorIs(t, err, ErrInvalidPrice)

	_, err = svc.SaveProduct(context.Background(), Product{Code: "FR-01", Name: "Frame", Price: -10})
	require.ErrorIs(t, err, ErrInvalidPrice)

	_, err = svc.SaveLens(context.Background(), Lens{Code: "LN-01", Name: "CR-39", Material: "CR-39", Index: 1.5, Price: 0})
	require.ErrorIs(t, err, ErrInvalidPrice)
}

func TestPriceOfResolvesPerVariant(t *testing.T) {
	repo := newMemoryCatalogRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	p, err := svc.SaveProduct(ctx, Product{Code: "FR-01", Name: "Frame", Price: 120.5, Active: true})
	require.NoError(t, err)
	l, err := svc.SaveLens(ctx, Lens{Code: "LN-01", Name: "CR-39", Material: "CR-39", Index: 1.5, Price: 80, Active: true})
	require.NoError(t, err)

	price, err := svc.PriceOf(ctx, ItemRef{Kind: KindProduct, ID: p.ID})
	require.NoError(t, err)
	require.Equal(t, 120.5, price)

	price, err = svc.PriceOf(ctx, ItemRef{Kind: KindLens, ID: l.ID})
	require.NoError(t, err)
	require.Equal(t, 80.0, price)

	_, err = svc.PriceOf(ctx, ItemRef{Kind: "frame", ID: p.ID})
	require.ErrorIs(t, err, ErrInvalidRef)
}

func TestCacheInvalidatedOnWrite(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewPriceCache(client, time.Minute)

	repo := newMemoryCatalogRepo()
	svc := NewService(repo, cache)
	ctx := context.Background()

	p, err := svc.SaveProduct(ctx, Product{Code: "FR-01", Name: "Frame", Price: 100, Active: true})
	require.NoError(t, err)

	// first read populates the cache, second read is served from it
	_, err = svc.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	readsAfterFirst := repo.reads
	_, err = svc.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, readsAfterFirst, repo.reads)

	// a price update invalidates; the next read sees the new price
	p.Price = 150
	_, err = svc.SaveProduct(ctx, *p)
	require.NoError(t, err)
	got, err := svc.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, 150.0, got.Price)
}

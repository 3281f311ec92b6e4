package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryPort abstracts catalog persistence for the service.
type RepositoryPort interface {
	GetProduct(ctx context.Context, id int64) (*Product, error)
	GetLens(ctx context.Context, id int64) (*Lens, error)
	SaveProduct(ctx context.Context, p Product) (*Product, error)
	SaveLens(ctx context.Context, l Lens) (*Lens, error)
	ListProducts(ctx context.Context, limit, offset int) ([]Product, error)
	ListLenses(ctx context.Context, limit, offset int) ([]Lens, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) GetProduct(ctx context.Context, id int64) (*Product, error) {
	var p Product
	err := r.pool.QueryRow(ctx, `SELECT id, code, name, brand, price, cost, active, created_at, updated_at FROM products WHERE id = $1`, id).
		Scan(&p.ID, &p.Code, &p.Name, &p.Brand, &p.Price, &p.Cost, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *Repository) GetLens(ctx context.Context, id int64) (*Lens, error) {
	var l Lens
	err := r.pool.QueryRow(ctx, `SELECT id, code, name, material, refraction_index, price, cost, active, created_at, updated_at FROM lenses WHERE id = $1`, id).
		Scan(&l.ID, &l.Code, &l.Name, &l.Material, &l.Index, &l.Price, &l.Cost, &l.Active, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &l, nil
}

func (r *Repository) SaveProduct(ctx context.Context, p Product) (*Product, error) {
	if p.ID == 0 {
		err := r.pool.QueryRow(ctx, `INSERT INTO products (code, name, brand, price, cost, active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW()) RETURNING id, created_at, updated_at`,
			p.Code, p.Name, p.Brand, p.Price, p.Cost, p.Active).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return nil, err
		}
		return &p, nil
	}
	err := r.pool.QueryRow(ctx, `UPDATE products SET code=$2, name=$3, brand=$4, price=$5, cost=$6, active=$7, updated_at=NOW()
WHERE id=$1 RETURNING updated_at`, p.ID, p.Code, p.Name, p.Brand, p.Price, p.Cost, p.Active).Scan(&p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *Repository) SaveLens(ctx context.Context, l Lens) (*Lens, error) {
	if l.ID == 0 {
		err := r.pool.QueryRow(ctx, `INSERT INTO lenses (code, name, material, refraction_index, price, cost, active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW()) RETURNING id, created_at, updated_at`,
			l.Code, l.Name, l.Material, l.Index, l.Price, l.Cost, l.Active).Scan(&l.ID, &l.CreatedAt, &l.UpdatedAt)
		if err != nil {
			return nil, err
		}
		return &l, nil
	}
	err := r.pool.QueryRow(ctx, `UPDATE lenses SET code=$2, name=$3, material=$4, refraction_index=$5, price=$6, cost=$7, active=$8, updated_at=NOW()
WHERE id=$1 RETURNING updated_at`, l.ID, l.Code, l.Name, l.Material, l.Index, l.Price, l.Cost, l.Active).Scan(&l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &l, nil
}

func (r *Repository) ListProducts(ctx context.Context, limit, offset int) ([]Product, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT id, code, name, brand, price, cost, active, created_at, updated_at FROM products ORDER BY code LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.Brand, &p.Price, &p.Cost, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (r *Repository) ListLenses(ctx context.Context, limit, offset int) ([]Lens, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT id, code, name, material, refraction_index, price, cost, active, created_at, updated_at FROM lenses ORDER BY code LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lenses []Lens
	for rows.Next() {
		var l Lens
		if err := rows.Scan(&l.ID, &l.Code, &l.Name, &l.Material, &l.Index, &l.Price, &l.Cost, &l.Active, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		lenses = append(lenses, l)
	}
	return lenses, rows.Err()
}

package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/uptrace/bun"
)

type Repository interface {
	Search(ctx context.Context, f Filter) ([]Product, error)
	Get(ctx context.Context, idOrExternal string) (Product, error)
	ByIDs(ctx context.Context, ids []int64) ([]Product, error)
	Insert(ctx context.Context, p *Product) error
	Count(ctx context.Context) (int, error)
}

var (
	_ Repository = (*BunRepository)(nil)
	_ Repository = (*MemoryRepository)(nil)
)

type BunRepository struct {
	db bun.IDB
}

// likeEscaper makes LIKE wildcards in user text match literally.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func NewBunRepository(db bun.IDB) *BunRepository {
	return &BunRepository{db: db}
}

func (r *BunRepository) Search(ctx context.Context, f Filter) ([]Product, error) {
	products := make([]Product, 0)
	q := r.db.NewSelect().Model(&products).OrderExpr("p.id ASC")

	if query := strings.ToLower(strings.TrimSpace(f.Query)); query != "" {
		pattern := "%" + likeEscaper.Replace(query) + "%"
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("LOWER(p.name) LIKE ? ESCAPE '!'", pattern).
				WhereOr("LOWER(p.description) LIKE ? ESCAPE '!'", pattern).
				WhereOr("LOWER(p.category) LIKE ? ESCAPE '!'", pattern).
				WhereOr("LOWER(p.color) LIKE ? ESCAPE '!'", pattern)
		})
	}
	if f.Category != "" {
		q = q.Where("LOWER(p.category) = ?", strings.ToLower(f.Category))
	}
	if f.Size != "" {
		q = q.Where("LOWER(p.size) = ?", strings.ToLower(f.Size))
	}
	if f.Color != "" {
		q = q.Where("LOWER(p.color) = ?", strings.ToLower(f.Color))
	}
	if f.Available != nil {
		q = q.Where("p.available = ?", *f.Available)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	return products, nil
}

// Get resolves a numeric internal id first, then the external id as given and
// zero-padded.
func (r *BunRepository) Get(ctx context.Context, idOrExternal string) (Product, error) {
	idOrExternal = strings.TrimSpace(idOrExternal)
	if idOrExternal == "" {
		return Product{}, ErrNotFound
	}

	if id, err := strconv.ParseInt(idOrExternal, 10, 64); err == nil && id > 0 {
		var p Product
		err := r.db.NewSelect().Model(&p).Where("p.id = ?", id).Limit(1).Scan(ctx)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return Product{}, fmt.Errorf("get product %d: %w", id, err)
		}
	}

	var p Product
	err := r.db.NewSelect().Model(&p).
		Where("p.external_id IN (?)", bun.In(externalCandidates(idOrExternal))).
		OrderExpr("p.id ASC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	if err != nil {
		return Product{}, fmt.Errorf("get product %q: %w", idOrExternal, err)
	}
	return p, nil
}

func (r *BunRepository) ByIDs(ctx context.Context, ids []int64) ([]Product, error) {
	products := make([]Product, 0, len(ids))
	if len(ids) == 0 {
		return products, nil
	}
	err := r.db.NewSelect().Model(&products).
		Where("p.id IN (?)", bun.In(ids)).
		OrderExpr("p.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	return products, nil
}

func (r *BunRepository) Insert(ctx context.Context, p *Product) error {
	p.ExternalID = NormalizeExternalID(p.ExternalID)
	if _, err := r.db.NewInsert().Model(p).Returning("id").Exec(ctx); err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (r *BunRepository) Count(ctx context.Context) (int, error) {
	n, err := r.db.NewSelect().Model((*Product)(nil)).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return n, nil
}

// MemoryRepository keeps the catalog in process. It backs the memory store
// backend and tests.
type MemoryRepository struct {
	mu       sync.RWMutex
	products map[int64]Product
	nextID   int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{products: make(map[int64]Product)}
}

func (r *MemoryRepository) Search(_ context.Context, f Filter) ([]Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Product, 0)
	for _, p := range r.products {
		if f.matches(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepository) Get(_ context.Context, idOrExternal string) (Product, error) {
	idOrExternal = strings.TrimSpace(idOrExternal)
	if idOrExternal == "" {
		return Product{}, ErrNotFound
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if id, err := strconv.ParseInt(idOrExternal, 10, 64); err == nil {
		if p, ok := r.products[id]; ok {
			return p, nil
		}
	}

	var (
		found Product
		ok    bool
	)
	for _, candidate := range externalCandidates(idOrExternal) {
		for _, p := range r.products {
			if p.ExternalID == candidate && (!ok || p.ID < found.ID) {
				found, ok = p, true
			}
		}
	}
	if !ok {
		return Product{}, ErrNotFound
	}
	return found, nil
}

func (r *MemoryRepository) ByIDs(_ context.Context, ids []int64) ([]Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Product, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if p, ok := r.products[id]; ok {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepository) Insert(_ context.Context, p *Product) error {
	if p == nil {
		return errors.New("insert product: nil product")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if p.ID == 0 {
		r.nextID++
		p.ID = r.nextID
	} else if _, exists := r.products[p.ID]; exists {
		return fmt.Errorf("insert product: id %d already exists", p.ID)
	} else if p.ID > r.nextID {
		r.nextID = p.ID
	}
	p.ExternalID = NormalizeExternalID(p.ExternalID)
	r.products[p.ID] = *p
	return nil
}

func (r *MemoryRepository) Count(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.products), nil
}

// Delete removes a product. The cart memory store consults the catalog at
// read time, so this is how tests exercise dangling cart lines.
func (r *MemoryRepository) Delete(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.products, id)
}

func externalCandidates(id string) []string {
	padded := NormalizeExternalID(id)
	if padded == id {
		return []string{id}
	}
	return []string{id, padded}
}

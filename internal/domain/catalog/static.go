package catalog

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

type productJSON struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	Image       string          `json:"image"`
}

var _ Repository = (*StaticRepository)(nil)

// StaticRepository serves a fixed catalog parsed from embedded JSON. Used in
// dev mode (no database) and by the seed tooling.
type StaticRepository struct {
	order []string
	byID  map[string]Product
}

// NewStaticRepository parses the catalog JSON.
func NewStaticRepository(data []byte) (*StaticRepository, error) {
	var raw []productJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "parse catalog")
	}

	r := &StaticRepository{byID: make(map[string]Product, len(raw))}
	for _, p := range raw {
		if _, dup := r.byID[p.ID]; dup {
			return nil, errors.Errorf("duplicate product id %q", p.ID)
		}
		r.order = append(r.order, p.ID)
		r.byID[p.ID] = Product{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			Price:       p.Price,
			Category:    p.Category,
			Image:       p.Image,
		}
	}
	return r, nil
}

// List implements Repository.
func (r *StaticRepository) List(_ context.Context) ([]Product, error) {
	out := make([]Product, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out, nil
}

// GetByID implements Repository.
func (r *StaticRepository) GetByID(_ context.Context, id string) (*Product, error) {
	p, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

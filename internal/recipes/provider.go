package recipes

import (
	"math/rand"
	"sync"
	"time"

	"github.com/mgranvik/ladle/internal/domain"
)

// Provider hands out recipe selections for new sessions.
type Provider struct {
	catalog *Catalog

	mu  sync.Mutex
	rng *rand.Rand
}

func NewProvider(catalog *Catalog) *Provider {
	return &Provider{
		catalog: catalog,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Allocate picks n recipes for a session, spread across categories.
func (p *Provider) Allocate(n int) []domain.RecipeRef {
	p.mu.Lock()
	ids := sample(p.catalog, n, p.rng)
	p.mu.Unlock()
	return p.catalog.refs(ids)
}

// sample selects n distinct recipe ids: one from each category in
// shuffled order, then random distinct fills when there are fewer
// categories than n.
func sample(c *Catalog, n int, r *rand.Rand) []int {
	if n > c.Len() {
		n = c.Len()
	}

	byCategory := make(map[string][]int, len(c.categories))
	for _, rec := range c.recipes {
		byCategory[rec.Category] = append(byCategory[rec.Category], rec.ID)
	}

	categories := c.Categories()
	r.Shuffle(len(categories), func(i, j int) {
		categories[i], categories[j] = categories[j], categories[i]
	})

	var ids []int
	chosen := make(map[int]bool, n)
	for _, category := range categories {
		if len(ids) == n {
			break
		}
		pool := byCategory[category]
		id := pool[r.Intn(len(pool))]
		ids = append(ids, id)
		chosen[id] = true
	}

	for len(ids) < n {
		id := r.Intn(c.Len())
		if chosen[id] {
			continue
		}
		ids = append(ids, id)
		chosen[id] = true
	}
	return ids
}

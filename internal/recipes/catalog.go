package recipes

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/mgranvik/ladle/internal/domain"
)

// Recipe is one row of the catalog. Columns beyond the name and
// category (description, ingredients, nutrition values) are kept
// verbatim in Fields for rendering.
type Recipe struct {
	ID       int
	Name     string
	Category string
	Fields   map[string]string
}

// Catalog holds the full recipe set, indexed by row order.
type Catalog struct {
	recipes    []Recipe
	categories []string
}

// LoadCatalog reads a semicolon-separated recipe file. The header row
// must contain "Recipe Name" and "Category" columns; row order defines
// recipe ids.
func LoadCatalog(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = ';'
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("catalog %s has no recipes", path)
	}

	header := rows[0]
	nameCol, categoryCol := -1, -1
	for i, col := range header {
		switch col {
		case "Recipe Name":
			nameCol = i
		case "Category":
			categoryCol = i
		}
	}
	if nameCol < 0 || categoryCol < 0 {
		return nil, fmt.Errorf("catalog %s missing Recipe Name or Category column", path)
	}

	c := &Catalog{}
	seen := map[string]bool{}
	for i, row := range rows[1:] {
		rec := Recipe{
			ID:     i,
			Fields: make(map[string]string, len(header)),
		}
		for j, col := range header {
			if j >= len(row) {
				continue
			}
			rec.Fields[col] = row[j]
		}
		rec.Name = rec.Fields[header[nameCol]]
		rec.Category = rec.Fields[header[categoryCol]]

		c.recipes = append(c.recipes, rec)
		if !seen[rec.Category] {
			seen[rec.Category] = true
			c.categories = append(c.categories, rec.Category)
		}
	}
	return c, nil
}

// Len reports the number of recipes in the catalog.
func (c *Catalog) Len() int { return len(c.recipes) }

// Categories returns the distinct categories in first-seen order.
func (c *Catalog) Categories() []string {
	out := make([]string, len(c.categories))
	copy(out, c.categories)
	return out
}

// Get returns the recipe with the given id.
func (c *Catalog) Get(id int) (Recipe, bool) {
	if id < 0 || id >= len(c.recipes) {
		return Recipe{}, false
	}
	return c.recipes[id], true
}

func (c *Catalog) refs(ids []int) []domain.RecipeRef {
	refs := make([]domain.RecipeRef, 0, len(ids))
	for _, id := range ids {
		rec := c.recipes[id]
		refs = append(refs, domain.RecipeRef{ID: rec.ID, Name: rec.Name, Category: rec.Category})
	}
	return refs
}

package recipes

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"
)

const testCatalog = `Recipe Name;Category;Description;Calories
Lentil Soup;Soups;Hearty red lentil soup;320
Minestrone;Soups;Vegetable soup with pasta;280
Pad Thai;Mains;Stir-fried rice noodles;540
Shepherd's Pie;Mains;Mashed potato topping;610
Caesar Salad;Salads;Romaine with croutons;380
Greek Salad;Salads;Feta and olives;340
Tiramisu;Desserts;Coffee-soaked layers;450
Apple Crumble;Desserts;Baked with oat topping;410
Bruschetta;Starters;Tomato on toasted bread;220
Spring Rolls;Starters;Fresh vegetable rolls;190
`

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recipes.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	return path
}

func TestLoadCatalog(t *testing.T) {
	c, err := LoadCatalog(writeCatalog(t, testCatalog))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if c.Len() != 10 {
		t.Fatalf("loaded %d recipes, want 10", c.Len())
	}
	if got := len(c.Categories()); got != 5 {
		t.Fatalf("found %d categories, want 5", got)
	}

	rec, ok := c.Get(2)
	if !ok {
		t.Fatalf("recipe 2 missing")
	}
	if rec.Name != "Pad Thai" || rec.Category != "Mains" {
		t.Fatalf("recipe 2 = %q/%q", rec.Name, rec.Category)
	}
	if rec.Fields["Calories"] != "540" {
		t.Fatalf("extra column not kept: %v", rec.Fields)
	}
}

func TestLoadCatalogErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing columns", "Title;Kind\nSoup;Soups\n"},
		{"header only", "Recipe Name;Category\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadCatalog(writeCatalog(t, tt.content)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestSampleSpansCategories(t *testing.T) {
	c, err := LoadCatalog(writeCatalog(t, testCatalog))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	r := rand.New(rand.NewSource(1))
	ids := sample(c, 5, r)

	if len(ids) != 5 {
		t.Fatalf("sampled %d ids, want 5", len(ids))
	}

	seen := map[string]bool{}
	for _, id := range ids {
		rec, ok := c.Get(id)
		if !ok {
			t.Fatalf("sampled unknown id %d", id)
		}
		if seen[rec.Category] {
			t.Fatalf("category %s sampled twice", rec.Category)
		}
		seen[rec.Category] = true
	}
}

func TestSampleDistinct(t *testing.T) {
	// Two categories force three random fills; none may repeat.
	c, err := LoadCatalog(writeCatalog(t, `Recipe Name;Category
A;Soups
B;Soups
C;Soups
D;Mains
E;Mains
F;Mains
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	for seed := int64(0); seed < 20; seed++ {
		r := rand.New(rand.NewSource(seed))
		ids := sample(c, 5, r)
		if len(ids) != 5 {
			t.Fatalf("seed %d: sampled %d ids, want 5", seed, len(ids))
		}
		seen := map[int]bool{}
		for _, id := range ids {
			if seen[id] {
				t.Fatalf("seed %d: id %d sampled twice", seed, id)
			}
			seen[id] = true
		}
	}
}

func TestSampleDeterministic(t *testing.T) {
	c, err := LoadCatalog(writeCatalog(t, testCatalog))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	r1 := rand.New(rand.NewSource(42))
	r2 := rand.New(rand.NewSource(42))

	ids1 := sample(c, 5, r1)
	ids2 := sample(c, 5, r2)

	if len(ids1) != len(ids2) {
		t.Fatalf("lengths differ: %d vs %d", len(ids1), len(ids2))
	}
	for i := range ids1 {
		if ids1[i] != ids2[i] {
			t.Fatalf("same seed diverged at %d: %d vs %d", i, ids1[i], ids2[i])
		}
	}
}

func TestSampleClampsToCatalog(t *testing.T) {
	c, err := LoadCatalog(writeCatalog(t, `Recipe Name;Category
A;Soups
B;Mains
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	r := rand.New(rand.NewSource(7))
	ids := sample(c, 5, r)
	if len(ids) != 2 {
		t.Fatalf("sampled %d ids from a 2-recipe catalog, want 2", len(ids))
	}
}

func TestProviderAllocate(t *testing.T) {
	c, err := LoadCatalog(writeCatalog(t, testCatalog))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	p := NewProvider(c)
	refs := p.Allocate(5)

	if len(refs) != 5 {
		t.Fatalf("allocated %d refs, want 5", len(refs))
	}
	for _, ref := range refs {
		rec, ok := c.Get(ref.ID)
		if !ok {
			t.Fatalf("unknown recipe id %d", ref.ID)
		}
		if ref.Name != rec.Name || ref.Category != rec.Category {
			t.Fatalf("ref %+v does not match catalog row %+v", ref, rec)
		}
	}
}

package style

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFilterMatch(t *testing.T) {
	f := NewFilter(&FilterConfig{
		Include:    map[string][]string{"amenity": {"cafe", "restaurant"}, "shop": nil},
		Exclude:    map[string][]string{"access": {"private"}},
		RequireAny: []string{"name", "brand"},
	})

	tests := []struct {
		name string
		tags map[string]string
		want bool
	}{
		{"cafe", map[string]string{"name": "A", "amenity": "cafe"}, true},
		{"any shop", map[string]string{"brand": "B", "shop": "bakery"}, true},
		{"wrong amenity", map[string]string{"name": "A", "amenity": "bench"}, false},
		{"private", map[string]string{"name": "A", "amenity": "cafe", "access": "private"}, false},
		{"no name or brand", map[string]string{"amenity": "cafe"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.Match(tt.tags); got != tt.want {
				t.Errorf("Match(%v) = %v, want %v", tt.tags, got, tt.want)
			}
		})
	}
}

func TestNilFilterMatchesAll(t *testing.T) {
	if !NewFilter(nil).Match(map[string]string{"x": "y"}) {
		t.Error("nil filter should match")
	}
	var c *Config
	if !c.Match(true, nil) {
		t.Error("nil config should match")
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "style.yaml")
	yaml := `
points:
  include:
    amenity: [cafe]
areas:
  exclude:
    leisure: ["*"]
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if !cfg.Match(false, map[string]string{"amenity": "cafe"}) {
		t.Error("cafe point should match")
	}
	if cfg.Match(false, map[string]string{"amenity": "pub"}) {
		t.Error("pub point should not match")
	}
	if cfg.Match(true, map[string]string{"leisure": "park"}) {
		t.Error("park area should be excluded")
	}
	if !cfg.Match(true, map[string]string{"amenity": "pub"}) {
		t.Error("area rules are independent of point rules")
	}
}

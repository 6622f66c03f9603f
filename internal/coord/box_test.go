package coord

import "testing"

func TestBoxIntersects(t *testing.T) {
	q := Box{MinLat: 0, MinLon: 0, MaxLat: 10, MaxLon: 10}
	tests := []struct {
		name string
		b    Box
		want bool
	}{
		{"inside", Box{2, 2, 3, 3}, true},
		{"covering", Box{-5, -5, 15, 15}, true},
		{"touching edge", Box{10, 2, 12, 3}, true},
		{"touching corner", Box{-2, -2, 0, 0}, true},
		{"above", Box{11, 2, 12, 3}, false},
		{"left", Box{2, -5, 3, -1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := q.Intersects(tt.b); got != tt.want {
				t.Errorf("Intersects = %v, want %v", got, tt.want)
			}
			if got := tt.b.Intersects(q); got != tt.want {
				t.Errorf("Intersects (swapped) = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBoxCenterAndExtent(t *testing.T) {
	b := Box{MinLat: 100, MinLon: -30, MaxLat: 200, MaxLon: 31}
	lat, lon := b.Center()
	if lat != 150 || lon != 0 {
		t.Errorf("Center = %d,%d", lat, lon)
	}
	dLat, dLon := b.HalfExtent()
	if dLat != 50 || dLon != 30 {
		t.Errorf("HalfExtent = %d,%d", dLat, dLon)
	}
}

func TestMerge(t *testing.T) {
	a := NullBox{Box: Box{0, 0, 1, 1}, Valid: true}
	b := NullBox{Box: Box{-5, 3, -4, 4}, Valid: true}
	none := NullBox{}

	if _, ok := Merge(none, none, none); ok {
		t.Error("all absent should not merge")
	}

	got, ok := Merge(none, a, none)
	if !ok || got != a.Box {
		t.Errorf("single source = %+v, %v", got, ok)
	}

	got, ok = Merge(a, none, b)
	want := Box{MinLat: -5, MinLon: 0, MaxLat: 1, MaxLon: 4}
	if !ok || got != want {
		t.Errorf("merged = %+v, want %+v", got, want)
	}
}

func TestBoundRoundTrip(t *testing.T) {
	b := Box{MinLat: ToFixed(-1.5), MinLon: ToFixed(2.25), MaxLat: ToFixed(3), MaxLon: ToFixed(4.125)}
	if got := FromBound(b.Bound()); got != b {
		t.Errorf("FromBound(Bound()) = %+v, want %+v", got, b)
	}
	if b.Bound().Min.Lon() != 2.25 {
		t.Errorf("orb bound uses lon as X, got %v", b.Bound().Min)
	}
}

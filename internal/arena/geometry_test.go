package arena

import "testing"

func TestClassify(t *testing.T) {
	const arenaSize = 100.0
	cases := []struct {
		name string
		box  AABB
		want meshClass
	}{
		{"floor", AABB{Min: Vec3{-40, 0, -40}, Max: Vec3{40, 0.1, 40}}, classFloor},
		{"clutter small", AABB{Min: Vec3{0, 0, 0}, Max: Vec3{1, 1, 1}}, classClutter},
		{"clutter thin", AABB{Min: Vec3{0, 0, 0}, Max: Vec3{1, 3, 40}}, classClutter},
		{"building", AABB{Min: Vec3{0, 0, 0}, Max: Vec3{5, 6, 5}}, classBuilding},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := classify(c.box, arenaSize); got != c.want {
				t.Errorf("classify(%v) = %v, want %v", c.box, got, c.want)
			}
		})
	}
}

func TestPerimeterOnly(t *testing.T) {
	g := perimeterOnly(50)
	if len(g.Perimeter) != 4 {
		t.Fatalf("expected 4 perimeter walls, got %d", len(g.Perimeter))
	}
	if len(g.SpawnPoints) == 0 {
		t.Fatal("expected fallback spawn points")
	}
	if g.MinX != -50 || g.MaxX != 50 {
		t.Fatalf("unexpected arena bounds: %+v", g)
	}
}

func TestAABBContains(t *testing.T) {
	b := AABB{Min: Vec3{0, 0, 0}, Max: Vec3{10, 10, 10}}
	if !b.Contains(Vec3{5, 0, 5}, 0) {
		t.Fatal("expected point inside box to be contained")
	}
	if b.Contains(Vec3{20, 0, 5}, 0) {
		t.Fatal("expected point outside box to not be contained")
	}
	if !b.Contains(Vec3{10.5, 0, 5}, 1) {
		t.Fatal("expected margin to expand containment")
	}
}

package mapdata

import (
	"fmt"
	"math/rand"

	"github.com/FocuswithJustin/OTMapKit/core/mapversion"
)

// GenerateOptions controls Generate. Interpreters publish the options that
// describe what their dialect can store, so a generated map always
// survives a save/load cycle in that dialect.
type GenerateOptions struct {
	Version    mapversion.MapVersion
	Width      uint16
	Height     uint16
	Tiles      int
	Spawns     int
	Towns      int
	Houses     int
	Waypoints  int
	NPCs       bool
	MaxNesting int
	// Attributes lists the item attribute names the generator may use.
	Attributes []string
	// Custom adds non-canonical attributes of every kind.
	Custom bool
}

// Generate builds a deterministic pseudo-random map.
func Generate(seed int64, opts GenerateOptions) *Map {
	rng := rand.New(rand.NewSource(seed))
	if opts.Width == 0 {
		opts.Width = 512
	}
	if opts.Height == 0 {
		opts.Height = 512
	}
	m := New(opts.Width, opts.Height)
	m.Header.Format = opts.Version.Format
	m.Header.Structure = opts.Version.Structure
	m.Header.Client = opts.Version.Client
	m.Header.Description = fmt.Sprintf("generated map %d", seed)
	m.Header.ItemsMajor = 3
	m.Header.ItemsMinor = uint32(opts.Version.Client)

	randPos := func() Position {
		return Position{
			X: uint16(rng.Intn(int(opts.Width))),
			Y: uint16(rng.Intn(int(opts.Height))),
			Z: uint8(rng.Intn(MaxLayers)),
		}
	}

	for i := 0; i < opts.Houses; i++ {
		id := uint32(i + 1)
		m.AddHouse(&House{
			ID:        id,
			Name:      fmt.Sprintf("House %d", id),
			Entry:     randPos(),
			TownID:    uint32(rng.Intn(3) + 1),
			Rent:      uint32(rng.Intn(5000)),
			Guildhall: rng.Intn(4) == 0,
		})
	}

	for len(m.tiles) < opts.Tiles {
		p := randPos()
		if m.tiles[p] != nil {
			continue
		}
		t := NewTile(p)
		if rng.Intn(5) > 0 {
			t.Ground = NewItem(uint16(100 + rng.Intn(400)))
		}
		for n := rng.Intn(4); n > 0; n-- {
			t.Items = append(t.Items, generateItem(rng, &opts, 0))
		}
		if rng.Intn(3) == 0 {
			t.Flags = TileFlags(rng.Intn(0x200))
		}
		if opts.Houses > 0 && rng.Intn(6) == 0 {
			t.HouseID = uint32(rng.Intn(opts.Houses) + 1)
		}
		if t.Trivial() {
			t.Flags = FlagProtectionZone
		}
		m.SetTile(t)
	}

	for i := 0; i < opts.Spawns; i++ {
		s := &Spawn{Center: randPos(), Radius: uint16(rng.Intn(10) + 1)}
		for n := rng.Intn(4) + 1; n > 0; n-- {
			c := Creature{
				Name:      fmt.Sprintf("creature-%d", rng.Intn(50)),
				Pos:       randPos(),
				SpawnTime: uint32(rng.Intn(600) + 30),
				Direction: uint8(rng.Intn(4)),
			}
			if opts.NPCs && rng.Intn(3) == 0 {
				c.NPC = true
			}
			s.Creatures = append(s.Creatures, c)
		}
		m.Spawns = append(m.Spawns, s)
	}
	for i := 0; i < opts.Towns; i++ {
		m.AddTown(&Town{ID: uint32(i + 1), Name: fmt.Sprintf("Town %d", i+1), Temple: randPos()})
	}
	for i := 0; i < opts.Waypoints; i++ {
		m.AddWaypoint(&Waypoint{Name: fmt.Sprintf("wp-%d", i), Pos: randPos()})
	}
	return m
}

func generateItem(rng *rand.Rand, opts *GenerateOptions, depth int) *Item {
	it := NewItem(uint16(1000 + rng.Intn(3000)))
	if len(opts.Attributes) > 0 {
		for n := rng.Intn(3); n > 0; n-- {
			name := opts.Attributes[rng.Intn(len(opts.Attributes))]
			it.Set(name, randomCanonical(rng, name))
		}
	}
	if opts.Custom && rng.Intn(4) == 0 {
		switch rng.Intn(5) {
		case 0:
			it.Set("weight", I64(int64(rng.Intn(100000))-5000))
		case 1:
			it.Set("label", String(fmt.Sprintf("label-%d", rng.Intn(100))))
		case 2:
			it.Set("imbued", Bool(rng.Intn(2) == 0))
		case 3:
			it.Set("ratio", Float(float64(rng.Intn(1000))/8))
		case 4:
			it.Set("anchor", PositionValue(Position{X: uint16(rng.Intn(100)), Y: 7, Z: 7}))
		}
	}
	if depth < opts.MaxNesting && rng.Intn(5) == 0 {
		for n := rng.Intn(3) + 1; n > 0; n-- {
			it.Contents = append(it.Contents, generateItem(rng, opts, depth+1))
		}
	}
	return it
}

func randomCanonical(rng *rand.Rand, name string) Value {
	kind, _ := CanonicalKind(name)
	switch kind {
	case KindU8:
		return U8(uint8(rng.Intn(100) + 1))
	case KindU16:
		return U16(uint16(rng.Intn(60000) + 1))
	case KindU32:
		return U32(rng.Uint32())
	case KindString:
		return String(fmt.Sprintf("%s \xfe\xff\xfd %d", name, rng.Intn(1000)))
	case KindPosition:
		return PositionValue(Position{X: uint16(rng.Intn(2000)), Y: uint16(rng.Intn(2000)), Z: uint8(rng.Intn(MaxLayers))})
	}
	return U8(1)
}

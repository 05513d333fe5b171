package mapdata

// Creature is a monster or NPC placed by a spawn.
type Creature struct {
	Name      string
	Pos       Position
	SpawnTime uint32
	Direction uint8
	NPC       bool
}

// Spawn is a circular spawn area.
type Spawn struct {
	Center    Position
	Radius    uint16
	Creatures []Creature
}

// Town is a named town with a temple.
type Town struct {
	ID     uint32
	Name   string
	Temple Position
}

// House is house metadata; its tiles link to it through Tile.HouseID.
type House struct {
	ID        uint32
	Name      string
	Entry     Position
	TownID    uint32
	Rent      uint32
	Guildhall bool
}

// Waypoint is a named position.
type Waypoint struct {
	Name string
	Pos  Position
}

func (s *Spawn) equal(o *Spawn) bool {
	if s.Center != o.Center || s.Radius != o.Radius || len(s.Creatures) != len(o.Creatures) {
		return false
	}
	for i := range s.Creatures {
		if s.Creatures[i] != o.Creatures[i] {
			return false
		}
	}
	return true
}

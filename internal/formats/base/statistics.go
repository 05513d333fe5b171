package base

import (
	"fmt"
	"time"
)

// Statistics accumulates counts for one load or save.
type Statistics struct {
	Tiles        int           `json:"tiles"`
	TileAreas    int           `json:"tile_areas"`
	HouseTiles   int           `json:"house_tiles"`
	Items        int           `json:"items"`
	Spawns       int           `json:"spawns"`
	Creatures    int           `json:"creatures"`
	Towns        int           `json:"towns"`
	Houses       int           `json:"houses"`
	Waypoints    int           `json:"waypoints"`
	SkippedTiles int           `json:"skipped_tiles"`
	SkippedItems int           `json:"skipped_items"`
	Bytes        int64         `json:"bytes"`
	Elapsed      time.Duration `json:"elapsed"`
	Warnings     []string      `json:"warnings,omitempty"`
	Errors       []string      `json:"errors,omitempty"`
}

// Summary renders the counters on one line.
func (s *Statistics) Summary() string {
	return fmt.Sprintf("%d tiles in %d areas, %d items, %d spawns, %d towns, %d houses, %d waypoints, %d warnings",
		s.Tiles, s.TileAreas, s.Items, s.Spawns, s.Towns, s.Houses, s.Waypoints, len(s.Warnings))
}

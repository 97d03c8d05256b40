package raster

import "github.com/gogpu/gsplat/internal/gpu"

// TileSize is the pixel extent of one square bin used by the tiled
// forward/backward passes (spec.md §4.2's tile size).
const TileSize = 16

// binTiles assigns each projected splat to every tile its 3-sigma bounding
// box overlaps, then sorts each tile's members front-to-back by depth,
// using C1's radix-sort primitive on each tile's (small) member list —
// the same depth-sort kernel the forward pass's global visible-splat sort
// uses, just dispatched per tile instead of once globally (spec.md §4.1's
// "Tile binning" count-pass + scatter-pass, here run CPU-side since the
// reference rasterizer is single-threaded per frame).
func binTiles(splats []projected, width, height int) (tilesX, tilesY int, bins [][]int) {
	tilesX = (width + TileSize - 1) / TileSize
	tilesY = (height + TileSize - 1) / TileSize
	bins = make([][]int, tilesX*tilesY)

	for idx, p := range splats {
		minX := int((p.mean2D[0] - p.radius) / TileSize)
		maxX := int((p.mean2D[0] + p.radius) / TileSize)
		minY := int((p.mean2D[1] - p.radius) / TileSize)
		maxY := int((p.mean2D[1] + p.radius) / TileSize)
		if minX < 0 {
			minX = 0
		}
		if minY < 0 {
			minY = 0
		}
		if maxX >= tilesX {
			maxX = tilesX - 1
		}
		if maxY >= tilesY {
			maxY = tilesY - 1
		}
		for ty := minY; ty <= maxY; ty++ {
			for tx := minX; tx <= maxX; tx++ {
				t := ty*tilesX + tx
				bins[t] = append(bins[t], idx)
			}
		}
	}

	for t := range bins {
		b := bins[t]
		if len(b) < 2 {
			continue
		}
		depths := make([]float32, len(b))
		members := make([]uint32, len(b))
		for i, idx := range b {
			depths[i] = splats[idx].depth
			members[i] = uint32(idx)
		}
		gpu.SortByDepth(members, depths)
		for i, m := range members {
			b[i] = int(m)
		}
	}
	return tilesX, tilesY, bins
}

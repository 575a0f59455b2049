package engine

import (
	"runtime"
	"sync"
)

// CategoryStat is one construction period's share of the dataset.
type CategoryStat struct {
	Category      string
	Buildings     int
	MeanElevation float64
	Style         Style
}

// Summary backs the info panel: total buildings plus per-period counts.
type Summary struct {
	TotalBuildings int
	Categories     []CategoryStat
}

// FallbackCategory labels the bucket for rows outside the period table.
const FallbackCategory = "NA"

// Aggregate computes the summary in parallel over row ranges. Each worker
// accumulates into slot-indexed arrays (one slot per known period plus a
// fallback slot) that are merged at the end.
func Aggregate(d *DerivedAttributes, rows int) *Summary {
	slots := len(periodAlphas) + 1

	type partialAgg struct {
		count []int
		elev  []float64
	}

	numWorkers := runtime.NumCPU()
	if numWorkers > rows {
		numWorkers = 1
	}
	chunkSize := rows / numWorkers

	results := make(chan *partialAgg, numWorkers)
	var wg sync.WaitGroup

	for w := 0; w < numWorkers; w++ {
		start := w * chunkSize
		end := start + chunkSize
		if w == numWorkers-1 {
			end = rows
		}

		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()

			p := &partialAgg{count: make([]int, slots), elev: make([]float64, slots)}
			cats := d.Categories
			elevs := d.Elevations
			for j := s; j < e; j++ {
				slot := len(periodAlphas)
				if len(cats) == rows {
					slot = slotOf(cats[j])
				}
				p.count[slot]++
				if len(elevs) == rows {
					p.elev[slot] += elevs[j]
				}
			}
			results <- p
		}(start, end)
	}

	go func() { wg.Wait(); close(results) }()

	count := make([]int, slots)
	elev := make([]float64, slots)
	for p := range results {
		for i := 0; i < slots; i++ {
			count[i] += p.count[i]
			elev[i] += p.elev[i]
		}
	}

	s := &Summary{TotalBuildings: rows, Categories: make([]CategoryStat, 0, slots)}
	for slot := 0; slot < slots; slot++ {
		if count[slot] == 0 {
			continue
		}
		label := FallbackCategory
		if slot < len(periodAlphas) {
			label = periodAlphas[slot].label
		}
		s.Categories = append(s.Categories, CategoryStat{
			Category:      label,
			Buildings:     count[slot],
			MeanElevation: elev[slot] / float64(count[slot]),
			Style:         Style{Color: BaseColor, Alpha: alphaOfSlot(slot)},
		})
	}
	return s
}

package service

import (
	"sort"

	"github.com/stockflow/stockflow-backend/internal/picking/repository"
)

// OrderItems sequences a pick's member items according to the pick's batch
// strategy and stamps Sequence 1..n. The input slice is reordered in place.
// Unknown strategies fall back to priority ordering.
func OrderItems(strategy string, items []*repository.PickItem) {
	switch strategy {
	case repository.StrategyDistanceOptimized:
		sort.SliceStable(items, func(i, j int) bool {
			if items[i].LocationSequence != items[j].LocationSequence {
				return items[i].LocationSequence < items[j].LocationSequence
			}
			return items[i].ProductID < items[j].ProductID
		})
	case repository.StrategyLocationBased:
		sort.SliceStable(items, func(i, j int) bool {
			if items[i].LocationID != items[j].LocationID {
				return items[i].LocationID < items[j].LocationID
			}
			return items[i].LocationSequence < items[j].LocationSequence
		})
	default: // repository.StrategyPriority
		sort.SliceStable(items, func(i, j int) bool {
			if items[i].Priority != items[j].Priority {
				return items[i].Priority > items[j].Priority
			}
			return items[i].LocationSequence < items[j].LocationSequence
		})
	}

	for i, item := range items {
		item.Sequence = i + 1
	}
}

// congestion outweighs raw walking distance when scoring a cluster route
const congestionWeight = 10

// ScoreCluster sequences cluster pick items along the warehouse walk path
// and returns the route score: total travel distance plus a congestion
// penalty for every item that shares a location with another item. Lower is
// better. Deterministic for a given item set.
func ScoreCluster(items []*repository.PickItem) float64 {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].LocationSequence != items[j].LocationSequence {
			return items[i].LocationSequence < items[j].LocationSequence
		}
		return items[i].ProductID < items[j].ProductID
	})
	for i, item := range items {
		item.Sequence = i + 1
	}

	distance := 0
	for i := 1; i < len(items); i++ {
		step := items[i].LocationSequence - items[i-1].LocationSequence
		if step < 0 {
			step = -step
		}
		distance += step
	}

	perLocation := make(map[string]int, len(items))
	for _, item := range items {
		perLocation[item.LocationID]++
	}
	congestion := 0
	for _, n := range perLocation {
		if n > 1 {
			congestion += n
		}
	}

	return float64(distance + congestion*congestionWeight)
}

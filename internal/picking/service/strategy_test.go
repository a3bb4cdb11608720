package service_test

import (
	"testing"

	"github.com/stockflow/stockflow-backend/internal/picking/repository"
	"github.com/stockflow/stockflow-backend/internal/picking/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func item(id, location string, priority, locationSeq int) *repository.PickItem {
	return &repository.PickItem{
		ID:               id,
		ProductID:        "prod-" + id,
		LocationID:       location,
		Priority:         priority,
		LocationSequence: locationSeq,
		Quantity:         1,
	}
}

func ids(items []*repository.PickItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestOrderItems_Priority(t *testing.T) {
	items := []*repository.PickItem{
		item("a", "L1", 1, 5),
		item("b", "L2", 9, 8),
		item("c", "L3", 9, 2),
	}

	service.OrderItems(repository.StrategyPriority, items)

	assert.Equal(t, []string{"c", "b", "a"}, ids(items))
	for i, it := range items {
		assert.Equal(t, i+1, it.Sequence)
	}
}

func TestOrderItems_DistanceOptimized(t *testing.T) {
	items := []*repository.PickItem{
		item("a", "L1", 1, 30),
		item("b", "L2", 9, 10),
		item("c", "L3", 5, 20),
	}

	service.OrderItems(repository.StrategyDistanceOptimized, items)

	assert.Equal(t, []string{"b", "c", "a"}, ids(items))
}

func TestOrderItems_LocationBased_GroupsLocations(t *testing.T) {
	items := []*repository.PickItem{
		item("a", "B-02", 1, 3),
		item("b", "A-01", 1, 1),
		item("c", "B-02", 1, 2),
		item("d", "A-01", 1, 4),
	}

	service.OrderItems(repository.StrategyLocationBased, items)

	assert.Equal(t, []string{"b", "d", "c", "a"}, ids(items))
}

func TestOrderItems_UnknownStrategyFallsBackToPriority(t *testing.T) {
	items := []*repository.PickItem{
		item("a", "L1", 1, 1),
		item("b", "L2", 9, 2),
	}

	service.OrderItems("bogus", items)

	assert.Equal(t, []string{"b", "a"}, ids(items))
}

func TestScoreCluster_SequencesAlongWalkPath(t *testing.T) {
	items := []*repository.PickItem{
		item("a", "L3", 0, 30),
		item("b", "L1", 0, 10),
		item("c", "L2", 0, 20),
	}

	score := service.ScoreCluster(items)

	assert.Equal(t, []string{"b", "c", "a"}, ids(items))
	// walk distance 10 + 10, no shared locations
	assert.Equal(t, 20.0, score)
}

func TestScoreCluster_PenalizesCongestion(t *testing.T) {
	spread := []*repository.PickItem{
		item("a", "L1", 0, 10),
		item("b", "L2", 0, 20),
	}
	congested := []*repository.PickItem{
		item("a", "L1", 0, 10),
		item("b", "L1", 0, 20),
	}

	spreadScore := service.ScoreCluster(spread)
	congestedScore := service.ScoreCluster(congested)

	assert.Greater(t, congestedScore, spreadScore)
}

func TestScoreCluster_IsDeterministic(t *testing.T) {
	build := func() []*repository.PickItem {
		return []*repository.PickItem{
			item("a", "L2", 0, 20),
			item("b", "L1", 0, 10),
			item("c", "L1", 0, 10),
		}
	}

	first := build()
	second := build()
	require.Equal(t, service.ScoreCluster(first), service.ScoreCluster(second))
	assert.Equal(t, ids(first), ids(second))
}

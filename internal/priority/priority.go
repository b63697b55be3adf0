// Package priority scores reading-queue items by urgency.
//
// The score is a logistic curve over the item's age scaled by its expiry
// score: short-lived content (news, launch posts) climbs toward 1.0 within
// days, while evergreen content rises slowly and stays near the middle of
// the queue.
package priority

import (
	"math"
	"sort"
	"time"

	"later/internal/core"
)

const (
	// steepness of the logistic curve
	k = 5.0
	// basePeriod is the age in days at which an item with expiry score 1.0
	// reaches priority 0.5.
	basePeriod = 3.0
)

// Score returns the priority of an item that has been in the queue for
// daysSinceAdded days with the given expiry score. The midpoint 0.5 lands at
// basePeriod days for expiry score 1.0. The result is increasing in both
// arguments; far past the midpoint it saturates to 1.0 in float64.
func Score(daysSinceAdded, expiryScore float64) float64 {
	x := daysSinceAdded*expiryScore/basePeriod - 1.0
	return 1.0 / (1.0 + math.Exp(-k*x))
}

// ScoreItem computes the priority of an item as of now.
func ScoreItem(item *core.Item, now time.Time) float64 {
	days := now.Sub(item.CreatedAt).Hours() / 24.0
	if days < 0 {
		days = 0
	}
	return Score(days, item.ExpiryScore)
}

// Ranked pairs an item with its computed priority.
type Ranked struct {
	Item     *core.Item
	Priority float64
}

// Rank orders items by descending priority, breaking ties by recency.
func Rank(items []*core.Item, now time.Time) []Ranked {
	ranked := make([]Ranked, len(items))
	for i, item := range items {
		ranked[i] = Ranked{Item: item, Priority: ScoreItem(item, now)}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Priority != ranked[j].Priority {
			return ranked[i].Priority > ranked[j].Priority
		}
		return ranked[i].Item.CreatedAt.After(ranked[j].Item.CreatedAt)
	})
	return ranked
}

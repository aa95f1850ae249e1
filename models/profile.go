package models

import "time"

// Rank is the display tier derived from an operator's XP. It is never stored
// independently of XP; RankForXP is the single source of truth.
type Rank string

const (
	RankBronze   Rank = "bronze"
	RankSilver   Rank = "silver"
	RankGold     Rank = "gold"
	RankPlatinum Rank = "platinum"
	RankDiamond  Rank = "diamond"
)

// rankThreshold pairs a rank with the minimum XP required to hold it.
type rankThreshold struct {
	Rank  Rank
	MinXP int
}

// rankThresholds must stay sorted ascending by MinXP.
var rankThresholds = []rankThreshold{
	{RankBronze, 0},
	{RankSilver, 1000},
	{RankGold, 5000},
	{RankPlatinum, 15000},
	{RankDiamond, 50000},
}

// RankForXP returns the rank for a given XP total. Because thresholds are
// fixed and ascending, the result is monotonic in xp: adding XP can never
// lower a rank.
func RankForXP(xp int) Rank {
	rank := RankBronze
	for _, t := range rankThresholds {
		if xp < t.MinXP {
			break
		}
		rank = t.Rank
	}
	return rank
}

// RankIndex returns the ordinal position of a rank, for comparisons.
// Unknown ranks sort below bronze.
func RankIndex(r Rank) int {
	for i, t := range rankThresholds {
		if t.Rank == r {
			return i
		}
	}
	return -1
}

// OperatorProfile is the acting identity that claims and completes
// operations. Reward settlement mutates XP, rank, and the pending token
// balance; everything else belongs to profile-edit flows outside the core.
type OperatorProfile struct {
	ID                string    `json:"_id"`
	Rev               string    `json:"_rev,omitempty"`
	WalletAddress     string    `json:"walletAddress,omitempty"`
	Handle            string    `json:"handle"`
	Skills            []string  `json:"skills,omitempty"`
	XP                int       `json:"xp"`
	Rank              Rank      `json:"rank"`
	PendingTokens     float64   `json:"pendingTokens,omitempty"`
	ConnectedMachines int       `json:"connectedMachines,omitempty"`
	ActiveOps         int       `json:"activeOps,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

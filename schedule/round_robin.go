// Package schedule generates match pairings for a session.
package schedule

import (
	"fmt"
	"sort"
)

// Pairing is one generated singles matchup inside a session.
type Pairing struct {
	Round     int
	Order     int
	Player1ID int
	Player2ID int
}

// RoundRobin pairs every player against every other player once, using the
// circle method so each round keeps players busy at most once. With an odd
// player count one player sits out per round.
func RoundRobin(playerIDs []int) ([]Pairing, error) {
	if len(playerIDs) < 2 {
		return nil, fmt.Errorf("round robin needs at least 2 players, got %d", len(playerIDs))
	}

	players := make([]int, len(playerIDs))
	copy(players, playerIDs)
	sort.Ints(players)

	// Pad with a bye slot for odd counts.
	const bye = 0
	if len(players)%2 != 0 {
		players = append(players, bye)
	}

	n := len(players)
	rounds := n - 1
	pairings := make([]Pairing, 0, n*(n-1)/2)

	for round := 1; round <= rounds; round++ {
		order := 1
		for i := 0; i < n/2; i++ {
			p1 := players[i]
			p2 := players[n-1-i]
			if p1 == bye || p2 == bye {
				continue
			}
			pairings = append(pairings, Pairing{
				Round:     round,
				Order:     order,
				Player1ID: p1,
				Player2ID: p2,
			})
			order++
		}
		// Rotate all but the first player clockwise.
		last := players[n-1]
		copy(players[2:], players[1:n-1])
		players[1] = last
	}

	return pairings, nil
}

package models

// LineupEntry identifies a player on a roster at some point in time.
type LineupEntry struct {
	PlayerID  string `json:"player_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// RosterPlayer is a player on the current roster together with its live market value.
type RosterPlayer struct {
	LineupEntry
	MarketValue int64
}

// RosterSnapshot is the user's current roster, unique by player ID.
type RosterSnapshot []LineupEntry

// Contains reports whether playerID is on the roster.
func (r RosterSnapshot) Contains(playerID string) bool {
	for _, e := range r {
		if e.PlayerID == playerID {
			return true
		}
	}
	return false
}

// SeasonStartLineup is the roster reconstructed for the season reference date, unique by player ID.
type SeasonStartLineup []LineupEntry

// MarketValuePoint is one day of a player's market value series.
type MarketValuePoint struct {
	Day   string // YYYY-MM-DD
	Value int64
}

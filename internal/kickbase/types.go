package kickbase

import (
	"math"
	"time"

	"github.com/rewired-gh/kickbalance/internal/models"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token   string          `json:"token"`
	Leagues []leaguePayload `json:"leagues"`
}

type leaguePayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type usersResponse struct {
	Users []userPayload `json:"users"`
}

type userPayload struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Points float64 `json:"pt"`
}

type feedResponse struct {
	Items []feedItem `json:"items"`
}

type feedItem struct {
	ID   string   `json:"id"`
	Type int      `json:"type"`
	Date string   `json:"date"`
	Meta feedMeta `json:"meta"`
}

type feedMeta struct {
	Price           float64 `json:"p"`
	PlayerID        string  `json:"pid"`
	PlayerFirstName string  `json:"pfn"`
	PlayerLastName  string  `json:"pln"`
}

type rosterResponse struct {
	Players []rosterPlayer `json:"players"`
}

type rosterPlayer struct {
	ID          string  `json:"id"`
	FirstName   string  `json:"firstName"`
	LastName    string  `json:"lastName"`
	MarketValue float64 `json:"marketValue"`
}

type statsResponse struct {
	MarketValues []marketValuePayload `json:"marketValues"`
}

type marketValuePayload struct {
	Day   string  `json:"d"`
	Value float64 `json:"m"`
}

func (i feedItem) toModel() models.FeedEvent {
	e := models.FeedEvent{
		ID:              i.ID,
		Type:            i.Type,
		Price:           int64(math.Round(i.Meta.Price)),
		PlayerID:        i.Meta.PlayerID,
		PlayerFirstName: i.Meta.PlayerFirstName,
		PlayerLastName:  i.Meta.PlayerLastName,
	}
	if t, err := time.Parse(time.RFC3339, i.Date); err == nil {
		e.Date = t
	}
	return e
}

func (p rosterPlayer) toModel() models.RosterPlayer {
	return models.RosterPlayer{
		LineupEntry: models.LineupEntry{
			PlayerID:  p.ID,
			FirstName: p.FirstName,
			LastName:  p.LastName,
		},
		MarketValue: int64(math.Round(p.MarketValue)),
	}
}

func (mv marketValuePayload) toModel() models.MarketValuePoint {
	return models.MarketValuePoint{Day: dayOf(mv.Day), Value: int64(math.Round(mv.Value))}
}

const dayLayout = "2006-01-02"

// dayOf reduces a timestamp to its UTC calendar day. Values that are not RFC 3339
// timestamps are taken as already being a day.
func dayOf(s string) string {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC().Format(dayLayout)
	}
	if len(s) < len(dayLayout) {
		return s
	}
	return s[:len(dayLayout)]
}

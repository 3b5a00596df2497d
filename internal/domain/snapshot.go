package domain

import (
	"strconv"
	"time"
)

// Card suits
const (
	SuitHearts   = "h"
	SuitDiamonds = "d"
	SuitClubs    = "c"
	SuitSpades   = "s"
)

// Card is a single playing card. Value runs 2..14 with Jack=11, Queen=12,
// King=13, Ace=14. Code is "<value><suit>", e.g. "5h" or "13s", and Image
// the asset path the chat client resolves it to.
type Card struct {
	Value int    `json:"value"`
	Suit  string `json:"suit"`
	Code  string `json:"code"`
	Image string `json:"image"`
}

func NewCard(value int, suit string) Card {
	code := strconv.Itoa(value) + suit
	return Card{
		Value: value,
		Suit:  suit,
		Code:  code,
		Image: "/cards/" + code + ".png",
	}
}

// Player is one participant inside a game snapshot.
type Player struct {
	UserID       int64  `json:"userId"`
	Username     string `json:"username"`
	IsEliminated bool   `json:"isEliminated"`
	HasDrawn     bool   `json:"hasDrawn"`
	CurrentCard  *Card  `json:"currentCard"`
	InTieBreaker bool   `json:"inTieBreaker"`
}

// Game is the per-room snapshot serialized into the keyed store. It is the
// single authority on a running game; every mutation loads it, changes it
// and writes it back under the room lock.
type Game struct {
	RoomID            string     `json:"roomId"`
	Status            GameStatus `json:"status"`
	EntryAmount       int64      `json:"entryAmount"`
	Pot               int64      `json:"pot"`
	CurrentRound      int        `json:"currentRound"`
	Players           []*Player  `json:"players"`
	StartedBy         int64      `json:"startedBy"`
	StartedByUsername string     `json:"startedByUsername"`
	GameSessionID     string     `json:"gameSessionId"`
	DBGameID          int64      `json:"dbGameId,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	JoinDeadline      int64      `json:"joinDeadline"`    // epoch ms
	CountdownEndsAt   int64      `json:"countdownEndsAt"` // epoch ms
	RoundDeadline     int64      `json:"roundDeadline"`   // epoch ms
	IsTieBreaker      bool       `json:"isTieBreaker"`
	WasTieBreaker     bool       `json:"wasTieBreaker"`
	IsRoundStarted    bool       `json:"isRoundStarted"`
	WinnerID          int64      `json:"winnerId,omitempty"`
	WinnerUsername    string     `json:"winnerUsername,omitempty"`
	Winnings          int64      `json:"winnings,omitempty"`
	HouseFee          int64      `json:"houseFee,omitempty"`
	FinishedAt        *time.Time `json:"finishedAt,omitempty"`
}

// FindPlayer returns the player with the given id, or nil.
func (g *Game) FindPlayer(userID int64) *Player {
	for _, p := range g.Players {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

// ActivePlayers returns all non-eliminated players in join order.
func (g *Game) ActivePlayers() []*Player {
	var out []*Player
	for _, p := range g.Players {
		if !p.IsEliminated {
			out = append(out, p)
		}
	}
	return out
}

// ScopePlayers returns the players expected to draw this round: everyone
// still alive in a normal round, only the tied players in a tie-breaker.
func (g *Game) ScopePlayers() []*Player {
	if !g.IsTieBreaker {
		return g.ActivePlayers()
	}
	var out []*Player
	for _, p := range g.Players {
		if !p.IsEliminated && p.InTieBreaker {
			out = append(out, p)
		}
	}
	return out
}

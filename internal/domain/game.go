package domain

import "time"

// GameType - тип игры
type GameType string

const (
	GameTypeLowcard GameType = "lowcard"
	GameTypeDicebot GameType = "dicebot"
	GameTypeFlagbot GameType = "flagbot"
)

// DisplayName is the human form used in broadcasts and refund descriptions.
func (t GameType) DisplayName() string {
	switch t {
	case GameTypeLowcard:
		return "LowCard"
	case GameTypeDicebot:
		return "DiceBot"
	case GameTypeFlagbot:
		return "FlagBot"
	}
	return string(t)
}

// GameStatus - статус игры
type GameStatus string

const (
	GameStatusWaiting  GameStatus = "waiting"
	GameStatusPlaying  GameStatus = "playing"
	GameStatusFinished GameStatus = "finished"
)

// GameResult - результат для game_history
type GameResult string

const (
	GameResultWin  GameResult = "win"
	GameResultLose GameResult = "lose"
)

// GameHistory - запись истории: для каждого игрока пишется lose-строка на
// входе в игру, победитель получает win-строку при завершении.
type GameHistory struct {
	ID        int64      `db:"id" json:"id"`
	UserID    int64      `db:"user_id" json:"user_id"`
	Username  string     `db:"username" json:"username"`
	GameType  GameType   `db:"game_type" json:"game_type"`
	RoomID    string     `db:"room_id" json:"room_id"`
	BetAmount int64      `db:"bet_amount" json:"bet_amount"`
	Result    GameResult `db:"result" json:"result"`
	Reward    int64      `db:"reward" json:"reward"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// LowcardGame - строка lowcard_games, создаётся при старте и закрывается
// при завершении игры.
type LowcardGame struct {
	ID          int64      `db:"id" json:"id"`
	RoomID      string     `db:"room_id" json:"room_id"`
	StartedBy   int64      `db:"started_by" json:"started_by"`
	EntryAmount int64      `db:"entry_amount" json:"entry_amount"`
	Pot         int64      `db:"pot" json:"pot"`
	Status      GameStatus `db:"status" json:"status"`
	WinnerID    *int64     `db:"winner_id" json:"winner_id,omitempty"`
	Winnings    int64      `db:"winnings" json:"winnings"`
	HouseFee    int64      `db:"house_fee" json:"house_fee"`
	Commission  int64      `db:"commission" json:"commission"`
	PlayerCount int        `db:"player_count" json:"player_count"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	FinishedAt  *time.Time `db:"finished_at" json:"finished_at,omitempty"`
}

// LowcardHistory - итоговая строка lowcard_history по завершённой игре.
type LowcardHistory struct {
	ID             int64     `db:"id" json:"id"`
	GameID         int64     `db:"game_id" json:"game_id"`
	RoomID         string    `db:"room_id" json:"room_id"`
	WinnerID       int64     `db:"winner_id" json:"winner_id"`
	WinnerUsername string    `db:"winner_username" json:"winner_username"`
	Pot            int64     `db:"pot" json:"pot"`
	Winnings       int64     `db:"winnings" json:"winnings"`
	HouseFee       int64     `db:"house_fee" json:"house_fee"`
	Commission     int64     `db:"commission" json:"commission"`
	PlayerCount    int       `db:"player_count" json:"player_count"`
	Rounds         int       `db:"rounds" json:"rounds"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

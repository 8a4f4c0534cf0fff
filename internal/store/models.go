package store

import (
	"encoding/json"
	"time"

	"backend/internal/engine"
)

type lotteryRecord struct {
	ID         uint32 `gorm:"primaryKey;autoIncrement:false"`
	Owner      string `gorm:"not null"`
	Name       string
	Tournament bool
	Status     string `gorm:"not null"`
	Configs    string `gorm:"not null"`
	RoundIndex uint32 `gorm:"not null"`
	RoundCount uint32 `gorm:"not null"`
}

type roundRecord struct {
	RoundIndex uint32 `gorm:"primaryKey;autoIncrement:false"`
	Status     string `gorm:"not null"`
	Drawings   uint32 `gorm:"default:0"`
	Wallets    uint32 `gorm:"default:0"`
	Tickets    uint32 `gorm:"default:0"`
	Orders     uint32 `gorm:"default:0"`
	StartedAt  int64  `gorm:"default:0"`
	EndedBy    string
}

type playerRecord struct {
	RoundIndex   uint32 `gorm:"primaryKey;autoIncrement:false"`
	Wallet       string `gorm:"primaryKey"`
	TicketCount  uint32 `gorm:"not null"`
	OrderIndices string `gorm:"not null"`
}

type orderRecord struct {
	RoundIndex  uint32 `gorm:"primaryKey;autoIncrement:false"`
	OrderIndex  uint32 `gorm:"primaryKey;autoIncrement:false"`
	Wallet      string `gorm:"not null"`
	TicketCount uint32 `gorm:"not null"`
	Message     string
	IsPublic    bool
}

type winnerRecord struct {
	RoundIndex uint32 `gorm:"primaryKey;autoIncrement:false"`
	Position   uint16 `gorm:"primaryKey;autoIncrement:false"`
	Wallet     string `gorm:"not null"`
	Amount     uint64 `gorm:"not null"`
}

type claimRecord struct {
	Wallet string `gorm:"primaryKey"`
	Amount uint64 `gorm:"not null"`
}

type incentiveRecord struct {
	ID         int64  `gorm:"primaryKey"`
	RoundIndex uint32 `gorm:"index;not null"`
	Source     string `gorm:"not null"`
	Rewards    string `gorm:"not null"`
}

type seedRecord struct {
	ID    uint32 `gorm:"primaryKey;autoIncrement:false"`
	Value string `gorm:"not null"`
}

const singletonID = 1

func encodeLottery(lottery *engine.Lottery) (*lotteryRecord, error) {
	configs, err := json.Marshal(lottery.Rounds.Configs)
	if err != nil {
		return nil, err
	}
	return &lotteryRecord{
		ID:         singletonID,
		Owner:      lottery.Owner,
		Name:       lottery.Name,
		Tournament: lottery.Tournament,
		Status:     string(lottery.Status),
		Configs:    string(configs),
		RoundIndex: lottery.Rounds.Index,
		RoundCount: lottery.Rounds.Count,
	}, nil
}

func decodeLottery(record *lotteryRecord) (*engine.Lottery, error) {
	var configs []engine.Config
	if err := json.Unmarshal([]byte(record.Configs), &configs); err != nil {
		return nil, err
	}
	return &engine.Lottery{
		Owner:      record.Owner,
		Name:       record.Name,
		Tournament: record.Tournament,
		Status:     engine.LotteryStatus(record.Status),
		Rounds: engine.Rounds{
			Configs: configs,
			Index:   record.RoundIndex,
			Count:   record.RoundCount,
		},
	}, nil
}

func encodeRound(round *engine.Round) *roundRecord {
	var startedAt int64
	if !round.StartedAt.IsZero() {
		startedAt = round.StartedAt.Unix()
	}
	return &roundRecord{
		RoundIndex: round.Index,
		Status:     string(round.Status),
		Drawings:   round.Counts.Drawings,
		Wallets:    round.Counts.Wallets,
		Tickets:    round.Counts.Tickets,
		Orders:     round.Counts.Orders,
		StartedAt:  startedAt,
		EndedBy:    round.EndedBy,
	}
}

func decodeRound(record *roundRecord) *engine.Round {
	var startedAt time.Time
	if record.StartedAt != 0 {
		startedAt = time.Unix(record.StartedAt, 0).UTC()
	}
	return &engine.Round{
		Index:  record.RoundIndex,
		Status: engine.RoundStatus(record.Status),
		Counts: engine.Counts{
			Drawings: record.Drawings,
			Wallets:  record.Wallets,
			Tickets:  record.Tickets,
			Orders:   record.Orders,
		},
		StartedAt: startedAt,
		EndedBy:   record.EndedBy,
	}
}

func encodePlayer(roundIndex uint32, player *engine.Player) (*playerRecord, error) {
	indices, err := json.Marshal(player.OrderIndices)
	if err != nil {
		return nil, err
	}
	return &playerRecord{
		RoundIndex:   roundIndex,
		Wallet:       player.Wallet,
		TicketCount:  player.TicketCount,
		OrderIndices: string(indices),
	}, nil
}

func decodePlayer(record *playerRecord) (*engine.Player, error) {
	var indices []uint32
	if err := json.Unmarshal([]byte(record.OrderIndices), &indices); err != nil {
		return nil, err
	}
	return &engine.Player{
		Wallet:       record.Wallet,
		TicketCount:  record.TicketCount,
		OrderIndices: indices,
	}, nil
}

func encodeIncentive(roundIndex uint32, incentive *engine.Incentive) (*incentiveRecord, error) {
	rewards, err := json.Marshal(incentive.Rewards)
	if err != nil {
		return nil, err
	}
	return &incentiveRecord{
		RoundIndex: roundIndex,
		Source:     incentive.Source,
		Rewards:    string(rewards),
	}, nil
}

func decodeIncentive(record *incentiveRecord) (*engine.Incentive, error) {
	var rewards []engine.Reward
	if err := json.Unmarshal([]byte(record.Rewards), &rewards); err != nil {
		return nil, err
	}
	return &engine.Incentive{
		Source:  record.Source,
		Rewards: rewards,
	}, nil
}

package engine

import "time"

// RoundView is the query shape for one round, with optional listings.
type RoundView struct {
	Config    Config         `json:"config"`
	Status    RoundStatus    `json:"status"`
	Counts    Counts         `json:"counts"`
	StartedAt time.Time      `json:"started_at,omitzero"`
	EndedBy   string         `json:"ended_by,omitempty"`
	Players   []*Player      `json:"players,omitempty"`
	Winners   []*Winner      `json:"winners,omitempty"`
	Orders    []*TicketOrder `json:"orders,omitempty"`
}

// GetRound returns the round at index with its governing config, optionally
// including players, winners and orders, each listed in descending key
// order.
func (e *Engine) GetRound(index uint32, includePlayers, includeWinners, includeOrders bool) (*RoundView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	lottery, err := e.store.GetLottery()
	if err != nil {
		return nil, err
	}
	if lottery == nil || index > lottery.Rounds.Index {
		return nil, ErrRoundNotFound
	}
	round, err := e.store.GetRound(index)
	if err != nil {
		return nil, err
	}
	if round == nil {
		return nil, ErrRoundNotFound
	}

	view := &RoundView{
		Config:    *lottery.ConfigAt(index),
		Status:    round.Status,
		Counts:    round.Counts,
		StartedAt: round.StartedAt,
		EndedBy:   round.EndedBy,
	}

	if includePlayers {
		players, err := e.store.ListPlayers(index)
		if err != nil {
			return nil, err
		}
		view.Players = reversed(players)
	}
	if includeWinners {
		winners, err := e.store.ListWinners(index)
		if err != nil {
			return nil, err
		}
		view.Winners = reversed(winners)
	}
	if includeOrders {
		orders, err := e.store.ListOrders(index)
		if err != nil {
			return nil, err
		}
		view.Orders = reversed(orders)
	}
	return view, nil
}

func reversed[T any](items []T) []T {
	out := make([]T, len(items))
	for i, item := range items {
		out[len(items)-1-i] = item
	}
	return out
}

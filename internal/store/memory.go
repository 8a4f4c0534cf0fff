package store

import (
	"slices"
	"sort"

	"backend/internal/engine"
)

// MemoryStore keeps engine state in process memory. It backs tests and
// local development; the sqlite store is the production implementation.
type MemoryStore struct {
	lottery    *engine.Lottery
	rounds     map[uint32]*engine.Round
	players    map[uint32]map[string]*engine.Player
	orders     map[uint32]map[uint32]*engine.TicketOrder
	winners    map[uint32]map[uint16]*engine.Winner
	claims     map[string]*engine.Claim
	incentives map[uint32][]*engine.Incentive
	seed       string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rounds:     make(map[uint32]*engine.Round),
		players:    make(map[uint32]map[string]*engine.Player),
		orders:     make(map[uint32]map[uint32]*engine.TicketOrder),
		winners:    make(map[uint32]map[uint16]*engine.Winner),
		claims:     make(map[string]*engine.Claim),
		incentives: make(map[uint32][]*engine.Incentive),
	}
}

// Transact snapshots the whole state and restores it when fn fails, giving
// the same all-or-nothing boundary the sqlite transaction provides.
func (s *MemoryStore) Transact(fn func(engine.Store) error) error {
	snapshot := s.clone()
	if err := fn(s); err != nil {
		*s = *snapshot
		return err
	}
	return nil
}

func (s *MemoryStore) clone() *MemoryStore {
	out := NewMemoryStore()
	if s.lottery != nil {
		out.lottery = cloneLottery(s.lottery)
	}
	for index, round := range s.rounds {
		copied := *round
		out.rounds[index] = &copied
	}
	for index, byWallet := range s.players {
		out.players[index] = make(map[string]*engine.Player, len(byWallet))
		for wallet, player := range byWallet {
			out.players[index][wallet] = clonePlayer(player)
		}
	}
	for index, byOrder := range s.orders {
		out.orders[index] = make(map[uint32]*engine.TicketOrder, len(byOrder))
		for orderIndex, order := range byOrder {
			copied := *order
			out.orders[index][orderIndex] = &copied
		}
	}
	for index, byPosition := range s.winners {
		out.winners[index] = make(map[uint16]*engine.Winner, len(byPosition))
		for position, winner := range byPosition {
			copied := *winner
			out.winners[index][position] = &copied
		}
	}
	for wallet, claim := range s.claims {
		copied := *claim
		out.claims[wallet] = &copied
	}
	for index, incentives := range s.incentives {
		out.incentives[index] = slices.Clone(incentives)
	}
	out.seed = s.seed
	return out
}

func cloneLottery(lottery *engine.Lottery) *engine.Lottery {
	copied := *lottery
	copied.Rounds.Configs = slices.Clone(lottery.Rounds.Configs)
	return &copied
}

func clonePlayer(player *engine.Player) *engine.Player {
	copied := *player
	copied.OrderIndices = slices.Clone(player.OrderIndices)
	return &copied
}

func (s *MemoryStore) GetLottery() (*engine.Lottery, error) {
	if s.lottery == nil {
		return nil, nil
	}
	return cloneLottery(s.lottery), nil
}

func (s *MemoryStore) SaveLottery(lottery *engine.Lottery) error {
	s.lottery = cloneLottery(lottery)
	return nil
}

func (s *MemoryStore) GetRound(index uint32) (*engine.Round, error) {
	round, ok := s.rounds[index]
	if !ok {
		return nil, nil
	}
	copied := *round
	return &copied, nil
}

func (s *MemoryStore) SaveRound(round *engine.Round) error {
	copied := *round
	s.rounds[round.Index] = &copied
	return nil
}

func (s *MemoryStore) GetPlayer(round uint32, wallet string) (*engine.Player, error) {
	player, ok := s.players[round][wallet]
	if !ok {
		return nil, nil
	}
	return clonePlayer(player), nil
}

func (s *MemoryStore) HasPlayer(round uint32, wallet string) (bool, error) {
	_, ok := s.players[round][wallet]
	return ok, nil
}

func (s *MemoryStore) SavePlayer(round uint32, player *engine.Player) error {
	if s.players[round] == nil {
		s.players[round] = make(map[string]*engine.Player)
	}
	s.players[round][player.Wallet] = clonePlayer(player)
	return nil
}

func (s *MemoryStore) RemovePlayer(round uint32, wallet string) error {
	delete(s.players[round], wallet)
	return nil
}

func (s *MemoryStore) ListPlayers(round uint32) ([]*engine.Player, error) {
	wallets := make([]string, 0, len(s.players[round]))
	for wallet := range s.players[round] {
		wallets = append(wallets, wallet)
	}
	sort.Strings(wallets)

	players := make([]*engine.Player, 0, len(wallets))
	for _, wallet := range wallets {
		players = append(players, clonePlayer(s.players[round][wallet]))
	}
	return players, nil
}

func (s *MemoryStore) SaveOrder(round, index uint32, order *engine.TicketOrder) error {
	if s.orders[round] == nil {
		s.orders[round] = make(map[uint32]*engine.TicketOrder)
	}
	copied := *order
	s.orders[round][index] = &copied
	return nil
}

func (s *MemoryStore) RemoveOrder(round, index uint32) error {
	delete(s.orders[round], index)
	return nil
}

func (s *MemoryStore) ListOrders(round uint32) ([]*engine.TicketOrder, error) {
	indices := make([]uint32, 0, len(s.orders[round]))
	for index := range s.orders[round] {
		indices = append(indices, index)
	}
	slices.Sort(indices)

	orders := make([]*engine.TicketOrder, 0, len(indices))
	for _, index := range indices {
		copied := *s.orders[round][index]
		orders = append(orders, &copied)
	}
	return orders, nil
}

func (s *MemoryStore) GetClaim(wallet string) (*engine.Claim, error) {
	claim, ok := s.claims[wallet]
	if !ok {
		return nil, nil
	}
	copied := *claim
	return &copied, nil
}

func (s *MemoryStore) SaveClaim(claim *engine.Claim) error {
	copied := *claim
	s.claims[claim.Wallet] = &copied
	return nil
}

func (s *MemoryStore) SaveWinner(round uint32, winner *engine.Winner) error {
	if s.winners[round] == nil {
		s.winners[round] = make(map[uint16]*engine.Winner)
	}
	copied := *winner
	s.winners[round][winner.Position] = &copied
	return nil
}

func (s *MemoryStore) ListWinners(round uint32) ([]*engine.Winner, error) {
	positions := make([]uint16, 0, len(s.winners[round]))
	for position := range s.winners[round] {
		positions = append(positions, position)
	}
	slices.Sort(positions)

	winners := make([]*engine.Winner, 0, len(positions))
	for _, position := range positions {
		copied := *s.winners[round][position]
		winners = append(winners, &copied)
	}
	return winners, nil
}

func (s *MemoryStore) AppendIncentive(round uint32, incentive *engine.Incentive) error {
	copied := *incentive
	copied.Rewards = slices.Clone(incentive.Rewards)
	s.incentives[round] = append(s.incentives[round], &copied)
	return nil
}

func (s *MemoryStore) ListIncentives(round uint32) ([]*engine.Incentive, error) {
	return slices.Clone(s.incentives[round]), nil
}

func (s *MemoryStore) GetSeed() (string, error) {
	return s.seed, nil
}

func (s *MemoryStore) SaveSeed(seed string) error {
	s.seed = seed
	return nil
}

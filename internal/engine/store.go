package engine

// Store is the transactional persistence the engine runs against. Lookups
// return (nil, nil) when the key is absent. ListPlayers must iterate in
// ascending wallet order: the draw pool is built from it and reordering
// would change which wallets win for a given seed.
type Store interface {
	GetLottery() (*Lottery, error)
	SaveLottery(lottery *Lottery) error

	GetRound(index uint32) (*Round, error)
	SaveRound(round *Round) error

	GetPlayer(round uint32, wallet string) (*Player, error)
	HasPlayer(round uint32, wallet string) (bool, error)
	SavePlayer(round uint32, player *Player) error
	RemovePlayer(round uint32, wallet string) error
	ListPlayers(round uint32) ([]*Player, error)

	SaveOrder(round, index uint32, order *TicketOrder) error
	RemoveOrder(round, index uint32) error
	ListOrders(round uint32) ([]*TicketOrder, error)

	GetClaim(wallet string) (*Claim, error)
	SaveClaim(claim *Claim) error

	SaveWinner(round uint32, winner *Winner) error
	ListWinners(round uint32) ([]*Winner, error)

	AppendIncentive(round uint32, incentive *Incentive) error
	ListIncentives(round uint32) ([]*Incentive, error)

	GetSeed() (string, error)
	SaveSeed(seed string) error

	// Transact runs fn against a store whose writes either all apply or,
	// when fn errors, none do.
	Transact(fn func(Store) error) error
}

// Package engine implements the round settlement engine: the round
// lifecycle, the seeded winner selection and the claims/royalty ledger.
package engine

import "time"

// LotteryStatus is the lifecycle state of the whole campaign.
type LotteryStatus string

const (
	LotteryPending  LotteryStatus = "pending"
	LotteryActive   LotteryStatus = "active"
	LotteryComplete LotteryStatus = "complete"
	LotteryCanceled LotteryStatus = "canceled"
)

// RoundStatus is the lifecycle state of a single round.
type RoundStatus string

const (
	RoundPending  RoundStatus = "pending"
	RoundActive   RoundStatus = "active"
	RoundClosed   RoundStatus = "closed"
	RoundComplete RoundStatus = "complete"
	RoundCanceled RoundStatus = "canceled"
)

// TokenKind discriminates the token union.
type TokenKind string

const (
	TokenNative TokenKind = "native"
	TokenJetton TokenKind = "jetton"
)

// Token identifies the asset a round is denominated in: the native coin or a
// jetton by its master contract address.
type Token struct {
	Kind   TokenKind `json:"kind"`
	Master string    `json:"master,omitempty"`
}

// RoyaltyRecipient is a configured cut of the round pot. Autosend recipients
// are paid by the caller at round end; the rest accrue a Claim.
type RoyaltyRecipient struct {
	Address  string `json:"address"`
	Pct      uint8  `json:"pct"`
	Autosend bool   `json:"autosend"`
}

// Targets are the round end conditions. Zero values mean unset; with neither
// set the round never auto-ends.
type Targets struct {
	FundingLevel    uint64 `json:"funding_level,omitempty"`
	DurationMinutes uint32 `json:"duration_minutes,omitempty"`
}

// SelectionMethod discriminates how the winner count is derived.
type SelectionMethod string

const (
	SelectionFixed   SelectionMethod = "fixed"
	SelectionPercent SelectionMethod = "percent"
)

// WinnerSelection configures the draw. For the fixed method FixedSplit lists
// the per-place percentages; for the percent method the winner count is
// Pct percent of the participating wallets, capped by MaxWinners when set.
type WinnerSelection struct {
	Method          SelectionMethod `json:"method"`
	FixedSplit      []uint8         `json:"fixed_split,omitempty"`
	Pct             uint8           `json:"pct,omitempty"`
	MaxWinners      uint32          `json:"max_winners,omitempty"`
	WithReplacement bool            `json:"with_replacement"`
}

// Config holds the immutable rules of one round. Configs are reused with
// index modulo the config count when a lottery runs more rounds than configs.
type Config struct {
	Name                string             `json:"name,omitempty"`
	Targets             Targets            `json:"targets"`
	Selection           WinnerSelection    `json:"selection"`
	Token               Token              `json:"token"`
	TicketPrice         uint64             `json:"ticket_price"`
	MaxTicketsPerWallet uint32             `json:"max_tickets_per_wallet,omitempty"`
	Royalties           []RoyaltyRecipient `json:"royalties,omitempty"`
}

// Counts are the per-round aggregates maintained on every purchase.
type Counts struct {
	Drawings uint32 `json:"drawings"`
	Wallets  uint32 `json:"wallets"`
	Tickets  uint32 `json:"tickets"`
	Orders   uint32 `json:"orders"`
}

// Round is one sale-and-draw cycle.
type Round struct {
	Index     uint32      `json:"index"`
	Status    RoundStatus `json:"status"`
	Counts    Counts      `json:"counts"`
	StartedAt time.Time   `json:"started_at,omitzero"`
	EndedBy   string      `json:"ended_by,omitempty"`
}

// NewRound creates round state for the given index, Active and stamped with
// startedAt when the lottery is live, Pending otherwise.
func NewRound(startedAt time.Time, isActive bool, index uint32) *Round {
	round := &Round{
		Index:  index,
		Status: RoundPending,
	}
	if isActive {
		round.Status = RoundActive
		round.StartedAt = startedAt
	}
	return round
}

func (r *Round) IsActive() bool {
	return r.Status == RoundActive
}

func (r *Round) IsCanceled() bool {
	return r.Status == RoundCanceled
}

// ShouldEnd reports whether the round's end condition holds: the funding
// target is reached, or the configured duration has elapsed. With neither
// target set the round only ends on an explicit terminate.
func (r *Round) ShouldEnd(config *Config, now time.Time) bool {
	if config.Targets.FundingLevel > 0 {
		return uint64(r.Counts.Tickets)*config.TicketPrice >= config.Targets.FundingLevel
	}
	if config.Targets.DurationMinutes > 0 {
		if r.StartedAt.IsZero() {
			return false
		}
		return !now.Before(r.StartedAt.Add(time.Duration(config.Targets.DurationMinutes) * time.Minute))
	}
	return false
}

// PotSize is the total ticket revenue of the round.
func (r *Round) PotSize(config *Config) uint64 {
	return uint64(r.Counts.Tickets) * config.TicketPrice
}

// TotalRoyaltyAmount sums the royalty cuts taken off the given pot.
func (r *Round) TotalRoyaltyAmount(config *Config, total uint64) uint64 {
	var sum uint64
	for _, royalty := range config.Royalties {
		sum += applyPct(total, royalty.Pct)
	}
	return sum
}

// Rounds tracks the ordered configs, the current round index and the total
// number of rounds the campaign will run.
type Rounds struct {
	Configs []Config `json:"configs"`
	Index   uint32   `json:"index"`
	Count   uint32   `json:"count"`
}

// Lottery is the whole multi-round campaign.
type Lottery struct {
	Owner      string        `json:"owner"`
	Name       string        `json:"name,omitempty"`
	Tournament bool          `json:"tournament"`
	Status     LotteryStatus `json:"status"`
	Rounds     Rounds        `json:"rounds"`
}

func (l *Lottery) IsActive() bool {
	return l.Status == LotteryActive
}

// ConfigIndex resolves the current round's config slot, cycling through the
// configured list.
func (l *Lottery) ConfigIndex() int {
	return int(l.Rounds.Index) % len(l.Rounds.Configs)
}

// CurrentConfig returns the config governing the current round.
func (l *Lottery) CurrentConfig() *Config {
	return &l.Rounds.Configs[l.ConfigIndex()]
}

// ConfigAt returns the config governing the round at the given index.
func (l *Lottery) ConfigAt(index uint32) *Config {
	return &l.Rounds.Configs[int(index)%len(l.Rounds.Configs)]
}

// Validate checks the structural rules a campaign must satisfy before it is
// accepted. Royalty and split percentages must partition at most the whole
// pot; over-provisioned configs would overdraw it at settlement.
func (l *Lottery) Validate() error {
	if len(l.Rounds.Configs) == 0 {
		return &ValidationError{Reason: "lottery must have at least 1 round config"}
	}
	for i := range l.Rounds.Configs {
		config := &l.Rounds.Configs[i]
		if config.TicketPrice == 0 {
			return &ValidationError{Reason: "ticket price must be positive"}
		}
		var royaltyTotal uint32
		for _, royalty := range config.Royalties {
			if royalty.Pct == 0 || royalty.Pct > 100 {
				return &ValidationError{Reason: "royalty pct must be between 1 and 100"}
			}
			royaltyTotal += uint32(royalty.Pct)
		}
		if royaltyTotal > 100 {
			return &ValidationError{Reason: "royalty pcts exceed 100"}
		}
		switch config.Selection.Method {
		case SelectionFixed:
			if len(config.Selection.FixedSplit) == 0 {
				return &ValidationError{Reason: "fixed selection requires a split"}
			}
			var splitTotal uint32
			for _, pct := range config.Selection.FixedSplit {
				if pct == 0 || pct > 100 {
					return &ValidationError{Reason: "split pct must be between 1 and 100"}
				}
				splitTotal += uint32(pct)
			}
			if splitTotal > 100 {
				return &ValidationError{Reason: "split pcts exceed 100"}
			}
		case SelectionPercent:
			if config.Selection.Pct == 0 || config.Selection.Pct > 100 {
				return &ValidationError{Reason: "selection pct must be between 1 and 100"}
			}
		default:
			return &ValidationError{Reason: "unknown winner selection method"}
		}
	}
	return nil
}

// Player is a wallet's position within one round.
type Player struct {
	Wallet       string   `json:"wallet"`
	TicketCount  uint32   `json:"ticket_count"`
	OrderIndices []uint32 `json:"order_indices"`
}

// AmountSpent is the wallet's total ticket spend in the round.
func (p *Player) AmountSpent(config *Config) uint64 {
	return uint64(p.TicketCount) * config.TicketPrice
}

// TicketOrder is one purchase event.
type TicketOrder struct {
	Wallet      string `json:"wallet"`
	TicketCount uint32 `json:"ticket_count"`
	Message     string `json:"message,omitempty"`
	IsPublic    bool   `json:"is_public"`
}

// TokenAmount pairs a token with an amount of it.
type TokenAmount struct {
	Token  Token  `json:"token"`
	Amount uint64 `json:"amount"`
}

// Reward is one asset donated to the pot, optionally earmarked for a
// finishing position (1st place, 2nd, ...; zero means any).
type Reward struct {
	Token    *TokenAmount `json:"token,omitempty"`
	Position uint32       `json:"position,omitempty"`
}

// Incentive records a wallet's donation of extra rewards to a round.
type Incentive struct {
	Source  string   `json:"source"`
	Rewards []Reward `json:"rewards"`
}

// Claim is the accrued, not-yet-withdrawn balance owed to a wallet. It only
// ever grows here; withdrawal is the host's concern.
type Claim struct {
	Wallet string `json:"wallet"`
	Amount uint64 `json:"amount"`
}

// Winner records one accepted draw within a round.
type Winner struct {
	Wallet   string `json:"wallet"`
	Amount   uint64 `json:"amount"`
	Position uint16 `json:"position"`
}

// applyPct takes pct percent of amount, rounding down.
func applyPct(amount uint64, pct uint8) uint64 {
	return amount * uint64(pct) / 100
}

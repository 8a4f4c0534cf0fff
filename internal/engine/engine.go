package engine

import (
	"context"
	"sync"
	"time"

	"backend/internal/logger"

	"go.uber.org/zap"
)

// Env carries the per-invocation facts the host supplies: the verified
// caller, the block time and the block height.
type Env struct {
	Sender string
	Time   time.Time
	Height int64
}

// FundsVerifier checks that a wallet can actually cover an amount of a
// token before the engine commits state that assumes the payment.
type FundsVerifier interface {
	VerifyFunds(ctx context.Context, wallet string, token Token, amount uint64) error
}

// Payout is a transfer the host must perform after an operation commits:
// an autosend royalty cut or a refund.
type Payout struct {
	Address string `json:"address"`
	Token   Token  `json:"token"`
	Amount  uint64 `json:"amount"`
}

// InitRounds is the round plan given at setup.
type InitRounds struct {
	Configs []Config `json:"configs"`
	Count   uint32   `json:"count"`
}

// InitMsg is the setup message for a new lottery.
type InitMsg struct {
	Name       string     `json:"name,omitempty"`
	Tournament bool       `json:"tournament"`
	Activate   *bool      `json:"activate,omitempty"`
	Rounds     InitRounds `json:"rounds"`
}

// Engine runs all lottery operations. Operations are serialized behind one
// mutex and executed inside a store transaction, so each invocation applies
// all of its writes or none of them.
type Engine struct {
	mu    sync.Mutex
	store Store
	funds FundsVerifier
}

func New(store Store, funds FundsVerifier) *Engine {
	return &Engine{
		store: store,
		funds: funds,
	}
}

// Initialize creates the lottery, round 0 and the initial entropy seed.
func (e *Engine) Initialize(env Env, msg InitMsg) (*Lottery, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var lottery *Lottery
	err := e.store.Transact(func(s Store) error {
		existing, err := s.GetLottery()
		if err != nil {
			return err
		}
		if existing != nil {
			return &ValidationError{Reason: "lottery is already initialized"}
		}

		status := LotteryActive
		if msg.Activate != nil && !*msg.Activate {
			status = LotteryPending
		}
		count := msg.Rounds.Count
		if uint32(len(msg.Rounds.Configs)) > count {
			count = uint32(len(msg.Rounds.Configs))
		}
		lottery = &Lottery{
			Owner:      env.Sender,
			Name:       msg.Name,
			Tournament: msg.Tournament,
			Status:     status,
			Rounds: Rounds{
				Configs: msg.Rounds.Configs,
				Count:   count,
				Index:   0,
			},
		}
		if err := lottery.Validate(); err != nil {
			return err
		}

		if err := s.SaveLottery(lottery); err != nil {
			return err
		}
		if err := s.SaveRound(NewRound(env.Time, lottery.IsActive(), 0)); err != nil {
			return err
		}
		return s.SaveSeed(initialSeed(env.Sender, env.Height))
	})
	if err != nil {
		return nil, err
	}

	logger.Info("lottery initialized",
		zap.String("owner", lottery.Owner),
		zap.Uint32("rounds", lottery.Rounds.Count),
		zap.String("status", string(lottery.Status)))
	return lottery, nil
}

// BuyTickets registers a ticket order for the sender, folds the purchase
// into the entropy seed and, when the order satisfies the round's end
// condition, settles the round. The returned payouts are the autosend
// royalty cuts the caller must transfer immediately.
func (e *Engine) BuyTickets(ctx context.Context, env Env, count uint32, payment uint64, message string, isPublic bool) ([]Payout, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if count == 0 {
		return nil, &ValidationError{Reason: "ticket count must be positive"}
	}

	var autosend []Payout
	err := e.store.Transact(func(s Store) error {
		lottery, err := s.GetLottery()
		if err != nil {
			return err
		}
		if lottery == nil {
			return ErrRoundNotFound
		}
		configIndex := lottery.ConfigIndex()
		config := lottery.CurrentConfig()
		roundIndex := lottery.Rounds.Index

		round, err := s.GetRound(roundIndex)
		if err != nil {
			return err
		}
		if round == nil {
			return ErrRoundNotFound
		}
		if !round.IsActive() {
			return ErrInactiveRound
		}

		// tournament entry requires participation in the previous round
		if lottery.Tournament && configIndex > 0 {
			participated, err := s.HasPlayer(roundIndex-1, env.Sender)
			if err != nil {
				return err
			}
			if !participated {
				return ErrForbidden
			}
		}

		orderIndex := round.Counts.Orders
		player, err := s.GetPlayer(roundIndex, env.Sender)
		if err != nil {
			return err
		}
		if player == nil {
			player = &Player{Wallet: env.Sender}
		}

		if max := config.MaxTicketsPerWallet; max > 0 && player.TicketCount+count > max {
			return &TooManyTicketsError{MaxTicketsPerWallet: max}
		}

		cost := config.TicketPrice * uint64(count)
		if payment < cost {
			return ErrInsufficientFunds
		}
		if payment > cost {
			return ErrExcessiveFunds
		}
		if e.funds != nil {
			if err := e.funds.VerifyFunds(ctx, env.Sender, config.Token, cost); err != nil {
				return err
			}
		}

		if player.TicketCount == 0 {
			round.Counts.Wallets++
		}
		round.Counts.Tickets += count
		round.Counts.Orders++
		round.Counts.Drawings = winnerCount(config, round)
		player.TicketCount += count
		player.OrderIndices = append(player.OrderIndices, orderIndex)

		// fold the purchase into the running seed before the end check, so
		// the buyer commits entropy without knowing whether they close the
		// round
		seed, err := s.GetSeed()
		if err != nil {
			return err
		}
		if err := s.SaveSeed(updateSeed(seed, env.Sender, count, env.Height, message)); err != nil {
			return err
		}

		if err := s.SavePlayer(roundIndex, player); err != nil {
			return err
		}
		if err := s.SaveRound(round); err != nil {
			return err
		}
		err = s.SaveOrder(roundIndex, orderIndex, &TicketOrder{
			Wallet:      env.Sender,
			TicketCount: count,
			Message:     message,
			IsPublic:    isPublic,
		})
		if err != nil {
			return err
		}

		if round.ShouldEnd(config, env.Time) && lottery.Rounds.Index < lottery.Rounds.Count {
			autosend, err = e.endRound(s, env, lottery, config, round)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("tickets purchased",
		zap.String("wallet", env.Sender),
		zap.Uint32("count", count))
	return autosend, nil
}

// AddIncentives records extra rewards donated to the current round's pot.
func (e *Engine) AddIncentives(ctx context.Context, env Env, rewards []Reward) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.store.Transact(func(s Store) error {
		lottery, err := s.GetLottery()
		if err != nil {
			return err
		}
		if lottery == nil {
			return ErrRoundNotFound
		}
		round, err := s.GetRound(lottery.Rounds.Index)
		if err != nil {
			return err
		}
		if round == nil {
			return ErrRoundNotFound
		}
		if !round.IsActive() {
			return ErrNotActive
		}
		if len(rewards) == 0 {
			return ErrMissingRewards
		}

		if e.funds != nil {
			for _, reward := range rewards {
				if reward.Token == nil {
					continue
				}
				if err := e.funds.VerifyFunds(ctx, env.Sender, reward.Token.Token, reward.Token.Amount); err != nil {
					return err
				}
			}
		}

		return s.AppendIncentive(round.Index, &Incentive{
			Source:  env.Sender,
			Rewards: rewards,
		})
	})
}

// TerminateRound evaluates the current round's end condition and settles it
// when due. A terminate before the condition holds is a no-op.
func (e *Engine) TerminateRound(env Env) ([]Payout, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var autosend []Payout
	err := e.store.Transact(func(s Store) error {
		lottery, err := s.GetLottery()
		if err != nil {
			return err
		}
		if lottery == nil {
			return ErrRoundNotFound
		}
		config := lottery.CurrentConfig()
		round, err := s.GetRound(lottery.Rounds.Index)
		if err != nil {
			return err
		}
		if round == nil {
			return ErrRoundNotFound
		}

		if round.ShouldEnd(config, env.Time) && lottery.Rounds.Index < lottery.Rounds.Count {
			autosend, err = e.endRound(s, env, lottery, config, round)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return autosend, nil
}

// CancelRound lets the owner cancel the current round, which also cancels
// the campaign. Refunds only become possible on canceled rounds.
func (e *Engine) CancelRound(env Env) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.store.Transact(func(s Store) error {
		lottery, err := s.GetLottery()
		if err != nil {
			return err
		}
		if lottery == nil {
			return ErrRoundNotFound
		}
		if env.Sender != lottery.Owner {
			return ErrNotAuthorized
		}
		round, err := s.GetRound(lottery.Rounds.Index)
		if err != nil {
			return err
		}
		if round == nil {
			return ErrRoundNotFound
		}
		if round.Status != RoundActive && round.Status != RoundPending {
			return ErrForbidden
		}

		round.Status = RoundCanceled
		round.EndedBy = env.Sender
		lottery.Status = LotteryCanceled
		if err := s.SaveRound(round); err != nil {
			return err
		}
		return s.SaveLottery(lottery)
	})
}

// IssueRefund removes one wallet from a canceled round, reversing its
// contribution to the round counts, and returns the payout the caller must
// send back. Only the owner may refund.
func (e *Engine) IssueRefund(env Env, roundIndex uint32, recipient string) (*Payout, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var payout *Payout
	err := e.store.Transact(func(s Store) error {
		lottery, err := s.GetLottery()
		if err != nil {
			return err
		}
		if lottery == nil {
			return ErrRoundNotFound
		}
		if env.Sender != lottery.Owner {
			return ErrNotAuthorized
		}
		round, err := s.GetRound(roundIndex)
		if err != nil {
			return err
		}
		if round == nil {
			return ErrRoundNotFound
		}
		if !round.IsCanceled() {
			return ErrForbidden
		}

		player, err := s.GetPlayer(roundIndex, recipient)
		if err != nil {
			return err
		}
		if player == nil {
			return ErrPlayerNotFound
		}

		round.Counts.Wallets--
		round.Counts.Tickets -= player.TicketCount
		round.Counts.Orders -= uint32(len(player.OrderIndices))
		if err := s.RemovePlayer(roundIndex, recipient); err != nil {
			return err
		}
		for _, orderIndex := range player.OrderIndices {
			if err := s.RemoveOrder(roundIndex, orderIndex); err != nil {
				return err
			}
		}
		if err := s.SaveRound(round); err != nil {
			return err
		}

		config := lottery.ConfigAt(roundIndex)
		payout = &Payout{
			Address: recipient,
			Token:   config.Token,
			Amount:  player.AmountSpent(config),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("refund issued",
		zap.String("recipient", recipient),
		zap.Uint32("round", roundIndex),
		zap.Uint64("amount", payout.Amount))
	return payout, nil
}

// endRound settles the current round: it completes the round, advances the
// campaign, finalizes the seed, credits royalty claims and draws the
// winners. Ends on rounds with fewer than two wallets are absorbed: refund
// hooks fire and nothing advances.
func (e *Engine) endRound(s Store, env Env, lottery *Lottery, config *Config, round *Round) ([]Payout, error) {
	if !round.IsActive() {
		return nil, ErrNotActive
	}

	if round.Counts.Wallets == 0 {
		return nil, nil
	}
	if round.Counts.Wallets == 1 {
		if err := refundTickets(s, round); err != nil {
			return nil, err
		}
		if err := refundIncentives(s, round); err != nil {
			return nil, err
		}
		return nil, nil
	}

	round.EndedBy = env.Sender
	round.Status = RoundComplete

	isFinalRound := lottery.Rounds.Index == lottery.Rounds.Count-1
	if isFinalRound {
		lottery.Status = LotteryComplete
	} else {
		nextIndex := lottery.Rounds.Index + 1
		if err := s.SaveRound(NewRound(env.Time, true, nextIndex)); err != nil {
			return nil, err
		}
		lottery.Rounds.Index = nextIndex
	}
	if err := s.SaveLottery(lottery); err != nil {
		return nil, err
	}

	pot := round.PotSize(config)
	totalRoyalties := round.TotalRoyaltyAmount(config, pot)
	winnings := pot - totalRoyalties

	// the ending actor and height perturb the draw of the round they close
	seed, err := s.GetSeed()
	if err != nil {
		return nil, err
	}
	finalized := finalizeSeed(seed, env.Sender, env.Height)
	if err := s.SaveSeed(finalized); err != nil {
		return nil, err
	}

	if err := upsertRoyaltyClaims(s, config, pot); err != nil {
		return nil, err
	}
	if err := pickWinners(s, config, round, winnings, finalized); err != nil {
		return nil, err
	}
	if err := s.SaveRound(round); err != nil {
		return nil, err
	}

	autosend := make([]Payout, 0, len(config.Royalties))
	for _, royalty := range config.Royalties {
		if royalty.Autosend {
			autosend = append(autosend, Payout{
				Address: royalty.Address,
				Token:   config.Token,
				Amount:  applyPct(pot, royalty.Pct),
			})
		}
	}

	logger.Info("round settled",
		zap.Uint32("round", round.Index),
		zap.Uint64("pot", pot),
		zap.Uint64("winnings", winnings),
		zap.Uint32("drawings", round.Counts.Drawings),
		zap.String("ended_by", env.Sender))
	return autosend, nil
}

// upsertRoyaltyClaims credits every non-autosend royalty recipient with its
// cut of the pot.
func upsertRoyaltyClaims(s Store, config *Config, pot uint64) error {
	for _, royalty := range config.Royalties {
		if royalty.Autosend {
			continue
		}
		if err := upsertClaim(s, royalty.Address, applyPct(pot, royalty.Pct)); err != nil {
			return err
		}
	}
	return nil
}

// Contract points for the single-wallet round end. The funds to move back
// are known here, but the transfer mechanics are the host's.
func refundTickets(Store, *Round) error {
	return nil
}

func refundIncentives(Store, *Round) error {
	return nil
}

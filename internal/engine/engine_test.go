package engine_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"backend/internal/engine"
	"backend/internal/logger"
	"backend/internal/store"
)

func TestMain(m *testing.M) {
	logger.Initialize(logger.Configuration{})
	os.Exit(m.Run())
}

const (
	owner   = "0:0000000000000000000000000000000000000000000000000000000000000001"
	walletA = "0:00000000000000000000000000000000000000000000000000000000000000aa"
	walletB = "0:00000000000000000000000000000000000000000000000000000000000000bb"
	walletC = "0:00000000000000000000000000000000000000000000000000000000000000cc"

	ticketPrice = uint64(10)
)

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// fundsStub fails or passes every verification.
type fundsStub struct {
	err error
}

func (f *fundsStub) VerifyFunds(context.Context, string, engine.Token, uint64) error {
	return f.err
}

func env(sender string, height int64) engine.Env {
	return engine.Env{Sender: sender, Time: baseTime, Height: height}
}

// fundedConfig ends the round when ticket revenue reaches 100 and pays a
// 70/30 split.
func fundedConfig() engine.Config {
	return engine.Config{
		Targets: engine.Targets{FundingLevel: 100},
		Selection: engine.WinnerSelection{
			Method:     engine.SelectionFixed,
			FixedSplit: []uint8{70, 30},
		},
		Token:       engine.Token{Kind: engine.TokenNative},
		TicketPrice: ticketPrice,
	}
}

func newEngine(t *testing.T, msg engine.InitMsg) (*engine.Engine, *store.MemoryStore) {
	t.Helper()
	memory := store.NewMemoryStore()
	eng := engine.New(memory, nil)
	if _, err := eng.Initialize(env(owner, 1), msg); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return eng, memory
}

func buy(t *testing.T, eng *engine.Engine, wallet string, count uint32, height int64) []engine.Payout {
	t.Helper()
	payouts, err := eng.BuyTickets(context.Background(), env(wallet, height), count, ticketPrice*uint64(count), "", true)
	if err != nil {
		t.Fatalf("buy %d tickets for %s: %v", count, wallet, err)
	}
	return payouts
}

func TestInitialize(t *testing.T) {
	t.Run("creates an active round zero", func(t *testing.T) {
		eng, _ := newEngine(t, engine.InitMsg{
			Rounds: engine.InitRounds{Configs: []engine.Config{fundedConfig()}, Count: 2},
		})
		view, err := eng.GetRound(0, false, false, false)
		if err != nil {
			t.Fatal(err)
		}
		if view.Status != engine.RoundActive {
			t.Fatalf("expected active round, got %s", view.Status)
		}
		if !view.StartedAt.Equal(baseTime) {
			t.Fatalf("expected start at %v, got %v", baseTime, view.StartedAt)
		}
	})

	t.Run("deferred activation leaves the round pending", func(t *testing.T) {
		activate := false
		eng, _ := newEngine(t, engine.InitMsg{
			Activate: &activate,
			Rounds:   engine.InitRounds{Configs: []engine.Config{fundedConfig()}, Count: 1},
		})
		view, err := eng.GetRound(0, false, false, false)
		if err != nil {
			t.Fatal(err)
		}
		if view.Status != engine.RoundPending {
			t.Fatalf("expected pending round, got %s", view.Status)
		}
		_, err = eng.BuyTickets(context.Background(), env(walletA, 2), 1, ticketPrice, "", true)
		if !errors.Is(err, engine.ErrInactiveRound) {
			t.Fatalf("expected ErrInactiveRound, got %v", err)
		}
	})

	t.Run("rejects a second initialization", func(t *testing.T) {
		eng, _ := newEngine(t, engine.InitMsg{
			Rounds: engine.InitRounds{Configs: []engine.Config{fundedConfig()}, Count: 1},
		})
		var validationErr *engine.ValidationError
		_, err := eng.Initialize(env(owner, 1), engine.InitMsg{
			Rounds: engine.InitRounds{Configs: []engine.Config{fundedConfig()}, Count: 1},
		})
		if !errors.As(err, &validationErr) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})

	t.Run("rejects over-provisioned royalties", func(t *testing.T) {
		config := fundedConfig()
		config.Royalties = []engine.RoyaltyRecipient{
			{Address: walletA, Pct: 60},
			{Address: walletB, Pct: 60},
		}
		eng := engine.New(store.NewMemoryStore(), nil)
		var validationErr *engine.ValidationError
		_, err := eng.Initialize(env(owner, 1), engine.InitMsg{
			Rounds: engine.InitRounds{Configs: []engine.Config{config}, Count: 1},
		})
		if !errors.As(err, &validationErr) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})

	t.Run("rejects an empty fixed split", func(t *testing.T) {
		config := fundedConfig()
		config.Selection.FixedSplit = nil
		eng := engine.New(store.NewMemoryStore(), nil)
		var validationErr *engine.ValidationError
		_, err := eng.Initialize(env(owner, 1), engine.InitMsg{
			Rounds: engine.InitRounds{Configs: []engine.Config{config}, Count: 1},
		})
		if !errors.As(err, &validationErr) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})
}

func TestBuyTickets(t *testing.T) {
	t.Run("records the player and the order", func(t *testing.T) {
		eng, _ := newEngine(t, engine.InitMsg{
			Rounds: engine.InitRounds{Configs: []engine.Config{fundedConfig()}, Count: 1},
		})
		buy(t, eng, walletA, 3, 2)
		buy(t, eng, walletA, 2, 3)

		view, err := eng.GetRound(0, true, false, true)
		if err != nil {
			t.Fatal(err)
		}
		if view.Counts.Wallets != 1 || view.Counts.Tickets != 5 || view.Counts.Orders != 2 {
			t.Fatalf("unexpected counts: %+v", view.Counts)
		}
		if len(view.Players) != 1 || view.Players[0].TicketCount != 5 {
			t.Fatalf("unexpected players: %+v", view.Players)
		}
		if len(view.Orders) != 2 {
			t.Fatalf("expected 2 orders, got %d", len(view.Orders))
		}
		// listings are newest first
		if view.Orders[0].TicketCount != 2 || view.Orders[1].TicketCount != 3 {
			t.Fatalf("orders not in descending index order: %+v", view.Orders)
		}
	})

	t.Run("rejects a zero count", func(t *testing.T) {
		eng, _ := newEngine(t, engine.InitMsg{
			Rounds: engine.InitRounds{Configs: []engine.Config{fundedConfig()}, Count: 1},
		})
		var validationErr *engine.ValidationError
		_, err := eng.BuyTickets(context.Background(), env(walletA, 2), 0, 0, "", true)
		if !errors.As(err, &validationErr) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})

	t.Run("requires the exact ticket cost", func(t *testing.T) {
		eng, _ := newEngine(t, engine.InitMsg{
			Rounds: engine.InitRounds{Configs: []engine.Config{fundedConfig()}, Count: 1},
		})
		_, err := eng.BuyTickets(context.Background(), env(walletA, 2), 3, 29, "", true)
		if !errors.Is(err, engine.ErrInsufficientFunds) {
			t.Fatalf("expected ErrInsufficientFunds, got %v", err)
		}
		_, err = eng.BuyTickets(context.Background(), env(walletA, 2), 3, 31, "", true)
		if !errors.Is(err, engine.ErrExcessiveFunds) {
			t.Fatalf("expected ErrExcessiveFunds, got %v", err)
		}
	})

	t.Run("a rejected purchase leaves no state behind", func(t *testing.T) {
		config := fundedConfig()
		config.MaxTicketsPerWallet = 5
		eng, _ := newEngine(t, engine.InitMsg{
			Rounds: engine.InitRounds{Configs: []engine.Config{config}, Count: 1},
		})
		buy(t, eng, walletA, 3, 2)

		var tooManyErr *engine.TooManyTicketsError
		_, err := eng.BuyTickets(context.Background(), env(walletA, 3), 3, 30, "", true)
		if !errors.As(err, &tooManyErr) {
			t.Fatalf("expected too-many-tickets error, got %v", err)
		}

		view, err := eng.GetRound(0, true, false, true)
		if err != nil {
			t.Fatal(err)
		}
		if view.Counts.Tickets != 3 || view.Counts.Orders != 1 {
			t.Fatalf("failed purchase mutated counts: %+v", view.Counts)
		}
		if view.Players[0].TicketCount != 3 {
			t.Fatalf("failed purchase mutated the player: %+v", view.Players[0])
		}
	})

	t.Run("a failed funds check aborts the purchase", func(t *testing.T) {
		memory := store.NewMemoryStore()
		eng := engine.New(memory, &fundsStub{err: engine.ErrInsufficientFunds})
		_, err := eng.Initialize(env(owner, 1), engine.InitMsg{
			Rounds: engine.InitRounds{Configs: []engine.Config{fundedConfig()}, Count: 1},
		})
		if err != nil {
			t.Fatal(err)
		}
		_, err = eng.BuyTickets(context.Background(), env(walletA, 2), 1, ticketPrice, "", true)
		if !errors.Is(err, engine.ErrInsufficientFunds) {
			t.Fatalf("expected ErrInsufficientFunds, got %v", err)
		}
		view, err := eng.GetRound(0, true, false, false)
		if err != nil {
			t.Fatal(err)
		}
		if view.Counts.Tickets != 0 || len(view.Players) != 0 {
			t.Fatalf("failed purchase left state: %+v", view.Counts)
		}
	})
}

func TestRoundSettlement(t *testing.T) {
	t.Run("the closing purchase settles the round", func(t *testing.T) {
		eng, memory := newEngine(t, engine.InitMsg{
			Rounds: engine.InitRounds{Configs: []engine.Config{fundedConfig()}, Count: 2},
		})
		buy(t, eng, walletA, 3, 2)
		buy(t, eng, walletB, 7, 3)

		view, err := eng.GetRound(0, false, true, false)
		if err != nil {
			t.Fatal(err)
		}
		if view.Status != engine.RoundComplete {
			t.Fatalf("expected complete round, got %s", view.Status)
		}
		if view.EndedBy != walletB {
			t.Fatalf("expected round ended by %s, got %s", walletB, view.EndedBy)
		}
		if view.Counts.Drawings != 2 || len(view.Winners) != 2 {
			t.Fatalf("expected 2 drawings, got %d (%d winners)", view.Counts.Drawings, len(view.Winners))
		}
		// newest position first
		if view.Winners[0].Position != 2 || view.Winners[1].Position != 1 {
			t.Fatalf("winners not in descending position order: %+v", view.Winners)
		}
		if view.Winners[1].Amount != 70 || view.Winners[0].Amount != 30 {
			t.Fatalf("split amounts wrong: %+v", view.Winners)
		}
		if view.Winners[0].Wallet == view.Winners[1].Wallet {
			t.Fatal("without-replacement draw selected the same wallet twice")
		}

		// the entire pot is accounted for
		var total uint64
		for _, wallet := range []string{walletA, walletB} {
			claim, err := memory.GetClaim(wallet)
			if err != nil {
				t.Fatal(err)
			}
			if claim != nil {
				total += claim.Amount
			}
		}
		if total != 100 {
			t.Fatalf("claims total %d, expected the whole pot", total)
		}

		// the next round is live
		next, err := eng.GetRound(1, false, false, false)
		if err != nil {
			t.Fatal(err)
		}
		if next.Status != engine.RoundActive {
			t.Fatalf("expected next round active, got %s", next.Status)
		}
	})

	t.Run("royalties come off the pot first", func(t *testing.T) {
		config := fundedConfig()
		config.Royalties = []engine.RoyaltyRecipient{
			{Address: walletC, Pct: 10},
			{Address: owner, Pct: 5, Autosend: true},
		}
		eng, memory := newEngine(t, engine.InitMsg{
			Rounds: engine.InitRounds{Configs: []engine.Config{config}, Count: 1},
		})
		buy(t, eng, walletA, 3, 2)
		payouts := buy(t, eng, walletB, 7, 3)

		if len(payouts) != 1 || payouts[0].Address != owner || payouts[0].Amount != 5 {
			t.Fatalf("unexpected autosend payouts: %+v", payouts)
		}
		claim, err := memory.GetClaim(walletC)
		if err != nil {
			t.Fatal(err)
		}
		if claim == nil || claim.Amount != 10 {
			t.Fatalf("expected royalty claim of 10, got %+v", claim)
		}

		// winnings are pot minus all royalty cuts: 100 - 10 - 5 = 85
		view, err := eng.GetRound(0, false, true, false)
		if err != nil {
			t.Fatal(err)
		}
		var winnings uint64
		for _, winner := range view.Winners {
			winnings += winner.Amount
		}
		if winnings != 59+25 {
			t.Fatalf("winner amounts total %d, expected %d", winnings, 59+25)
		}
	})

	t.Run("identical histories draw identical winners", func(t *testing.T) {
		run := func() []*engine.Winner {
			eng, _ := newEngine(t, engine.InitMsg{
				Rounds: engine.InitRounds{Configs: []engine.Config{fundedConfig()}, Count: 1},
			})
			buy(t, eng, walletA, 3, 2)
			buy(t, eng, walletB, 7, 3)
			view, err := eng.GetRound(0, false, true, false)
			if err != nil {
				t.Fatal(err)
			}
			return view.Winners
		}

		first, second := run(), run()
		if len(first) != len(second) {
			t.Fatalf("winner counts differ: %d vs %d", len(first), len(second))
		}
		for i := range first {
			if *first[i] != *second[i] {
				t.Fatalf("draw %d differs: %+v vs %+v", i, first[i], second[i])
			}
		}
	})

	t.Run("without replacement every winner is distinct", func(t *testing.T) {
		config := fundedConfig()
		config.Selection = engine.WinnerSelection{
			Method: engine.SelectionPercent,
			Pct:    100,
		}
		eng, _ := newEngine(t, engine.InitMsg{
			Rounds: engine.InitRounds{Configs: []engine.Config{config}, Count: 1},
		})
		buy(t, eng, walletA, 1, 2)
		buy(t, eng, walletB, 1, 3)
		buy(t, eng, walletC, 8, 4)

		view, err := eng.GetRound(0, false, true, false)
		if err != nil {
			t.Fatal(err)
		}
		if len(view.Winners) != 3 {
			t.Fatalf("expected 3 winners, got %d", len(view.Winners))
		}
		seen := map[string]bool{}
		for _, winner := range view.Winners {
			if seen[winner.Wallet] {
				t.Fatalf("wallet %s won twice", winner.Wallet)
			}
			seen[winner.Wallet] = true
		}
	})

	t.Run("the final round completes the campaign", func(t *testing.T) {
		eng, memory := newEngine(t, engine.InitMsg{
			Rounds: engine.InitRounds{Configs: []engine.Config{fundedConfig()}, Count: 1},
		})
		buy(t, eng, walletA, 3, 2)
		buy(t, eng, walletB, 7, 3)

		lottery, err := memory.GetLottery()
		if err != nil {
			t.Fatal(err)
		}
		if lottery.Status != engine.LotteryComplete {
			t.Fatalf("expected complete lottery, got %s", lottery.Status)
		}
		_, err = eng.BuyTickets(context.Background(), env(walletC, 4), 1, ticketPrice, "", true)
		if !errors.Is(err, engine.ErrInactiveRound) {
			t.Fatalf("expected ErrInactiveRound, got %v", err)
		}
	})

	t.Run("terminate before the condition holds is a no-op", func(t *testing.T) {
		eng, _ := newEngine(t, engine.InitMsg{
			Rounds: engine.InitRounds{Configs: []engine.Config{fundedConfig()}, Count: 1},
		})
		buy(t, eng, walletA, 3, 2)
		if _, err := eng.TerminateRound(env(walletA, 3)); err != nil {
			t.Fatal(err)
		}
		view, err := eng.GetRound(0, false, false, false)
		if err != nil {
			t.Fatal(err)
		}
		if view.Status != engine.RoundActive {
			t.Fatalf("premature terminate ended the round: %s", view.Status)
		}
	})

	t.Run("terminate settles an elapsed timed round", func(t *testing.T) {
		config := fundedConfig()
		config.Targets = engine.Targets{DurationMinutes: 60}
		eng, _ := newEngine(t, engine.InitMsg{
			Rounds: engine.InitRounds{Configs: []engine.Config{config}, Count: 1},
		})
		buy(t, eng, walletA, 3, 2)
		buy(t, eng, walletB, 7, 3)

		later := engine.Env{Sender: walletC, Time: baseTime.Add(time.Hour), Height: 4}
		if _, err := eng.TerminateRound(later); err != nil {
			t.Fatal(err)
		}
		view, err := eng.GetRound(0, false, false, false)
		if err != nil {
			t.Fatal(err)
		}
		if view.Status != engine.RoundComplete {
			t.Fatalf("expected complete round, got %s", view.Status)
		}
		if view.EndedBy != walletC {
			t.Fatalf("expected ended by %s, got %s", walletC, view.EndedBy)
		}
	})

	t.Run("an end with no wallets is absorbed", func(t *testing.T) {
		config := fundedConfig()
		config.Targets = engine.Targets{DurationMinutes: 60}
		eng, _ := newEngine(t, engine.InitMsg{
			Rounds: engine.InitRounds{Configs: []engine.Config{config}, Count: 1},
		})
		later := engine.Env{Sender: walletC, Time: baseTime.Add(time.Hour), Height: 4}
		if _, err := eng.TerminateRound(later); err != nil {
			t.Fatal(err)
		}
		view, err := eng.GetRound(0, false, false, false)
		if err != nil {
			t.Fatal(err)
		}
		if view.Status != engine.RoundActive {
			t.Fatalf("empty round should stay active, got %s", view.Status)
		}
	})

	t.Run("an end with one wallet is absorbed", func(t *testing.T) {
		eng, _ := newEngine(t, engine.InitMsg{
			Rounds: engine.InitRounds{Configs: []engine.Config{fundedConfig()}, Count: 1},
		})
		buy(t, eng, walletA, 10, 2)

		view, err := eng.GetRound(0, false, true, false)
		if err != nil {
			t.Fatal(err)
		}
		if view.Status != engine.RoundActive {
			t.Fatalf("single-wallet round should stay active, got %s", view.Status)
		}
		if len(view.Winners) != 0 {
			t.Fatalf("single-wallet round drew winners: %+v", view.Winners)
		}
	})
}

func TestTournamentGating(t *testing.T) {
	eng, _ := newEngine(t, engine.InitMsg{
		Tournament: true,
		Rounds:     engine.InitRounds{Configs: []engine.Config{fundedConfig(), fundedConfig()}, Count: 2},
	})
	buy(t, eng, walletA, 3, 2)
	buy(t, eng, walletB, 7, 3)

	// round 1 is open only to round 0 participants
	_, err := eng.BuyTickets(context.Background(), env(walletC, 4), 1, ticketPrice, "", true)
	if !errors.Is(err, engine.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for a newcomer, got %v", err)
	}
	buy(t, eng, walletA, 1, 5)
}

func TestAddIncentives(t *testing.T) {
	t.Run("rejects an empty donation", func(t *testing.T) {
		eng, _ := newEngine(t, engine.InitMsg{
			Rounds: engine.InitRounds{Configs: []engine.Config{fundedConfig()}, Count: 1},
		})
		err := eng.AddIncentives(context.Background(), env(walletA, 2), nil)
		if !errors.Is(err, engine.ErrMissingRewards) {
			t.Fatalf("expected ErrMissingRewards, got %v", err)
		}
	})

	t.Run("records the donation", func(t *testing.T) {
		eng, memory := newEngine(t, engine.InitMsg{
			Rounds: engine.InitRounds{Configs: []engine.Config{fundedConfig()}, Count: 1},
		})
		rewards := []engine.Reward{{
			Token:    &engine.TokenAmount{Token: engine.Token{Kind: engine.TokenNative}, Amount: 500},
			Position: 1,
		}}
		if err := eng.AddIncentives(context.Background(), env(walletA, 2), rewards); err != nil {
			t.Fatal(err)
		}
		incentives, err := memory.ListIncentives(0)
		if err != nil {
			t.Fatal(err)
		}
		if len(incentives) != 1 || incentives[0].Source != walletA {
			t.Fatalf("unexpected incentives: %+v", incentives)
		}
	})

	t.Run("rejects donations to a settled round", func(t *testing.T) {
		eng, _ := newEngine(t, engine.InitMsg{
			Rounds: engine.InitRounds{Configs: []engine.Config{fundedConfig()}, Count: 1},
		})
		buy(t, eng, walletA, 3, 2)
		buy(t, eng, walletB, 7, 3)

		rewards := []engine.Reward{{
			Token: &engine.TokenAmount{Token: engine.Token{Kind: engine.TokenNative}, Amount: 500},
		}}
		err := eng.AddIncentives(context.Background(), env(walletA, 4), rewards)
		if !errors.Is(err, engine.ErrNotActive) {
			t.Fatalf("expected ErrNotActive, got %v", err)
		}
	})
}

func TestCancelAndRefund(t *testing.T) {
	t.Run("only the owner may cancel", func(t *testing.T) {
		eng, _ := newEngine(t, engine.InitMsg{
			Rounds: engine.InitRounds{Configs: []engine.Config{fundedConfig()}, Count: 1},
		})
		if err := eng.CancelRound(env(walletA, 2)); !errors.Is(err, engine.ErrNotAuthorized) {
			t.Fatalf("expected ErrNotAuthorized, got %v", err)
		}
	})

	t.Run("refunds require a canceled round", func(t *testing.T) {
		eng, _ := newEngine(t, engine.InitMsg{
			Rounds: engine.InitRounds{Configs: []engine.Config{fundedConfig()}, Count: 1},
		})
		buy(t, eng, walletA, 3, 2)

		if _, err := eng.IssueRefund(env(walletA, 3), 0, walletA); !errors.Is(err, engine.ErrNotAuthorized) {
			t.Fatalf("expected ErrNotAuthorized for non-owner, got %v", err)
		}
		if _, err := eng.IssueRefund(env(owner, 3), 0, walletA); !errors.Is(err, engine.ErrForbidden) {
			t.Fatalf("expected ErrForbidden on an active round, got %v", err)
		}
	})

	t.Run("refund reverses the wallet's contribution", func(t *testing.T) {
		eng, _ := newEngine(t, engine.InitMsg{
			Rounds: engine.InitRounds{Configs: []engine.Config{fundedConfig()}, Count: 1},
		})
		buy(t, eng, walletA, 3, 2)
		buy(t, eng, walletB, 2, 3)

		if err := eng.CancelRound(env(owner, 4)); err != nil {
			t.Fatal(err)
		}
		_, err := eng.BuyTickets(context.Background(), env(walletC, 5), 1, ticketPrice, "", true)
		if !errors.Is(err, engine.ErrInactiveRound) {
			t.Fatalf("expected ErrInactiveRound after cancel, got %v", err)
		}

		payout, err := eng.IssueRefund(env(owner, 5), 0, walletA)
		if err != nil {
			t.Fatal(err)
		}
		if payout.Address != walletA || payout.Amount != 30 {
			t.Fatalf("unexpected refund payout: %+v", payout)
		}

		view, err := eng.GetRound(0, true, false, true)
		if err != nil {
			t.Fatal(err)
		}
		if view.Counts.Wallets != 1 || view.Counts.Tickets != 2 || view.Counts.Orders != 1 {
			t.Fatalf("refund did not reverse counts: %+v", view.Counts)
		}
		if len(view.Players) != 1 || view.Players[0].Wallet != walletB {
			t.Fatalf("refunded player still present: %+v", view.Players)
		}

		if _, err := eng.IssueRefund(env(owner, 6), 0, walletA); !errors.Is(err, engine.ErrPlayerNotFound) {
			t.Fatalf("expected ErrPlayerNotFound on a repeat refund, got %v", err)
		}
	})
}

func TestGetRound(t *testing.T) {
	eng, _ := newEngine(t, engine.InitMsg{
		Rounds: engine.InitRounds{Configs: []engine.Config{fundedConfig()}, Count: 2},
	})
	if _, err := eng.GetRound(5, false, false, false); !errors.Is(err, engine.ErrRoundNotFound) {
		t.Fatalf("expected ErrRoundNotFound, got %v", err)
	}

	view, err := eng.GetRound(0, false, false, false)
	if err != nil {
		t.Fatal(err)
	}
	if view.Config.TicketPrice != ticketPrice {
		t.Fatalf("view carries the wrong config: %+v", view.Config)
	}
}

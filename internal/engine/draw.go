package engine

// winnerCount derives the number of drawings the round will run under its
// current counts. For the percent method the configured maximum acts as a
// cap: a floor could demand more distinct winners than there are wallets
// and a without-replacement draw would never terminate.
func winnerCount(config *Config, round *Round) uint32 {
	switch config.Selection.Method {
	case SelectionFixed:
		return uint32(len(config.Selection.FixedSplit))
	default:
		n := round.Counts.Wallets * uint32(config.Selection.Pct) / 100
		if n < 1 {
			n = 1
		}
		if max := config.Selection.MaxWinners; max > 0 && n > max {
			n = max
		}
		return n
	}
}

// claimPercentages returns the percent of the winnings owed to each place.
// The fixed split is truncated when fewer wallets participated than places
// were configured. The percent method divides evenly with integer division;
// the residual is an accepted rounding loss.
func claimPercentages(config *Config, round *Round) []uint8 {
	switch config.Selection.Method {
	case SelectionFixed:
		n := uint32(len(config.Selection.FixedSplit))
		if round.Counts.Wallets < n {
			n = round.Counts.Wallets
		}
		return config.Selection.FixedSplit[:n]
	default:
		n := winnerCount(config, round)
		pct := uint8(100 / n)
		pcts := make([]uint8, n)
		for i := range pcts {
			pcts[i] = pct
		}
		return pcts
	}
}

// pickWinners runs the seeded draw and upserts a claim per accepted draw.
// The pool holds one wallet-position entry per ticket, so draw probability
// is proportional to ticket count. Every step is deterministic in the seed
// and the stored player set; reruns reproduce the claims bit for bit.
func pickWinners(s Store, config *Config, round *Round, winnings uint64, seed string) error {
	rng, err := newDrawRand(seed)
	if err != nil {
		return err
	}

	players, err := s.ListPlayers(round.Index)
	if err != nil {
		return err
	}

	wallets := make([]string, 0, len(players))
	pool := make([]uint32, 0, round.Counts.Tickets)
	for i, player := range players {
		wallets = append(wallets, player.Wallet)
		for range player.TicketCount {
			pool = append(pool, uint32(i))
		}
	}
	if len(pool) == 0 {
		return nil
	}

	pcts := claimPercentages(config, round)
	visited := make(map[string]struct{}, len(pcts))

	var winnerIndex uint32
	for winnerIndex < uint32(len(pcts)) {
		slot := rng.Uint64() % uint64(len(pool))
		wallet := wallets[pool[slot]]
		_, previouslySelected := visited[wallet]

		// accept every draw with replacement, otherwise re-draw on repeats
		if config.Selection.WithReplacement || !previouslySelected {
			amount := applyPct(winnings, pcts[winnerIndex])
			visited[wallet] = struct{}{}
			if err := upsertClaim(s, wallet, amount); err != nil {
				return err
			}
			err := s.SaveWinner(round.Index, &Winner{
				Wallet:   wallet,
				Amount:   amount,
				Position: uint16(winnerIndex + 1),
			})
			if err != nil {
				return err
			}
			winnerIndex++
		}
	}

	round.Counts.Drawings = winnerIndex
	return nil
}

// upsertClaim adds amount to the wallet's cumulative claimable balance,
// creating the record on first accrual.
func upsertClaim(s Store, wallet string, amount uint64) error {
	claim, err := s.GetClaim(wallet)
	if err != nil {
		return err
	}
	if claim == nil {
		claim = &Claim{Wallet: wallet}
	}
	claim.Amount += amount
	return s.SaveClaim(claim)
}

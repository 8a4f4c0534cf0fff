package store

import (
	"errors"

	"backend/internal/engine"
	"backend/internal/logger"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SqliteStore persists engine state in a sqlite database.
type SqliteStore struct {
	db *gorm.DB
}

func NewSqliteStore(path string) *SqliteStore {

	logger.Debug("initializing database...")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		panic(err)
	}

	err = db.AutoMigrate(
		&lotteryRecord{},
		&roundRecord{},
		&playerRecord{},
		&orderRecord{},
		&winnerRecord{},
		&claimRecord{},
		&incentiveRecord{},
		&seedRecord{},
	)

	if err != nil {
		panic(err)
	}

	return &SqliteStore{
		db: db,
	}
}

func (s *SqliteStore) Transact(fn func(engine.Store) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(&SqliteStore{db: tx})
	})
}

func (s *SqliteStore) GetLottery() (*engine.Lottery, error) {

	var record lotteryRecord
	err := s.db.Where("id = ?", singletonID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return decodeLottery(&record)
}

func (s *SqliteStore) SaveLottery(lottery *engine.Lottery) error {

	record, err := encodeLottery(lottery)
	if err != nil {
		return err
	}

	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"owner",
			"name",
			"tournament",
			"status",
			"configs",
			"round_index",
			"round_count",
		}),
	}).Create(record).Error
}

func (s *SqliteStore) GetRound(index uint32) (*engine.Round, error) {

	var record roundRecord
	err := s.db.Where("round_index = ?", index).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return decodeRound(&record), nil
}

func (s *SqliteStore) SaveRound(round *engine.Round) error {

	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "round_index"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status",
			"drawings",
			"wallets",
			"tickets",
			"orders",
			"started_at",
			"ended_by",
		}),
	}).Create(encodeRound(round)).Error
}

func (s *SqliteStore) GetPlayer(round uint32, wallet string) (*engine.Player, error) {

	var record playerRecord
	err := s.db.Where("round_index = ? and wallet = ?", round, wallet).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return decodePlayer(&record)
}

func (s *SqliteStore) HasPlayer(round uint32, wallet string) (bool, error) {

	var count int64
	err := s.db.Model(&playerRecord{}).
		Where("round_index = ? and wallet = ?", round, wallet).
		Count(&count).Error
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

func (s *SqliteStore) SavePlayer(round uint32, player *engine.Player) error {

	record, err := encodePlayer(round, player)
	if err != nil {
		return err
	}

	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "round_index"}, {Name: "wallet"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"ticket_count",
			"order_indices",
		}),
	}).Create(record).Error
}

func (s *SqliteStore) RemovePlayer(round uint32, wallet string) error {
	return s.db.
		Where("round_index = ? and wallet = ?", round, wallet).
		Delete(&playerRecord{}).Error
}

// ListPlayers returns the round's players in ascending wallet order. The
// draw depends on this ordering.
func (s *SqliteStore) ListPlayers(round uint32) ([]*engine.Player, error) {

	var records []playerRecord
	err := s.db.
		Where("round_index = ?", round).
		Order("wallet asc").
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	players := make([]*engine.Player, 0, len(records))
	for i := range records {
		player, err := decodePlayer(&records[i])
		if err != nil {
			return nil, err
		}
		players = append(players, player)
	}

	return players, nil
}

func (s *SqliteStore) SaveOrder(round, index uint32, order *engine.TicketOrder) error {

	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "round_index"}, {Name: "order_index"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"wallet",
			"ticket_count",
			"message",
			"is_public",
		}),
	}).Create(&orderRecord{
		RoundIndex:  round,
		OrderIndex:  index,
		Wallet:      order.Wallet,
		TicketCount: order.TicketCount,
		Message:     order.Message,
		IsPublic:    order.IsPublic,
	}).Error
}

func (s *SqliteStore) RemoveOrder(round, index uint32) error {
	return s.db.
		Where("round_index = ? and order_index = ?", round, index).
		Delete(&orderRecord{}).Error
}

func (s *SqliteStore) ListOrders(round uint32) ([]*engine.TicketOrder, error) {

	var records []orderRecord
	err := s.db.
		Where("round_index = ?", round).
		Order("order_index asc").
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	orders := make([]*engine.TicketOrder, 0, len(records))
	for i := range records {
		orders = append(orders, &engine.TicketOrder{
			Wallet:      records[i].Wallet,
			TicketCount: records[i].TicketCount,
			Message:     records[i].Message,
			IsPublic:    records[i].IsPublic,
		})
	}

	return orders, nil
}

func (s *SqliteStore) GetClaim(wallet string) (*engine.Claim, error) {

	var record claimRecord
	err := s.db.Where("wallet = ?", wallet).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &engine.Claim{Wallet: record.Wallet, Amount: record.Amount}, nil
}

func (s *SqliteStore) SaveClaim(claim *engine.Claim) error {

	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "wallet"}},
		DoUpdates: clause.AssignmentColumns([]string{"amount"}),
	}).Create(&claimRecord{
		Wallet: claim.Wallet,
		Amount: claim.Amount,
	}).Error
}

func (s *SqliteStore) SaveWinner(round uint32, winner *engine.Winner) error {

	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "round_index"}, {Name: "position"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"wallet",
			"amount",
		}),
	}).Create(&winnerRecord{
		RoundIndex: round,
		Position:   winner.Position,
		Wallet:     winner.Wallet,
		Amount:     winner.Amount,
	}).Error
}

func (s *SqliteStore) ListWinners(round uint32) ([]*engine.Winner, error) {

	var records []winnerRecord
	err := s.db.
		Where("round_index = ?", round).
		Order("position asc").
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	winners := make([]*engine.Winner, 0, len(records))
	for i := range records {
		winners = append(winners, &engine.Winner{
			Wallet:   records[i].Wallet,
			Amount:   records[i].Amount,
			Position: records[i].Position,
		})
	}

	return winners, nil
}

func (s *SqliteStore) AppendIncentive(round uint32, incentive *engine.Incentive) error {

	record, err := encodeIncentive(round, incentive)
	if err != nil {
		return err
	}

	return s.db.Create(record).Error
}

func (s *SqliteStore) ListIncentives(round uint32) ([]*engine.Incentive, error) {

	var records []incentiveRecord
	err := s.db.
		Where("round_index = ?", round).
		Order("id asc").
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	incentives := make([]*engine.Incentive, 0, len(records))
	for i := range records {
		incentive, err := decodeIncentive(&records[i])
		if err != nil {
			return nil, err
		}
		incentives = append(incentives, incentive)
	}

	return incentives, nil
}

func (s *SqliteStore) GetSeed() (string, error) {

	var record seedRecord
	err := s.db.Where("id = ?", singletonID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	return record.Value, nil
}

func (s *SqliteStore) SaveSeed(seed string) error {

	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&seedRecord{
		ID:    singletonID,
		Value: seed,
	}).Error
}

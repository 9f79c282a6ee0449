package service

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/models"
	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/repository"
	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/pkg/utils"
)

// ErrPositionNotFound возвращается, когда позиции по рынку нет.
var ErrPositionNotFound = errors.New("position not found")

// PositionView - позиция с нереализованной прибылью по текущей цене.
//
// UnrealizedPnl считается только при известной цене (движок успел
// собрать хотя бы один тик); иначе поля нулевые, а HasPrice=false.
type PositionView struct {
	models.Position
	CurrentPrice     decimal.Decimal `json:"current_price"`
	UnrealizedPnl    decimal.Decimal `json:"unrealized_pnl"`
	UnrealizedPnlPct decimal.Decimal `json:"unrealized_pnl_pct"`
	HasPrice         bool            `json:"has_price"`
}

// PositionService предоставляет чтение позиций с рыночной оценкой.
type PositionService struct {
	positions PositionStore
	quoter    MarketQuoter
}

// NewPositionService создает новый экземпляр PositionService.
func NewPositionService(positions PositionStore, quoter MarketQuoter) *PositionService {
	return &PositionService{
		positions: positions,
		quoter:    quoter,
	}
}

// GetPositions возвращает все позиции с рыночной оценкой.
func (s *PositionService) GetPositions() ([]*PositionView, error) {
	positions, err := s.positions.GetAll()
	if err != nil {
		return nil, err
	}

	views := make([]*PositionView, 0, len(positions))
	for _, p := range positions {
		views = append(views, s.enrich(p))
	}
	return views, nil
}

// GetPosition возвращает позицию рынка с рыночной оценкой.
func (s *PositionService) GetPosition(market string) (*PositionView, error) {
	market = strings.ToUpper(strings.TrimSpace(market))
	if err := utils.ValidateMarket(market); err != nil {
		return nil, ErrPositionNotFound
	}

	position, err := s.positions.GetByMarket(market)
	if err != nil {
		if errors.Is(err, repository.ErrPositionNotFound) {
			return nil, ErrPositionNotFound
		}
		return nil, err
	}
	return s.enrich(position), nil
}

func (s *PositionService) enrich(p *models.Position) *PositionView {
	view := &PositionView{Position: *p}

	price, ok := s.quoter.LastPrice(p.Market)
	if !ok {
		return view
	}

	view.HasPrice = true
	view.CurrentPrice = price
	if p.Quantity.IsPositive() {
		view.UnrealizedPnl = price.Sub(p.AvgBuyPrice).Mul(p.Quantity)
		view.UnrealizedPnlPct = utils.ChangePct(p.AvgBuyPrice, price)
	}
	return view
}

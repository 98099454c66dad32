package env

import "math"

// TradeType marks the direction of a recorded trade.
type TradeType string

const (
	TradeBuy  TradeType = "buy"
	TradeSell TradeType = "sell"
)

// Trade is one executed, non-zero fill.
type Trade struct {
	Step   int       `json:"step"`
	Shares int64     `json:"shares"`
	Total  float64   `json:"total"`
	Type   TradeType `json:"type"`
}

// Portfolio is the agent's account state. The environment owns it; callers
// only ever see copies.
type Portfolio struct {
	Balance         float64 `json:"balance"`
	NetWorth        float64 `json:"net_worth"`
	MaxNetWorth     float64 `json:"max_net_worth"`
	SharesHeld      int64   `json:"shares_held"`
	CostBasis       float64 `json:"cost_basis"`
	TotalSharesSold int64   `json:"total_shares_sold"`
	TotalSalesValue float64 `json:"total_sales_value"`
	CurrentStep     int     `json:"current_step"`
	Trades          []Trade `json:"trades"`
}

func newPortfolio(initial float64) Portfolio {
	return Portfolio{
		Balance:     initial,
		NetWorth:    initial,
		MaxNetWorth: initial,
		Trades:      []Trade{},
	}
}

func (p Portfolio) clone() Portfolio {
	out := p
	out.Trades = append([]Trade{}, p.Trades...)
	return out
}

// Profit is net worth relative to the starting balance.
func (p Portfolio) Profit(initial float64) float64 {
	return p.NetWorth - initial
}

// buy spends amount of the cash balance on whole shares at price.
func (p *Portfolio) buy(price, amount float64) int64 {
	if price <= 0 {
		return 0
	}
	totalPossible := floorShares(p.Balance / price)
	bought := floorShares(float64(totalPossible) * amount)
	prevCost := p.CostBasis * float64(p.SharesHeld)
	additionalCost := float64(bought) * price

	p.Balance -= additionalCost
	if held := p.SharesHeld + bought; held > 0 {
		p.CostBasis = (prevCost + additionalCost) / float64(held)
	}
	p.SharesHeld += bought
	if bought > 0 {
		p.Trades = append(p.Trades, Trade{Step: p.CurrentStep, Shares: bought, Total: additionalCost, Type: TradeBuy})
	}
	return bought
}

// sell liquidates amount of the held shares at price.
func (p *Portfolio) sell(price, amount float64) int64 {
	sold := floorShares(float64(p.SharesHeld) * amount)
	proceeds := float64(sold) * price

	p.Balance += proceeds
	p.SharesHeld -= sold
	p.TotalSharesSold += sold
	p.TotalSalesValue += proceeds
	if sold > 0 {
		p.Trades = append(p.Trades, Trade{Step: p.CurrentStep, Shares: sold, Total: proceeds, Type: TradeSell})
	}
	return sold
}

// mark revalues the account at price after every step.
func (p *Portfolio) mark(price float64) {
	p.NetWorth = p.Balance + float64(p.SharesHeld)*price
	if p.NetWorth > p.MaxNetWorth {
		p.MaxNetWorth = p.NetWorth
	}
	if p.SharesHeld == 0 {
		p.CostBasis = 0
	}
}

func floorShares(v float64) int64 {
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	return int64(v)
}

package env

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// RenderMode selects where Render sends the current state.
type RenderMode string

const (
	RenderLive RenderMode = "live"
	RenderFile RenderMode = "file"
	RenderNone RenderMode = "none"
)

// DefaultRenderFile is the file mode destination when none is given.
const DefaultRenderFile = "render.txt"

func ParseRenderMode(s string) (RenderMode, error) {
	switch mode := RenderMode(strings.ToLower(strings.TrimSpace(s))); mode {
	case RenderLive, RenderFile, RenderNone:
		return mode, nil
	case "":
		return RenderNone, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedRenderMode, s)
	}
}

type RenderOptions struct {
	Filename string
}

// Visualization draws the episode as it unfolds. The environment owns the
// instance it opened and closes it exactly once.
type Visualization interface {
	Render(step int, netWorth float64, trades []Trade, windowSize int) error
	Close() error
}

// VisualizationFactory opens a Visualization over the environment's data.
type VisualizationFactory func(src DataSource) (Visualization, error)

// Render emits the current state in mode. The live visualization is opened
// on first use and kept until Close.
func (e *Environment) Render(mode RenderMode, opts RenderOptions) error {
	switch mode {
	case RenderNone:
		return nil
	case RenderFile, RenderLive:
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedRenderMode, mode)
	}
	if e.state == StateUninitialized {
		return fmt.Errorf("%w: render before reset", ErrInvalidState)
	}
	if mode == RenderFile {
		name := opts.Filename
		if strings.TrimSpace(name) == "" {
			name = DefaultRenderFile
		}
		return appendSnapshot(name, FormatSnapshot(e.portfolio, e.params.InitialAccountBalance))
	}
	vis, err := e.openVisualization()
	if err != nil {
		return err
	}
	trades := append([]Trade(nil), e.portfolio.Trades...)
	return vis.Render(e.portfolio.CurrentStep, e.portfolio.NetWorth, trades, e.params.LookbackWindowSize)
}

func (e *Environment) openVisualization() (Visualization, error) {
	if e.vis != nil {
		return e.vis, nil
	}
	if e.visFactory == nil {
		return nil, errors.New("live render: no visualization configured")
	}
	vis, err := e.visFactory(e.src)
	if err != nil {
		return nil, fmt.Errorf("open visualization: %w", err)
	}
	e.vis = vis
	return vis, nil
}

// Close tears down the visualization, if one is open. Calling it again is a no-op.
func (e *Environment) Close() error {
	vis := e.vis
	e.vis = nil
	if vis == nil {
		return nil
	}
	return vis.Close()
}

// FormatSnapshot renders the human-readable block written in file mode.
func FormatSnapshot(p Portfolio, initialBalance float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Step: %d\n", p.CurrentStep)
	fmt.Fprintf(&b, "Balance: %s\n", num(p.Balance))
	fmt.Fprintf(&b, "Shares held: %d (Total sold: %d)\n", p.SharesHeld, p.TotalSharesSold)
	fmt.Fprintf(&b, "Avg cost for held shares: %s (Total sales value: %s)\n", num(p.CostBasis), num(p.TotalSalesValue))
	fmt.Fprintf(&b, "Net worth: %s (Max net worth: %s)\n", num(p.NetWorth), num(p.MaxNetWorth))
	fmt.Fprintf(&b, "Profit: %s\n\n", num(p.Profit(initialBalance)))
	return b.String()
}

func num(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return decimal.NewFromFloat(v).String()
}

func appendSnapshot(path, block string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(block); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

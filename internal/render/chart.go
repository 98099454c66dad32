package render

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"stockenv/internal/env"
	"stockenv/internal/logger"
	"stockenv/internal/market"

	"github.com/chromedp/chromedp"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
)

const (
	colorBackground    = "#060c1b"
	colorTextPrimary   = "#eceff4"
	colorTextSecondary = "#9ca3af"
	colorBull          = "#34d399"
	colorBear          = "#f87171"
	colorNetWorth      = "#3b82f6"
	colorVolume        = "#a78bfa"

	chartWidthPx   = 1400
	klineHeightPx  = 520
	volumeHeightPx = 200
	worthHeightPx  = 260
)

// ChartOptions configures live-mode chart output.
type ChartOptions struct {
	// Path is the HTML file rewritten on every render.
	Path  string
	Title string
	// SnapshotPath, when set, receives a PNG of the last frame on Close.
	SnapshotPath    string
	SnapshotTimeout time.Duration
}

// Chart draws the lookback window as a candlestick chart with trade markers,
// a volume bar chart, and the net worth curve. It satisfies env.Visualization.
type Chart struct {
	src  env.DataSource
	opts ChartOptions

	netWorths map[int]float64
	lastStep  int
	lastHTML  []byte
	closed    bool
}

// NewFactory returns a factory the environment calls on its first live render.
func NewFactory(o ChartOptions) env.VisualizationFactory {
	return func(src env.DataSource) (env.Visualization, error) {
		return NewChart(src, o)
	}
}

func NewChart(src env.DataSource, o ChartOptions) (*Chart, error) {
	if src == nil {
		return nil, fmt.Errorf("chart: data source is nil")
	}
	o.Path = strings.TrimSpace(o.Path)
	if o.Path == "" {
		return nil, fmt.Errorf("chart: output path is required")
	}
	if dir := filepath.Dir(o.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	if o.Title == "" {
		o.Title = "Trading environment"
	}
	if o.SnapshotTimeout <= 0 {
		o.SnapshotTimeout = 20 * time.Second
	}
	return &Chart{src: src, opts: o, netWorths: make(map[int]float64), lastStep: -1}, nil
}

// Window returns the row range [start, end) drawn for step.
func Window(step, windowSize, rows int) (int, int) {
	start := step - windowSize
	if start < 0 {
		start = 0
	}
	end := step + 1
	if end > rows {
		end = rows
	}
	if start > end {
		start = end
	}
	return start, end
}

func (c *Chart) Render(step int, netWorth float64, trades []env.Trade, windowSize int) error {
	if c.closed {
		return fmt.Errorf("chart: render after close")
	}
	// a step going backwards means the env was reset
	if step < c.lastStep {
		clear(c.netWorths)
	}
	c.lastStep = step
	c.netWorths[step] = netWorth
	start, end := Window(step, windowSize, c.src.Len())
	html, err := c.buildHTML(step, start, end, trades)
	if err != nil {
		return err
	}
	c.lastHTML = html
	return writeFileAtomic(c.opts.Path, html)
}

// Close captures the PNG snapshot if configured. Further renders fail.
func (c *Chart) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if c.opts.SnapshotPath == "" || len(c.lastHTML) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.SnapshotTimeout)
	defer cancel()
	png, err := renderHTMLToPNG(ctx, c.lastHTML, chartWidthPx, klineHeightPx+volumeHeightPx+worthHeightPx+80)
	if err != nil {
		return fmt.Errorf("chart snapshot: %w", err)
	}
	logger.Infof("[render] 已保存图表快照 %s", c.opts.SnapshotPath)
	return writeFileAtomic(c.opts.SnapshotPath, png)
}

func (c *Chart) buildHTML(step, start, end int, trades []env.Trade) ([]byte, error) {
	if end <= start {
		return nil, fmt.Errorf("chart: empty window at step %d", step)
	}
	xAxis := make([]string, 0, end-start)
	klineData := make([]opts.KlineData, 0, end-start)
	volumes := make([]opts.BarData, 0, end-start)
	worth := make([]opts.LineData, 0, end-start)
	buys := make([]opts.ScatterData, 0, end-start)
	sells := make([]opts.ScatterData, 0, end-start)

	byStep := make(map[int][]env.Trade)
	for _, tr := range trades {
		if tr.Step >= start && tr.Step < end {
			byStep[tr.Step] = append(byStep[tr.Step], tr)
		}
	}
	for row := start; row < end; row++ {
		o, h, l, cl, v, err := c.ohlcv(row)
		if err != nil {
			return nil, err
		}
		xAxis = append(xAxis, c.label(row))
		klineData = append(klineData, opts.KlineData{Value: [4]float64{o, cl, l, h}})
		volumes = append(volumes, opts.BarData{Value: v})
		if nw, ok := c.netWorths[row]; ok {
			worth = append(worth, opts.LineData{Value: nw})
		} else {
			worth = append(worth, opts.LineData{Value: nil})
		}
		buy, sell := tradeMarkers(byStep[row], h, l)
		buys = append(buys, buy)
		sells = append(sells, sell)
	}

	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts(klineHeightPx)),
		charts.WithTitleOpts(opts.Title{
			Title:         c.opts.Title,
			Subtitle:      fmt.Sprintf("step %d | rows %d-%d", step, start, end-1),
			TitleStyle:    &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorTextSecondary},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", AxisLabel: &opts.AxisLabel{Color: colorTextSecondary}}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true), AxisLabel: &opts.AxisLabel{Color: colorTextSecondary}}),
	)
	kline.SetSeriesOptions(charts.WithItemStyleOpts(opts.ItemStyle{
		Color:        colorBull,
		Color0:       colorBear,
		BorderColor:  colorBull,
		BorderColor0: colorBear,
	}))
	kline.SetXAxis(xAxis).AddSeries("Price", klineData)

	markers := charts.NewScatter()
	markers.SetXAxis(xAxis)
	markers.AddSeries("Buy", buys, charts.WithItemStyleOpts(opts.ItemStyle{Color: colorBull}))
	markers.AddSeries("Sell", sells, charts.WithItemStyleOpts(opts.ItemStyle{Color: colorBear}))
	kline.Overlap(markers)

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts(volumeHeightPx)),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", AxisLabel: &opts.AxisLabel{Color: colorTextSecondary}}),
	)
	bar.SetXAxis(xAxis).AddSeries("Volume", volumes, charts.WithItemStyleOpts(opts.ItemStyle{Color: colorVolume}))

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts(worthHeightPx)),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true), AxisLabel: &opts.AxisLabel{Color: colorTextSecondary}}),
	)
	line.SetXAxis(xAxis).AddSeries("Net worth", worth,
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorNetWorth, Width: 2}),
	)

	page := components.NewPage()
	page.PageTitle = c.opts.Title
	page.AddCharts(kline, bar, line)
	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func initOpts(height int) opts.Initialization {
	return opts.Initialization{
		Theme:           types.ThemeWesteros,
		Width:           fmt.Sprintf("%dpx", chartWidthPx),
		Height:          fmt.Sprintf("%dpx", height),
		BackgroundColor: colorBackground,
	}
}

// tradeMarkers places buys just above the high and sells just below the low.
func tradeMarkers(trades []env.Trade, high, low float64) (opts.ScatterData, opts.ScatterData) {
	buy := opts.ScatterData{Value: nil, Symbol: "triangle", SymbolSize: 12}
	sell := opts.ScatterData{Value: nil, Symbol: "diamond", SymbolSize: 12}
	for _, tr := range trades {
		switch tr.Type {
		case env.TradeBuy:
			buy.Value = high * 1.01
			buy.Name = fmt.Sprintf("buy %d", tr.Shares)
		case env.TradeSell:
			sell.Value = low * 0.99
			sell.Name = fmt.Sprintf("sell %d", tr.Shares)
		}
	}
	return buy, sell
}

func (c *Chart) ohlcv(row int) (o, h, l, cl, v float64, err error) {
	if o, err = c.src.Value(row, market.ColOpen); err != nil {
		return
	}
	if h, err = c.src.Value(row, market.ColHigh); err != nil {
		return
	}
	if l, err = c.src.Value(row, market.ColLow); err != nil {
		return
	}
	if cl, err = c.src.Value(row, market.ColClose); err != nil {
		return
	}
	v, err = c.src.Value(row, market.ColVolumeFrom)
	return
}

func (c *Chart) label(row int) string {
	ts, err := c.src.Value(row, market.ColCloseTime)
	if err != nil || ts <= 0 {
		return strconv.Itoa(row)
	}
	return time.UnixMilli(int64(ts)).UTC().Format("01-02 15:04")
}

func renderHTMLToPNG(ctx context.Context, html []byte, width, height int) ([]byte, error) {
	parent, cancel := chromedp.NewContext(ctx)
	defer cancel()

	dataURI := "data:text/html;base64," + base64.StdEncoding.EncodeToString(html)
	var screenshot []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(width), int64(height)),
		chromedp.Navigate(dataURI),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(1500 * time.Millisecond),
		chromedp.FullScreenshot(&screenshot, 0),
	}
	if err := chromedp.Run(parent, tasks...); err != nil {
		return nil, err
	}
	return screenshot, nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

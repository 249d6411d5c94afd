package feed

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/Awuah-B/report-bot/internal/adapter"
	"github.com/Awuah-B/report-bot/internal/config"
	"github.com/Awuah-B/report-bot/internal/domain"
	"github.com/Awuah-B/report-bot/internal/logger"
)

// Column headers of the export, matched case-insensitively. The export's
// column order is not contractual so indices are resolved per header row.
const (
	colOrderDate   = "ORDER DATE"
	colOrderNumber = "ORDER NUMBER"
	colProducts    = "PRODUCTS"
	colVolume      = "VOLUME"
	colExRefPrice  = "EX REF PRICE"
	colBRVNumber   = "BRV NUMBER"
	colBDC         = "BDC"
	colDepot       = "DEPOT"
)

// Client fetches the daily order report export over HTTP and parses its
// tabular payload. One export document carries every stage as a titled
// section; Fetch returns the section for the requested stage.
type Client struct {
	httpClient adapter.HTTPClient
	clock      adapter.Clock
	cfg        config.FeedConfig
}

// NewClient creates a report export client
func NewClient(httpClient adapter.HTTPClient, clock adapter.Clock, cfg config.FeedConfig) *Client {
	return &Client{
		httpClient: httpClient,
		clock:      clock,
		cfg:        cfg,
	}
}

// Fetch downloads today's export and returns the rows of the stage's section.
func (c *Client) Fetch(ctx context.Context, stage domain.Stage) ([]RawRow, error) {
	body, err := c.httpClient.GetRaw(ctx, c.cfg.BaseURL, c.exportParams(), map[string]string{
		"Accept": "text/csv, */*",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch daily order report: %w", err)
	}

	sections, err := c.parseReport(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse daily order report: %w", err)
	}

	return sections[stage], nil
}

// exportParams builds the query the export endpoint requires. The report
// window always spans yesterday through today.
func (c *Client) exportParams() url.Values {
	now := c.clock.Now()
	today := now.Format("02-01-2006")
	yesterday := now.AddDate(0, 0, -1).Format("02-01-2006")

	params := url.Values{}
	params.Set("lngCompanyId", c.cfg.CompanyID)
	params.Set("szITSfromPersol", c.cfg.ITSFromPersol)
	params.Set("strGroupBy", c.cfg.GroupBy)
	params.Set("strGroupBy1", c.cfg.GroupBy1)
	params.Set("strQuery1", c.cfg.Query1)
	params.Set("strQuery2", yesterday)
	params.Set("strQuery3", today)
	params.Set("strQuery4", c.cfg.Query4)
	params.Set("strPicHeight", "0")
	params.Set("strPicWeight", "0")
	params.Set("intPeriodID", c.cfg.PeriodID)
	params.Set("iUserId", c.cfg.UserID)
	params.Set("iAppId", c.cfg.AppID)
	return params
}

// parseReport splits the export into per-stage sections. The document is one
// CSV stream: a row whose only populated cell is a stage title opens that
// stage's section, the next row naming ORDER NUMBER is the section's column
// header, and data rows follow until the next section title. Preamble rows,
// TOTAL summary rows, and rows outside the configured depot are dropped.
func (c *Client) parseReport(body []byte) (map[domain.Stage][]RawRow, error) {
	reader := csv.NewReader(bytes.NewReader(body))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("malformed export payload: %w", err)
	}

	titles := sectionTitles()
	sections := make(map[domain.Stage][]RawRow)

	var (
		current domain.Stage
		inStage bool
		columns map[string]int
		skipped int
	)

	for _, row := range rows {
		if isBlank(row) {
			continue
		}

		if stage, ok := titles[soleCell(row)]; ok {
			current = stage
			inStage = true
			columns = nil
			continue
		}
		if !inStage {
			// Preamble before the first section title
			continue
		}

		if columns == nil {
			if idx := headerIndex(row); idx != nil {
				columns = idx
			}
			// Rows between a section title and its column header carry
			// report chrome, never data
			continue
		}

		first := firstCell(row)
		if strings.HasPrefix(strings.ToUpper(first), "TOTAL") {
			continue
		}

		raw, ok := c.buildRow(row, columns)
		if !ok {
			skipped++
			continue
		}
		sections[current] = append(sections[current], raw)
	}

	if skipped > 0 {
		logger.Debug("dropped rows outside depot filter",
			zap.Int("count", skipped),
			zap.String("depot", c.cfg.DepotFilter))
	}

	return sections, nil
}

// buildRow maps a data row through the section's column index. The second
// return is false when the row falls outside the configured depot.
func (c *Client) buildRow(row []string, columns map[string]int) (RawRow, bool) {
	if c.cfg.DepotFilter != "" {
		depot := cell(row, columns, colDepot)
		if !strings.EqualFold(strings.TrimSpace(depot), c.cfg.DepotFilter) {
			return RawRow{}, false
		}
	}

	return RawRow{
		OrderDate:   cell(row, columns, colOrderDate),
		OrderNumber: cell(row, columns, colOrderNumber),
		Products:    cell(row, columns, colProducts),
		Volume:      cell(row, columns, colVolume),
		ExRefPrice:  cell(row, columns, colExRefPrice),
		BRVNumber:   cell(row, columns, colBRVNumber),
		BDC:         cell(row, columns, colBDC),
	}, true
}

// sectionTitles maps the uppercased section title of each stage to the stage.
func sectionTitles() map[string]domain.Stage {
	titles := make(map[string]domain.Stage, len(domain.Stages()))
	for _, stage := range domain.Stages() {
		titles[strings.ToUpper(stage.Display())] = stage
	}
	return titles
}

// headerIndex resolves column positions from a header row, or nil when the
// row is not a column header.
func headerIndex(row []string) map[string]int {
	idx := make(map[string]int, len(row))
	for i, cell := range row {
		name := strings.ToUpper(strings.Join(strings.Fields(cell), " "))
		if name == "" {
			continue
		}
		if _, taken := idx[name]; !taken {
			idx[name] = i
		}
	}
	if _, ok := idx[colOrderNumber]; !ok {
		return nil
	}
	return idx
}

func cell(row []string, columns map[string]int, name string) string {
	i, ok := columns[name]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

// soleCell returns the row's single populated cell uppercased and
// whitespace-collapsed, or "" when the row has zero or several populated
// cells.
func soleCell(row []string) string {
	var found string
	for _, c := range row {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if found != "" {
			return ""
		}
		found = c
	}
	return strings.ToUpper(strings.Join(strings.Fields(found), " "))
}

func firstCell(row []string) string {
	for _, c := range row {
		if s := strings.TrimSpace(c); s != "" {
			return s
		}
	}
	return ""
}

func isBlank(row []string) bool {
	return firstCell(row) == ""
}

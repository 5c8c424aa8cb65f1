package sheets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/guiasync/tracking-reconciler/common/config"
	"github.com/guiasync/tracking-reconciler/common/retry"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// Record is one sheet row keyed by header name.
type Record map[string]string

// Client wraps the Google Sheets API for the reconciliation spreadsheet.
type Client struct {
	svc           *sheets.Service
	spreadsheetID string
	sheetName     string
	policy        retry.Policy
}

// NewClient builds a client authenticated with a service-account file.
func NewClient(ctx context.Context, cfg config.SheetsConfig) (*Client, error) {
	if cfg.SpreadsheetID == "" {
		return nil, errors.New("spreadsheet ID is required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	opts = append(opts, option.WithScopes(sheets.SpreadsheetsScope))

	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		sheetName:     cfg.SheetName,
		policy: retry.Policy{
			MaxAttempts: 5,
			BaseDelay:   time.Second,
			Multiplier:  2,
			MaxDelay:    30 * time.Second,
		},
	}, nil
}

// isThrottled reports whether an API error is a rate-limit burst worth
// backing off on.
func isThrottled(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == 429 {
		return true
	}
	return strings.Contains(strings.ToLower(fmt.Sprint(err)), "quota")
}

func (c *Client) withRetry(ctx context.Context, op func(ctx context.Context) error) error {
	return c.policy.DoIf(ctx, op, isThrottled)
}

// ReadAllValues returns every cell of the main sheet as strings.
func (c *Client) ReadAllValues(ctx context.Context) ([][]string, error) {
	var resp *sheets.ValueRange
	err := c.withRetry(ctx, func(ctx context.Context) error {
		var err error
		resp, err = c.svc.Spreadsheets.Values.Get(c.spreadsheetID, c.sheetName).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("reading sheet values: %w", err)
	}

	rows := make([][]string, 0, len(resp.Values))
	for _, row := range resp.Values {
		cells := make([]string, 0, len(row))
		for _, cell := range row {
			cells = append(cells, fmt.Sprint(cell))
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

// ReadHeaders returns the first row of the main sheet.
func (c *Client) ReadHeaders(ctx context.Context) ([]string, error) {
	var resp *sheets.ValueRange
	err := c.withRetry(ctx, func(ctx context.Context) error {
		var err error
		resp, err = c.svc.Spreadsheets.Values.
			Get(c.spreadsheetID, fmt.Sprintf("%s!1:1", c.sheetName)).
			Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("reading headers: %w", err)
	}
	if len(resp.Values) == 0 {
		return nil, nil
	}

	headers := make([]string, 0, len(resp.Values[0]))
	for _, cell := range resp.Values[0] {
		headers = append(headers, strings.TrimSpace(fmt.Sprint(cell)))
	}
	return headers, nil
}

// ReadRecords reads every row as a header-keyed record without stopping at
// the first blank row. Short rows are padded so every record has all keys.
func (c *Client) ReadRecords(ctx context.Context) ([]Record, []string, error) {
	values, err := c.ReadAllValues(ctx)
	if err != nil {
		return nil, nil, err
	}
	if len(values) == 0 {
		return nil, nil, nil
	}

	headers := make([]string, len(values[0]))
	for i, h := range values[0] {
		headers[i] = strings.TrimSpace(h)
	}

	records := make([]Record, 0, len(values)-1)
	for _, row := range values[1:] {
		rec := Record{}
		for i, h := range headers {
			if i < len(row) {
				rec[h] = row[i]
			} else {
				rec[h] = ""
			}
		}
		records = append(records, rec)
	}
	return records, headers, nil
}

// EnsureHeaders appends any missing column names to the header row.
func (c *Client) EnsureHeaders(ctx context.Context, required []string) error {
	existing, err := c.ReadHeaders(ctx)
	if err != nil {
		return err
	}

	have := map[string]bool{}
	for _, h := range existing {
		have[h] = true
	}

	var toAdd []interface{}
	for _, h := range required {
		if !have[h] {
			toAdd = append(toAdd, h)
		}
	}
	if len(toAdd) == 0 {
		return nil
	}

	startCol := len(existing) + 1
	a1 := fmt.Sprintf("%s!%s1:%s1",
		c.sheetName, ColumnLetter(startCol), ColumnLetter(startCol+len(toAdd)-1))
	vr := &sheets.ValueRange{Values: [][]interface{}{toAdd}}

	err = c.withRetry(ctx, func(ctx context.Context) error {
		_, err := c.svc.Spreadsheets.Values.
			Update(c.spreadsheetID, a1, vr).
			ValueInputOption("RAW").
			Context(ctx).Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("adding headers: %w", err)
	}
	log.Info().Interface("headers", toAdd).Msg("Added missing headers")
	return nil
}

// CellUpdate is one sparse cell write. Row and Col are 1-based.
type CellUpdate struct {
	Row   int
	Col   int
	Value string
}

// maxRangesPerCall bounds the disjoint ranges sent in one batchUpdate call.
const maxRangesPerCall = 100

// FlushCells writes only the exact cells given, grouped by column into
// consecutive row blocks to keep the API call count low. Other columns are
// untouched.
func (c *Client) FlushCells(ctx context.Context, updates []CellUpdate) error {
	ranges := buildValueRanges(c.sheetName, updates)
	if len(ranges) == 0 {
		return nil
	}

	for i := 0; i < len(ranges); i += maxRangesPerCall {
		end := min(i+maxRangesPerCall, len(ranges))
		req := &sheets.BatchUpdateValuesRequest{
			ValueInputOption: "RAW",
			Data:             ranges[i:end],
		}
		err := c.withRetry(ctx, func(ctx context.Context) error {
			_, err := c.svc.Spreadsheets.Values.
				BatchUpdate(c.spreadsheetID, req).
				Context(ctx).Do()
			return err
		})
		if err != nil {
			return fmt.Errorf("batch updating cells: %w", err)
		}
	}

	log.Info().Int("cells", len(updates)).Int("ranges", len(ranges)).Msg("Flushed cell updates")
	return nil
}

// AppendRows appends rows to the bottom of the main sheet.
func (c *Client) AppendRows(ctx context.Context, rows [][]interface{}) error {
	if len(rows) == 0 {
		return nil
	}

	vr := &sheets.ValueRange{Values: rows}
	err := c.withRetry(ctx, func(ctx context.Context) error {
		_, err := c.svc.Spreadsheets.Values.
			Append(c.spreadsheetID, fmt.Sprintf("%s!A1", c.sheetName), vr).
			ValueInputOption("RAW").
			InsertDataOption("INSERT_ROWS").
			Context(ctx).Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("appending rows: %w", err)
	}
	return nil
}

// reportHeaders is the fixed header row of the dated report tab.
var reportHeaders = []interface{}{"ID TRACKING", "STATUS DROPI", "STATUS TRACKING", "FECHA VERIFICACIÓN"}

// CreateOrAppendDailyReport appends rows to today's report tab, creating the
// tab with headers on first use. It returns the tab name even when rows is
// empty.
func (c *Client) CreateOrAppendDailyReport(ctx context.Context, rows [][]interface{}, prefix string) (string, error) {
	tabName := prefix + time.Now().Format("2006-01-02")
	if len(rows) == 0 {
		return tabName, nil
	}

	exists, err := c.sheetExists(ctx, tabName)
	if err != nil {
		return tabName, err
	}
	if !exists {
		if err := c.addSheet(ctx, tabName); err != nil {
			return tabName, err
		}
		rows = append([][]interface{}{reportHeaders}, rows...)
	}

	vr := &sheets.ValueRange{Values: rows}
	err = c.withRetry(ctx, func(ctx context.Context) error {
		_, err := c.svc.Spreadsheets.Values.
			Append(c.spreadsheetID, fmt.Sprintf("%s!A1", tabName), vr).
			ValueInputOption("RAW").
			InsertDataOption("INSERT_ROWS").
			Context(ctx).Do()
		return err
	})
	if err != nil {
		return tabName, fmt.Errorf("appending to daily report: %w", err)
	}

	log.Info().Str("tab", tabName).Int("rows", len(rows)).Msg("Daily report updated")
	return tabName, nil
}

func (c *Client) sheetExists(ctx context.Context, name string) (bool, error) {
	var meta *sheets.Spreadsheet
	err := c.withRetry(ctx, func(ctx context.Context) error {
		var err error
		meta, err = c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
		return err
	})
	if err != nil {
		return false, fmt.Errorf("reading spreadsheet metadata: %w", err)
	}

	for _, sh := range meta.Sheets {
		if sh.Properties != nil && sh.Properties.Title == name {
			return true, nil
		}
	}
	return false, nil
}

func (c *Client) addSheet(ctx context.Context, name string) error {
	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{
					Title: name,
					GridProperties: &sheets.GridProperties{
						RowCount:    1000,
						ColumnCount: 10,
					},
				},
			},
		}},
	}

	err := c.withRetry(ctx, func(ctx context.Context) error {
		_, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("creating report tab %s: %w", name, err)
	}
	return nil
}

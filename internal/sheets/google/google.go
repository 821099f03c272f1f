// Package google mirrors expenses into a Google Sheets spreadsheet, one sheet per
// year ("2024 Expenses"), keyed by expense ID in column A.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"gastos/internal/core"
	"gastos/internal/log"
	"gastos/internal/ports"
)

// Config selects the spreadsheet and the credentials. Service account
// credentials win over OAuth user credentials when both are set.
type Config struct {
	SpreadsheetID string
	SheetName     string

	ServiceAccountJSON string
	ServiceAccountFile string

	OAuthClientJSON string
	OAuthClientFile string
	OAuthTokenJSON  string
	OAuthTokenFile  string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string
	logger        *log.Logger

	mu     sync.Mutex
	sheets map[string]int64 // title -> sheetId, nil until loaded
}

var _ ports.Mirror = (*Client)(nil)

func New(ctx context.Context, cfg Config, logger *log.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	opts, err := credentialOptions(ctx, cfg)
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return NewWithService(svc, cfg.SpreadsheetID, cfg.SheetName, logger), nil
}

// NewWithService wraps an already configured Sheets service.
func NewWithService(svc *gsheet.Service, spreadsheetID, sheetBase string, logger *log.Logger) *Client {
	if strings.TrimSpace(sheetBase) == "" {
		sheetBase = "Expenses"
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetBase:     strings.TrimSpace(sheetBase),
		logger:        logger.WithComponent(log.ComponentSheets),
	}
}

func credentialOptions(ctx context.Context, cfg Config) ([]goption.ClientOption, error) {
	saJSON, err := readSecret(cfg.ServiceAccountJSON, cfg.ServiceAccountFile)
	if err != nil {
		return nil, fmt.Errorf("read service account: %w", err)
	}
	if saJSON != nil {
		return []goption.ClientOption{
			goption.WithCredentialsJSON(saJSON),
			goption.WithScopes(gsheet.SpreadsheetsScope),
		}, nil
	}

	clientJSON, err := readSecret(cfg.OAuthClientJSON, cfg.OAuthClientFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth client: %w", err)
	}
	if clientJSON == nil {
		return nil, errors.New("missing Google credentials (set GOOGLE_SERVICE_ACCOUNT_JSON/FILE or GOOGLE_OAUTH_CLIENT_JSON/FILE)")
	}
	oc, err := goauth.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	tokJSON, err := readSecret(cfg.OAuthTokenJSON, cfg.OAuthTokenFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth token: %w", err)
	}
	if tokJSON == nil {
		return nil, errors.New("missing OAuth token (run oauth-init, then set GOOGLE_OAUTH_TOKEN_FILE or GOOGLE_OAUTH_TOKEN_JSON)")
	}
	var tok oauth2.Token
	if err := json.Unmarshal(tokJSON, &tok); err != nil {
		return nil, fmt.Errorf("decode oauth token: %w", err)
	}

	// the token source refreshes through the pooled client
	ctx = context.WithValue(ctx, oauth2.HTTPClient, newHTTPClientWithPooling())
	return []goption.ClientOption{goption.WithHTTPClient(oc.Client(ctx, &tok))}, nil
}

func readSecret(inline, file string) ([]byte, error) {
	if s := strings.TrimSpace(inline); s != "" {
		return []byte(s), nil
	}
	if f := strings.TrimSpace(file); f != "" {
		return os.ReadFile(f)
	}
	return nil, nil
}

// newHTTPClientWithPooling creates an HTTP client tuned for the Sheets API.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: 60 * time.Second}
}

// AppendExpense writes e to its year's sheet, replacing any row already holding
// the same ID. Replaying an event is therefore harmless.
func (c *Client) AppendExpense(ctx context.Context, e core.Expense) error {
	if e.ID <= 0 {
		return fmt.Errorf("%w: expense id", core.ErrInvalidInput)
	}
	title := yearPrefixedName(c.sheetBase, e.Date.Year())

	found, err := c.locate(ctx, e.ID)
	if err != nil {
		return err
	}
	row, keep := 0, -1
	for i, at := range found {
		if at.title == title {
			row, keep = at.row, i
			break
		}
	}
	// bottom-up so earlier row numbers stay valid within a sheet
	for i := len(found) - 1; i >= 0; i-- {
		if i == keep {
			continue
		}
		if err := c.deleteRow(ctx, found[i]); err != nil {
			return err
		}
	}

	if row == 0 {
		if err := c.ensureSheet(ctx, title); err != nil {
			return err
		}
		col, err := c.column(ctx, title)
		if err != nil {
			return err
		}
		row = len(col) + 1
	}

	rng := fmt.Sprintf("%s!A%d:H%d", title, row, row)
	vr := &gsheet.ValueRange{Values: [][]any{expenseRow(e)}}
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do(); err != nil {
		return fmt.Errorf("update %s: %w", rng, err)
	}

	c.logger.DebugContext(ctx, "Mirrored expense", log.FieldExpenseID, e.ID, "range", rng)
	return nil
}

// RemoveExpense deletes every row holding id. A missing row is not an error.
func (c *Client) RemoveExpense(ctx context.Context, id int64) error {
	found, err := c.locate(ctx, id)
	if err != nil {
		return err
	}
	// bottom-up so earlier row numbers stay valid within a sheet
	for i := len(found) - 1; i >= 0; i-- {
		if err := c.deleteRow(ctx, found[i]); err != nil {
			return err
		}
	}
	if len(found) > 0 {
		c.logger.DebugContext(ctx, "Removed mirrored expense", log.FieldExpenseID, id, log.FieldCount, len(found))
	}
	return nil
}

type location struct {
	title string
	row   int // 1-based
}

func (c *Client) locate(ctx context.Context, id int64) ([]location, error) {
	titles, err := c.sheetTitles(ctx)
	if err != nil {
		return nil, err
	}
	var out []location
	for _, title := range titles {
		col, err := c.column(ctx, title)
		if err != nil {
			return nil, err
		}
		for _, row := range rowsWithID(col, id) {
			out = append(out, location{title: title, row: row})
		}
	}
	return out, nil
}

func (c *Client) column(ctx context.Context, title string) ([][]any, error) {
	rng := fmt.Sprintf("%s!A:A", title)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return resp.Values, nil
}

// sheetTitles lists the mirror's year sheets.
func (c *Client) sheetTitles(ctx context.Context) ([]string, error) {
	ids, err := c.loadSheets(ctx)
	if err != nil {
		return nil, err
	}
	var titles []string
	for title := range ids {
		if isMirrorSheet(title, c.sheetBase) {
			titles = append(titles, title)
		}
	}
	slices.Sort(titles)
	return titles, nil
}

func (c *Client) loadSheets(ctx context.Context) (map[string]int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sheets != nil {
		return c.sheets, nil
	}
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties(sheetId,title)").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read spreadsheet: %w", err)
	}
	ids := make(map[string]int64, len(ss.Sheets))
	for _, sh := range ss.Sheets {
		if sh.Properties != nil {
			ids[sh.Properties.Title] = sh.Properties.SheetId
		}
	}
	c.sheets = ids
	return ids, nil
}

func (c *Client) ensureSheet(ctx context.Context, title string) error {
	ids, err := c.loadSheets(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	_, ok := ids[title]
	c.mu.Unlock()
	if ok {
		return nil
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: title}},
	}}}
	resp, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("add sheet %s: %w", title, err)
	}
	var id int64
	if len(resp.Replies) > 0 && resp.Replies[0].AddSheet != nil && resp.Replies[0].AddSheet.Properties != nil {
		id = resp.Replies[0].AddSheet.Properties.SheetId
	}
	c.mu.Lock()
	c.sheets[title] = id
	c.mu.Unlock()

	rng := fmt.Sprintf("%s!A1:H1", title)
	vr := &gsheet.ValueRange{Values: [][]any{headerRow()}}
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("write header %s: %w", title, err)
	}
	c.logger.InfoContext(ctx, "Created mirror sheet", "sheet", title)
	return nil
}

func (c *Client) deleteRow(ctx context.Context, at location) error {
	ids, err := c.loadSheets(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	sheetID, ok := ids[at.title]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("sheet %q: %w", at.title, core.ErrNotFound)
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		DeleteDimension: &gsheet.DeleteDimensionRequest{Range: &gsheet.DimensionRange{
			SheetId:         sheetID,
			Dimension:       "ROWS",
			StartIndex:      int64(at.row - 1),
			EndIndex:        int64(at.row),
			ForceSendFields: []string{"SheetId", "StartIndex"},
		}},
	}}}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete row %d of %s: %w", at.row, at.title, err)
	}
	return nil
}

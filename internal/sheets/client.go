package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"regexp"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	sheetsv4 "google.golang.org/api/sheets/v4"
)

// Client is the Google Sheets implementation of Table.
type Client struct {
	srv           *sheetsv4.Service
	spreadsheetID string
}

var _ Table = (*Client)(nil)

// New connects with a service account. credentials is either a path to the
// key file or the JSON document itself.
func New(ctx context.Context, credentials, spreadsheetID string) (*Client, error) {
	if spreadsheetID == "" {
		return nil, errors.New("sheets: spreadsheet id is empty")
	}
	var cred option.ClientOption
	switch c := strings.TrimSpace(credentials); {
	case c == "":
		return nil, errors.New("sheets: service account credentials are empty")
	case strings.HasPrefix(c, "{"):
		cred = option.WithCredentialsJSON([]byte(c))
	default:
		if _, err := os.Stat(c); err != nil {
			return nil, fmt.Errorf("service account json: %w", err)
		}
		cred = option.WithCredentialsFile(c)
	}
	srv, err := sheetsv4.NewService(ctx, cred, option.WithScopes(sheetsv4.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &Client{srv: srv, spreadsheetID: spreadsheetID}, nil
}

func (c *Client) SpreadsheetID() string { return c.spreadsheetID }

var reSpreadsheetURL = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9_-]+)`)

// SpreadsheetIDFromURL extracts the document id from a share URL. A value
// that is not a URL is returned trimmed.
func SpreadsheetIDFromURL(s string) string {
	s = strings.TrimSpace(s)
	if m := reSpreadsheetURL.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

func rangeOf(sheet, a1 string) string {
	return "'" + strings.ReplaceAll(sheet, "'", "''") + "'!" + a1
}

func (c *Client) ReadAll(ctx context.Context, sheet string) ([][]string, error) {
	resp, err := c.srv.Spreadsheets.Values.Get(c.spreadsheetID, rangeOf(sheet, "A:Z")).Context(ctx).Do()
	if err != nil {
		return nil, c.wrap(sheet, err)
	}
	out := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		cells := make([]string, len(row))
		for j := range row {
			cells[j] = get(row, j)
		}
		out[i] = cells
	}
	return out, nil
}

func (c *Client) AppendRow(ctx context.Context, sheet string, values []string) error {
	vr := &sheetsv4.ValueRange{Values: [][]interface{}{cells(values)}}
	_, err := c.srv.Spreadsheets.Values.Append(c.spreadsheetID, rangeOf(sheet, "A:Z"), vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	return c.wrap(sheet, err)
}

func (c *Client) UpdateRow(ctx context.Context, sheet string, row int, values []string) error {
	if row < 1 {
		return fmt.Errorf("%s row %d: %w", sheet, row, ErrRowOutOfRange)
	}
	vr := &sheetsv4.ValueRange{Values: [][]interface{}{cells(values)}}
	_, err := c.srv.Spreadsheets.Values.Update(c.spreadsheetID, rangeOf(sheet, fmt.Sprintf("A%d", row)), vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return c.wrap(sheet, err)
}

func (c *Client) UpdateCell(ctx context.Context, sheet, a1, value string) error {
	vr := &sheetsv4.ValueRange{Values: [][]interface{}{{value}}}
	_, err := c.srv.Spreadsheets.Values.Update(c.spreadsheetID, rangeOf(sheet, a1), vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return c.wrap(sheet, err)
}

func (c *Client) DeleteRow(ctx context.Context, sheet string, row int) error {
	if row < 2 {
		// never the header
		return fmt.Errorf("%s row %d: %w", sheet, row, ErrRowOutOfRange)
	}
	id, ok, err := c.sheetID(ctx, sheet)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", sheet, ErrSheetNotFound)
	}
	req := &sheetsv4.BatchUpdateSpreadsheetRequest{
		Requests: []*sheetsv4.Request{{
			DeleteDimension: &sheetsv4.DeleteDimensionRequest{
				Range: &sheetsv4.DimensionRange{
					SheetId:         id,
					Dimension:       "ROWS",
					StartIndex:      int64(row - 1),
					EndIndex:        int64(row),
					ForceSendFields: []string{"SheetId"},
				},
			},
		}},
	}
	_, err = c.srv.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do()
	return c.wrap(sheet, err)
}

// EnsureSheet creates the tab with its header row, or appends missing header
// names to an existing one. Data rows are never touched.
func (c *Client) EnsureSheet(ctx context.Context, sheet string, headers []string) error {
	_, ok, err := c.sheetID(ctx, sheet)
	if err != nil {
		return err
	}
	if !ok {
		req := &sheetsv4.BatchUpdateSpreadsheetRequest{
			Requests: []*sheetsv4.Request{{
				AddSheet: &sheetsv4.AddSheetRequest{
					Properties: &sheetsv4.SheetProperties{Title: sheet},
				},
			}},
		}
		if _, err := c.srv.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
			return c.wrap(sheet, err)
		}
		return c.UpdateRow(ctx, sheet, 1, headers)
	}

	resp, err := c.srv.Spreadsheets.Values.Get(c.spreadsheetID, rangeOf(sheet, "1:1")).Context(ctx).Do()
	if err != nil {
		return c.wrap(sheet, err)
	}
	var have []string
	if len(resp.Values) > 0 {
		for j := range resp.Values[0] {
			have = append(have, get(resp.Values[0], j))
		}
	}
	upgraded, changed := upgradeHeaders(have, headers)
	if !changed {
		return nil
	}
	return c.UpdateRow(ctx, sheet, 1, upgraded)
}

func (c *Client) sheetID(ctx context.Context, sheet string) (int64, bool, error) {
	sp, err := c.srv.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, false, c.wrap(sheet, err)
	}
	for _, s := range sp.Sheets {
		if s.Properties != nil && s.Properties.Title == sheet {
			return s.Properties.SheetId, true, nil
		}
	}
	return 0, false, nil
}

// wrap adds the tab name and turns the API's "Unable to parse range" reply
// for a missing tab into ErrSheetNotFound.
func (c *Client) wrap(sheet string, err error) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusBadRequest &&
		strings.Contains(gerr.Message, "Unable to parse range") {
		return fmt.Errorf("%s: %w", sheet, ErrSheetNotFound)
	}
	return fmt.Errorf("sheets %s: %w", sheet, err)
}

func cells(values []string) []interface{} {
	row := make([]interface{}, len(values))
	for i, v := range values {
		row[i] = v
	}
	return row
}

func get(row []interface{}, idx int) string {
	if idx < 0 || idx >= len(row) || row[idx] == nil {
		return ""
	}
	return fmt.Sprint(row[idx])
}

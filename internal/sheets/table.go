package sheets

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
)

// Table is a spreadsheet seen as named tabs of string rows. Row numbers are
// 1-indexed as in A1 notation; row 1 is the header.
type Table interface {
	ReadAll(ctx context.Context, sheet string) ([][]string, error)
	AppendRow(ctx context.Context, sheet string, values []string) error
	UpdateRow(ctx context.Context, sheet string, row int, values []string) error
	UpdateCell(ctx context.Context, sheet, a1, value string) error
	DeleteRow(ctx context.Context, sheet string, row int) error
	EnsureSheet(ctx context.Context, sheet string, headers []string) error
}

var (
	ErrSheetNotFound    = errors.New("sheet not found")
	ErrRowOutOfRange    = errors.New("row out of range")
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// IsTransient reports rate limiting, server-side failures and network
// timeouts. These are worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

// IsConfig reports errors an operator has to fix: bad credentials, missing
// permissions, a wrong spreadsheet id or a tab that was never provisioned.
func IsConfig(err error) bool {
	if errors.Is(err, ErrSheetNotFound) {
		return true
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return true
		}
	}
	return false
}

// upgradeHeaders returns the header row after appending every expected name
// missing from have (case-insensitive). changed is false when nothing is
// missing.
func upgradeHeaders(have, want []string) (out []string, changed bool) {
	seen := make(map[string]bool, len(have))
	out = make([]string, 0, len(want))
	for _, h := range have {
		seen[strings.ToLower(strings.TrimSpace(h))] = true
		out = append(out, h)
	}
	for _, h := range want {
		if !seen[strings.ToLower(h)] {
			out = append(out, h)
			changed = true
		}
	}
	return out, changed
}

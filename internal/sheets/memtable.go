package sheets

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// MemTable is an in-memory Table. It backs STORE_BACKEND=memory and the
// tests, which can queue failures per operation with FailWith.
type MemTable struct {
	mu     sync.Mutex
	sheets map[string][][]string
	fail   map[string][]error
	calls  map[string]int
}

var _ Table = (*MemTable)(nil)

func NewMemTable() *MemTable {
	return &MemTable{
		sheets: map[string][][]string{},
		fail:   map[string][]error{},
		calls:  map[string]int{},
	}
}

// Seed replaces a tab's content; rows[0] is the header.
func (m *MemTable) Seed(sheet string, rows ...[]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sheets[sheet] = copyRows(rows)
}

// Rows returns a copy of a tab, header included, or nil when it is missing.
func (m *MemTable) Rows(sheet string) [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows, ok := m.sheets[sheet]
	if !ok {
		return nil
	}
	return copyRows(rows)
}

// FailWith makes the next len(errs) calls of op return errs in order.
// op is one of read, append, update, delete, ensure.
func (m *MemTable) FailWith(op string, errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[op] = append(m.fail[op], errs...)
}

// Calls counts invocations of op, failed ones included.
func (m *MemTable) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// enter must be called with mu held.
func (m *MemTable) enter(op string) error {
	m.calls[op]++
	if q := m.fail[op]; len(q) > 0 {
		m.fail[op] = q[1:]
		return q[0]
	}
	return nil
}

func (m *MemTable) ReadAll(_ context.Context, sheet string) ([][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("read"); err != nil {
		return nil, err
	}
	rows, ok := m.sheets[sheet]
	if !ok {
		return nil, fmt.Errorf("%s: %w", sheet, ErrSheetNotFound)
	}
	return copyRows(rows), nil
}

func (m *MemTable) AppendRow(_ context.Context, sheet string, values []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("append"); err != nil {
		return err
	}
	rows, ok := m.sheets[sheet]
	if !ok {
		return fmt.Errorf("%s: %w", sheet, ErrSheetNotFound)
	}
	m.sheets[sheet] = append(rows, append([]string(nil), values...))
	return nil
}

func (m *MemTable) UpdateRow(_ context.Context, sheet string, row int, values []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("update"); err != nil {
		return err
	}
	return m.write(sheet, row, 0, values)
}

func (m *MemTable) UpdateCell(_ context.Context, sheet, a1, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("update"); err != nil {
		return err
	}
	row, col, err := parseA1(a1)
	if err != nil {
		return err
	}
	return m.write(sheet, row, col, []string{value})
}

// write overwrites cells starting at (row, col), growing the grid as
// Sheets does. Must be called with mu held.
func (m *MemTable) write(sheet string, row, col int, values []string) error {
	rows, ok := m.sheets[sheet]
	if !ok {
		return fmt.Errorf("%s: %w", sheet, ErrSheetNotFound)
	}
	if row < 1 {
		return fmt.Errorf("%s row %d: %w", sheet, row, ErrRowOutOfRange)
	}
	for len(rows) < row {
		rows = append(rows, nil)
	}
	r := rows[row-1]
	for len(r) < col+len(values) {
		r = append(r, "")
	}
	copy(r[col:], values)
	rows[row-1] = r
	m.sheets[sheet] = rows
	return nil
}

func (m *MemTable) DeleteRow(_ context.Context, sheet string, row int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("delete"); err != nil {
		return err
	}
	rows, ok := m.sheets[sheet]
	if !ok {
		return fmt.Errorf("%s: %w", sheet, ErrSheetNotFound)
	}
	if row < 2 || row > len(rows) {
		return fmt.Errorf("%s row %d: %w", sheet, row, ErrRowOutOfRange)
	}
	m.sheets[sheet] = append(rows[:row-1], rows[row:]...)
	return nil
}

func (m *MemTable) EnsureSheet(_ context.Context, sheet string, headers []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ensure"); err != nil {
		return err
	}
	rows, ok := m.sheets[sheet]
	if !ok {
		m.sheets[sheet] = [][]string{append([]string(nil), headers...)}
		return nil
	}
	var have []string
	if len(rows) > 0 {
		have = rows[0]
	}
	upgraded, changed := upgradeHeaders(have, headers)
	if !changed {
		return nil
	}
	if len(rows) == 0 {
		rows = [][]string{upgraded}
	} else {
		rows[0] = upgraded
	}
	m.sheets[sheet] = rows
	return nil
}

var reA1 = regexp.MustCompile(`^([A-Za-z]{1,2})(\d+)$`)

// parseA1 returns the 1-indexed row and 0-indexed column of a cell
// reference such as "C7".
func parseA1(a1 string) (row, col int, err error) {
	m := reA1.FindStringSubmatch(strings.TrimSpace(a1))
	if m == nil {
		return 0, 0, fmt.Errorf("bad cell reference %q", a1)
	}
	for _, r := range strings.ToUpper(m[1]) {
		col = col*26 + int(r-'A'+1)
	}
	row, _ = strconv.Atoi(m[2])
	return row, col - 1, nil
}

func copyRows(rows [][]string) [][]string {
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = append([]string(nil), r...)
	}
	return out
}

// Package symbols resolves company references in free text to exchange
// listing codes.
package symbols

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/finchat-labs/finflow/capability"
)

// Table matches known company names as substrings of the query text.
// Matching is case folded; entries are tried longest name first so
// "SK하이닉스" wins over a shorter overlapping alias. Safe for concurrent
// use.
type Table struct {
	mu      sync.RWMutex
	entries []entry
}

type entry struct {
	key string
	sym capability.Symbol
}

// New creates a table from a display name to listing code map.
func New(listings map[string]string) *Table {
	t := &Table{}
	for name, code := range listings {
		t.Add(name, code)
	}
	return t
}

// Default returns the built-in KRX table used when no listing file is
// configured.
func Default() *Table {
	return New(map[string]string{
		"삼성전자":   "005930",
		"SK하이닉스": "000660",
		"네이버":    "035420",
		"카카오":    "035720",
		"LG화학":   "051910",
		"현대차":    "005380",
		"POSCO":  "005490",
		"KB금융":   "105560",
		"신한지주":   "055550",
		"LG전자":   "066570",
	})
}

// Add registers one listing. An existing entry with the same name is
// replaced.
func (t *Table) Add(name, code string) {
	key := normalize(name)
	if key == "" || code == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	sym := capability.Symbol{Code: code, Name: strings.TrimSpace(name)}
	for i := range t.entries {
		if t.entries[i].key == key {
			t.entries[i].sym = sym
			return
		}
	}
	t.entries = append(t.entries, entry{key: key, sym: sym})
	sort.SliceStable(t.entries, func(i, j int) bool {
		return len(t.entries[i].key) > len(t.entries[j].key)
	})
}

// Len reports how many listings the table holds.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Resolve implements capability.SymbolLookup.
func (t *Table) Resolve(ctx context.Context, text string) (capability.Symbol, bool, error) {
	if err := ctx.Err(); err != nil {
		return capability.Symbol{}, false, err
	}

	needle := normalize(text)

	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, e := range t.entries {
		if strings.Contains(needle, e.key) {
			return e.sym, true, nil
		}
	}
	return capability.Symbol{}, false, nil
}

// LoadYAML merges listings from a YAML file of display name to code:
//
//	삼성전자: "005930"
//	네이버: "035420"
//
// Entries in the file replace built-in entries with the same name.
func (t *Table) LoadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("symbols: read %s: %w", path, err)
	}

	listings := make(map[string]string)
	if err := yaml.Unmarshal(data, &listings); err != nil {
		return fmt.Errorf("symbols: parse %s: %w", path, err)
	}
	for name, code := range listings {
		t.Add(name, code)
	}
	return nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

var _ capability.SymbolLookup = (*Table)(nil)

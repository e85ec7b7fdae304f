package account

import (
	"errors"
	"sort"
	"sync"
)

// ErrUnknownAccount is returned when a caller selects or queries an
// account that is not in the known accounts list (§7 "Validation
// failure (unknown account...)").
var ErrUnknownAccount = errors.New("unknown account")

// Model is the Account Model (§3 Account).
type Model struct {
	mu       sync.Mutex
	accounts []string
	current  string
	pending  bool
	data     map[string]map[string]string
}

// NewModel creates an Account Model with its request gate held closed
// until the first SetAccounts call, mirroring the original source's
// account_request_pending starting true (§3, §4.9 startup step 1).
func NewModel() *Model {
	return &Model{
		pending: true,
		data:    make(map[string]map[string]string),
	}
}

// SetAccounts replaces the known accounts list, sorting and
// deduplicating it (§8 "accounts is sorted and duplicate-free after
// every update"), clears the pending gate, and picks a current account
// if none is set yet.
func (m *Model) SetAccounts(accounts []string) {
	seen := make(map[string]struct{}, len(accounts))
	out := make([]string, 0, len(accounts))
	for _, a := range accounts {
		if a == "" {
			continue
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	sort.Strings(out)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts = out
	m.pending = false
	if m.current == "" && len(out) > 0 {
		m.current = out[0]
	} else if m.current != "" && !contains(out, m.current) {
		m.current = ""
		if len(out) > 0 {
			m.current = out[0]
		}
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// Accounts returns the current sorted, deduplicated accounts list.
func (m *Model) Accounts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.accounts))
	copy(out, m.accounts)
	return out
}

// Current returns the selected current account, or "" if none.
func (m *Model) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// SetCurrent selects acct as the current account, failing if it is not
// among the known accounts.
func (m *Model) SetCurrent(acct string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !contains(m.accounts, acct) {
		return ErrUnknownAccount
	}
	m.current = acct
	return nil
}

// IsKnown reports whether acct is among the known accounts list,
// without selecting it as current (§7 "Validation failure (unknown
// account...)" guards that only need to check, not switch).
func (m *Model) IsKnown(acct string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return contains(m.accounts, acct)
}

// PendingRequest reports whether the initial accounts query is still
// outstanding (§4.9 startup step 1 gate).
func (m *Model) PendingRequest() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending
}

// SetAccountData caches a per-account field snapshot (§4.7 "Account
// data request" supplemented feature).
func (m *Model) SetAccountData(acct string, data map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[acct] = data
}

// AccountData returns the cached snapshot for acct, if any.
func (m *Model) AccountData(acct string) (map[string]string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.data[acct]
	return d, ok
}

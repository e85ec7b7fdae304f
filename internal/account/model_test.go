package account

import (
	"reflect"
	"testing"
)

func TestSetAccountsSortsAndDedupes(t *testing.T) {
	m := NewModel()
	m.SetAccounts([]string{"B.B.B.B", "A.A.A.A", "B.B.B.B", "C.C.C.C"})

	want := []string{"A.A.A.A", "B.B.B.B", "C.C.C.C"}
	if got := m.Accounts(); !reflect.DeepEqual(got, want) {
		t.Errorf("Accounts() = %v, want %v", got, want)
	}
	if m.PendingRequest() {
		t.Error("PendingRequest should clear once accounts are set")
	}
	if m.Current() != "A.A.A.A" {
		t.Errorf("Current() = %q, want first sorted account", m.Current())
	}
}

func TestSetCurrentRejectsUnknown(t *testing.T) {
	m := NewModel()
	m.SetAccounts([]string{"A.A.A.A"})

	if err := m.SetCurrent("Z.Z.Z.Z"); err != ErrUnknownAccount {
		t.Errorf("SetCurrent(unknown) = %v, want ErrUnknownAccount", err)
	}
	if err := m.SetCurrent("A.A.A.A"); err != nil {
		t.Errorf("SetCurrent(known) = %v, want nil", err)
	}
	if m.Current() != "A.A.A.A" {
		t.Errorf("Current() = %q, want A.A.A.A", m.Current())
	}
}

func TestAccountDataCache(t *testing.T) {
	m := NewModel()
	m.SetAccounts([]string{"A.A.A.A"})
	m.SetAccountData("A.A.A.A", map[string]string{"BALANCE": "1000"})

	data, ok := m.AccountData("A.A.A.A")
	if !ok || data["BALANCE"] != "1000" {
		t.Errorf("AccountData = %v, %v, want {BALANCE:1000}, true", data, ok)
	}

	if _, ok := m.AccountData("B.B.B.B"); ok {
		t.Error("AccountData for unknown account should report false")
	}
}

func TestNewModelStartsPending(t *testing.T) {
	m := NewModel()
	if !m.PendingRequest() {
		t.Error("a fresh Model should start with the request gate pending")
	}
}

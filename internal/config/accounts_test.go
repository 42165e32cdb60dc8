package config

import (
	"errors"
	"testing"
)

func TestParseAccounts(t *testing.T) {
	got, err := ParseAccounts([]byte(`
accounts:
  - auth_service: ptc
    username: alpha
    password: pw1
  - username: bravo
    password: pw2
high_level_accounts:
  - auth_service: google
    username: hl1@example.com
    password: pw3
`))
	if err != nil {
		t.Fatalf("expected valid accounts, got %v", err)
	}
	if len(got.Accounts) != 2 || len(got.HighLevelAccounts) != 1 {
		t.Fatalf("expected 2+1 accounts, got %d+%d", len(got.Accounts), len(got.HighLevelAccounts))
	}
	built := Build(got.Accounts)
	if built[0].Username != "alpha" || built[0].AuthService != "ptc" || built[1].Password != "pw2" {
		t.Fatalf("unexpected built accounts %+v %+v", built[0].Credentials, built[1].Credentials)
	}
	if built[0].MaxItems == 0 {
		t.Fatalf("expected built accounts to be reset")
	}
}

func TestParseAccounts_SchemaViolations(t *testing.T) {
	cases := map[string]string{
		"missing password": "accounts:\n  - username: alpha\n",
		"bad service":      "accounts:\n  - {auth_service: facebook, username: a, password: b}\n",
		"unknown field":    "accounts:\n  - {username: a, password: b, level: 30}\n",
		"unknown list":     "workers: []\n",
		"not a list":       "accounts: alpha\n",
	}
	for name, doc := range cases {
		if _, err := ParseAccounts([]byte(doc)); !errors.Is(err, ErrInvalidAccounts) {
			t.Fatalf("%s: expected ErrInvalidAccounts, got %v", name, err)
		}
	}
}

func TestParseAccounts_RejectsDuplicates(t *testing.T) {
	_, err := ParseAccounts([]byte(`
accounts:
  - {username: alpha, password: a}
high_level_accounts:
  - {username: alpha, password: b}
`))
	if !errors.Is(err, ErrInvalidAccounts) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
}

func TestParseAccounts_Empty(t *testing.T) {
	got, err := ParseAccounts(nil)
	if err != nil {
		t.Fatalf("expected empty document to parse, got %v", err)
	}
	if len(got.Accounts) != 0 {
		t.Fatalf("expected no accounts, got %d", len(got.Accounts))
	}
}

package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"hivescan/internal/domain/account"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

var ErrInvalidAccounts = errors.New("invalid accounts file")

//go:embed accounts.schema.json
var accountsSchema string

const accountsSchemaURL = "https://hivescan.local/schemas/accounts.schema.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

type AccountEntry struct {
	AuthService string `yaml:"auth_service"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
}

type Accounts struct {
	Accounts          []AccountEntry `yaml:"accounts"`
	HighLevelAccounts []AccountEntry `yaml:"high_level_accounts"`
}

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource(accountsSchemaURL, bytes.NewReader([]byte(accountsSchema))); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = c.Compile(accountsSchemaURL)
	})
	return schema, schemaErr
}

func LoadAccounts(path string) (*Accounts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseAccounts(data)
}

// ParseAccounts validates the YAML document against the embedded schema
// before decoding it.
func ParseAccounts(data []byte) (*Accounts, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccounts, err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	// Round-trip through JSON so the validator sees plain JSON values.
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccounts, err)
	}
	var normalized any
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccounts, err)
	}
	s, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("compile accounts schema: %w", err)
	}
	if err := s.Validate(normalized); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccounts, err)
	}

	var out Accounts
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccounts, err)
	}
	seen := map[string]bool{}
	for _, e := range append(append([]AccountEntry(nil), out.Accounts...), out.HighLevelAccounts...) {
		if seen[e.Username] {
			return nil, fmt.Errorf("%w: duplicate username %s", ErrInvalidAccounts, e.Username)
		}
		seen[e.Username] = true
	}
	return &out, nil
}

// Build turns the entries into fresh accounts.
func Build(entries []AccountEntry) []*account.Account {
	out := make([]*account.Account, 0, len(entries))
	for _, e := range entries {
		out = append(out, account.New(account.Credentials{
			AuthService: e.AuthService,
			Username:    e.Username,
			Password:    e.Password,
		}))
	}
	return out
}

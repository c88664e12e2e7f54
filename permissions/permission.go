// Package permissions holds the role table checked by the RBAC middleware. Paths are chi route patterns.
package permissions

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"
)

//go:embed permissions.json
var permissionsData []byte

// Rule grants Roles access to one route. Public routes skip authentication entirely; a rule with no roles
// admits any authenticated caller.
type Rule struct {
	Path   string   `json:"path"`
	Method string   `json:"method"`
	Roles  []string `json:"permissions"`
	Public bool     `json:"skip"`
}

func (r Rule) Allows(role string) bool {
	return len(r.Roles) == 0 || slices.Contains(r.Roles, role)
}

type Table struct {
	// Disabled turns RBAC off for every route.
	Disabled bool   `json:"skip"`
	Rules    []Rule `json:"endpoints"`

	index map[string]Rule
}

func ruleKey(method, path string) string {
	return strings.ToUpper(method) + " " + path
}

// Lookup returns the rule for a route pattern. Unlisted routes get the zero Rule.
func (t *Table) Lookup(method, path string) (Rule, bool) {
	rule, ok := t.index[ruleKey(method, path)]

	return rule, ok
}

// Parse decodes a table and rejects duplicate routes.
func Parse(data []byte) (*Table, error) {
	var table Table
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("decode permissions: %w", err)
	}

	table.index = make(map[string]Rule, len(table.Rules))
	for _, rule := range table.Rules {
		key := ruleKey(rule.Method, rule.Path)
		if _, dup := table.index[key]; dup {
			return nil, fmt.Errorf("duplicate permission for %s", key)
		}

		table.index[key] = rule
	}

	return &table, nil
}

// Get loads the embedded table. A broken table yields nil, which the middleware treats as deny-all.
func Get() *Table {
	table, err := Parse(permissionsData)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load embedded permissions")

		return nil
	}

	log.Info().Int("endpoints", len(table.Rules)).Msg("Loaded embedded permissions")

	return table
}

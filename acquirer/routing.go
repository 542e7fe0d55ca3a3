package acquirer

import (
	"fmt"
	"os"
	"sort"

	"github.com/alovak/cardflow-3ds/internal/cardgen"
	"gopkg.in/yaml.v3"
)

// Route sends card numbers starting with Prefix to Issuer.
type Route struct {
	Prefix string `yaml:"prefix"`
	Issuer string `yaml:"issuer"`
}

// RoutingTable resolves a card number to an issuer by the longest matching
// BIN prefix.
type RoutingTable struct {
	routes []Route
}

func NewRoutingTable(binRoutes map[string]string) (*RoutingTable, error) {
	routes := make([]Route, 0, len(binRoutes))
	for prefix, issuer := range binRoutes {
		routes = append(routes, Route{Prefix: prefix, Issuer: issuer})
	}
	return newRoutingTable(routes)
}

func newRoutingTable(routes []Route) (*RoutingTable, error) {
	for _, r := range routes {
		if err := cardgen.ValidateBIN(r.Prefix); err != nil {
			return nil, fmt.Errorf("route %q: %w", r.Prefix, err)
		}
		if r.Issuer == "" {
			return nil, fmt.Errorf("route %q: issuer is required", r.Prefix)
		}
	}

	sorted := append([]Route(nil), routes...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if len(sorted[i].Prefix) != len(sorted[j].Prefix) {
			return len(sorted[i].Prefix) > len(sorted[j].Prefix)
		}
		return sorted[i].Prefix < sorted[j].Prefix
	})
	return &RoutingTable{routes: sorted}, nil
}

// Lookup returns the issuer of the longest prefix of cardNumber.
func (t *RoutingTable) Lookup(cardNumber string) (string, bool) {
	for _, r := range t.routes {
		if len(cardNumber) >= len(r.Prefix) && cardNumber[:len(r.Prefix)] == r.Prefix {
			return r.Issuer, true
		}
	}
	return "", false
}

type routingFile struct {
	Issuers map[string]string `yaml:"issuers"`
	Routes  []Route           `yaml:"routes"`
}

// LoadRoutingFile reads issuers and BIN routes from YAML:
//
//	issuers:
//	  local: localhost:8583
//	routes:
//	  - prefix: "1234"
//	    issuer: local
func LoadRoutingFile(path string) (map[string]string, *RoutingTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading routing file: %w", err)
	}

	var f routingFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, nil, fmt.Errorf("parsing routing file: %w", err)
	}

	table, err := newRoutingTable(f.Routes)
	if err != nil {
		return nil, nil, err
	}
	return f.Issuers, table, nil
}

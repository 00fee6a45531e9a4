// Package economy provides resource bundles and the static building catalogue.
package economy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
)

// Resource keys with special routing. Stat resources go to settlement-wide
// counters instead of storage and never count against capacity.
const (
	Coins     = "coins"
	Faith     = "faith"
	Research  = "research"
	Espionage = "espionage"
	Fame      = "fame"
	Prestige  = "prestige"
)

var statResources = map[string]bool{
	Faith:     true,
	Research:  true,
	Espionage: true,
	Fame:      true,
	Prestige:  true,
}

// IsStat reports whether a resource is a settlement stat rather than a stored good.
func IsStat(resource string) bool {
	return statResources[resource]
}

// Resources maps resource keys to amounts.
type Resources map[string]int

// Clone returns a copy of r.
func (r Resources) Clone() Resources {
	out := make(Resources, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Keys returns the resource keys in sorted order.
func (r Resources) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Stored returns the sum of all non-stat amounts.
func (r Resources) Stored() int {
	total := 0
	for k, v := range r {
		if !IsStat(k) {
			total += v
		}
	}
	return total
}

// Scale returns a copy with every amount multiplied by n.
func (r Resources) Scale(n int) Resources {
	out := make(Resources, len(r))
	for k, v := range r {
		out[k] = v * n
	}
	return out
}

// String renders the bundle as "5 wood, 2 iron" in key order.
func (r Resources) String() string {
	parts := make([]string, 0, len(r))
	for _, k := range r.Keys() {
		parts = append(parts, fmt.Sprintf("%s %s", humanize.Comma(int64(r[k])), k))
	}
	return strings.Join(parts, ", ")
}

// Amount is one resource quantity inside an ordered bundle.
type Amount struct {
	Resource string `json:"resource" yaml:"resource"`
	Amount   int    `json:"amount" yaml:"amount"`
}

// Bundle is an ordered list of amounts. Order matters where the first
// satisfiable entry wins.
type Bundle []Amount

// Resources converts the bundle to a map, summing duplicate keys.
func (b Bundle) Resources() Resources {
	out := make(Resources, len(b))
	for _, a := range b {
		out[a.Resource] += a.Amount
	}
	return out
}

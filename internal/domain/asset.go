package domain

import "strings"

// Asset identifies a currency or token by symbol, e.g. "BTC" or "USDT".
type Asset string

// NewAsset normalizes s into an Asset.
func NewAsset(s string) Asset {
	return Asset(strings.ToUpper(strings.TrimSpace(s)))
}

// Assets normalizes every entry of ss, dropping empties and duplicates while
// keeping the first occurrence order.
func Assets(ss ...string) []Asset {
	out := make([]Asset, 0, len(ss))
	seen := make(map[Asset]bool, len(ss))
	for _, s := range ss {
		a := NewAsset(s)
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}

func (a Asset) String() string { return string(a) }

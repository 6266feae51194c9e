// Package verify implements the pre-purchase verification services: wallet
// eligibility, KYC identity checks and affordability assessment. Each service
// degrades to a deterministic sandbox result when its upstream is
// unavailable, so the checkout flow never blocks on a third party.
package verify

import (
	"strconv"
	"strings"
)

// addressSeed derives a stable numeric seed from the last four hex
// characters of a wallet address. Sandbox results are a pure function of
// the address so repeated checks agree.
func addressSeed(address string) int64 {
	addr := strings.TrimPrefix(strings.ToLower(address), "0x")
	if len(addr) > 4 {
		addr = addr[len(addr)-4:]
	}
	seed, err := strconv.ParseInt(addr, 16, 64)
	if err != nil {
		return 0
	}
	return seed
}

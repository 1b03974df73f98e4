package storage

import (
	"fmt"
	"strings"

	"github.com/uhyunpark/dropmarket/pkg/app/core/market"
)

// Archive key schema:
//
//   run:{runID}                              → RunMeta
//   sale:{runID}:{item}:{step:020}:{id:020}  → market.Sale
//   wal:{runID}:{agent:020}                  → account.Snapshot
//
// Steps and ids are zero-padded so lexicographic order is chronological.

const (
	prefixRun    = "run:"
	prefixSale   = "sale:"
	prefixWallet = "wal:"
)

// checkSegment rejects key segments that would break the schema
func checkSegment(kind, s string) error {
	if s == "" || strings.ContainsRune(s, ':') {
		return fmt.Errorf("%w: %s %q", ErrInvalidKey, kind, s)
	}
	return nil
}

// runKey returns the key for run metadata
// Format: "run:{runID}"
func runKey(runID string) []byte {
	return []byte(prefixRun + runID)
}

// saleKey returns the key for a sale
// Format: "sale:{runID}:{item}:{step}:{saleID}"
func saleKey(runID string, s market.Sale) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%020d:%020d", prefixSale, runID, s.Item, s.Step, s.ID))
}

// salePrefix returns the prefix for all sales of item in a run
// Format: "sale:{runID}:{item}:"
func salePrefix(runID, item string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:", prefixSale, runID, item))
}

// walletKey returns the key for an agent's final wallet
// Format: "wal:{runID}:{agent}"
func walletKey(runID string, agent market.AgentID) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", prefixWallet, runID, agent))
}

func walletPrefix(runID string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixWallet, runID))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}

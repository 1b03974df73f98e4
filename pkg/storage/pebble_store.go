// Package storage archives finished simulation runs in Pebble: run metadata,
// every sale and each agent's final wallet.
package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/uhyunpark/dropmarket/pkg/app/core/account"
	"github.com/uhyunpark/dropmarket/pkg/app/core/market"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrInvalidKey = errors.New("invalid key segment")
)

// RunMeta describes one archived run
type RunMeta struct {
	ID        string    `json:"id"`
	Seed      int64     `json:"seed"`
	FeeRate   float64   `json:"fee_rate"`
	Steps     uint64    `json:"steps"`
	Agents    int       `json:"agents"`
	Sales     int       `json:"sales"`
	Units     int64     `json:"units"`
	Fees      int64     `json:"fees"`
	CreatedAt time.Time `json:"created_at"`
}

type Archive struct {
	db *pebble.DB
}

// Open opens (or creates) the archive at path
func Open(path string) (*Archive, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	return &Archive{db: db}, nil
}

func (a *Archive) Close() error { return a.db.Close() }

// SaveRun persists run metadata, replacing any earlier entry with the same id
func (a *Archive) SaveRun(meta RunMeta) error {
	if err := checkSegment("run id", meta.ID); err != nil {
		return err
	}
	data, err := encode("run", meta)
	if err != nil {
		return err
	}
	if err := a.db.Set(runKey(meta.ID), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// LoadRun loads run metadata; ErrNotFound if the run was never saved
func (a *Archive) LoadRun(runID string) (RunMeta, error) {
	var meta RunMeta
	data, closer, err := a.db.Get(runKey(runID))
	if errors.Is(err, pebble.ErrNotFound) {
		return meta, fmt.Errorf("run %q: %w", runID, ErrNotFound)
	}
	if err != nil {
		return meta, fmt.Errorf("failed to get run: %w", err)
	}
	defer closer.Close()
	err = decode("run", data, &meta)
	return meta, err
}

// ListRuns returns every archived run ordered by id
func (a *Archive) ListRuns() ([]RunMeta, error) {
	var runs []RunMeta
	err := a.scan([]byte(prefixRun), false, func(k, v []byte) (bool, error) {
		var meta RunMeta
		if err := decode("run", v, &meta); err != nil {
			return false, fmt.Errorf("key %q: %w", k, err)
		}
		runs = append(runs, meta)
		return true, nil
	})
	return runs, err
}

// SaveSales writes sales of a run in one batch
func (a *Archive) SaveSales(runID string, sales []market.Sale) error {
	if err := checkSegment("run id", runID); err != nil {
		return err
	}
	b := a.db.NewBatch()
	defer b.Close()
	for _, s := range sales {
		if err := checkSegment("item", s.Item); err != nil {
			return err
		}
		data, err := encode("sale", s)
		if err != nil {
			return err
		}
		if err := b.Set(saleKey(runID, s), data, nil); err != nil {
			return fmt.Errorf("failed to stage sale %d: %w", s.ID, err)
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to save sales: %w", err)
	}
	return nil
}

// LoadSales returns every archived sale of item in chronological order
func (a *Archive) LoadSales(runID, item string) ([]market.Sale, error) {
	var sales []market.Sale
	err := a.scan(salePrefix(runID, item), false, func(k, v []byte) (bool, error) {
		var s market.Sale
		if err := decode("sale", v, &s); err != nil {
			return false, fmt.Errorf("key %q: %w", k, err)
		}
		sales = append(sales, s)
		return true, nil
	})
	return sales, err
}

// RecentSales returns the last n sales of item, newest first
func (a *Archive) RecentSales(runID, item string, n int) ([]market.Sale, error) {
	if n <= 0 {
		return nil, nil
	}
	var sales []market.Sale
	err := a.scan(salePrefix(runID, item), true, func(k, v []byte) (bool, error) {
		var s market.Sale
		if err := decode("sale", v, &s); err != nil {
			return false, fmt.Errorf("key %q: %w", k, err)
		}
		sales = append(sales, s)
		return len(sales) < n, nil
	})
	return sales, err
}

// SaveWallets writes the final wallet of every agent of a run in one batch
func (a *Archive) SaveWallets(runID string, wallets []account.Snapshot) error {
	if err := checkSegment("run id", runID); err != nil {
		return err
	}
	b := a.db.NewBatch()
	defer b.Close()
	for _, w := range wallets {
		data, err := encode("wallet", w)
		if err != nil {
			return err
		}
		if err := b.Set(walletKey(runID, w.ID), data, nil); err != nil {
			return fmt.Errorf("failed to stage wallet %d: %w", w.ID, err)
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to save wallets: %w", err)
	}
	return nil
}

// LoadWallet loads one agent's archived wallet
func (a *Archive) LoadWallet(runID string, agent market.AgentID) (account.Snapshot, error) {
	var w account.Snapshot
	data, closer, err := a.db.Get(walletKey(runID, agent))
	if errors.Is(err, pebble.ErrNotFound) {
		return w, fmt.Errorf("wallet %d in run %q: %w", agent, runID, ErrNotFound)
	}
	if err != nil {
		return w, fmt.Errorf("failed to get wallet: %w", err)
	}
	defer closer.Close()
	err = decode("wallet", data, &w)
	return w, err
}

// CountWallets returns how many wallets a run archived
func (a *Archive) CountWallets(runID string) (int, error) {
	n := 0
	err := a.scan(walletPrefix(runID), false, func(_, _ []byte) (bool, error) {
		n++
		return true, nil
	})
	return n, err
}

// scan visits entries under prefix until fn returns false or an error. The
// first error from fn stops the scan and is returned.
func (a *Archive) scan(prefix []byte, reverse bool, fn func(k, v []byte) (bool, error)) error {
	iter, err := a.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	step := iter.Next
	valid := iter.First()
	if reverse {
		step = iter.Prev
		valid = iter.Last()
	}
	for ; valid; valid = step() {
		more, err := fn(iter.Key(), iter.Value())
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	return iter.Error()
}

// SaveMarket archives every sale and wallet of a finished market under runID
func (a *Archive) SaveMarket(runID string, m *market.Market) error {
	for _, sales := range m.SalesHistory() {
		if err := a.SaveSales(runID, sales); err != nil {
			return err
		}
	}
	ids := m.Agents()
	wallets := make([]account.Snapshot, 0, len(ids))
	for _, id := range ids {
		w, err := m.Wallet(id)
		if err != nil {
			return err
		}
		wallets = append(wallets, w)
	}
	return a.SaveWallets(runID, wallets)
}

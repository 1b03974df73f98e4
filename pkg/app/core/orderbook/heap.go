package orderbook

import "sort"

// priceHeap implements heap.Interface over distinct price levels.
// With desc set the highest price sits on top (bids), otherwise the lowest (asks).
// Use container/heap to manipulate it (Init, Push, Pop, Remove).
type priceHeap struct {
	prices []int64
	desc   bool
}

func (h *priceHeap) Len() int { return len(h.prices) }

func (h *priceHeap) Less(i, j int) bool {
	if h.desc {
		return h.prices[i] > h.prices[j]
	}
	return h.prices[i] < h.prices[j]
}

func (h *priceHeap) Swap(i, j int) { h.prices[i], h.prices[j] = h.prices[j], h.prices[i] }

func (h *priceHeap) Push(x any) {
	h.prices = append(h.prices, x.(int64))
}

func (h *priceHeap) Pop() any {
	old := h.prices
	n := len(old)
	x := old[n-1]
	h.prices = old[:n-1]
	return x
}

// Peek returns the top price without removing it
func (h *priceHeap) Peek() (int64, bool) {
	if len(h.prices) == 0 {
		return 0, false
	}
	return h.prices[0], true
}

// indexOf returns the heap slot holding price, or -1
func (h *priceHeap) indexOf(price int64) int {
	for i, p := range h.prices {
		if p == price {
			return i
		}
	}
	return -1
}

// sorted returns the prices in priority order without disturbing the heap
func (h *priceHeap) sorted() []int64 {
	out := make([]int64, len(h.prices))
	copy(out, h.prices)
	if h.desc {
		sort.Slice(out, func(i, j int) bool { return out[i] > out[j] })
	} else {
		sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	}
	return out
}

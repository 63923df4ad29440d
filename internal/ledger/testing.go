package ledger

// SeedBalance is a test helper that sets quantity and reserved for a wallet
// token balance on the in-memory ledger, registering the wallet if needed.
func SeedBalance(l Ledger, walletID, token string, quantity, reserved int64) {
	mem, ok := l.(*Memory)
	if !ok {
		return
	}
	mem.mu.Lock()
	defer mem.mu.Unlock()
	mem.wallets[walletID] = true
	bal := mem.ensureLocked(walletID, token)
	bal.quantity = quantity
	bal.reserved = reserved
	bump(bal)
}

// TotalQuantity sums quantity of a token across all wallets on the in-memory
// ledger. Conservation tests assert it is invariant under settlements.
func TotalQuantity(l Ledger, token string) int64 {
	mem, ok := l.(*Memory)
	if !ok {
		return 0
	}
	mem.mu.Lock()
	defer mem.mu.Unlock()
	var total int64
	for _, byToken := range mem.balances {
		if bal, ok := byToken[token]; ok {
			total += bal.quantity
		}
	}
	return total
}

package ledger

import (
	"context"
)

// ApplyTx posts a COMPLETED entry inside an existing transaction: it locks
// the owner's wallet, moves the balance in the entry's direction and
// writes the entry row. Debits that would overdraw fail with
// ErrInsufficientFunds and write nothing.
//
// The review gate uses this to credit trade proceeds in the same
// transaction as the trade's status transition.
func ApplyTx(ctx context.Context, tx Tx, e Entry) (Wallet, error) {
	w, err := tx.WalletForUpdate(ctx, e.Owner)
	if err != nil {
		return Wallet{}, err
	}

	balance := w.Balance
	if e.Type == TypeCredit {
		balance = balance.Add(e.Amount)
	} else {
		balance, err = balance.Sub(e.Amount)
		if err != nil {
			return Wallet{}, err
		}
	}

	if err := tx.InsertEntry(ctx, e); err != nil {
		return Wallet{}, err
	}
	if err := tx.SetBalance(ctx, e.Owner, balance, e.UpdatedAt); err != nil {
		return Wallet{}, err
	}
	return Wallet{Owner: e.Owner, Balance: balance, UpdatedAt: e.UpdatedAt}, nil
}

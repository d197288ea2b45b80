// Package economy moves native tokens between accounts. Other modules debit
// and credit through Debit and Credit so balance checks live in one place.
package economy

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tolelom/arcadechain/core"
	"github.com/tolelom/arcadechain/events"
	"github.com/tolelom/arcadechain/fixedpoint"
	"github.com/tolelom/arcadechain/vm"
)

// ErrInsufficientFunds is returned when a debit exceeds the balance.
var ErrInsufficientFunds = errors.New("insufficient funds")

func init() {
	vm.Register(core.TxTransfer, handleTransfer)
}

// Debit removes amount from addr.
func Debit(st core.State, addr string, amount uint64) error {
	acc, err := st.GetAccount(addr)
	if err != nil {
		return err
	}
	if acc.Balance < amount {
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientFunds, addr, acc.Balance, amount)
	}
	acc.Balance -= amount
	return st.SetAccount(acc)
}

// Credit adds amount to addr. Overflow is an invariant violation: total
// supply is fixed at genesis.
func Credit(st core.State, addr string, amount uint64) error {
	acc, err := st.GetAccount(addr)
	if err != nil {
		return err
	}
	bal, err := fixedpoint.CheckedAddU64(acc.Balance, amount)
	if err != nil {
		return fmt.Errorf("%w: credit %s: %v", core.ErrInvariant, addr, err)
	}
	acc.Balance = bal
	return st.SetAccount(acc)
}

func handleTransfer(ctx *vm.Context, payload json.RawMessage) error {
	var p core.TransferPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode transfer payload: %w", err)
	}
	if p.Amount == 0 {
		return errors.New("transfer amount must be > 0")
	}
	if p.To == "" {
		return errors.New("transfer to address required")
	}
	if err := Debit(ctx.State, ctx.Tx.From, p.Amount); err != nil {
		return err
	}
	if err := Credit(ctx.State, p.To, p.Amount); err != nil {
		return err
	}
	ctx.Emit(events.EventTokenTransfer, map[string]any{
		"from":   ctx.Tx.From,
		"to":     p.To,
		"amount": p.Amount,
	})
	return nil
}

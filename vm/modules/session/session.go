// Package session maps short-lived session keys to the accounts that
// authorised them. Arena handlers resolve every caller through Resolve.
package session

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tolelom/arcadechain/core"
	"github.com/tolelom/arcadechain/crypto"
	"github.com/tolelom/arcadechain/events"
	"github.com/tolelom/arcadechain/vm"
)

func init() {
	vm.Register(core.TxSetSessionKey, handleSetSessionKey)
}

// Resolve returns the account caller acts for: the owner of the session key
// caller, or caller itself when it is not a session key.
func Resolve(st core.State, caller string) (string, error) {
	owner, err := st.GetSessionOwner(caller)
	switch {
	case errors.Is(err, core.ErrNotFound):
		return caller, nil
	case err != nil:
		return "", fmt.Errorf("resolve session %s: %w", caller, err)
	}
	return owner, nil
}

// Bind maps sessionKey to owner. A previous owner of the key and a previous
// key of owner both lose their mapping.
func Bind(st core.State, owner, sessionKey string) error {
	if prev, err := st.GetSessionOwner(sessionKey); err == nil && prev != owner {
		if err := unlink(st, prev); err != nil {
			return err
		}
	} else if err != nil && !errors.Is(err, core.ErrNotFound) {
		return err
	}

	p, err := st.GetPlayer(owner)
	if err != nil {
		return err
	}
	if p.SessionKey != "" && p.SessionKey != sessionKey {
		if err := st.DeleteSessionOwner(p.SessionKey); err != nil {
			return err
		}
	}
	p.SessionKey = sessionKey
	if err := st.SetPlayer(p); err != nil {
		return err
	}
	return st.SetSessionOwner(sessionKey, owner)
}

// Clear removes the session key of account, if any.
func Clear(st core.State, account string) error {
	p, err := st.GetPlayer(account)
	if err != nil {
		return err
	}
	if p.SessionKey == "" {
		return nil
	}
	if err := st.DeleteSessionOwner(p.SessionKey); err != nil {
		return err
	}
	p.SessionKey = ""
	return st.SetPlayer(p)
}

func unlink(st core.State, owner string) error {
	p, err := st.GetPlayer(owner)
	if err != nil {
		return err
	}
	p.SessionKey = ""
	return st.SetPlayer(p)
}

func handleSetSessionKey(ctx *vm.Context, payload json.RawMessage) error {
	var p core.SetSessionKeyPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode set_session_key payload: %w", err)
	}
	if _, err := crypto.PubKeyFromHex(p.SessionKey); err != nil {
		return fmt.Errorf("session_key: %w", err)
	}
	if p.SessionKey == ctx.Tx.From {
		return errors.New("session key must differ from the account key")
	}
	// a session key cannot delegate further
	if owner, err := ctx.State.GetSessionOwner(ctx.Tx.From); err == nil {
		return fmt.Errorf("sender %s is a session key of %s", ctx.Tx.From, owner)
	}
	if err := Bind(ctx.State, ctx.Tx.From, p.SessionKey); err != nil {
		return err
	}
	ctx.Emit(events.EventSessionKeySet, map[string]any{
		"account":     ctx.Tx.From,
		"session_key": p.SessionKey,
	})
	return nil
}

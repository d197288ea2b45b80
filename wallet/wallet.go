// Package wallet holds signing keys and builds signed arena transactions.
// A player usually signs moves with a session key wallet and everything else
// with the account wallet.
package wallet

import (
	"encoding/json"

	"github.com/tolelom/arcadechain/core"
	"github.com/tolelom/arcadechain/crypto"
)

// Wallet holds one key pair bound to a chain id.
type Wallet struct {
	chainID string
	priv    crypto.PrivateKey
	pub     crypto.PublicKey
}

// New creates a Wallet from an existing private key.
func New(chainID string, priv crypto.PrivateKey) *Wallet {
	return &Wallet{chainID: chainID, priv: priv, pub: priv.Public()}
}

// Generate creates a Wallet with a freshly generated key pair.
func Generate(chainID string) (*Wallet, error) {
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return New(chainID, priv), nil
}

// PrivKey returns the raw private key (handle with care).
func (w *Wallet) PrivKey() crypto.PrivateKey { return w.priv }

// Address is the hex public key used as the tx sender and account key.
func (w *Wallet) Address() string { return w.pub.Hex() }

func (w *Wallet) ChainID() string { return w.chainID }

// NewTx creates a signed transaction. nonce must match the account's
// current nonce.
func (w *Wallet) NewTx(typ core.TxType, nonce, fee uint64, payload any) (*core.Transaction, error) {
	tx, err := core.NewTransaction(w.chainID, typ, w.pub.Hex(), nonce, fee, payload)
	if err != nil {
		return nil, err
	}
	tx.Sign(w.priv)
	return tx, nil
}

func (w *Wallet) Transfer(to string, amount, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxTransfer, nonce, fee, core.TransferPayload{To: to, Amount: amount})
}

// SetSessionKey delegates play to the wallet whose address is sessionKey.
func (w *Wallet) SetSessionKey(sessionKey string, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxSetSessionKey, nonce, fee, core.SetSessionKeyPayload{SessionKey: sessionKey})
}

func (w *Wallet) Register(gameID string, entryFee, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxRegister, nonce, fee, core.RegisterPayload{GameID: gameID, Fee: entryFee})
}

// ApplyMove wraps an engine-specific move for matchID.
func (w *Wallet) ApplyMove(matchID uint64, move any, nonce, fee uint64) (*core.Transaction, error) {
	raw, err := json.Marshal(move)
	if err != nil {
		return nil, err
	}
	return w.NewTx(core.TxApplyMove, nonce, fee, core.ApplyMovePayload{MatchID: matchID, Move: raw})
}

func (w *Wallet) ClaimTimeout(matchID uint64, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxClaimTimeout, nonce, fee, core.ClaimTimeoutPayload{MatchID: matchID})
}

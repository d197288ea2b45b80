package rpc

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tolelom/arcadechain/core"
	"github.com/tolelom/arcadechain/game"
	"github.com/tolelom/arcadechain/indexer"
	"github.com/tolelom/arcadechain/storage"
)

// Handler holds all dependencies needed to serve RPC methods. State reads go
// through a committed-only view so clients never observe a block that is
// still being built.
type Handler struct {
	bc      *core.Blockchain
	mempool *core.Mempool
	state   *storage.StateDB
	indexer *indexer.Indexer
	chainID string
	onTx    func(*core.Transaction)
}

// NewHandler creates an RPC Handler. idx may be nil, in which case the index
// methods report an internal error.
func NewHandler(bc *core.Blockchain, mempool *core.Mempool, state *storage.StateDB, idx *indexer.Indexer, chainID string) *Handler {
	return &Handler{bc: bc, mempool: mempool, state: state, indexer: idx, chainID: chainID}
}

// OnAccepted sets a callback run for every transaction sendTx admits to the
// mempool, e.g. to gossip it to the proposer.
func (h *Handler) OnAccepted(fn func(*core.Transaction)) { h.onTx = fn }

// Dispatch routes an RPC request to the correct method.
func (h *Handler) Dispatch(req Request) Response {
	switch req.Method {
	case "getBlockHeight":
		return okResponse(req.ID, h.bc.Height())
	case "getBlock":
		return h.getBlock(req)
	case "getBalance":
		return h.getBalance(req)
	case "getPlayer":
		return h.getPlayer(req)
	case "getParams":
		return h.getParams(req)
	case "getLobby":
		return h.getLobby(req)
	case "getMatch":
		return h.getMatch(req)
	case "getBoard":
		return h.getBoard(req)
	case "getEscrow":
		return h.getEscrow(req)
	case "getMatchesByPlayer":
		return h.getMatchesByPlayer(req)
	case "getFinishedMatches":
		return h.getFinishedMatches(req)
	case "getMempoolSize":
		return okResponse(req.ID, h.mempool.Size())
	case "sendTx":
		return h.sendTx(req)
	default:
		return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

func decodeParams(req Request, v any) *Response {
	if len(req.Params) == 0 {
		r := errResponse(req.ID, CodeInvalidParams, "params required")
		return &r
	}
	if err := json.Unmarshal(req.Params, v); err != nil {
		r := errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
		return &r
	}
	return nil
}

func lookupErr(id any, err error) Response {
	if errors.Is(err, core.ErrNotFound) {
		return errResponse(id, CodeNotFound, err.Error())
	}
	return errResponse(id, CodeInternalError, err.Error())
}

func (h *Handler) getBlock(req Request) Response {
	var params struct {
		Hash   string `json:"hash"`
		Height *int64 `json:"height"`
	}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
		}
	}

	var block *core.Block
	var err error
	switch {
	case params.Hash != "":
		block, err = h.bc.GetBlock(params.Hash)
	case params.Height != nil:
		block, err = h.bc.GetBlockByHeight(*params.Height)
	default:
		block = h.bc.Tip()
	}
	if err != nil {
		return lookupErr(req.ID, err)
	}
	if block == nil {
		return errResponse(req.ID, CodeNotFound, "no block found")
	}
	return okResponse(req.ID, block)
}

func (h *Handler) getBalance(req Request) Response {
	var params struct {
		Address string `json:"address"`
	}
	if r := decodeParams(req, &params); r != nil {
		return *r
	}
	if params.Address == "" {
		return errResponse(req.ID, CodeInvalidParams, "address is required")
	}
	acc, err := h.state.Committed().GetAccount(params.Address)
	if err != nil {
		return lookupErr(req.ID, err)
	}
	return okResponse(req.ID, BalanceResult{Address: params.Address, Balance: acc.Balance, Nonce: acc.Nonce})
}

func (h *Handler) getPlayer(req Request) Response {
	var params struct {
		Address string `json:"address"`
	}
	if r := decodeParams(req, &params); r != nil {
		return *r
	}
	if params.Address == "" {
		return errResponse(req.ID, CodeInvalidParams, "address is required")
	}
	p, err := h.state.Committed().GetPlayer(params.Address)
	if err != nil {
		return lookupErr(req.ID, err)
	}
	return okResponse(req.ID, p)
}

func (h *Handler) getParams(req Request) Response {
	p, err := h.state.Committed().GetParams()
	if err != nil {
		return lookupErr(req.ID, err)
	}
	return okResponse(req.ID, p)
}

// getLobby looks a lobby up by id, or finds the waiting lobby of a
// (game_id, fee) pair.
func (h *Handler) getLobby(req Request) Response {
	var params struct {
		ID     string `json:"id"`
		GameID string `json:"game_id"`
		Fee    uint64 `json:"fee"`
	}
	if r := decodeParams(req, &params); r != nil {
		return *r
	}
	st := h.state.Committed()
	id := params.ID
	if id == "" {
		if params.GameID == "" {
			return errResponse(req.ID, CodeInvalidParams, "id or game_id is required")
		}
		var err error
		if id, err = st.GetWaitingLobby(params.GameID, params.Fee); err != nil {
			return lookupErr(req.ID, err)
		}
	}
	l, err := st.GetLobby(id)
	if err != nil {
		return lookupErr(req.ID, err)
	}
	return okResponse(req.ID, l)
}

func (h *Handler) getMatch(req Request) Response {
	var params struct {
		ID uint64 `json:"id"`
	}
	if r := decodeParams(req, &params); r != nil {
		return *r
	}
	m, err := h.state.Committed().GetMatch(params.ID)
	if err != nil {
		return lookupErr(req.ID, err)
	}
	return okResponse(req.ID, m)
}

// getBoard returns the state blob of one seat, decoded when the engine
// supports it. Shared-board games have a single blob for every seat.
func (h *Handler) getBoard(req Request) Response {
	var params struct {
		MatchID uint64 `json:"match_id"`
		Seat    int    `json:"seat"`
	}
	if r := decodeParams(req, &params); r != nil {
		return *r
	}
	m, err := h.state.Committed().GetMatch(params.MatchID)
	if err != nil {
		return lookupErr(req.ID, err)
	}
	idx := params.Seat
	if len(m.States) == 1 {
		idx = 0
	}
	if params.Seat < 0 || params.Seat >= len(m.Players) || idx >= len(m.States) {
		return errResponse(req.ID, CodeInvalidParams, fmt.Sprintf("seat %d out of range", params.Seat))
	}
	res := BoardResult{MatchID: m.ID, GameID: m.GameID, Seat: params.Seat, Blob: m.States[idx]}
	if eng, ok := game.Lookup(m.GameID); ok {
		if d, ok := eng.(game.Describer); ok {
			board, err := d.Describe(m.States[idx])
			if err != nil {
				return errResponse(req.ID, CodeInternalError, err.Error())
			}
			res.Board = board
		}
	}
	return okResponse(req.ID, res)
}

func (h *Handler) getEscrow(req Request) Response {
	var params struct {
		MatchID uint64 `json:"match_id"`
	}
	if r := decodeParams(req, &params); r != nil {
		return *r
	}
	e, err := h.state.Committed().GetEscrow(params.MatchID)
	if err != nil {
		return lookupErr(req.ID, err)
	}
	return okResponse(req.ID, e)
}

func (h *Handler) getMatchesByPlayer(req Request) Response {
	var params struct {
		Address string `json:"address"`
	}
	if r := decodeParams(req, &params); r != nil {
		return *r
	}
	if params.Address == "" {
		return errResponse(req.ID, CodeInvalidParams, "address is required")
	}
	if h.indexer == nil {
		return errResponse(req.ID, CodeInternalError, "indexer disabled")
	}
	ids, err := h.indexer.MatchesByPlayer(params.Address)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	if ids == nil {
		ids = []uint64{}
	}
	return okResponse(req.ID, ids)
}

func (h *Handler) getFinishedMatches(req Request) Response {
	var params struct {
		GameID string `json:"game_id"`
		Limit  int    `json:"limit"`
	}
	if r := decodeParams(req, &params); r != nil {
		return *r
	}
	if params.GameID == "" {
		return errResponse(req.ID, CodeInvalidParams, "game_id is required")
	}
	if h.indexer == nil {
		return errResponse(req.ID, CodeInternalError, "indexer disabled")
	}
	ids, err := h.indexer.FinishedMatches(params.GameID, params.Limit)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	if ids == nil {
		ids = []uint64{}
	}
	return okResponse(req.ID, ids)
}

func (h *Handler) sendTx(req Request) Response {
	var tx core.Transaction
	if r := decodeParams(req, &tx); r != nil {
		return *r
	}
	if tx.ChainID != h.chainID {
		return errResponse(req.ID, CodeInvalidParams,
			fmt.Sprintf("chain ID mismatch: got %q want %q", tx.ChainID, h.chainID))
	}
	// the client-provided id is not trusted
	tx.ID = tx.Hash()
	if err := h.mempool.Add(&tx); err != nil {
		return errResponse(req.ID, CodeTxRejected, err.Error())
	}
	if h.onTx != nil {
		h.onTx(&tx)
	}
	return okResponse(req.ID, SendTxResult{TxID: tx.ID})
}

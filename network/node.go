package network

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tolelom/arcadechain/core"
)

// MessageHandler is called for each received message.
type MessageHandler func(peer *Peer, msg Message)

// DefaultMaxPeers is the default limit on simultaneous peer connections.
const DefaultMaxPeers = 50

// Node listens for peers, dials seeds and routes messages to handlers.
type Node struct {
	nodeID     string
	chainID    string
	listenAddr string
	mempool    *core.Mempool
	tlsConfig  *tls.Config // nil → plain TCP
	maxPeers   int
	height     func() int64
	log        *zap.Logger

	mu       sync.RWMutex
	peers    map[string]*Peer
	handlers map[MsgType]MessageHandler

	listener net.Listener
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewNode creates a Node for chainID that will listen on listenAddr.
// Transactions received from peers go into mempool.
func NewNode(nodeID, chainID, listenAddr string, mempool *core.Mempool, tlsCfg *tls.Config, logger *zap.Logger) *Node {
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &Node{
		nodeID:     nodeID,
		chainID:    chainID,
		listenAddr: listenAddr,
		mempool:    mempool,
		tlsConfig:  tlsCfg,
		maxPeers:   DefaultMaxPeers,
		height:     func() int64 { return 0 },
		log:        logger.Named("network"),
		peers:      make(map[string]*Peer),
		handlers:   make(map[MsgType]MessageHandler),
		stopCh:     make(chan struct{}),
	}
	n.Handle(MsgTx, n.handleTx)
	return n
}

// Handle registers a handler for msg type.
func (n *Node) Handle(typ MsgType, h MessageHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[typ] = h
}

// Start begins accepting connections.
func (n *Node) Start() error {
	var (
		ln  net.Listener
		err error
	)
	if n.tlsConfig != nil {
		ln, err = tls.Listen("tcp", n.listenAddr, n.tlsConfig)
	} else {
		ln, err = net.Listen("tcp", n.listenAddr)
	}
	if err != nil {
		return fmt.Errorf("listen %s: %w", n.listenAddr, err)
	}
	n.mu.Lock()
	n.listener = ln
	n.mu.Unlock()
	go n.acceptLoop(ln)
	return nil
}

// Addr is the bound listen address, useful with port 0.
func (n *Node) Addr() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.listener == nil {
		return n.listenAddr
	}
	return n.listener.Addr().String()
}

// Stop closes the listener and every peer.
func (n *Node) Stop() {
	n.stopOnce.Do(func() {
		close(n.stopCh)
		n.mu.Lock()
		defer n.mu.Unlock()
		if n.listener != nil {
			_ = n.listener.Close()
		}
		for _, p := range n.peers {
			p.Close()
		}
	})
}

// AddPeer dials addr, registers the peer and introduces this node.
func (n *Node) AddPeer(id, addr string) (*Peer, error) {
	peer, err := dial(id, addr, n.tlsConfig)
	if err != nil {
		return nil, err
	}
	n.mu.Lock()
	if old, ok := n.peers[id]; ok {
		old.Close()
	}
	n.peers[id] = peer
	n.mu.Unlock()
	go n.readLoop(peer)

	if err := peer.SendJSON(MsgHello, n.hello()); err != nil {
		n.log.Warn("send hello", zap.String("peer", id), zap.Error(err))
	}
	return peer, nil
}

// Peer returns the connected peer with the given id, or nil.
func (n *Node) Peer(id string) *Peer {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.peers[id]
}

// PeerCount is the number of open connections.
func (n *Node) PeerCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.peers)
}

// Broadcast sends msg to all connected peers.
func (n *Node) Broadcast(msg Message) {
	n.mu.RLock()
	peers := make([]*Peer, 0, len(n.peers))
	for _, p := range n.peers {
		peers = append(peers, p)
	}
	n.mu.RUnlock()
	for _, p := range peers {
		if err := p.Send(msg); err != nil {
			n.log.Debug("broadcast", zap.String("peer", p.ID), zap.String("type", string(msg.Type)), zap.Error(err))
		}
	}
}

// BroadcastTx gossips tx to every peer.
func (n *Node) BroadcastTx(tx *core.Transaction) {
	n.broadcastJSON(MsgTx, tx)
}

// BroadcastBlock announces block to every peer.
func (n *Node) BroadcastBlock(block *core.Block) {
	n.broadcastJSON(MsgBlock, block)
}

func (n *Node) broadcastJSON(typ MsgType, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		n.log.Error("marshal broadcast", zap.String("type", string(typ)), zap.Error(err))
		return
	}
	n.Broadcast(Message{Type: typ, Payload: raw})
}

func (n *Node) hello() Hello {
	return Hello{NodeID: n.nodeID, ChainID: n.chainID, Height: n.height()}
}

func (n *Node) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-n.stopCh:
				return
			default:
				n.log.Warn("accept", zap.Error(err))
				time.Sleep(100 * time.Millisecond)
				continue
			}
		}
		n.mu.Lock()
		if len(n.peers) >= n.maxPeers {
			n.mu.Unlock()
			n.log.Warn("max peers reached", zap.Int("max", n.maxPeers), zap.String("remote", conn.RemoteAddr().String()))
			_ = conn.Close()
			continue
		}
		remote := conn.RemoteAddr().String()
		peer := newPeer(remote, remote, conn)
		n.peers[peer.ID] = peer
		n.mu.Unlock()
		go n.readLoop(peer)
	}
}

func (n *Node) readLoop(peer *Peer) {
	defer func() {
		if r := recover(); r != nil {
			n.log.Error("peer handler panic", zap.String("peer", peer.ID), zap.Any("panic", r))
		}
		peer.Close()
		n.mu.Lock()
		if n.peers[peer.ID] == peer {
			delete(n.peers, peer.ID)
		}
		n.mu.Unlock()
	}()
	for {
		msg, err := peer.Receive()
		if err != nil {
			return
		}
		if msg.Type == MsgHello && !n.checkHello(peer, msg) {
			return
		}
		n.mu.RLock()
		h, ok := n.handlers[msg.Type]
		n.mu.RUnlock()
		if ok {
			h(peer, msg)
		}
	}
}

// checkHello drops peers of another chain.
func (n *Node) checkHello(peer *Peer, msg Message) bool {
	var h Hello
	if err := json.Unmarshal(msg.Payload, &h); err != nil {
		n.log.Warn("bad hello", zap.String("peer", peer.ID), zap.Error(err))
		return false
	}
	if h.ChainID != n.chainID {
		n.log.Warn("peer on another chain", zap.String("peer", peer.ID), zap.String("chain", h.ChainID))
		return false
	}
	return true
}

func (n *Node) handleTx(peer *Peer, msg Message) {
	var tx core.Transaction
	if err := json.Unmarshal(msg.Payload, &tx); err != nil {
		n.log.Debug("unmarshal tx", zap.String("peer", peer.ID), zap.Error(err))
		return
	}
	if err := n.mempool.Add(&tx); err != nil {
		n.log.Debug("gossiped tx rejected", zap.String("tx", tx.ID), zap.Error(err))
	}
}

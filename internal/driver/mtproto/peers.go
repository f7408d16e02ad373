package mtproto

import (
	"fmt"
	"sync"

	"github.com/gotd/td/tg"
)

// channelIDOffset converts channel ids into Bot API style negative chat ids.
const channelIDOffset = 1_000_000_000_000

// userChatID, groupChatID and channelChatID build the chat ids handlers see,
// matching the Bot API numbering so handlers work with either transport.
func userChatID(userID int64) int64 {
	return userID
}

func groupChatID(chatID int64) int64 {
	return -chatID
}

func channelChatID(channelID int64) int64 {
	return -(channelIDOffset + channelID)
}

// PeerCache stores input peers discovered from inbound updates, keyed by chat id.
//
// Outbound calls need access hashes that only inbound updates carry, so a chat
// can be answered only after the bot has seen it.
type PeerCache struct {
	mu    sync.RWMutex
	peers map[int64]tg.InputPeerClass
}

// NewPeerCache creates an empty, concurrency-safe peer cache.
func NewPeerCache() *PeerCache {
	return &PeerCache{
		peers: make(map[int64]tg.InputPeerClass),
	}
}

// RememberEnvelope ingests entity data attached to one update envelope.
func (c *PeerCache) RememberEnvelope(envelope updateEnvelope) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for userID, user := range envelope.usersByID {
		if user == nil {
			continue
		}
		if peer := user.AsInputPeer(); peer != nil {
			c.peers[userChatID(userID)] = cloneInputPeer(peer)
		}
	}
	for chatID, chat := range envelope.chatsByID {
		if chat.inputPeer != nil {
			c.peers[chatID] = cloneInputPeer(chat.inputPeer)
		}
	}
}

// Remember stores one explicit chat-to-peer mapping.
func (c *PeerCache) Remember(chatID int64, peer tg.InputPeerClass) {
	if peer == nil || chatID == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.peers[chatID] = cloneInputPeer(peer)
}

// Resolve returns the input peer for chatID. Basic groups need no access hash
// and resolve even when unseen.
func (c *PeerCache) Resolve(chatID int64) (tg.InputPeerClass, error) {
	if chatID == 0 {
		return nil, fmt.Errorf("resolve peer: empty chat id")
	}

	c.mu.RLock()
	peer, ok := c.peers[chatID]
	c.mu.RUnlock()
	if ok {
		return cloneInputPeer(peer), nil
	}

	if chatID < 0 && chatID > -channelIDOffset {
		return &tg.InputPeerChat{ChatID: -chatID}, nil
	}

	return nil, fmt.Errorf("resolve peer: chat %d not seen yet", chatID)
}

// Len returns the number of cached peers.
func (c *PeerCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.peers)
}

func cloneInputPeer(peer tg.InputPeerClass) tg.InputPeerClass {
	switch typed := peer.(type) {
	case *tg.InputPeerUser:
		copyPeer := *typed
		return &copyPeer
	case *tg.InputPeerChat:
		copyPeer := *typed
		return &copyPeer
	case *tg.InputPeerChannel:
		copyPeer := *typed
		return &copyPeer
	case *tg.InputPeerSelf:
		copyPeer := *typed
		return &copyPeer
	default:
		return peer
	}
}

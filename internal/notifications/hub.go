package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"meshi/internal/models"
	"meshi/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	// Max connections per user
	maxConnsPerUser = 12
	// Max total connections
	maxTotalConns = 10000
	// Max open subscriptions on one connection
	maxSubsPerClient = 256
)

// SnapshotSource runs the ordered queries behind each topic.
type SnapshotSource interface {
	ListPosts(ctx context.Context) ([]*models.Post, error)
	ListComments(ctx context.Context, postID uint) ([]*models.Comment, error)
}

type subscription struct {
	client *Client
	id     string
	topic  Topic
}

// LiveHub keeps live ordered queries open for WebSocket clients. Every
// subscription receives the full result set when it opens and again after
// each change to its topic.
type LiveHub struct {
	mu         sync.RWMutex
	clients    map[*Client]map[string]*subscription
	topics     map[string]map[*subscription]struct{}
	perUser    map[uint]int
	totalConns int

	// snapshotMu orders query-and-send so an initial snapshot never
	// overtakes a newer refresh.
	snapshotMu sync.Mutex

	source SnapshotSource
	log    *observability.WSLogger
}

// NewLiveHub creates a hub that answers queries from source.
func NewLiveHub(source SnapshotSource) *LiveHub {
	return &LiveHub{
		clients: make(map[*Client]map[string]*subscription),
		topics:  make(map[string]map[*subscription]struct{}),
		perUser: make(map[uint]int),
		source:  source,
		log:     observability.NewWSLogger("live"),
	}
}

// Name returns a human-readable identifier for this hub.
func (h *LiveHub) Name() string { return "live" }

// Register a connection for userID. Returns the Client or an error if limits are exceeded.
func (h *LiveHub) Register(userID uint, conn *websocket.Conn) (*Client, error) {
	client := NewClient(h, conn, userID)
	if err := h.add(client); err != nil {
		return nil, err
	}
	return client, nil
}

func (h *LiveHub) add(client *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.totalConns >= maxTotalConns {
		return errors.New("server connection limit reached")
	}
	if h.perUser[client.UserID] >= maxConnsPerUser {
		return errors.New("user connection limit reached")
	}

	client.IncomingHandler = h.handleMessage
	h.clients[client] = make(map[string]*subscription)
	h.perUser[client.UserID]++
	h.totalConns++
	observability.WebSocketConnectionsTotal.Inc()
	h.log.LogConnect(context.Background(), client.UserID)
	return nil
}

// UnregisterClient releases every subscription the client still holds and
// closes its send queue.
func (h *LiveHub) UnregisterClient(client *Client) {
	h.mu.Lock()
	subs, ok := h.clients[client]
	if !ok {
		h.mu.Unlock()
		return
	}
	for _, sub := range subs {
		h.dropLocked(sub)
	}
	delete(h.clients, client)
	h.perUser[client.UserID]--
	if h.perUser[client.UserID] <= 0 {
		delete(h.perUser, client.UserID)
	}
	h.totalConns--
	h.mu.Unlock()

	observability.WebSocketConnectionsTotal.Dec()
	h.log.LogDisconnect(context.Background(), client.UserID, "closed")
	client.close()
}

func (h *LiveHub) handleMessage(client *Client, data []byte) {
	var req models.LiveRequest
	if err := json.Unmarshal(data, &req); err != nil {
		h.sendError(client, "", "malformed message")
		return
	}

	ctx := context.Background()
	switch req.Op {
	case models.LiveOpSubscribe:
		topic, err := topicFor(req)
		if err != nil {
			h.sendError(client, req.Sub, err.Error())
			return
		}
		if err := h.Subscribe(ctx, client, req.Sub, topic); err != nil {
			h.sendError(client, req.Sub, err.Error())
		}
	case models.LiveOpUnsubscribe:
		if h.Unsubscribe(client, req.Sub) {
			h.send(client, models.LiveMessage{Type: models.LiveMsgReleased, Sub: req.Sub})
		}
	default:
		h.sendError(client, req.Sub, fmt.Sprintf("unknown op %q", req.Op))
	}
}

func topicFor(req models.LiveRequest) (Topic, error) {
	if req.Sub == "" {
		return Topic{}, errors.New("sub is required")
	}
	switch req.Collection {
	case models.CollectionPosts:
		return FeedTopic(), nil
	case models.CollectionComments:
		if req.PostID == 0 {
			return Topic{}, errors.New("post_id is required for comments")
		}
		return CommentsTopic(req.PostID), nil
	default:
		return Topic{}, fmt.Errorf("unknown collection %q", req.Collection)
	}
}

// Subscribe opens subID on topic and sends the initial snapshot. Reusing a
// subscription id replaces the old query.
func (h *LiveHub) Subscribe(ctx context.Context, client *Client, subID string, topic Topic) error {
	h.mu.Lock()
	subs, ok := h.clients[client]
	if !ok {
		h.mu.Unlock()
		return errors.New("client is not registered")
	}
	if old, exists := subs[subID]; exists {
		h.dropLocked(old)
	} else if len(subs) >= maxSubsPerClient {
		h.mu.Unlock()
		return errors.New("subscription limit reached")
	}

	sub := &subscription{client: client, id: subID, topic: topic}
	subs[subID] = sub
	key := topic.Key()
	if h.topics[key] == nil {
		h.topics[key] = make(map[*subscription]struct{})
	}
	h.topics[key][sub] = struct{}{}
	h.mu.Unlock()

	observability.LiveSubscriptionsActive.WithLabelValues(topic.Collection).Inc()
	h.log.LogSubscription(ctx, client.UserID, key, subID, "opened")

	h.snapshotMu.Lock()
	defer h.snapshotMu.Unlock()
	docs, err := h.query(ctx, topic)
	if err != nil {
		h.log.LogError(ctx, client.UserID, err, "snapshot")
		h.sendError(client, subID, "query failed")
		return nil
	}
	h.sendSnapshot(client, subID, topic, docs)
	return nil
}

// Unsubscribe releases subID. It reports whether the subscription existed.
func (h *LiveHub) Unsubscribe(client *Client, subID string) bool {
	h.mu.Lock()
	subs := h.clients[client]
	sub, ok := subs[subID]
	if ok {
		h.dropLocked(sub)
	}
	h.mu.Unlock()

	if ok {
		h.log.LogSubscription(context.Background(), client.UserID, sub.topic.Key(), subID, "released")
	}
	return ok
}

// dropLocked removes sub from both indexes. h.mu must be held.
func (h *LiveHub) dropLocked(sub *subscription) {
	key := sub.topic.Key()
	if set, ok := h.topics[key]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.topics, key)
		}
	}
	if subs, ok := h.clients[sub.client]; ok && subs[sub.id] == sub {
		delete(subs, sub.id)
	}
	observability.LiveSubscriptionsActive.WithLabelValues(sub.topic.Collection).Dec()
}

// Refresh re-runs the query behind topic once and pushes the result to every
// subscription on it. Topics without subscribers are skipped.
func (h *LiveHub) Refresh(ctx context.Context, topic Topic) {
	h.mu.RLock()
	set := h.topics[topic.Key()]
	targets := make([]*subscription, 0, len(set))
	for sub := range set {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	h.snapshotMu.Lock()
	defer h.snapshotMu.Unlock()
	docs, err := h.query(ctx, topic)
	if err != nil {
		h.log.LogError(ctx, 0, err, "refresh")
		return
	}
	for _, sub := range targets {
		h.sendSnapshot(sub.client, sub.id, topic, docs)
	}
}

// SubscriberCount returns the number of open subscriptions on topic.
func (h *LiveHub) SubscriberCount(topic Topic) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic.Key()])
}

// StartWiring connects the Notifier to this hub: every Redis notification
// refreshes the matching topic.
func (h *LiveHub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartLiveSubscriber(ctx, func(topic Topic) {
		h.Refresh(ctx, topic)
	})
}

func (h *LiveHub) query(ctx context.Context, topic Topic) (json.RawMessage, error) {
	var (
		docs any
		err  error
	)
	switch topic.Collection {
	case models.CollectionComments:
		var comments []*models.Comment
		comments, err = h.source.ListComments(ctx, topic.PostID)
		if comments == nil {
			comments = []*models.Comment{}
		}
		docs = comments
	default:
		var posts []*models.Post
		posts, err = h.source.ListPosts(ctx)
		if posts == nil {
			posts = []*models.Post{}
		}
		docs = posts
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(docs)
}

func (h *LiveHub) sendSnapshot(client *Client, subID string, topic Topic, docs json.RawMessage) {
	if h.send(client, models.LiveMessage{Type: models.LiveMsgSnapshot, Sub: subID, Docs: docs}) {
		observability.LiveSnapshotsSent.WithLabelValues(topic.Collection).Inc()
	}
}

func (h *LiveHub) sendError(client *Client, subID, msg string) {
	h.send(client, models.LiveMessage{Type: models.LiveMsgError, Sub: subID, Error: msg})
}

func (h *LiveHub) send(client *Client, msg models.LiveMessage) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.LogError(context.Background(), client.UserID, err, "marshal")
		return false
	}
	return client.TrySend(data)
}

// Shutdown releases every subscription and disconnects all clients.
func (h *LiveHub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	// Closing the send queue makes each write pump emit a close frame.
	for _, client := range clients {
		h.UnregisterClient(client)
	}
	h.log.LogLifecycle(context.Background(), "shutdown", map[string]interface{}{"clients": len(clients)})
	return nil
}

// internal/editor/service.go
package editor

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"pygowave/config"
	"pygowave/internal/broadcast"
	"pygowave/internal/metrics"
	"pygowave/internal/storage"
	"pygowave/pkg/ot"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Service wires the WebSocket transport to the wavelet/blip domain model and
// the ambient storage/broadcast/metrics dependencies.
type Service struct {
	hub      *Hub
	upgrader websocket.Upgrader
	config   *config.Config
	logger   *zap.Logger
	store    *storage.Store
	bcast    *broadcast.Broadcaster
	metrics  *metrics.Metrics

	mu             sync.RWMutex
	wavelets       map[string]*Wavelet
	sessions       map[*Client]*Session
	subscribed     map[string]bool
	cursorManagers map[string]*CursorManager

	ctx    context.Context
	cancel context.CancelFunc
}

// NewService creates a new editor service. store and bcast may be nil, in
// which case persistence and cross-instance fanout are simply skipped -
// the service still runs correctly for a single in-memory instance.
func NewService(cfg *config.Config, logger *zap.Logger, store *storage.Store, bcast *broadcast.Broadcaster, m *metrics.Metrics) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		hub:            NewHub(logger),
		config:         cfg,
		logger:         logger,
		store:          store,
		bcast:          bcast,
		metrics:        m,
		wavelets:       make(map[string]*Wavelet),
		sessions:       make(map[*Client]*Session),
		subscribed:     make(map[string]bool),
		cursorManagers: make(map[string]*CursorManager),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the hub's main loop. Per-wavelet broadcast subscriptions
// are started lazily as wavelets are first referenced.
func (s *Service) Start() error {
	s.logger.Info("starting editor service")
	go s.hub.run()
	return nil
}

// Shutdown gracefully stops the service.
func (s *Service) Shutdown() {
	s.logger.Info("shutting down editor service")
	s.cancel()
	s.hub.shutdown()
	if s.store != nil {
		s.store.Close()
	}
	if s.bcast != nil {
		s.bcast.Close()
	}
}

func waveletKey(waveID, waveletID string) string {
	return waveID + "/" + waveletID
}

// wavelet returns the in-memory wavelet for (waveID, waveletID), creating it
// (and subscribing to its broadcast channel) on first reference.
func (s *Service) wavelet(waveID, waveletID string) *Wavelet {
	key := waveletKey(waveID, waveletID)

	s.mu.Lock()
	w, ok := s.wavelets[key]
	if !ok {
		w = NewWavelet(waveID, waveletID)
		s.wavelets[key] = w
	}
	needsSubscribe := s.bcast != nil && !s.subscribed[key]
	if needsSubscribe {
		s.subscribed[key] = true
	}
	cm, ok := s.cursorManagers[key]
	if !ok {
		cm = NewCursorManager()
		s.cursorManagers[key] = cm
	}
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.EnsureWavelet(context.Background(), waveID, waveletID); err != nil {
			s.logger.Warn("ensure wavelet", zap.Error(err))
			s.metrics.StorageErrorsTotal.Inc()
		}
	}

	if needsSubscribe {
		go s.relayBroadcast(w)
	}

	return w
}

func (s *Service) cursorManager(waveID, waveletID string) *CursorManager {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursorManagers[waveletKey(waveID, waveletID)]
}

// relayBroadcast subscribes to a wavelet's Redis channel and applies
// sibling-instance deltas to the local in-memory blip, then fans them out to
// this instance's own connected sessions exactly as if they had been
// applied locally.
func (s *Service) relayBroadcast(w *Wavelet) {
	ch, err := s.bcast.Subscribe(s.ctx, w.WaveletID)
	if err != nil {
		s.logger.Warn("subscribe to wavelet broadcast", zap.Error(err))
		s.metrics.BroadcastErrorsTotal.Inc()
		return
	}

deltas:
	for delta := range ch {
		ops := make([]*ot.Operation, 0, len(delta.Ops))
		for _, raw := range delta.Ops {
			op, err := ot.Unserialize(raw)
			if err != nil {
				// A malformed entry drops the whole delta.
				continue deltas
			}
			ops = append(ops, op)
		}

		blip := w.Blip(delta.BlipID)

		applied := blip.ApplyBroadcast(delta.Version, ops)
		for _, batch := range applied {
			s.deliverToBlipSessions(w, blip, batch, "")
		}
	}
}

// HandleWebSocket upgrades a connection and attaches it to a wavelet/blip
// session. Query parameters: wave, wavelet, blip (all required), and an
// optional user for a stable display name.
func (s *Service) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	waveID := r.URL.Query().Get("wave")
	waveletID := r.URL.Query().Get("wavelet")
	blipID := r.URL.Query().Get("blip")
	if waveID == "" || waveletID == "" || blipID == "" {
		http.Error(w, "missing wave, wavelet, or blip parameter", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	clientID := uuid.New().String()[:8]
	client := NewClient(s.hub, conn, s, waveID, waveletID, blipID, clientID)

	wavelet := s.wavelet(waveID, waveletID)
	blip := wavelet.Blip(blipID)
	if s.store != nil {
		if rec, found, err := s.store.GetBlip(context.Background(), waveID, waveletID, blipID); err == nil && found {
			blip.SetInitial(rec.Content, rec.Version)
		}
	}
	participant := &Participant{ID: client.id, Username: client.username, Color: client.color, JoinedAt: time.Now()}
	wavelet.Join(participant)

	if s.store != nil {
		go func() {
			rec := storage.ParticipantRecord{ID: participant.ID, Username: participant.Username, Color: participant.Color, JoinedAt: participant.JoinedAt}
			if err := s.store.AddParticipant(context.Background(), waveID, waveletID, rec); err != nil {
				s.logger.Warn("persist participant join", zap.Error(err))
			}
		}()
	}

	session := NewSession(participant, wavelet, blip, func(version int, ops []map[string]any) {
		msg := Message{Type: MsgProcessOperations, WaveID: waveID, WaveletID: waveletID, BlipID: blipID, Version: version, Ops: ops}
		if data, err := json.Marshal(msg); err == nil {
			select {
			case client.send <- data:
			default:
			}
		}
	})

	s.mu.Lock()
	s.sessions[client] = session
	s.mu.Unlock()

	s.hub.register <- client
	s.metrics.ConnectionsTotal.Inc()
	s.metrics.ConnectionsActive.Inc()

	go client.writePump()
	go client.readPump()

	client.sendInitMessage()
	s.sendDocumentState(client)

	s.logger.Info("client connected", zap.String("client", client.id), zap.String("blip", blipID))
}

// session returns the session owning client, if any.
func (s *Service) session(client *Client) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[client]
}

// ApplyTextUpdate diffs newText against the blip's current content,
// rebases and commits the resulting operations through client's session,
// persists the result, and fans it out to every other session on the blip
// and to sibling instances.
func (s *Service) ApplyTextUpdate(client *Client, baseVersion int, newText string) {
	sess := s.session(client)
	if sess == nil {
		return
	}

	start := time.Now()
	oldText, _ := sess.Blip.Snapshot()
	diff := ot.NewOpManager(sess.Wavelet.WaveID, sess.Wavelet.WaveletID)
	ot.GenerateDiffOps(diff, sess.Blip.ID, oldText, newText)
	ops := diff.Fetch()
	if len(ops) == 0 {
		return
	}

	newVersion := sess.ApplyLocalEdit(baseVersion, ops)
	s.metrics.ObserveTransform(start)
	s.metrics.OperationsAppliedTotal.Inc()

	s.deliverToBlipSessions(sess.Wavelet, sess.Blip, ops, client.id)
	s.persistAndBroadcast(sess, newVersion, ops)
}

func (s *Service) persistAndBroadcast(sess *Session, version int, ops []*ot.Operation) {
	serialOps := make([]map[string]any, len(ops))
	for i, op := range ops {
		serialOps[i] = op.Serialize()
	}

	content, _ := sess.Blip.Snapshot()
	if s.store != nil {
		if err := s.store.SaveBlip(context.Background(), sess.Wavelet.WaveID, sess.Wavelet.WaveletID, sess.Blip.ID, content, version, serialOps); err != nil {
			s.logger.Warn("save blip", zap.Error(err))
			s.metrics.StorageErrorsTotal.Inc()
		}
	}

	if s.bcast != nil {
		d := broadcast.Delta{WaveID: sess.Wavelet.WaveID, WaveletID: sess.Wavelet.WaveletID, BlipID: sess.Blip.ID, Version: version, Ops: serialOps}
		if err := s.bcast.Publish(context.Background(), d); err != nil {
			s.logger.Warn("publish delta", zap.Error(err))
			s.metrics.BroadcastErrorsTotal.Inc()
		}
	}
}

// deliverToBlipSessions pushes ops to every session on the same blip except
// the one identified by excludeClientID (the originator, which already has
// the edit applied locally).
func (s *Service) deliverToBlipSessions(w *Wavelet, b *Blip, ops []*ot.Operation, excludeClientID string) {
	s.mu.RLock()
	targets := make([]*Session, 0, len(s.sessions))
	for client, sess := range s.sessions {
		if sess.Blip == b && client.id != excludeClientID {
			targets = append(targets, sess)
		}
	}
	s.mu.RUnlock()

	for _, sess := range targets {
		sess.Deliver(ops)
	}

	serialOps := make([]map[string]any, len(ops))
	for i, op := range ops {
		serialOps[i] = op.Serialize()
	}
	content, version := b.Snapshot()
	notice := Message{
		Type: MsgOperationApplied, WaveID: w.WaveID, WaveletID: w.WaveletID, BlipID: b.ID,
		Version: version, Ops: serialOps, Content: content,
	}
	if data, err := json.Marshal(notice); err == nil {
		s.hub.broadcast <- data
	}
}

// Acknowledge records that client has caught up to newVersion.
func (s *Service) Acknowledge(client *Client, newVersion int) {
	if sess := s.session(client); sess != nil {
		sess.Acknowledge(newVersion)
	}
}

// sendDocumentState sends the current blip content and version to client.
func (s *Service) sendDocumentState(client *Client) {
	sess := s.session(client)
	if sess == nil {
		return
	}
	content, version := sess.Blip.Snapshot()
	msg := Message{
		Type: MsgDocumentState, WaveID: client.waveID, WaveletID: client.waveletID, BlipID: client.blipID,
		Content: content, Version: version,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Warn("marshal document state", zap.Error(err))
		return
	}
	select {
	case client.send <- data:
	default:
	}
}

// RemoveClientFromBlip cleans up session/participant state when a client
// disconnects.
func (s *Service) RemoveClientFromBlip(client *Client) {
	s.mu.Lock()
	sess, ok := s.sessions[client]
	delete(s.sessions, client)
	s.mu.Unlock()

	if !ok {
		return
	}
	sess.Wavelet.Leave(client.id)
	if cm := s.cursorManager(client.waveID, client.waveletID); cm != nil {
		cm.RemoveClient(client.id)
	}
	if s.store != nil {
		go func() {
			if err := s.store.RemoveParticipant(context.Background(), client.waveID, client.waveletID, client.id); err != nil {
				s.logger.Warn("persist participant leave", zap.Error(err))
			}
		}()
	}

	s.metrics.ConnectionsActive.Dec()
}

// internal/editor/cursor.go
package editor

import (
	"sync"
	"time"
)

// CursorPosition represents a participant's cursor position within one blip.
type CursorPosition struct {
	ClientID  string    `json:"clientId"`
	Username  string    `json:"username"`
	BlipID    string    `json:"blipId"`
	Position  int       `json:"position"`
	Color     string    `json:"color"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SelectionRange represents a participant's text selection within one blip.
type SelectionRange struct {
	ClientID string `json:"clientId"`
	Username string `json:"username"`
	BlipID   string `json:"blipId"`
	Start    int    `json:"start"`
	End      int    `json:"end"`
	Color    string `json:"color"`
}

// CursorManager tracks cursor/selection presence for every blip of one
// wavelet. Service hands out a single CursorManager per wavelet (not per
// blip), since a wavelet's blips are created lazily and a manager can't be
// stood up before a blip's first reference - so entries carry their own
// BlipID and every lookup that crosses participants filters on it, keeping
// presence scoped to a blip even though the map holding it is shared across
// every blip in the wavelet.
type CursorManager struct {
	mu         sync.RWMutex
	cursors    map[string]*CursorPosition
	selections map[string]*SelectionRange
}

// NewCursorManager creates a new cursor manager.
func NewCursorManager() *CursorManager {
	return &CursorManager{
		cursors:    make(map[string]*CursorPosition),
		selections: make(map[string]*SelectionRange),
	}
}

// UpdateCursorPosition updates a client's cursor position within blipID.
func (cm *CursorManager) UpdateCursorPosition(clientID, username, color, blipID string, position int) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.cursors[clientID] = &CursorPosition{
		ClientID:  clientID,
		Username:  username,
		BlipID:    blipID,
		Position:  position,
		Color:     color,
		UpdatedAt: time.Now(),
	}
}

// UpdateSelection updates a client's text selection within blipID.
func (cm *CursorManager) UpdateSelection(clientID, username, color, blipID string, start, end int) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if start == end {
		// No selection, remove it
		delete(cm.selections, clientID)
	} else {
		cm.selections[clientID] = &SelectionRange{
			ClientID: clientID,
			Username: username,
			BlipID:   blipID,
			Start:    start,
			End:      end,
			Color:    color,
		}
	}
}

// RemoveClient removes a client's cursor and selection from every blip of
// this wavelet.
func (cm *CursorManager) RemoveClient(clientID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	delete(cm.cursors, clientID)
	delete(cm.selections, clientID)
}

// GetAllCursors returns cursor positions on blipID, except for the
// requesting client.
func (cm *CursorManager) GetAllCursors(blipID, excludeClientID string) []CursorPosition {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	var positions []CursorPosition
	for id, cursor := range cm.cursors {
		if id != excludeClientID && cursor.BlipID == blipID {
			positions = append(positions, *cursor)
		}
	}
	return positions
}

// GetAllSelections returns selections on blipID, except for the requesting
// client.
func (cm *CursorManager) GetAllSelections(blipID, excludeClientID string) []SelectionRange {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	var selections []SelectionRange
	for id, selection := range cm.selections {
		if id != excludeClientID && selection.BlipID == blipID {
			selections = append(selections, *selection)
		}
	}
	return selections
}

// CleanupStale removes cursor positions that haven't been updated recently,
// across every blip of this wavelet.
func (cm *CursorManager) CleanupStale(timeout time.Duration) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	now := time.Now()
	for id, cursor := range cm.cursors {
		if now.Sub(cursor.UpdatedAt) > timeout {
			delete(cm.cursors, id)
			delete(cm.selections, id)
		}
	}
}

package memory

import (
	"context"
	"sync"
	"time"
	"whiteboard-server/core"

	"github.com/sirupsen/logrus"
)

const (
	DefaultBoardTTL    = 24 * time.Hour
	DefaultPresenceTTL = 2 * time.Hour
)

type boardEntry struct {
	board     *core.Board
	expiresAt time.Time
}

type memberEntry struct {
	presence  core.Presence
	expiresAt time.Time
}

// RoomStore is the in-process implementation of core.BoardStore and
// core.PresenceStore. Expiry is lazy: entries past their deadline read as
// absent and are dropped on access.
type RoomStore struct {
	mu          sync.RWMutex
	boards      map[string]boardEntry
	members     map[string]map[string]memberEntry
	boardTTL    time.Duration
	presenceTTL time.Duration
}

func NewRoomStore(boardTTL, presenceTTL time.Duration) *RoomStore {
	if boardTTL <= 0 {
		boardTTL = DefaultBoardTTL
	}
	if presenceTTL <= 0 {
		presenceTTL = DefaultPresenceTTL
	}
	return &RoomStore{
		boards:      make(map[string]boardEntry),
		members:     make(map[string]map[string]memberEntry),
		boardTTL:    boardTTL,
		presenceTTL: presenceTTL,
	}
}

func (s *RoomStore) Init(ctx context.Context, roomID string, board *core.Board) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.boards[roomID]; ok && time.Now().Before(entry.expiresAt) {
		logrus.WithField("room_id", roomID).Warn("Board already initialised, keeping existing document")
		return nil
	}

	s.boards[roomID] = boardEntry{board: board.Clone(), expiresAt: time.Now().Add(s.boardTTL)}
	logrus.WithFields(logrus.Fields{
		"room_id":  roomID,
		"elements": len(board.Elements),
	}).Info("Board initialised")
	return nil
}

func (s *RoomStore) Get(ctx context.Context, roomID string) (*core.Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	board, ok := s.liveBoard(roomID)
	if !ok {
		return nil, core.ErrBoardNotFound
	}
	return board.Clone(), nil
}

func (s *RoomStore) UpsertElement(ctx context.Context, roomID string, element core.Element) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	board, ok := s.liveBoard(roomID)
	if !ok {
		return core.ErrBoardNotFound
	}
	board.UpsertElement(element)
	return nil
}

func (s *RoomStore) EraseElements(ctx context.Context, roomID string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	board, ok := s.liveBoard(roomID)
	if !ok {
		return core.ErrBoardNotFound
	}
	board.EraseElements(ids)
	return nil
}

func (s *RoomStore) Delete(ctx context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.boards, roomID)
	return nil
}

// liveBoard returns the stored board when present and unexpired. Callers
// hold s.mu.
func (s *RoomStore) liveBoard(roomID string) (*core.Board, bool) {
	entry, ok := s.boards[roomID]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(s.boards, roomID)
		return nil, false
	}
	return entry.board, true
}

func (s *RoomStore) Join(ctx context.Context, roomID, userID string, presence core.Presence) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.members[roomID]
	if !ok {
		room = make(map[string]memberEntry)
		s.members[roomID] = room
	}
	room[userID] = memberEntry{presence: presence, expiresAt: time.Now().Add(s.presenceTTL)}
	return nil
}

func (s *RoomStore) Leave(ctx context.Context, roomID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.members[roomID]
	if !ok {
		return nil
	}
	delete(room, userID)
	if len(room) == 0 {
		delete(s.members, roomID)
	}
	return nil
}

func (s *RoomStore) Members(ctx context.Context, roomID string) (map[string]core.Presence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room := s.liveMembers(roomID)
	result := make(map[string]core.Presence, len(room))
	for userID, entry := range room {
		result[userID] = entry.presence
	}
	return result, nil
}

func (s *RoomStore) RoomsOf(ctx context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rooms []string
	for roomID := range s.members {
		if _, ok := s.liveMembers(roomID)[userID]; ok {
			rooms = append(rooms, roomID)
		}
	}
	return rooms, nil
}

func (s *RoomStore) Exists(ctx context.Context, roomID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.liveMembers(roomID)) > 0, nil
}

func (s *RoomStore) DeleteRoom(ctx context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.members, roomID)
	return nil
}

// liveMembers drops expired presence entries and returns the remaining
// member set. Callers hold s.mu.
func (s *RoomStore) liveMembers(roomID string) map[string]memberEntry {
	room, ok := s.members[roomID]
	if !ok {
		return nil
	}
	now := time.Now()
	for userID, entry := range room {
		if now.After(entry.expiresAt) {
			delete(room, userID)
		}
	}
	if len(room) == 0 {
		delete(s.members, roomID)
		return nil
	}
	return room
}

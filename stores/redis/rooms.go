package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"whiteboard-server/core"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	DefaultBoardTTL    = 24 * time.Hour
	DefaultPresenceTTL = 2 * time.Hour

	boardKeyPrefix    = "board:"
	membersKeyPrefix  = "room:"
	membersKeySuffix  = ":members"
	membersScanFilter = membersKeyPrefix + "*" + membersKeySuffix
)

// RoomStore implements core.BoardStore and core.PresenceStore on a Redis
// instance shared by every server process. The board is one JSON blob per
// room; membership is a hash of userID to presence JSON.
type RoomStore struct {
	rdb         *redis.Client
	boardTTL    time.Duration
	presenceTTL time.Duration
}

func NewRoomStore(rdb *redis.Client, boardTTL, presenceTTL time.Duration) *RoomStore {
	if boardTTL <= 0 {
		boardTTL = DefaultBoardTTL
	}
	if presenceTTL <= 0 {
		presenceTTL = DefaultPresenceTTL
	}
	return &RoomStore{rdb: rdb, boardTTL: boardTTL, presenceTTL: presenceTTL}
}

func boardKey(roomID string) string {
	return boardKeyPrefix + roomID
}

func membersKey(roomID string) string {
	return membersKeyPrefix + roomID + membersKeySuffix
}

func (s *RoomStore) Init(ctx context.Context, roomID string, board *core.Board) error {
	data, err := json.Marshal(board)
	if err != nil {
		return fmt.Errorf("marshal board for room %s: %w", roomID, err)
	}

	created, err := s.rdb.SetNX(ctx, boardKey(roomID), data, s.boardTTL).Result()
	if err != nil {
		return err
	}
	if !created {
		logrus.WithField("room_id", roomID).Warn("Board already initialised, keeping existing document")
	}
	return nil
}

func (s *RoomStore) Get(ctx context.Context, roomID string) (*core.Board, error) {
	data, err := s.rdb.Get(ctx, boardKey(roomID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, core.ErrBoardNotFound
		}
		return nil, err
	}

	var board core.Board
	if err := json.Unmarshal(data, &board); err != nil {
		return nil, fmt.Errorf("unmarshal board for room %s: %w", roomID, err)
	}
	return &board, nil
}

func (s *RoomStore) UpsertElement(ctx context.Context, roomID string, element core.Element) error {
	return s.mutate(ctx, roomID, func(board *core.Board) {
		board.UpsertElement(element)
	})
}

func (s *RoomStore) EraseElements(ctx context.Context, roomID string, ids []string) error {
	return s.mutate(ctx, roomID, func(board *core.Board) {
		board.EraseElements(ids)
	})
}

// mutate performs a whole-document read-modify-write, keeping the TTL set
// at init time. The human drawing rate per room is far below what would
// need finer-grained locking; concurrent writers are last-write-wins.
func (s *RoomStore) mutate(ctx context.Context, roomID string, apply func(*core.Board)) error {
	board, err := s.Get(ctx, roomID)
	if err != nil {
		return err
	}

	apply(board)

	data, err := json.Marshal(board)
	if err != nil {
		return fmt.Errorf("marshal board for room %s: %w", roomID, err)
	}
	return s.rdb.Set(ctx, boardKey(roomID), data, redis.KeepTTL).Err()
}

func (s *RoomStore) Delete(ctx context.Context, roomID string) error {
	return s.rdb.Del(ctx, boardKey(roomID)).Err()
}

func (s *RoomStore) Join(ctx context.Context, roomID, userID string, presence core.Presence) error {
	data, err := json.Marshal(presence)
	if err != nil {
		return fmt.Errorf("marshal presence for user %s: %w", userID, err)
	}

	key := membersKey(roomID)
	if err := s.rdb.HSet(ctx, key, userID, data).Err(); err != nil {
		return err
	}
	return s.rdb.Expire(ctx, key, s.presenceTTL).Err()
}

func (s *RoomStore) Leave(ctx context.Context, roomID, userID string) error {
	return s.rdb.HDel(ctx, membersKey(roomID), userID).Err()
}

func (s *RoomStore) Members(ctx context.Context, roomID string) (map[string]core.Presence, error) {
	entries, err := s.rdb.HGetAll(ctx, membersKey(roomID)).Result()
	if err != nil {
		return nil, err
	}

	members := make(map[string]core.Presence, len(entries))
	for userID, raw := range entries {
		var presence core.Presence
		if err := json.Unmarshal([]byte(raw), &presence); err != nil {
			logrus.WithFields(logrus.Fields{
				"room_id": roomID,
				"user_id": userID,
				"error":   err,
			}).Warn("Skipping undecodable presence entry")
			continue
		}
		members[userID] = presence
	}
	return members, nil
}

// RoomsOf scans membership hashes rather than maintaining a reverse index;
// membership changes are rare next to drawing traffic.
func (s *RoomStore) RoomsOf(ctx context.Context, userID string) ([]string, error) {
	var rooms []string

	iter := s.rdb.Scan(ctx, 0, membersScanFilter, 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		member, err := s.rdb.HExists(ctx, key, userID).Result()
		if err != nil {
			return nil, err
		}
		if member {
			roomID := strings.TrimSuffix(strings.TrimPrefix(key, membersKeyPrefix), membersKeySuffix)
			rooms = append(rooms, roomID)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return rooms, nil
}

func (s *RoomStore) Exists(ctx context.Context, roomID string) (bool, error) {
	count, err := s.rdb.HLen(ctx, membersKey(roomID)).Result()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *RoomStore) DeleteRoom(ctx context.Context, roomID string) error {
	return s.rdb.Del(ctx, membersKey(roomID)).Err()
}

package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"
	"whiteboard-server/core"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	maxUserIDLength = 50
	queueDepth      = 256
	closeWriteWait  = time.Second
)

type handlerFunc func(ctx context.Context, userID string, payload json.RawMessage)

// Collab is the realtime synchronization engine: it owns the connection
// registry and the handler table, and is wired to the shared board and
// presence stores plus the cross-process message bus at construction.
// Multiple independent instances can run side by side (and do, in tests).
type Collab struct {
	registry *Registry
	boards   core.BoardStore
	presence core.PresenceStore
	bus      core.MessageBus
	upgrader websocket.Upgrader
	handlers map[string]handlerFunc
}

func NewCollab(boards core.BoardStore, presence core.PresenceStore, bus core.MessageBus) *Collab {
	c := &Collab{
		registry: NewRegistry(),
		boards:   boards,
		presence: presence,
		bus:      bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     allowOrigin,
		},
	}

	c.handlers = map[string]handlerFunc{
		MsgJoinRoom:       c.handleJoinRoom,
		MsgLeaveRoom:      c.handleLeaveRoom,
		MsgMousePosition:  c.handleMousePosition,
		MsgDrawingElement: c.upsertHandler(MsgDrawElement),
		MsgElementMoves:   c.upsertHandler(MsgMoveElement),
		MsgElementResize:  c.upsertHandler(MsgResizeElement),
		MsgElementUpdate:  c.upsertHandler(MsgUpdateElement),
		MsgElementsErase:  c.handleElementsErase,
		MsgImagesAdded:    c.handleImagesAdded,
	}
	return c
}

func allowOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}

	switch parsed.Scheme {
	case "http", "https":
		switch parsed.Hostname() {
		case "localhost", "127.0.0.1", "[::1]":
			return true
		}
	case "tauri":
		return parsed.Hostname() == "localhost"
	}
	return false
}

// Run consumes the message bus until ctx is done. Every process subscribes
// to the same channel; the one holding the target user's connection
// delivers, everyone else drops silently.
func (c *Collab) Run(ctx context.Context) error {
	return c.bus.Subscribe(ctx, func(envelope core.Envelope) {
		c.registry.SendLocal(envelope.UserID, envelope.Type, envelope.Payload)
	})
}

// CreateRoom mints a fresh room token. No state is written: the room comes
// into existence once its board is initialised and members join.
func (c *Collab) CreateRoom(ctx context.Context, userID string) (string, error) {
	roomID := uuid.NewString()
	logrus.WithFields(logrus.Fields{
		"room_id": roomID,
		"user_id": userID,
	}).Info("Room created")
	return roomID, nil
}

// InitialiseWhiteboard writes the room's initial board document. Called by
// the HTTP layer before any client joins; a board already present is kept.
func (c *Collab) InitialiseWhiteboard(ctx context.Context, roomID string, board core.Board) error {
	return c.boards.Init(ctx, roomID, &board)
}

// Handler upgrades the request and serves the connection until it closes.
// The user identifier comes from the connection URI; a missing or malformed
// one is refused with a policy-violation close.
func (c *Collab) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := c.upgrader.Upgrade(w, r, nil)
		if err != nil {
			logrus.WithError(err).Warn("Failed to upgrade connection")
			return
		}

		userID, reason := validateUserID(r.URL.Query().Get("userId"))
		if reason != "" {
			logrus.WithField("reason", reason).Warn("Refusing connection")
			message := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
			_ = ws.WriteControl(websocket.CloseMessage, message, time.Now().Add(closeWriteWait))
			_ = ws.Close()
			return
		}

		c.serve(ws, userID)
	}
}

func validateUserID(raw string) (userID, reason string) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", "Missing user ID"
	}
	if len(trimmed) > maxUserIDLength {
		return "", "Invalid user ID format"
	}
	return trimmed, ""
}

func (c *Collab) serve(ws *websocket.Conn, userID string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := logrus.WithField("user_id", userID)
	conn := newConn(ws)
	c.registry.Register(userID, conn)
	log.Info("User connected")

	c.registry.SendLocal(userID, MsgUserRegistered, UserRegisteredPayload{
		Message: fmt.Sprintf("user %s registered", userID),
	})

	d := newDispatcher(queueDepth)
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			log.WithError(err).Debug("Connection closed")
			break
		}
		c.dispatch(ctx, d, userID, data)
	}

	// Drain pending handlers before releasing the user's state so their
	// effects are visible to the leave broadcasts.
	d.close()
	c.registry.Deregister(userID, conn)
	c.reconcileDisconnect(ctx, userID)
	if err := conn.Close(); err != nil {
		log.WithError(err).Debug("Failed to close connection")
	}
	log.Info("User disconnected")
}

// dispatch validates the frame and queues its handler. Malformed frames and
// unknown types are dropped with a log line; the connection stays open.
func (c *Collab) dispatch(ctx context.Context, d *dispatcher, userID string, data []byte) {
	log := logrus.WithField("user_id", userID)

	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		log.WithError(err).Warn("Dropping malformed frame")
		return
	}
	if frame.Type == nil || *frame.Type == "" || frame.Payload == nil {
		log.Warn("Dropping frame without type or payload")
		return
	}

	msgType := *frame.Type
	handler, ok := c.handlers[msgType]
	if !ok {
		log.WithField("type", msgType).Warn("Dropping frame with unregistered type")
		return
	}

	payload := frame.Payload
	if !d.enqueue(func() { handler(ctx, userID, payload) }) {
		log.WithField("type", msgType).Warn("Dropping frame, dispatch queue full")
	}
}

// reconcileDisconnect releases presence the user holds anywhere, not only in
// rooms this process saw them join; presence may be shared across processes.
func (c *Collab) reconcileDisconnect(ctx context.Context, userID string) {
	rooms, err := c.presence.RoomsOf(ctx, userID)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"user_id": userID,
			"error":   err,
		}).Error("Failed to enumerate rooms on disconnect")
		return
	}
	for _, roomID := range rooms {
		c.leaveRoom(ctx, userID, roomID)
	}
}

func (c *Collab) handleJoinRoom(ctx context.Context, userID string, payload json.RawMessage) {
	var req JoinRoomPayload
	if err := json.Unmarshal(payload, &req); err != nil || req.RoomID == "" {
		logrus.WithField("user_id", userID).Warn("Dropping join-room with invalid payload")
		return
	}
	log := logrus.WithFields(logrus.Fields{
		"user_id": userID,
		"room_id": req.RoomID,
	})

	board, err := c.boards.Get(ctx, req.RoomID)
	if err != nil {
		if errors.Is(err, core.ErrBoardNotFound) {
			log.Warn("Join rejected, room does not exist")
		} else {
			log.WithError(err).Error("Failed to load board")
		}
		return
	}

	presence := core.Presence{UserName: req.Name, Color: randomColor()}
	if err := c.presence.Join(ctx, req.RoomID, userID, presence); err != nil {
		log.WithError(err).Error("Failed to store presence")
		return
	}

	elements := board.Elements
	if elements == nil {
		elements = []core.Element{}
	}
	c.sendToUser(ctx, userID, MsgRoomJoined, RoomJoinedPayload{
		Elements:  elements,
		Scale:     board.Scale,
		PanOffset: board.PanOffset,
	})
	c.broadcastToRoom(ctx, userID, req.RoomID, MsgAddParticipant, AddParticipantPayload{
		RoomID:      req.RoomID,
		UserID:      userID,
		UserDetails: presence,
	})
	log.Info("User joined room")
}

func (c *Collab) handleLeaveRoom(ctx context.Context, userID string, payload json.RawMessage) {
	var req LeaveRoomPayload
	if err := json.Unmarshal(payload, &req); err != nil || req.RoomID == "" {
		logrus.WithField("user_id", userID).Warn("Dropping leave-room with invalid payload")
		return
	}
	c.leaveRoom(ctx, userID, req.RoomID)
}

// leaveRoom removes the user's presence and, when the member set empties,
// eagerly tears down all room-scoped state. TTL expiry remains the passive
// backstop for rooms abandoned without a leave.
func (c *Collab) leaveRoom(ctx context.Context, userID, roomID string) {
	log := logrus.WithFields(logrus.Fields{
		"user_id": userID,
		"room_id": roomID,
	})

	members, err := c.presence.Members(ctx, roomID)
	if err != nil {
		log.WithError(err).Error("Failed to load room members")
		return
	}
	if _, ok := members[userID]; !ok {
		log.Warn("Leave ignored, user is not a member")
		return
	}

	if err := c.presence.Leave(ctx, roomID, userID); err != nil {
		log.WithError(err).Error("Failed to remove presence")
		return
	}

	if len(members) == 1 {
		if err := c.presence.DeleteRoom(ctx, roomID); err != nil {
			log.WithError(err).Warn("Failed to delete room membership")
		}
		if err := c.boards.Delete(ctx, roomID); err != nil {
			log.WithError(err).Warn("Failed to delete board")
		}
		log.Info("Last member left, room cleaned up")
		return
	}

	c.broadcastToRoom(ctx, userID, roomID, MsgRemoveParticipant, RemoveParticipantPayload{
		RoomID: roomID,
		UserID: userID,
	})
	log.Info("User left room")
}

func (c *Collab) handleMousePosition(ctx context.Context, userID string, payload json.RawMessage) {
	var req MousePositionPayload
	if err := json.Unmarshal(payload, &req); err != nil || req.RoomID == "" {
		logrus.WithField("user_id", userID).Warn("Dropping mouse-position with invalid payload")
		return
	}

	members, err := c.presence.Members(ctx, req.RoomID)
	if err != nil {
		logrus.WithError(err).Error("Failed to load room members")
		return
	}
	presence, ok := members[userID]
	if !ok {
		logrus.WithFields(logrus.Fields{
			"user_id": userID,
			"room_id": req.RoomID,
		}).Warn("Dropping mouse-position, user has no presence in room")
		return
	}

	c.broadcastToRoom(ctx, userID, req.RoomID, MsgParticipantPosition, ParticipantPositionPayload{
		RoomID:      req.RoomID,
		UserID:      userID,
		X:           req.X,
		Y:           req.Y,
		UserDetails: presence,
	})
}

// upsertHandler builds the handler shared by the drawing-element,
// element-moves, element-resize and element-update messages; they differ
// only in the outbound type.
func (c *Collab) upsertHandler(outType string) handlerFunc {
	return func(ctx context.Context, userID string, payload json.RawMessage) {
		var req ElementPayload
		if err := json.Unmarshal(payload, &req); err != nil || req.RoomID == "" || req.Element == nil || req.Element.ID == "" {
			logrus.WithField("user_id", userID).Warn("Dropping element message with invalid payload")
			return
		}
		log := logrus.WithFields(logrus.Fields{
			"user_id":    userID,
			"room_id":    req.RoomID,
			"element_id": req.Element.ID,
		})

		if err := c.boards.UpsertElement(ctx, req.RoomID, *req.Element); err != nil {
			if errors.Is(err, core.ErrBoardNotFound) {
				log.Warn("Dropping element message, board does not exist")
			} else {
				log.WithError(err).Error("Failed to upsert element")
			}
			return
		}

		if outType == MsgDrawElement {
			c.broadcastToRoom(ctx, userID, req.RoomID, outType, DrawElementPayload{
				RoomID:     req.RoomID,
				NewElement: *req.Element,
			})
			return
		}
		c.broadcastToRoom(ctx, userID, req.RoomID, outType, ElementChangedPayload{
			RoomID:  req.RoomID,
			Element: *req.Element,
		})
	}
}

func (c *Collab) handleElementsErase(ctx context.Context, userID string, payload json.RawMessage) {
	var req ErasePayload
	if err := json.Unmarshal(payload, &req); err != nil || req.RoomID == "" {
		logrus.WithField("user_id", userID).Warn("Dropping elements-erase with invalid payload")
		return
	}
	log := logrus.WithFields(logrus.Fields{
		"user_id": userID,
		"room_id": req.RoomID,
	})

	if err := c.boards.EraseElements(ctx, req.RoomID, req.Elements); err != nil {
		if errors.Is(err, core.ErrBoardNotFound) {
			log.Warn("Dropping elements-erase, board does not exist")
		} else {
			log.WithError(err).Error("Failed to erase elements")
		}
		return
	}

	c.broadcastToRoom(ctx, userID, req.RoomID, MsgEraseElements, EraseElementsPayload{
		RoomID:   req.RoomID,
		Elements: req.Elements,
	})
}

func (c *Collab) handleImagesAdded(ctx context.Context, userID string, payload json.RawMessage) {
	var req ElementsPayload
	if err := json.Unmarshal(payload, &req); err != nil || req.RoomID == "" || len(req.Elements) == 0 {
		logrus.WithField("user_id", userID).Warn("Dropping images-added with invalid payload")
		return
	}
	log := logrus.WithFields(logrus.Fields{
		"user_id": userID,
		"room_id": req.RoomID,
	})

	for _, element := range req.Elements {
		if element.ID == "" {
			log.Warn("Skipping image element without id")
			continue
		}
		if err := c.boards.UpsertElement(ctx, req.RoomID, element); err != nil {
			if errors.Is(err, core.ErrBoardNotFound) {
				log.Warn("Dropping images-added, board does not exist")
				return
			}
			log.WithFields(logrus.Fields{
				"element_id": element.ID,
				"error":      err,
			}).Error("Failed to upsert image element")
		}
	}

	c.broadcastToRoom(ctx, userID, req.RoomID, MsgAddImages, AddImagesPayload{
		RoomID:   req.RoomID,
		Elements: req.Elements,
	})
}

// broadcastToRoom routes a message to every member except the sender: local
// delivery first, bus publish for members connected elsewhere. An empty
// member set is a silent no-op, covering the just-emptied race.
func (c *Collab) broadcastToRoom(ctx context.Context, senderID, roomID, msgType string, payload any) {
	members, err := c.presence.Members(ctx, roomID)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"room_id": roomID,
			"error":   err,
		}).Error("Failed to resolve room members for broadcast")
		return
	}
	if len(members) == 0 {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"type":  msgType,
			"error": err,
		}).Error("Failed to marshal broadcast payload")
		return
	}

	for memberID := range members {
		if memberID == senderID {
			continue
		}
		c.deliver(ctx, memberID, msgType, data)
	}
}

func (c *Collab) sendToUser(ctx context.Context, userID, msgType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"type":  msgType,
			"error": err,
		}).Error("Failed to marshal payload")
		return
	}
	c.deliver(ctx, userID, msgType, data)
}

func (c *Collab) deliver(ctx context.Context, userID, msgType string, data []byte) {
	if c.registry.SendLocal(userID, msgType, json.RawMessage(data)) {
		return
	}
	envelope := core.Envelope{Type: msgType, Payload: data, UserID: userID}
	if err := c.bus.Publish(ctx, envelope); err != nil {
		logrus.WithFields(logrus.Fields{
			"user_id": userID,
			"type":    msgType,
			"error":   err,
		}).Error("Failed to publish to bus")
	}
}

func randomColor() string {
	return fmt.Sprintf("#%06x", rand.Intn(0x1000000))
}

package websocket

import (
	"encoding/json"
	"whiteboard-server/core"
)

// Inbound message types.
const (
	MsgJoinRoom       = "join-room"
	MsgLeaveRoom      = "leave-room"
	MsgMousePosition  = "mouse-position"
	MsgDrawingElement = "drawing-element"
	MsgElementMoves   = "element-moves"
	MsgElementResize  = "element-resize"
	MsgElementUpdate  = "element-update"
	MsgElementsErase  = "elements-erase"
	MsgImagesAdded    = "images-added"
)

// Outbound message types.
const (
	MsgUserRegistered      = "userRegistered"
	MsgRoomJoined          = "room-joined"
	MsgAddParticipant      = "add-participant"
	MsgRemoveParticipant   = "remove-participant"
	MsgParticipantPosition = "participant-position"
	MsgDrawElement         = "draw-element"
	MsgMoveElement         = "move-element"
	MsgResizeElement       = "resize-element"
	MsgUpdateElement       = "update-element"
	MsgEraseElements       = "erase-elements"
	MsgAddImages           = "add-images"
)

// Frame is the wire format in both directions: every message carries a type
// and a payload object.
type Frame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// inboundFrame keeps the raw payload so it can be decoded into the variant
// struct for its type. Pointer and RawMessage distinguish absent keys from
// empty values; a frame missing either key is dropped.
type inboundFrame struct {
	Type    *string         `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Inbound payload variants, one per message type. Decoding fails closed:
// an undecodable or shape-invalid payload drops the message.
type (
	JoinRoomPayload struct {
		RoomID string `json:"roomId"`
		Name   string `json:"name"`
	}

	LeaveRoomPayload struct {
		RoomID string `json:"roomId"`
	}

	MousePositionPayload struct {
		RoomID string  `json:"roomId"`
		X      float64 `json:"x"`
		Y      float64 `json:"y"`
	}

	ElementPayload struct {
		RoomID  string        `json:"roomId"`
		Element *core.Element `json:"element"`
	}

	ElementsPayload struct {
		RoomID   string         `json:"roomId"`
		Elements []core.Element `json:"elements"`
	}

	ErasePayload struct {
		RoomID   string   `json:"roomId"`
		Elements []string `json:"elements"`
	}
)

// Outbound payload variants.
type (
	UserRegisteredPayload struct {
		Message string `json:"message"`
	}

	RoomJoinedPayload struct {
		Elements  []core.Element `json:"elements"`
		Scale     float64        `json:"scale"`
		PanOffset core.Point     `json:"panOffset"`
	}

	AddParticipantPayload struct {
		RoomID      string        `json:"roomId"`
		UserID      string        `json:"userId"`
		UserDetails core.Presence `json:"userDetails"`
	}

	RemoveParticipantPayload struct {
		RoomID string `json:"roomId"`
		UserID string `json:"userId"`
	}

	ParticipantPositionPayload struct {
		RoomID      string        `json:"roomId"`
		UserID      string        `json:"userId"`
		X           float64       `json:"x"`
		Y           float64       `json:"y"`
		UserDetails core.Presence `json:"userDetails"`
	}

	DrawElementPayload struct {
		RoomID     string       `json:"roomId"`
		NewElement core.Element `json:"newElement"`
	}

	ElementChangedPayload struct {
		RoomID  string       `json:"roomId"`
		Element core.Element `json:"element"`
	}

	EraseElementsPayload struct {
		RoomID   string   `json:"roomId"`
		Elements []string `json:"elements"`
	}

	AddImagesPayload struct {
		RoomID   string         `json:"roomId"`
		Elements []core.Element `json:"elements"`
	}
)

package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
)

// ErrBoardNotFound is returned by BoardStore reads when a room has no board
// document, either because it was never initialised or because it expired.
var ErrBoardNotFound = errors.New("board not found")

type (
	// Document is an opaque exported board blob created through the
	// share-link API.
	Document struct {
		Data bytes.Buffer
	}

	DocumentStore interface {
		FindID(ctx context.Context, id string) (*Document, error)
		Create(ctx context.Context, document *Document) (string, error)
	}

	// Presence is the per-room display metadata of one member. The color is
	// minted fresh on every join.
	Presence struct {
		UserName string `json:"userName"`
		Color    string `json:"color"`
	}

	// Envelope is the frame published on the message bus when a recipient
	// has no connection on the publishing process.
	Envelope struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
		UserID  string          `json:"userId"`
	}

	// BoardStore holds the authoritative board document per room. All
	// mutations are whole-document read-modify-write; Init never clobbers
	// an existing document.
	BoardStore interface {
		Init(ctx context.Context, roomID string, board *Board) error
		Get(ctx context.Context, roomID string) (*Board, error)
		UpsertElement(ctx context.Context, roomID string, element Element) error
		EraseElements(ctx context.Context, roomID string, ids []string) error
		Delete(ctx context.Context, roomID string) error
	}

	// PresenceStore tracks room membership and member display metadata,
	// independent of which process holds the live connection.
	PresenceStore interface {
		Join(ctx context.Context, roomID, userID string, presence Presence) error
		Leave(ctx context.Context, roomID, userID string) error
		Members(ctx context.Context, roomID string) (map[string]Presence, error)
		RoomsOf(ctx context.Context, userID string) ([]string, error)
		Exists(ctx context.Context, roomID string) (bool, error)
		DeleteRoom(ctx context.Context, roomID string) error
	}

	// MessageBus is the cross-process delivery channel. Delivery is
	// at-most-once and best-effort: no queuing, no acknowledgment.
	MessageBus interface {
		Publish(ctx context.Context, envelope Envelope) error
		Subscribe(ctx context.Context, fn func(Envelope)) error
	}
)

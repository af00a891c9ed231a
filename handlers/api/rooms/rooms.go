package rooms

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"whiteboard-server/core"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

type (
	CreateRoomRequest struct {
		UserID string `json:"userId"`
	}

	CreateRoomResponse struct {
		RoomID string `json:"roomId"`
	}

	// RoomService is the collaboration engine surface the HTTP layer needs.
	RoomService interface {
		CreateRoom(ctx context.Context, userID string) (string, error)
		InitialiseWhiteboard(ctx context.Context, roomID string, board core.Board) error
	}
)

// HandleCreate mints a new room token for the requesting user.
func HandleCreate(service RoomService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateRoomRequest
		err := json.NewDecoder(r.Body).Decode(&req)
		if err != nil {
			logrus.WithField("error", err).Error("Failed to decode request")
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		roomID, err := service.CreateRoom(r.Context(), req.UserID)
		if err != nil {
			logrus.WithField("error", err).Error("Failed to create room")
			http.Error(w, "Failed to create room", http.StatusInternalServerError)
			return
		}

		render.JSON(w, r, CreateRoomResponse{RoomID: roomID})
	}
}

// HandleInitialise seeds the room's board from the request body. The body
// is the board document itself; an empty body seeds an empty board.
func HandleInitialise(service RoomService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "roomId")

		var board core.Board
		err := json.NewDecoder(r.Body).Decode(&board)
		if err != nil && !errors.Is(err, io.EOF) {
			logrus.WithFields(logrus.Fields{
				"room_id": roomID,
				"error":   err,
			}).Error("Failed to decode board")
			http.Error(w, "Invalid board document", http.StatusBadRequest)
			return
		}

		if err := service.InitialiseWhiteboard(r.Context(), roomID, board); err != nil {
			logrus.WithFields(logrus.Fields{
				"room_id": roomID,
				"error":   err,
			}).Error("Failed to initialise whiteboard")
			http.Error(w, "Failed to initialise whiteboard", http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

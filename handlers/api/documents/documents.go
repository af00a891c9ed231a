package documents

import (
	"bytes"
	"io"
	"net/http"
	"whiteboard-server/core"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

type DocumentCreateResponse struct {
	ID string `json:"id"`
}

// HandleCreate stores the raw request body as a new document and returns
// its generated id.
func HandleCreate(store core.DocumentStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			logrus.WithField("error", err).Error("Failed to read request body")
			http.Error(w, "Failed to save document", http.StatusInternalServerError)
			return
		}

		document := core.Document{
			Data: *bytes.NewBuffer(data),
		}

		id, err := store.Create(r.Context(), &document)
		if err != nil {
			logrus.WithField("error", err).Error("Failed to save document")
			http.Error(w, "Failed to save document", http.StatusInternalServerError)
			return
		}

		render.JSON(w, r, DocumentCreateResponse{ID: id})
	}
}

// HandleGet writes the stored document bytes verbatim.
func HandleGet(store core.DocumentStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		document, err := store.FindID(r.Context(), id)
		if err != nil {
			http.Error(w, "Document not found", http.StatusNotFound)
			return
		}

		if _, err := w.Write(document.Data.Bytes()); err != nil {
			logrus.WithField("error", err).Warn("Failed to write document response")
		}
	}
}

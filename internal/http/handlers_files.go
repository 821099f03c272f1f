package http

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"gastos/internal/log"
)

func (s *Server) handleUploadURL(w http.ResponseWriter, r *http.Request) {
	t, err := s.files.CreateUploadTarget(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, uploadTargetJSON{
		URL:       t.URL,
		Token:     t.Token,
		ExpiresAt: t.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// handleUploadBlob stores the request body for an upload token. The response
// carries the storage ID to register against an expense.
func (s *Server) handleUploadBlob(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > s.maxUploadBytes {
		writeError(w, r, &http.MaxBytesError{Limit: s.maxUploadBytes})
		return
	}
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	body := http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	defer body.Close()
	ref, err := s.files.Upload(r.Context(), r.PathValue("token"), body, contentType)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, map[string]string{"storage_id": ref})
}

func (s *Server) handleDownloadBlob(w http.ResponseWriter, r *http.Request) {
	rc, info, err := s.files.Open(r.Context(), r.PathValue("ref"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer rc.Close()

	if info.ContentType != "" {
		w.Header().Set("Content-Type", info.ContentType)
	}
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Blob download interrupted",
			log.FieldBlobRef, r.PathValue("ref"), "error", err)
	}
}

func (s *Server) handleRegisterFile(w http.ResponseWriter, r *http.Request) {
	expenseID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req fileRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	f, err := req.file(s.mustUser(r).ID, expenseID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	saved, err := s.files.Register(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Data(fileOf(saved)).
		SuccessNotification("File " + saved.Filename + " attached").
		Write(w)
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	expenseID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	files, err := s.files.List(r.Context(), s.mustUser(r).ID, expenseID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]fileJSON, 0, len(files))
	for _, f := range files {
		out = append(out, fileOf(f))
	}
	writeData(w, http.StatusOK, out)
}

func (s *Server) handleFileURL(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	url, err := s.files.URL(r.Context(), s.mustUser(r).ID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"url": url})
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.files.Delete(r.Context(), s.mustUser(r).ID, id); err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().
		Data(map[string]int64{"id": id}).
		SuccessNotification("File removed").
		Write(w)
}

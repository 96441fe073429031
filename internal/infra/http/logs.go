package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"grouplog-digest/internal/domain"
	"grouplog-digest/internal/usecase/logs"
)

// LogsService отдаёт данные для просмотра журналов.
type LogsService interface {
	Status(ctx context.Context) (logs.Status, error)
	Content(ctx context.Context, filename string) (logs.Content, error)
}

type fileInfo struct {
	Filename     string    `json:"filename"`
	SizeBytes    int64     `json:"sizeBytes"`
	CreatedAt    time.Time `json:"createdAt"`
	ModifiedAt   time.Time `json:"modifiedAt"`
	MessageCount int       `json:"messageCount"`
}

type statusResponse struct {
	Groups []string              `json:"groups"`
	Files  map[string][]fileInfo `json:"files"`
}

type contentResponse struct {
	Filename  string `json:"filename"`
	Content   string `json:"content"`
	LineCount int    `json:"lineCount"`
}

// MountLogs регистрирует маршруты просмотра журналов.
func MountLogs(r chi.Router, svc LogsService, logger zerolog.Logger) {
	r.Get("/api/v1/logs/status", func(w http.ResponseWriter, req *http.Request) {
		st, err := svc.Status(req.Context())
		if err != nil {
			logger.Error().Err(err).Str("request_id", RequestID(req)).Msg("api: статус журналов")
			WriteError(w, http.StatusInternalServerError, "internal", "failed to list log files")
			return
		}
		resp := statusResponse{Groups: make([]string, 0, len(st.Groups)), Files: make(map[string][]fileInfo, len(st.Groups))}
		for _, g := range st.Groups {
			if _, seen := resp.Files[g.DisplayName]; seen {
				continue
			}
			resp.Groups = append(resp.Groups, g.DisplayName)
			files := make([]fileInfo, 0, len(st.Files[g.Slug]))
			for _, f := range st.Files[g.Slug] {
				files = append(files, fileInfo{
					Filename:     f.Filename,
					SizeBytes:    f.SizeBytes,
					CreatedAt:    f.CreatedAt,
					ModifiedAt:   f.ModifiedAt,
					MessageCount: f.LineCount,
				})
			}
			resp.Files[g.DisplayName] = files
		}
		WriteJSON(w, http.StatusOK, resp)
	})

	r.Get("/api/v1/logs/{filename}", func(w http.ResponseWriter, req *http.Request) {
		c, err := svc.Content(req.Context(), chi.URLParam(req, "filename"))
		switch {
		case errors.Is(err, domain.ErrInvalidName):
			WriteError(w, http.StatusBadRequest, "invalid_name", "file name does not match a configured group")
		case errors.Is(err, domain.ErrNotFound):
			WriteError(w, http.StatusNotFound, "not_found", "log file not found")
		case err != nil:
			logger.Error().Err(err).Str("request_id", RequestID(req)).Msg("api: чтение журнала")
			WriteError(w, http.StatusInternalServerError, "internal", "failed to read log file")
		default:
			WriteJSON(w, http.StatusOK, contentResponse{Filename: c.Filename, Content: c.Text, LineCount: c.LineCount})
		}
	})
}

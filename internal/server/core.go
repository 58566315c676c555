package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"dutyline/internal/domain"
	"dutyline/internal/engine"
	"dutyline/internal/repo"
)

// registerCore mounts the dashboard endpoints. Their bodies and headers are a
// fixed contract consumed by the SDK, so they answer on the router directly
// instead of going through huma.
func registerCore(router chi.Router, basePath string, e engine.Engine) {
	router.Get(path.Join(basePath, "duties"), handleSummary(e))
	router.Post(path.Join(basePath, "duty-events"), handleDutyEvent(e))
	router.Get(path.Join(basePath, "duty-logs"), handleDutyLogs(e))
}

func writeCoreError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeCoreJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func handleSummary(e engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientID := strings.TrimSpace(r.URL.Query().Get("clientId"))
		if clientID == "" {
			writeCoreError(w, http.StatusBadRequest, "clientId is required")
			return
		}
		summary, err := e.Summary(r.Context(), clientID)
		if err != nil {
			writeCoreError(w, http.StatusBadRequest, coreMessage(err))
			return
		}
		w.Header().Set("Cache-Control", "private, max-age=60")
		writeCoreJSON(w, http.StatusOK, summary)
	}
}

// eventInput is the canonical submission regardless of wire encoding. JSON
// callers may name an attachment they stored elsewhere; a multipart upload's
// filename wins over the field.
type eventInput struct {
	DutyID         string `json:"dutyId"`
	ClientID       string `json:"clientId"`
	Status         string `json:"status"`
	Lifecycle      string `json:"lifecycle"`
	Notes          string `json:"notes"`
	AttachmentName string `json:"attachmentName"`
}

func decodeEventInput(r *http.Request) (eventInput, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		mediaType = ""
	}
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			return eventInput{}, fmt.Errorf("invalid multipart body")
		}
		in := eventInput{
			DutyID:         strings.TrimSpace(r.FormValue("dutyId")),
			ClientID:       strings.TrimSpace(r.FormValue("clientId")),
			Status:         r.FormValue("status"),
			Lifecycle:      r.FormValue("lifecycle"),
			Notes:          r.FormValue("notes"),
			AttachmentName: r.FormValue("attachmentName"),
		}
		if file, header, err := r.FormFile("attachment"); err == nil {
			file.Close()
			in.AttachmentName = header.Filename
		}
		return in, nil
	}
	var in eventInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		return eventInput{}, fmt.Errorf("invalid JSON body")
	}
	in.DutyID = strings.TrimSpace(in.DutyID)
	in.ClientID = strings.TrimSpace(in.ClientID)
	return in, nil
}

func handleDutyEvent(e engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in, err := decodeEventInput(r)
		if err != nil {
			writeCoreError(w, http.StatusBadRequest, err.Error())
			return
		}
		event, duty, err := e.RecordEvent(r.Context(), engine.RecordEventOptions{
			DutyID:         in.DutyID,
			ClientID:       in.ClientID,
			Status:         in.Status,
			Lifecycle:      in.Lifecycle,
			Notes:          in.Notes,
			AttachmentName: in.AttachmentName,
		})
		if err != nil {
			writeCoreError(w, http.StatusBadRequest, coreMessage(err))
			return
		}
		writeCoreJSON(w, http.StatusOK, map[string]any{
			"event": event,
			"duty":  duty,
		})
	}
}

func handleDutyLogs(e engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		clientID := strings.TrimSpace(q.Get("clientId"))
		if clientID == "" {
			writeCoreError(w, http.StatusBadRequest, "clientId is required")
			return
		}
		lifecycle := q.Get("lifecycle")
		if lifecycle != "" && !domain.ValidLifecycle(lifecycle) {
			writeCoreError(w, http.StatusBadRequest, "Invalid lifecycle value")
			return
		}
		logs, err := e.Repo.ListLogs(r.Context(), clientID)
		if err != nil {
			writeCoreError(w, http.StatusBadRequest, coreMessage(err))
			return
		}
		if lifecycle != "" {
			filtered := logs[:0]
			for _, l := range logs {
				if l.Lifecycle == lifecycle {
					filtered = append(filtered, l)
				}
			}
			logs = filtered
		}
		titles, err := e.Repo.DutyTitles(r.Context(), clientID)
		if err != nil {
			writeCoreError(w, http.StatusBadRequest, coreMessage(err))
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		if q.Get("format") == "csv" {
			w.Header().Set("Content-Type", "text/csv")
			w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=duty-logs-%s.csv", clientID))
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, LogsCSV(logs, titles))
			return
		}
		entries := make([]logEntry, 0, len(logs))
		for _, l := range logs {
			title, ok := titles[l.DutyID]
			if !ok {
				title = "Unknown"
			}
			entries = append(entries, logEntry{DutyLog: l, DutyTitle: title})
		}
		writeCoreJSON(w, http.StatusOK, map[string]any{"logs": entries})
	}
}

// logEntry is a log with its duty title resolved for display.
type logEntry struct {
	domain.DutyLog
	DutyTitle string `json:"dutyTitle"`
}

// LogsCSV renders the export. Only the title and message columns are quoted,
// with embedded double quotes doubled; the other columns are written bare.
func LogsCSV(logs []domain.DutyLog, titles map[string]string) string {
	var b strings.Builder
	b.WriteString("timestamp,duty,message,status,lifecycle\n")
	for _, l := range logs {
		title, ok := titles[l.DutyID]
		if !ok {
			title = "Unknown"
		}
		fmt.Fprintf(&b, "%s,%s,%s,%s,%s\n", l.CreatedAt, csvField(title), csvField(l.Message), l.Status, l.Lifecycle)
	}
	return b.String()
}

// csvField quotes a value CSV-style, doubling embedded double quotes.
// encoding/csv cannot be used here: it only quotes fields that need it, and
// the export quotes the title and message columns unconditionally.
func csvField(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func coreMessage(err error) string {
	var ve *engine.ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	if errors.Is(err, repo.ErrNotFound) {
		return "Duty not found"
	}
	return err.Error()
}

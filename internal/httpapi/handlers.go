package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"dosewatch/internal/dose"
	"dosewatch/internal/sched"
	"dosewatch/internal/storage"
	logx "dosewatch/pkg/logx"
)

// recurrence horizon for repeat=daily, matching the schedule form:
// the chosen date plus the next seven days.
const dailyRepeatDays = 7

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = r
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"scheduler": s.sched.Snapshot(),
	})
}

func (s *Service) handleSchedulerRun(w http.ResponseWriter, r *http.Request) {
	err := s.sched.RunNow(r.Context())
	switch {
	case errors.Is(err, sched.ErrPassRunning):
		writeError(w, http.StatusConflict, "evaluation pass already running")
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
	}
}

type createOwnerRequest struct {
	ID             string `json:"id"`
	Phone          string `json:"phone,omitempty"`
	TelegramChatID int64  `json:"telegram_chat_id,omitempty"`
}

func (s *Service) handleCreateOwner(w http.ResponseWriter, r *http.Request) {
	var req createOwnerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	o := storage.Owner{
		ID:             strings.TrimSpace(req.ID),
		Phone:          strings.TrimSpace(req.Phone),
		TelegramChatID: req.TelegramChatID,
		CreatedAt:      s.now(),
	}
	if err := s.store.CreateOwner(r.Context(), o); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

type scheduleDoseRequest struct {
	Name   string `json:"name"`
	Dosage string `json:"dosage"`
	Date   string `json:"date"` // YYYY-MM-DD
	Time   string `json:"time"` // HH:MM
	Repeat string `json:"repeat,omitempty"` // "once" (default) or "daily"
}

func (s *Service) handleScheduleDose(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "owner")

	var req scheduleDoseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Dosage = strings.TrimSpace(req.Dosage)
	if req.Name == "" || req.Dosage == "" || req.Date == "" || req.Time == "" {
		writeError(w, http.StatusBadRequest, "name, dosage, date and time are required")
		return
	}
	day, err := dose.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, _, err := dose.ParseClock(req.Time); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := s.store.GetOwner(r.Context(), ownerID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "owner not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	now := s.now()
	today := now.Format(dose.DateLayout)
	if req.Date < today {
		writeError(w, http.StatusBadRequest, "cannot schedule for past dates")
		return
	}

	repeat := strings.ToLower(strings.TrimSpace(req.Repeat))
	switch repeat {
	case "", "once", "daily":
	default:
		writeError(w, http.StatusBadRequest, "repeat must be \"once\" or \"daily\"")
		return
	}

	// Recurring schedules materialize as independent rows, one per date,
	// at schedule time; the evaluator never derives dates.
	dates := []string{req.Date}
	if repeat == "daily" {
		for i := 1; i <= dailyRepeatDays; i++ {
			dates = append(dates, day.AddDate(0, 0, i).Format(dose.DateLayout))
		}
	}

	created := make([]dose.Dose, 0, len(dates))
	for _, date := range dates {
		d := dose.Dose{
			ID:        uuid.NewString(),
			OwnerID:   ownerID,
			Name:      req.Name,
			Dosage:    req.Dosage,
			Date:      date,
			Time:      req.Time,
			Status:    dose.StatusScheduled,
			CreatedAt: now,
			Active:    true,
		}
		if err := s.store.CreateDose(r.Context(), d); err != nil {
			s.log.Warn("dose create failed", logx.String("owner", ownerID), logx.Err(err))
			writeError(w, http.StatusInternalServerError, "failed to save dose")
			return
		}
		created = append(created, d)
	}
	writeJSON(w, http.StatusCreated, map[string]any{"doses": created})
}

func (s *Service) handleListDoses(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "owner")
	date := r.URL.Query().Get("date")
	if date == "" {
		date = s.now().Format(dose.DateLayout)
	} else if _, err := dose.ParseDate(date); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	doses, err := s.store.ListDosesForDate(r.Context(), ownerID, date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if doses == nil {
		doses = []dose.Dose{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "doses": doses})
}

func (s *Service) handleMarkTaken(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "owner")
	id := chi.URLParam(r, "id")

	err := s.store.MarkDoseTaken(r.Context(), ownerID, id, s.now())
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "dose not found")
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": string(dose.StatusTaken)})
	}
}

func (s *Service) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "owner")
	ns, err := s.store.ListNotifications(r.Context(), ownerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if ns == nil {
		ns = []storage.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": ns})
}

type testNotificationRequest struct {
	Message string `json:"message,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

// handleTestNotification force-creates a single notification; a plain
// passthrough to the store used for manual verification.
func (s *Service) handleTestNotification(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "owner")

	var req testNotificationRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
	}
	kind := dose.Kind(strings.TrimSpace(req.Kind))
	switch kind {
	case "":
		kind = dose.KindReminder
	case dose.KindReminder, dose.KindLate, dose.KindMissed:
	default:
		writeError(w, http.StatusBadRequest, "kind must be reminder, late or missed")
		return
	}
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		msg = "Test notification"
	}

	n := storage.Notification{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Message:   msg,
		Kind:      kind,
		CreatedAt: s.now(),
	}
	if err := s.store.CreateNotification(r.Context(), n); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

func (s *Service) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "owner")
	id := chi.URLParam(r, "id")

	err := s.store.MarkNotificationRead(r.Context(), ownerID, id, s.now())
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "notification not found")
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]bool{"read": true})
	}
}

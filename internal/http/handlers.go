package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"eyemoney/internal/backup"
	"eyemoney/internal/core"
	"eyemoney/internal/engine"
	"eyemoney/internal/i18n"
)

// maxImportSize bounds uploaded backup envelopes.
const maxImportSize = 16 << 20

type templateView struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Benefactor string  `json:"benefactor,omitempty"`
	Amount     string  `json:"amount"`
	Cost       string  `json:"cost"`
	Remaining  string  `json:"remaining"`
	Paid       bool    `json:"paid"`
	Excessive  bool    `json:"excessive"`
	Partial    bool    `json:"partial"`
	Recurrence string  `json:"recurrence"`
	Start      string  `json:"startDate,omitempty"`
	End        string  `json:"endDate,omitempty"`
	Display    display `json:"display"`
}

type display struct {
	Amount    string `json:"amount"`
	Cost      string `json:"cost"`
	Remaining string `json:"remaining"`
}

type paymentView struct {
	ID           string `json:"id"`
	TemplateID   string `json:"templateId,omitempty"`
	Name         string `json:"name"`
	Amount       string `json:"amount"`
	Date         string `json:"date"`
	ClosePartial bool   `json:"closePartial"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"month":     s.engine.Month().String(),
		"expected":  s.engine.Expected().String(),
		"paid":      s.engine.Paid().String(),
		"remaining": s.engine.Remaining().String(),
		"display": map[string]string{
			"expected":  s.engine.FormatCurrency(s.engine.Expected()),
			"paid":      s.engine.FormatCurrency(s.engine.Paid()),
			"remaining": s.engine.FormatCurrency(s.engine.Remaining()),
		},
	})
}

func (s *Server) handleSetMonth(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Month string `json:"month"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	month, err := core.ParseMonth(req.Month)
	if err != nil {
		writeError(w, s, err)
		return
	}
	if err := s.engine.SetMonth(r.Context(), month); err != nil {
		writeError(w, s, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"month": month.String()})
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	templates := s.engine.Templates()
	payments := s.engine.Payments()
	sort.Slice(templates, func(i, j int) bool {
		return templates[i].Name < templates[j].Name
	})

	views := make([]templateView, 0, len(templates))
	for _, t := range templates {
		cost := t.Cost(payments)
		remaining := t.Remaining(payments)
		views = append(views, templateView{
			ID:         t.ID.String(),
			Name:       t.Name,
			Benefactor: t.Benefactor,
			Amount:     t.Amount.String(),
			Cost:       cost.String(),
			Remaining:  remaining.String(),
			Paid:       t.IsPaid(payments),
			Excessive:  s.engine.IsExcessive(t, payments),
			Partial:    t.Partial,
			Recurrence: string(t.Recurrence),
			Start:      t.Start.String(),
			End:        t.End.String(),
			Display: display{
				Amount:    s.engine.FormatCurrency(t.Amount),
				Cost:      s.engine.FormatCurrency(cost),
				Remaining: s.engine.FormatCurrency(remaining),
			},
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handlePutTemplate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		Benefactor string `json:"benefactor"`
		Amount     string `json:"amount"`
		Start      string `json:"startDate"`
		End        string `json:"endDate"`
		Partial    bool   `json:"partial"`
		Recurrence string `json:"recurrence"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	amount, err := core.ParseMoney(req.Amount)
	if err != nil {
		writeError(w, s, err)
		return
	}

	var t core.Template
	if req.ID != "" {
		id, err := core.ParseID(req.ID)
		if err != nil {
			writeError(w, s, err)
			return
		}
		existing, ok := s.engine.Template(id)
		if !ok {
			writeError(w, s, engine.ErrTemplateNotFound)
			return
		}
		t = existing
	} else {
		t, err = core.NewTemplate(req.Name, amount, core.Recurrence(req.Recurrence))
		if err != nil {
			writeError(w, s, err)
			return
		}
	}

	t.Name = req.Name
	t.Benefactor = req.Benefactor
	t.Amount = amount
	t.Partial = req.Partial
	t.Recurrence = core.Recurrence(req.Recurrence)
	t.Start, t.End = core.Month{}, core.Month{}
	if req.Start != "" {
		if t.Start, err = core.ParseMonth(req.Start); err != nil {
			writeError(w, s, err)
			return
		}
	}
	if req.End != "" {
		if t.End, err = core.ParseMonth(req.End); err != nil {
			writeError(w, s, err)
			return
		}
	}

	if err := s.engine.PutTemplate(r.Context(), t); err != nil {
		writeError(w, s, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": t.ID.String()})
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := core.ParseID(r.PathValue("id"))
	if err != nil {
		writeError(w, s, err)
		return
	}
	if err := s.engine.DeleteTemplate(r.Context(), id); err != nil {
		writeError(w, s, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePayments(w http.ResponseWriter, r *http.Request) {
	payments := s.engine.Payments()
	views := make([]paymentView, 0, len(payments))
	for _, p := range payments {
		v := paymentView{
			ID:           p.ID.String(),
			Name:         p.Name,
			Amount:       p.Amount.String(),
			Date:         p.Date.String(),
			ClosePartial: p.ClosePartial,
		}
		if !p.Unexpected() {
			v.TemplateID = p.TemplateID.String()
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleAddPayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TemplateID string `json:"templateId"`
		Amount     string `json:"amount"`
		Final      bool   `json:"final"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	id, err := core.ParseID(req.TemplateID)
	if err != nil {
		writeError(w, s, err)
		return
	}
	amount, err := core.ParseMoney(req.Amount)
	if err != nil {
		writeError(w, s, err)
		return
	}
	if err := s.engine.AddPayment(r.Context(), id, amount, req.Final); err != nil {
		writeError(w, s, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleAddUnexpected(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name   string `json:"name"`
		Amount string `json:"amount"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := core.ParseMoney(req.Amount)
	if err != nil {
		writeError(w, s, err)
		return
	}
	if err := s.engine.AddUnexpected(r.Context(), req.Name, amount); err != nil {
		writeError(w, s, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleUndoPayment(w http.ResponseWriter, r *http.Request) {
	id, err := core.ParseID(r.PathValue("id"))
	if err != nil {
		writeError(w, s, err)
		return
	}
	if err := s.engine.UndoPayment(r.Context(), id); err != nil {
		writeError(w, s, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"locale":     s.engine.Locale(),
		"currency":   s.engine.Currency(),
		"excessive":  s.engine.Excessive(),
		"benefactor": s.engine.Benefactor(),
		"locales":    i18n.Locales,
		"currencies": i18n.Currencies,
	})
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Locale     *string  `json:"locale"`
		Currency   *string  `json:"currency"`
		Excessive  *float64 `json:"excessive"`
		Benefactor *string  `json:"benefactor"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Locale != nil {
		if err := s.engine.SetLocale(r.Context(), *req.Locale); err != nil {
			writeError(w, s, err)
			return
		}
	}
	if req.Currency != nil {
		if err := s.engine.SetCurrency(r.Context(), *req.Currency); err != nil {
			writeError(w, s, err)
			return
		}
	}
	if req.Excessive != nil {
		if err := s.engine.SetExcessive(r.Context(), *req.Excessive); err != nil {
			writeError(w, s, err)
			return
		}
	}
	if req.Benefactor != nil {
		if err := s.engine.SetBenefactor(r.Context(), *req.Benefactor); err != nil {
			writeError(w, s, err)
			return
		}
	}
	s.handleGetSettings(w, r)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	envelope, err := s.engine.Export(r.Context(), req.Password)
	if err != nil {
		writeError(w, s, err)
		return
	}
	filename := fmt.Sprintf("export-%s.bak", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(envelope)
}

// handleImport takes the raw backup envelope as the request body and
// the password in the X-Backup-Password header.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	password := r.Header.Get("X-Backup-Password")
	data, err := io.ReadAll(io.LimitReader(r.Body, maxImportSize))
	if err != nil {
		writeError(w, s, fmt.Errorf("read backup: %w", err))
		return
	}
	if err := s.engine.Import(r.Context(), password, data); err != nil {
		writeError(w, s, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid_request", "request body is not valid JSON"))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func errorBody(code, message string) map[string]string {
	return map[string]string{"error": code, "message": message}
}

// writeError maps the engine's error taxonomy onto HTTP statuses. The
// authentication and format error kinds stay distinguishable so a
// client can say "wrong password" vs "not a valid backup".
func writeError(w http.ResponseWriter, s *Server, err error) {
	var status int
	var code string
	switch {
	case errors.Is(err, engine.ErrTemplateNotFound),
		errors.Is(err, engine.ErrPaymentNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, engine.ErrAlreadyPaid):
		status, code = http.StatusConflict, "already_paid"
	case errors.Is(err, backup.ErrAuthentication):
		status, code = http.StatusUnauthorized, "wrong_password"
	case errors.Is(err, backup.ErrUnsupportedFormat),
		errors.Is(err, backup.ErrAmbiguousFormat):
		status, code = http.StatusBadRequest, "invalid_backup"
	case errors.Is(err, backup.ErrWeakPassword):
		status, code = http.StatusBadRequest, "weak_password"
	case errors.Is(err, backup.ErrUnavailable),
		errors.Is(err, core.ErrRandomUnavailable):
		status, code = http.StatusNotImplemented, "crypto_unavailable"
	case errors.Is(err, core.ErrInvalidID),
		errors.Is(err, core.ErrInvalidMonth),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidRecurrence),
		errors.Is(err, core.ErrInvalidDateRange),
		errors.Is(err, core.ErrEmptyName),
		errors.Is(err, core.ErrAmountSign),
		errors.Is(err, engine.ErrUnsupportedLocale),
		errors.Is(err, engine.ErrUnsupportedCurrency):
		status, code = http.StatusBadRequest, "validation"
	default:
		s.logger.Error("request failed", "error", err)
		status, code = http.StatusInternalServerError, "internal"
	}
	writeJSON(w, status, errorBody(code, err.Error()))
}

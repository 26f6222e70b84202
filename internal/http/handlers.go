package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/carpool-matching/internal/dispatch"
	"github.com/example/carpool-matching/internal/logging"
	"github.com/example/carpool-matching/internal/matcher"
	"github.com/example/carpool-matching/internal/models"
)

type Server struct {
	Matcher  *matcher.Service
	WSReg    *dispatch.WSRegistry
	logger   *slog.Logger
	validate *validator.Validate
	mux      *mux.Router
}

func NewServer(m *matcher.Service, wsreg *dispatch.WSRegistry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		Matcher:  m,
		WSReg:    wsreg,
		logger:   logger,
		validate: validator.New(),
		mux:      mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.mux.PathPrefix("/api/v1/matches").Subrouter()
	api.HandleFunc("/search", s.handleSearch).Methods(http.MethodGet)
	api.HandleFunc("/{id}/accept", s.handleAccept).Methods(http.MethodPost)
	api.HandleFunc("/{id}/reject", s.handleReject).Methods(http.MethodPost)
	api.HandleFunc("/{id}", s.handleGet).Methods(http.MethodGet)
	api.HandleFunc("", s.handleList).Methods(http.MethodGet)

	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods(http.MethodGet)
	s.mux.Handle("/metrics", promhttp.Handler())
	if s.WSReg != nil {
		s.mux.HandleFunc("/ws/{user_id}", s.handleWS)
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

// searchRequest carries the direction-dependent sede rules: TO_SEDE needs the
// destination sede, FROM_SEDE the origin sede.
type searchRequest struct {
	PassengerID       string `validate:"required"`
	Direction         string `validate:"required,oneof=TO_SEDE FROM_SEDE"`
	DestinationSedeID string `validate:"required_if=Direction TO_SEDE"`
	OriginSedeID      string `validate:"required_if=Direction FROM_SEDE"`
	PreferredTime     string
	OriginLocation    string
}

func (req searchRequest) criteria() models.SearchCriteria {
	dir := models.Direction(req.Direction)
	sede := req.DestinationSedeID
	if dir == models.DirectionFromSede {
		sede = req.OriginSedeID
	}
	return models.SearchCriteria{
		SedeID:         sede,
		PreferredTime:  req.PreferredTime,
		OriginLocation: req.OriginLocation,
		Direction:      dir,
	}
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := searchRequest{
		PassengerID:       strings.TrimSpace(q.Get("passengerId")),
		Direction:         strings.ToUpper(strings.TrimSpace(q.Get("direction"))),
		DestinationSedeID: strings.TrimSpace(q.Get("destinationSedeId")),
		OriginSedeID:      strings.TrimSpace(q.Get("originSedeId")),
		PreferredTime:     strings.TrimSpace(q.Get("preferredTime")),
		OriginLocation:    strings.TrimSpace(q.Get("originLocation")),
	}
	if req.PassengerID == "" {
		req.PassengerID = strings.TrimSpace(r.Header.Get("X-User-ID"))
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	results := s.Matcher.FindMatches(r.Context(), req.PassengerID, req.criteria())
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	m, err := s.Matcher.Accept(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeMatchError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	m, err := s.Matcher.Reject(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeMatchError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	m, err := s.Matcher.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeMatchError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	f, err := parseListFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ms, err := s.Matcher.List(r.Context(), f)
	if err != nil {
		s.writeMatchError(w, r, err)
		return
	}
	if ms == nil {
		ms = []*models.Match{}
	}
	writeJSON(w, http.StatusOK, ms)
}

func parseListFilter(r *http.Request) (matcher.ListFilter, error) {
	q := r.URL.Query()
	f := matcher.ListFilter{
		PassengerID: strings.TrimSpace(q.Get("passengerId")),
		DriverID:    strings.TrimSpace(q.Get("driverId")),
	}
	if v := q.Get("status"); v != "" {
		st, err := models.ParseMatchStatus(v)
		if err != nil {
			return f, err
		}
		f.Status = st
	}
	if v := q.Get("minScore"); v != "" {
		score, err := strconv.ParseFloat(v, 64)
		if err != nil || score < 0 || score > 1 {
			return f, fmt.Errorf("minScore must be a number between 0 and 1")
		}
		f.MinScore = &score
	}
	var err error
	if f.From, err = parseInstant(q.Get("from")); err != nil {
		return f, fmt.Errorf("from: %w", err)
	}
	if f.To, err = parseInstant(q.Get("to")); err != nil {
		return f, fmt.Errorf("to: %w", err)
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return f, errors.New("to must not be before from")
	}
	return f, nil
}

func parseInstant(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, v)
}

var upgrader = websocket.Upgrader{}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["user_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.FromContext(r.Context(), s.logger).Warn("ws upgrade failed", "user_id", id, "error", err)
		return
	}
	s.WSReg.Add(id, conn)
	go func() {
		defer s.WSReg.Remove(id, conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) writeMatchError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, models.ErrMatchNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, models.ErrInvalidCriteria):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		logging.FromContext(r.Context(), s.logger).Error("match request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return strings.Join(msgs, "; ")
}

func fieldMessage(fe validator.FieldError) string {
	name := queryName(fe.Field())
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "required_if":
		return fmt.Sprintf("%s is required when direction is %s", name, strings.Fields(fe.Param())[1])
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", name, strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return fmt.Sprintf("%s is invalid", name)
	}
}

func queryName(field string) string {
	if field == "" {
		return field
	}
	if strings.HasSuffix(field, "ID") {
		field = strings.TrimSuffix(field, "ID") + "Id"
	}
	return strings.ToLower(field[:1]) + field[1:]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func newID() string { return uuid.NewString() }

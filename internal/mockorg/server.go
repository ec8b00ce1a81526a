// internal/mockorg/server.go
package mockorg

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/exp/slog"

	"qcpsync/internal/domain/script"
)

// Локальная организация-заглушка: минимальный срез REST API,
// достаточный для разработки и тестов без настоящей организации.
const (
	mockOrgID    = "00D000000000001EAA"
	mockUserID   = "005000000000001AAA"
	mockUsername = "mock@example.com"
)

type Server struct {
	storage *Storage
	log     *slog.Logger
	router  chi.Router
}

func NewServer(storage *Storage, log *slog.Logger) *Server {
	s := &Server{
		storage: storage,
		log:     log,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/services/oauth2/token", s.handleToken)
	r.Get("/id/{orgID}/{userID}", s.handleIdentity)
	r.Get("/services/data/v45.0/query", s.handleQuery)
	r.Route("/services/data/v45.0/sobjects/"+script.APIName, func(r chi.Router) {
		r.Post("/", s.handleInsert)
		r.Patch("/{id}", s.handleUpdate)
		r.Delete("/{id}", s.handleDelete)
	})
	r.Get("/services/apexrest/SBQQ/ServiceRouter", s.handleServiceRouter)

	s.router = r
	return s
}

// Handler возвращает корневой обработчик сервера
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) ListenAndServe(addr string) error {
	s.log.Info("Локальная организация запущена", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Warn("Ошибка записи ответа", "error", err)
	}
}

type apiErrorBody struct {
	Message   string `json:"message"`
	ErrorCode string `json:"errorCode"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, []apiErrorBody{{Message: message, ErrorCode: code}})
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if r.Form.Get("grant_type") != "refresh_token" || r.Form.Get("refresh_token") == "" {
		s.writeError(w, http.StatusBadRequest, "unsupported_grant_type", "поддерживается только refresh_token")
		return
	}

	base := "http://" + r.Host
	s.writeJSON(w, http.StatusOK, map[string]string{
		"access_token": "mock-access-token",
		"token_type":   "Bearer",
		"instance_url": base,
		"id":           fmt.Sprintf("%s/id/%s/%s", base, mockOrgID, mockUserID),
	})
}

func (s *Server) handleIdentity(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"user_id":         chi.URLParam(r, "userID"),
		"organization_id": chi.URLParam(r, "orgID"),
		"username":        mockUsername,
		"display_name":    "Mock User",
	})
}

var (
	whereID   = regexp.MustCompile(`WHERE Id = '([^']+)'`)
	whereName = regexp.MustCompile(`WHERE Name = '((?:\\.|[^'\\])*)'`)
)

// handleQuery понимает ровно те SOQL-запросы, которые строит клиент:
// выборка всех записей, по Id и по Name
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	soql := r.URL.Query().Get("q")
	if !strings.Contains(soql, "FROM "+script.APIName) {
		s.writeError(w, http.StatusBadRequest, "INVALID_TYPE", "неизвестный тип объекта")
		return
	}

	var (
		records []script.CustomScript
		err     error
	)
	switch {
	case whereID.MatchString(soql):
		records, err = s.storage.ByID(whereID.FindStringSubmatch(soql)[1])
	case whereName.MatchString(soql):
		name := whereName.FindStringSubmatch(soql)[1]
		name = strings.ReplaceAll(name, `\'`, `'`)
		name = strings.ReplaceAll(name, `\\`, `\`)
		records, err = s.storage.ByName(name)
	default:
		records, err = s.storage.All()
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "UNKNOWN_EXCEPTION", err.Error())
		return
	}

	if !strings.Contains(soql, "SBQQ__Code__c") {
		for i := range records {
			records[i].Code = ""
			records[i].TranspiledCode = ""
		}
	}
	if records == nil {
		records = []script.CustomScript{}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"totalSize": len(records),
		"done":      true,
		"records":   records,
	})
}

func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	var rec script.Upsert
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		s.writeError(w, http.StatusBadRequest, "JSON_PARSER_ERROR", err.Error())
		return
	}
	if rec.Name == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"errors": []apiErrorBody{
				{Message: "Required fields are missing: [Name]", ErrorCode: "REQUIRED_FIELD_MISSING"},
			},
		})
		return
	}

	id, err := s.storage.Insert(rec.Name, rec.Code)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "UNKNOWN_EXCEPTION", err.Error())
		return
	}

	s.log.Debug("Запись создана", "id", id, "name", rec.Name)
	s.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":      id,
		"success": true,
		"errors":  []interface{}{},
	})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var rec script.Upsert
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		s.writeError(w, http.StatusBadRequest, "JSON_PARSER_ERROR", err.Error())
		return
	}

	ok, err := s.storage.Update(id, rec.Name, rec.Code)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "UNKNOWN_EXCEPTION", err.Error())
		return
	}
	if !ok {
		s.writeError(w, http.StatusNotFound, "NOT_FOUND", "запись не найдена: "+id)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ok, err := s.storage.Delete(id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "UNKNOWN_EXCEPTION", err.Error())
		return
	}
	if !ok {
		s.writeError(w, http.StatusNotFound, "NOT_FOUND", "запись не найдена: "+id)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleServiceRouter отдает заготовленную модель квоты для
// QuoteReader
func (s *Server) handleServiceRouter(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("reader") != "SBQQ.QuoteAPI.QuoteReader" {
		s.writeError(w, http.StatusBadRequest, "INVALID_READER", "неизвестный reader")
		return
	}
	uid := r.URL.Query().Get("uid")
	if uid == "" {
		s.writeError(w, http.StatusBadRequest, "MISSING_UID", "параметр uid обязателен")
		return
	}

	model := map[string]interface{}{
		"record": map[string]interface{}{
			"Id":              uid,
			"SBQQ__Status__c": "Draft",
		},
		"lineItems": []interface{}{},
		"groups":    []interface{}{},
	}
	raw, _ := json.Marshal(model)

	// Apex возвращает JSON-строку с вложенным JSON
	s.writeJSON(w, http.StatusOK, string(raw))
}

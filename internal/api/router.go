package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/emotiox/recruit/internal/middleware"
	"github.com/emotiox/recruit/internal/services"
	"github.com/emotiox/recruit/internal/utils"
)

// Router wires the recruitment services onto an http.ServeMux. Authoring
// endpoints require a researcher token; the participant-facing flow is
// public and gated by recruitment links instead.
type Router struct {
	store        Store
	ledger       services.QuotaLedger
	auth         *services.AuthService
	configs      *services.ConfigService
	links        *services.LinkService
	admission    *services.AdmissionService
	participants *services.ParticipantService
	stats        *services.StatsService
}

// NewRouter builds a router over the in-memory store and ledger.
func NewRouter() *Router {
	return NewRouterWithStore(newMemoryStore(), services.NewMemoryLedger())
}

// NewRouterWithStore builds a router over an explicit store and quota
// ledger, e.g. the sqlite-backed pair.
func NewRouterWithStore(store Store, ledger services.QuotaLedger) *Router {
	baseURL := utils.SafeEnv("RECRUIT_BASE_URL", "http://localhost:8080")
	configs := services.NewConfigService(store)
	links := services.NewLinkService(store, store, baseURL)
	return &Router{
		store:        store,
		ledger:       ledger,
		auth:         services.NewAuthService(store, middleware.SignToken),
		configs:      configs,
		links:        links,
		admission:    services.NewAdmissionService(store, store, links, ledger),
		participants: services.NewParticipantService(store, store, ledger),
		stats:        services.NewStatsService(store),
	}
}

func (rt *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/auth/register", rt.handleRegister)       // POST
	mux.HandleFunc("/api/auth/login", rt.handleLogin)             // POST
	mux.HandleFunc("/api/research/", rt.handleResearchScoped)     // POST/GET {id}/recruit, GET {id}/recruit/summary
	mux.HandleFunc("/api/recruit/configs/", rt.handleConfigScoped) // PUT/DELETE {id}, links, participants, stats
	mux.HandleFunc("/api/recruit/links/", rt.handleLinkScoped)    // DELETE {token}
	mux.HandleFunc("/api/participate", rt.handleParticipate)      // POST
	mux.HandleFunc("/api/participants/", rt.handleParticipantScoped) // PUT {id}/status
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	se, ok := services.AsServiceError(err)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	status := http.StatusInternalServerError
	switch se.Code {
	case services.ErrorInvalid:
		status = http.StatusBadRequest
	case services.ErrorUnauthorized:
		status = http.StatusUnauthorized
	case services.ErrorForbidden, services.ErrorLinkDeactivated:
		status = http.StatusForbidden
	case services.ErrorNotFound:
		status = http.StatusNotFound
	case services.ErrorConflict, services.ErrorIllegalTransition, services.ErrorOverQuota:
		status = http.StatusConflict
	case services.ErrorLinkExpired:
		status = http.StatusGone
	case services.ErrorMissingRequiredField:
		status = http.StatusUnprocessableEntity
	case services.ErrorDisqualified:
		status = http.StatusForbidden
	}
	writeJSON(w, status, map[string]string{"error": se.Message, "code": string(se.Code)})
}

func (rt *Router) requireResearcher(w http.ResponseWriter, r *http.Request) bool {
	if _, ok := middleware.TenantIDFromContext(r.Context()); !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return false
	}
	return true
}

func (rt *Router) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Email      string `json:"email"`
		Password   string `json:"password"`
		TenantName string `json:"tenantName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := rt.auth.Register(req.Email, req.Password, req.TenantName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": res.Token, "tenant_id": res.TenantID, "user_id": res.UserID})
}

func (rt *Router) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := rt.auth.Login(req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": res.Token, "tenant_id": res.TenantID, "user_id": res.UserID})
}

// POST/GET /api/research/{researchId}/recruit and GET .../recruit/summary
func (rt *Router) handleResearchScoped(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/research/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) < 2 || parts[1] != "recruit" {
		http.NotFound(w, r)
		return
	}
	researchID := parts[0]

	if len(parts) == 3 && parts[2] == "summary" && r.Method == http.MethodGet {
		summary, err := rt.configs.Summary(researchID, rt.stats, rt.links)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, summary)
		return
	}
	if len(parts) != 2 {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		cfg, err := rt.configs.GetByResearchID(researchID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cfg)
	case http.MethodPost:
		if !rt.requireResearcher(w, r) {
			return
		}
		var cfg services.RecruitConfig
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		created, err := rt.configs.Create(researchID, &cfg)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// /api/recruit/configs/{id} plus links, participants and stats subresources.
func (rt *Router) handleConfigScoped(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/recruit/configs/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	configID := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodPut:
			if !rt.requireResearcher(w, r) {
				return
			}
			var cfg services.RecruitConfig
			if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			updated, err := rt.configs.Update(configID, &cfg)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, updated)
		case http.MethodDelete:
			if !rt.requireResearcher(w, r) {
				return
			}
			if err := rt.configs.Delete(configID); err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		case http.MethodGet:
			cfg, err := rt.configs.GetByID(configID)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, cfg)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	switch parts[1] {
	case "links":
		switch r.Method {
		case http.MethodPost:
			if !rt.requireResearcher(w, r) {
				return
			}
			var req struct {
				Type           services.LinkType `json:"type"`
				ExpirationDays int               `json:"expirationDays"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			link, err := rt.links.Generate(configID, req.Type, req.ExpirationDays)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, link)
		case http.MethodGet:
			links, err := rt.links.ActiveLinks(configID)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, links)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	case "participants":
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !rt.requireResearcher(w, r) {
			return
		}
		list, err := rt.participants.ListByConfig(configID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	case "stats":
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		stats, err := rt.stats.Stats(configID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	default:
		http.NotFound(w, r)
	}
}

// DELETE /api/recruit/links/{token}
func (rt *Router) handleLinkScoped(w http.ResponseWriter, r *http.Request) {
	token := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/recruit/links/"), "/")
	if token == "" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !rt.requireResearcher(w, r) {
		return
	}
	link, err := rt.links.Deactivate(token)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, link)
}

// POST /api/participate — the participant-facing admission flow.
func (rt *Router) handleParticipate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Token        string                 `json:"token"`
		Demographics *services.Demographics `json:"demographicData"`
		DeviceInfo   *services.DeviceInfo   `json:"deviceInfo"`
		LocationInfo *services.LocationInfo `json:"locationInfo"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := rt.admission.Admit(req.Token, req.Demographics, req.DeviceInfo, req.LocationInfo)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// PUT /api/participants/{id}/status
func (rt *Router) handleParticipantScoped(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/participants/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 2 || parts[1] != "status" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Status       services.ParticipantStatus `json:"status"`
		Demographics *services.Demographics     `json:"demographicData"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := rt.participants.Transition(parts[0], req.Status, req.Demographics)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

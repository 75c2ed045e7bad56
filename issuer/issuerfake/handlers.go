package issuerfake

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/retail-session/issuer"
	"github.com/jrsteele09/retail-session/stores"
	"github.com/jrsteele09/retail-session/users"
)

type contextKey string

const contextKeyUsername contextKey = "username"

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug().Str("method", r.Method).Str("path", r.URL.Path).Dur("took", time.Since(start)).Msg("fake issuer")
	})
}

// requireAuth validates a Bearer access token and records the request ID.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.lock.Lock()
		s.requestIDs = append(s.requestIDs, r.Header.Get(issuer.RequestIDHeader))
		s.lock.Unlock()

		parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
			s.unauthorizedHits.Add(1)
			writeDetail(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
			return
		}

		s.lock.RLock()
		username, ok := s.validAccess[parts[1]]
		s.lock.RUnlock()
		if !ok {
			s.unauthorizedHits.Add(1)
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"detail": "Given token not valid for any token type",
				"code":   "token_not_valid",
			})
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKeyUsername, username)))
	})
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	s.tokenCalls.Add(1)

	var req issuer.TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Malformed request body")
		return
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	account, ok := s.accounts[req.Username]
	if !ok || account.Password != req.Password {
		writeDetail(w, http.StatusUnauthorized, "No active account found with the given credentials")
		return
	}
	if req.Role != "" && req.Role != account.Identity.Role {
		writeDetail(w, http.StatusBadRequest, []string{"Role does not match this account"})
		return
	}

	identity := account.Identity
	if identity.Role == users.RoleStaff {
		if len(account.Stores) == 0 {
			writeDetail(w, http.StatusBadRequest, []string{"Staff account is not assigned to any store. Contact admin."})
			return
		}
		if req.StoreID.IsZero() {
			writeDetail(w, http.StatusBadRequest, []string{"Store selection is required for staff login"})
			return
		}
		found := false
		for _, ref := range account.Stores {
			if ref.ID == req.StoreID {
				found = true
			}
		}
		if !found {
			writeDetail(w, http.StatusBadRequest, []string{"You are not authorized to access store " + string(req.StoreID)})
			return
		}
		account.Identity.StoreID = req.StoreID
		identity = account.Identity
	}

	writeJSON(w, http.StatusOK, issuer.TokenResponse{
		Access:  s.issueLocked(req.Username, "access", s.accessTTL, s.validAccess),
		Refresh: s.issueLocked(req.Username, "refresh", 24*time.Hour, s.validRefresh),
		User:    &identity,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.refreshCalls.Add(1)

	s.lock.RLock()
	delay := s.refreshDelay
	s.lock.RUnlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	var req struct {
		Refresh string `json:"refresh"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Refresh == "" {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"refresh": {"This field is required."}})
		return
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	username, ok := s.validRefresh[req.Refresh]
	if s.rejectRefresh || !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"detail": "Token is invalid or expired",
			"code":   "token_not_valid",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"access": s.issueLocked(username, "access", s.accessTTL, s.validAccess),
	})
}

func (s *Server) handleStaffStores(w http.ResponseWriter, r *http.Request) {
	s.staffStoreCalls.Add(1)

	username := r.URL.Query().Get("username")
	if username == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Username parameter is required"})
		return
	}

	s.lock.RLock()
	defer s.lock.RUnlock()

	account, ok := s.accounts[username]
	if !ok || account.Identity.Role != users.RoleStaff {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "Staff user not found", "stores": []stores.Ref{}})
		return
	}
	if len(account.Stores) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{
			"stores":   []stores.Ref{},
			"assigned": false,
			"message":  "No store assigned to this staff member",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stores": account.Stores, "assigned": true})
}

func (s *Server) handleCheckAdmin(w http.ResponseWriter, _ *http.Request) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	count := 0
	for _, a := range s.accounts {
		if a.Identity.Role == users.RoleAdmin {
			count++
		}
	}
	status := issuer.AdminStatus{AdminExists: count > 0, AdminCount: count}
	if count > 0 {
		status.Message = "Only one admin is allowed in the system"
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleStores(w http.ResponseWriter, _ *http.Request) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	list := s.storeList
	if list == nil {
		list = []stores.Ref{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	s.profileCalls.Add(1)

	s.lock.RLock()
	defer s.lock.RUnlock()

	account, ok := s.accounts[usernameFrom(r)]
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, account.Identity)
}

func (s *Server) handleMyStore(w http.ResponseWriter, r *http.Request) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	account, ok := s.accounts[usernameFrom(r)]
	if !ok || account.Identity.Role != users.RoleStaff {
		writeDetail(w, http.StatusForbidden, "Only staff members have an assigned store")
		return
	}
	for _, ref := range account.Stores {
		if ref.ID == account.Identity.StoreID {
			writeJSON(w, http.StatusOK, ref)
			return
		}
	}
	writeDetail(w, http.StatusNotFound, "No store assigned")
}

func (s *Server) handleEcho(w http.ResponseWriter, r *http.Request) {
	s.echoCalls.Add(1)

	body, _ := io.ReadAll(r.Body)
	writeJSON(w, http.StatusOK, Echo{
		Method:        r.Method,
		Body:          string(body),
		Authorization: r.Header.Get("Authorization"),
		RequestID:     r.Header.Get(issuer.RequestIDHeader),
		Custom:        r.Header.Get("X-Custom"),
	})
}

func usernameFrom(r *http.Request) string {
	username, _ := r.Context().Value(contextKeyUsername).(string)
	return username
}

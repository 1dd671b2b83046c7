package httpapi

import (
	"net/http"
	"strings"

	"wufwuf.org/internal/account"
	"wufwuf.org/internal/audit"
	"wufwuf.org/internal/auth"
	"wufwuf.org/internal/obs"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type createUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Age      *int   `json:"age,omitempty"`
	Name     string `json:"name,omitempty"`
	Lastname string `json:"lastname,omitempty"`
	Role     string `json:"role"`
}

type editUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Age      *int   `json:"age,omitempty"`
	Name     string `json:"name,omitempty"`
	Lastname string `json:"lastname,omitempty"`
	Role     string `json:"role"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	session, err := a.accounts.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		obs.ObserveLogin(false)
		// Unknown username and wrong password answer identically.
		handleAccountError(w, r, err)
		return
	}
	obs.ObserveLogin(true)
	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"username": session.User.Username,
	})
	writeJSON(w, http.StatusOK, session)
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	actor, _ := auth.ActorFromContext(r.Context())

	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.accounts.Create(r.Context(), actor, account.CreateUserInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Age:      req.Age,
		Name:     req.Name,
		Lastname: req.Lastname,
		Role:     req.Role,
	})
	if err != nil {
		handleAccountError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "account.create", map[string]any{
		"username": user.Username,
		"role":     user.RoleName,
	})
	w.Header().Set("Location", "/v1/users/"+user.Username)
	writeJSON(w, http.StatusCreated, account.PublicView(user))
}

func (a *API) handleUserByName(w http.ResponseWriter, r *http.Request) {
	username := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	if username == "" || strings.Contains(username, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	actor, _ := auth.ActorFromContext(r.Context())

	switch r.Method {
	case http.MethodGet:
		view, err := a.accounts.View(r.Context(), actor, username)
		if err != nil {
			handleAccountError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view)

	case http.MethodPut:
		var req editUserRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		user, err := a.accounts.Edit(r.Context(), actor, username, account.EditUserInput{
			Email:    req.Email,
			Password: req.Password,
			Age:      req.Age,
			Name:     req.Name,
			Lastname: req.Lastname,
			Role:     req.Role,
		})
		if err != nil {
			handleAccountError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "account.edit", map[string]any{
			"username": user.Username,
			"role":     user.RoleName,
		})
		writeJSON(w, http.StatusOK, account.PublicView(user))

	case http.MethodDelete:
		if err := a.accounts.Delete(r.Context(), actor, username); err != nil {
			handleAccountError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "account.delete", map[string]any{
			"username": username,
		})
		w.WriteHeader(http.StatusNoContent)

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

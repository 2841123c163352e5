package httphost

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrEthical07/dashauth"
	"go.uber.org/zap"
)

const maxBodyBytes = 64 << 10

const (
	messageUnknown = "Please enter your username and password"
	messageFailed  = "Username/password is incorrect"
)

type loginBody struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerBody struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type profileBody struct {
	Username string  `json:"username"`
	Name     *string `json:"name"`
	Email    *string `json:"email"`
}

type passwordBody struct {
	Username    string `json:"username"`
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

type userView struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

type sessionView struct {
	Status  dashauth.Status `json:"status"`
	User    *userView       `json:"user,omitempty"`
	Record  *userView       `json:"record,omitempty"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// View reports the session restored from the request cookie.
func (s *Server) View(w http.ResponseWriter, r *http.Request) {
	s.serve(w, r, dashauth.Request{}, http.StatusOK, nil)
}

// Login checks submitted credentials unless the cookie already
// authenticates the caller.
func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var body loginBody
	if !decode(w, r, &body) {
		return
	}
	req := dashauth.Request{Login: dashauth.LoginInput{Username: body.Username, Password: body.Password}}
	s.serve(w, r, req, http.StatusOK, func(resp *dashauth.Response) error {
		return resp.LoginErr
	})
}

// Logout ends the cookie session.
func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	s.serve(w, r, dashauth.Request{Logout: true}, http.StatusOK, nil)
}

// Register creates an account.
func (s *Server) Register(w http.ResponseWriter, r *http.Request) {
	var body registerBody
	if !decode(w, r, &body) {
		return
	}
	req := dashauth.Request{Register: &dashauth.RegisterRequest{
		Username:    body.Username,
		DisplayName: body.Name,
		Email:       body.Email,
		Password:    body.Password,
	}}
	s.serve(w, r, req, http.StatusCreated, actionErr)
}

// UpdateProfile changes name and/or email of the caller's record.
func (s *Server) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var body profileBody
	if !decode(w, r, &body) {
		return
	}
	req := dashauth.Request{UpdateProfile: &dashauth.ProfileUpdate{
		Username:    body.Username,
		DisplayName: body.Name,
		Email:       body.Email,
	}}
	s.serve(w, r, req, http.StatusOK, actionErr)
}

// ResetPassword replaces the caller's password.
func (s *Server) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var body passwordBody
	if !decode(w, r, &body) {
		return
	}
	req := dashauth.Request{ResetPassword: &dashauth.PasswordReset{
		Username:    body.Username,
		OldPassword: body.OldPassword,
		NewPassword: body.NewPassword,
	}}
	s.serve(w, r, req, http.StatusOK, actionErr)
}

func actionErr(resp *dashauth.Response) error {
	return resp.ActionErr
}

// subject is the username the action in req targets.
func subject(req dashauth.Request) string {
	switch {
	case req.Register != nil:
		return req.Register.Username
	case req.UpdateProfile != nil:
		return req.UpdateProfile.Username
	case req.ResetPassword != nil:
		return req.ResetPassword.Username
	}
	return ""
}

// serve runs one invocation and writes the session view. pick selects the
// error that decides the status code; a persistence failure overrides a
// successful outcome.
func (s *Server) serve(
	w http.ResponseWriter,
	r *http.Request,
	req dashauth.Request,
	okStatus int,
	pick func(*dashauth.Response) error,
) {
	if c, err := r.Cookie(s.config.CookieName); err == nil {
		req.Login.Cookie = c.Value
	}

	resp, err := s.engine.Handle(r.Context(), req)
	if err != nil {
		s.logger.Error("invocation failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, sessionView{Error: "credential store unavailable"})
		return
	}
	s.applyCookie(w, resp.Cookie)

	view := s.sessionView(resp, subject(req))
	status := okStatus

	var outcome error
	if pick != nil {
		outcome = pick(resp)
	}
	if outcome == nil && resp.PersistErr != nil {
		outcome = resp.PersistErr
	}
	if outcome != nil {
		status = statusFor(outcome)
		view.Error = publicMessage(outcome)
		if status >= http.StatusInternalServerError {
			s.logger.Error("request failed", zap.Error(outcome))
		}
	}

	writeJSON(w, status, view)
}

func (s *Server) sessionView(resp *dashauth.Response, subject string) sessionView {
	view := sessionView{Status: resp.Session.Status}
	switch resp.Session.Status {
	case dashauth.StatusUnknown:
		view.Message = messageUnknown
	case dashauth.StatusFailed:
		view.Message = messageFailed
	}
	if resp.User != nil && resp.Session.Authenticated() {
		view.User = s.userView(resp.Session.Username, *resp.User)
	}
	if resp.Record != nil {
		view.Record = s.userView(subject, *resp.Record)
	}
	return view
}

func (s *Server) userView(username string, rec dashauth.UserRecord) *userView {
	role := "user"
	if username == s.config.AdminUsername {
		role = "admin"
	}
	return &userView{Username: username, Name: rec.Name, Email: rec.Email, Role: role}
}

func (s *Server) applyCookie(w http.ResponseWriter, d dashauth.CookieDirective) {
	name := d.Name
	if name == "" {
		name = s.config.CookieName
	}
	switch d.Action {
	case dashauth.CookieSet:
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    d.Value,
			Path:     "/",
			Expires:  d.Expires,
			HttpOnly: true,
			Secure:   s.config.SecureCookies,
			SameSite: http.SameSiteLaxMode,
		})
	case dashauth.CookieClear:
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   s.config.SecureCookies,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, dashauth.ErrStorePersistence):
		return http.StatusInternalServerError
	case errors.Is(err, dashauth.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, dashauth.ErrLoginRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, dashauth.ErrDuplicateUsername):
		return http.StatusConflict
	case errors.Is(err, dashauth.ErrNotPreauthorized),
		errors.Is(err, dashauth.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, dashauth.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, dashauth.ErrWeakPassword),
		errors.Is(err, dashauth.ErrSamePassword),
		errors.Is(err, dashauth.ErrInvalidInput):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage returns the sentinel text for known errors so internal
// causes such as file paths never reach the client.
func publicMessage(err error) string {
	for _, known := range []error{
		dashauth.ErrStorePersistence,
		dashauth.ErrInvalidCredentials,
		dashauth.ErrLoginRateLimited,
		dashauth.ErrDuplicateUsername,
		dashauth.ErrNotPreauthorized,
		dashauth.ErrUnauthorized,
		dashauth.ErrNotFound,
		dashauth.ErrWeakPassword,
		dashauth.ErrSamePassword,
		dashauth.ErrInvalidInput,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "internal error"
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, sessionView{Error: "invalid request"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

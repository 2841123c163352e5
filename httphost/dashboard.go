package httphost

import (
	"net/http"

	"github.com/MrEthical07/dashauth/middleware"
)

type dashboardSettings struct {
	Themes        []string `json:"themes"`
	UserLimit     int      `json:"user_limit,omitempty"`
	Notifications int      `json:"notifications,omitempty"`
}

type dashboardView struct {
	Welcome  string            `json:"welcome"`
	User     *userView         `json:"user"`
	Settings dashboardSettings `json:"settings"`
	// ManageUsers enables the user management section.
	ManageUsers bool `json:"manage_users"`
}

// Dashboard returns the protected landing content for the caller.
func (s *Server) Dashboard(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, sessionView{Error: http.StatusText(http.StatusUnauthorized)})
		return
	}

	user := s.userView(id.Session.Username, id.User)
	view := dashboardView{
		Welcome: "Welcome " + user.Name + "!",
		User:    user,
	}
	if user.Role == "admin" {
		view.ManageUsers = true
		view.Settings = dashboardSettings{Themes: []string{"light", "dark", "auto"}, UserLimit: 50}
	} else {
		view.Settings = dashboardSettings{Themes: []string{"light", "dark"}, Notifications: 5}
	}
	writeJSON(w, http.StatusOK, view)
}

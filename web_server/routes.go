package web_server

import (
	"github.com/lefinal/confcomp-server/ws"
	"net/http"
)

// PopulateRoutes populates the WebServer with the routes of the given API and
// the websocket endpoint of the given ws.Hub.
func (server *WebServer) PopulateRoutes(api *API, hub *ws.Hub) {
	// Websocket stuff.
	server.router.HandleFunc("/ws", ws.HandleWS(hub))
	// API stuff.
	r := server.router.PathPrefix("/api/v1").Subrouter()
	// Agenda.
	r.HandleFunc("/agenda", api.handleGetAgenda).Methods(http.MethodGet)
	r.HandleFunc("/agenda.ics", api.handleGetAgendaICS).Methods(http.MethodGet)
	// Events.
	r.HandleFunc("/events", api.handleGetEvents).Methods(http.MethodGet)
	r.HandleFunc("/events", api.requireAdmin(api.handleCreateEvent)).Methods(http.MethodPost)
	r.HandleFunc("/events/{id}", api.requireAdmin(api.handleUpdateEvent)).Methods(http.MethodPut)
	r.HandleFunc("/events/{id}", api.requireAdmin(api.handleDeleteEvent)).Methods(http.MethodDelete)
	// Announcements.
	r.HandleFunc("/announcements", api.handleGetAnnouncements).Methods(http.MethodGet)
	r.HandleFunc("/announcements", api.requireAdmin(api.handlePostAnnouncement)).Methods(http.MethodPost)
	r.HandleFunc("/announcements/{id}", api.requireAdmin(api.handleDeleteAnnouncement)).Methods(http.MethodDelete)
	// Attendees and profiles.
	r.HandleFunc("/attendees", api.handleGetAttendees).Methods(http.MethodGet)
	r.HandleFunc("/attendees/me", api.requireSession(api.handlePutMyAttendeeInfo)).Methods(http.MethodPut)
	r.HandleFunc("/profiles", api.handleGetProfiles).Methods(http.MethodGet)
	r.HandleFunc("/profiles/me", api.requireSession(api.handlePutMyProfile)).Methods(http.MethodPut)
	// Contacts.
	r.HandleFunc("/contacts", api.requireSession(api.handleGetContacts)).Methods(http.MethodGet)
	r.HandleFunc("/contacts", api.requireSession(api.handlePostContact)).Methods(http.MethodPost)
	// Auth.
	r.HandleFunc("/auth/sign-up", api.handleSignUp).Methods(http.MethodPost)
	r.HandleFunc("/auth/sign-in", api.handleSignIn).Methods(http.MethodPost)
	r.HandleFunc("/auth/sign-out", api.requireSession(api.handleSignOut)).Methods(http.MethodPost)
	// Push tokens.
	r.HandleFunc("/push-tokens", api.handleRegisterPushToken).Methods(http.MethodPost)
	// Presence.
	r.HandleFunc("/presence", api.handleGetPresence).Methods(http.MethodGet)
	// Formatting.
	r.HandleFunc("/format/time", api.handleFormatTime).Methods(http.MethodGet)
	r.HandleFunc("/format/date", api.handleFormatDate).Methods(http.MethodGet)
}

package web_server

import (
	"context"
	"github.com/doug-martin/goqu/v9"
	"github.com/gobuffalo/nulls"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/lefinal/confcomp-server/auth"
	"github.com/lefinal/confcomp-server/calexport"
	"github.com/lefinal/confcomp-server/errors"
	"github.com/lefinal/confcomp-server/event"
	"github.com/lefinal/confcomp-server/store"
	"github.com/lefinal/confcomp-server/timefmt"
	"go.uber.org/zap"
	"net/http"
	"strconv"
	"time"
)

// Query parameters.
const (
	queryParamLimit   = "limit"
	queryParamOrderBy = "order_by"
	queryParamDesc    = "desc"
	queryParamDate    = "date"
	queryParamValue   = "value"
)

// Store is the persistence needed by API.
type Store interface {
	Events(ctx context.Context, query store.Query) ([]store.Event, error)
	EventByID(ctx context.Context, eventID uuid.UUID) (store.Event, error)
	CreateEvent(ctx context.Context, e store.Event) (store.Event, error)
	UpdateEvent(ctx context.Context, e store.Event) error
	DeleteEvent(ctx context.Context, eventID uuid.UUID) error
	Announcements(ctx context.Context, query store.Query) ([]store.Announcement, error)
	PostAnnouncement(ctx context.Context, a store.Announcement) (store.Announcement, error)
	DeleteAnnouncement(ctx context.Context, announcementID uuid.UUID) error
	AttendeeInfos(ctx context.Context, query store.Query) ([]store.AttendeeInfo, error)
	UpsertAttendeeInfo(ctx context.Context, info store.AttendeeInfo) (store.AttendeeInfo, error)
	ContactInfos(ctx context.Context, query store.Query) ([]store.ContactInfo, error)
	CreateContactInfo(ctx context.Context, c store.ContactInfo) (store.ContactInfo, error)
	Profiles(ctx context.Context, query store.Query) ([]store.Profile, error)
	UpsertProfile(ctx context.Context, p store.Profile) (store.Profile, error)
	RegisterPushToken(ctx context.Context, t store.PushToken) (store.PushToken, error)
}

// Auth handles accounts and sessions.
type Auth interface {
	SignUp(ctx context.Context, email string, password string, name string) (store.Account, error)
	SignIn(ctx context.Context, email string, password string) (auth.Session, error)
	Session(ctx context.Context, token string) (auth.Session, error)
	SignOut(ctx context.Context, token string) error
}

// Agenda provides the computed agenda.
type Agenda interface {
	Agenda(date string) ([]event.AgendaDay, error)
	Events() []store.Event
}

// Presence provides the number of active clients.
type Presence interface {
	Counts() map[string]int
	Total() int
}

// APIConfig configures API.
type APIConfig struct {
	// CalendarName is the name of the exported iCalendar feed.
	CalendarName string
	// Location is the time zone of the conference.
	Location *time.Location
}

// API serves the REST endpoints.
type API struct {
	logger   *zap.Logger
	config   APIConfig
	store    Store
	auth     Auth
	agenda   Agenda
	presence Presence
}

// NewAPI creates a new API. Mount it with WebServer.PopulateRoutes.
func NewAPI(logger *zap.Logger, config APIConfig, store Store, auth Auth, agenda Agenda, presence Presence) *API {
	if config.Location == nil {
		config.Location = time.UTC
	}
	return &API{
		logger:   logger,
		config:   config,
		store:    store,
		auth:     auth,
		agenda:   agenda,
		presence: presence,
	}
}

// queryFromRequest reads the list query parameters.
func queryFromRequest(r *http.Request) (store.Query, error) {
	var query store.Query
	params := r.URL.Query()
	if limitStr := params.Get(queryParamLimit); limitStr != "" {
		limit, err := strconv.ParseUint(limitStr, 10, 32)
		if err != nil {
			return store.Query{}, errors.NewBadRequestErr("invalid limit", err, errors.Details{"limit": limitStr})
		}
		query.Limit = uint(limit)
	}
	query.OrderBy = params.Get(queryParamOrderBy)
	if descStr := params.Get(queryParamDesc); descStr != "" {
		desc, err := strconv.ParseBool(descStr)
		if err != nil {
			return store.Query{}, errors.NewBadRequestErr("invalid desc", err, errors.Details{"desc": descStr})
		}
		query.Descending = desc
	}
	return query, nil
}

// idFromRequest parses the id path variable.
func idFromRequest(r *http.Request) (uuid.UUID, error) {
	idStr := mux.Vars(r)["id"]
	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.UUID{}, errors.NewBadRequestErr("invalid id", err, errors.Details{"id": idStr})
	}
	return id, nil
}

func (api *API) handleGetAgenda(w http.ResponseWriter, r *http.Request) {
	days, err := api.agenda.Agenda(r.URL.Query().Get(queryParamDate))
	if err != nil {
		respondErr(api.logger, w, errors.Wrap(err, "agenda", nil))
		return
	}
	respondJSON(api.logger, w, http.StatusOK, days)
}

func (api *API) handleGetAgendaICS(w http.ResponseWriter, r *http.Request) {
	cal, err := calexport.Agenda(api.agenda.Events(), api.config.Location, api.config.CalendarName)
	if err != nil {
		respondErr(api.logger, w, errors.Wrap(err, "export agenda", nil))
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="agenda.ics"`)
	w.WriteHeader(http.StatusOK)
	_, err = w.Write([]byte(cal))
	if err != nil {
		errors.Log(api.logger, errors.FromErr("write calendar", errors.ErrCommunication, err, nil))
	}
}

func (api *API) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	query, err := queryFromRequest(r)
	if err != nil {
		respondErr(api.logger, w, err)
		return
	}
	events, err := api.store.Events(r.Context(), query)
	if err != nil {
		respondErr(api.logger, w, errors.Wrap(err, "events", nil))
		return
	}
	respondJSON(api.logger, w, http.StatusOK, events)
}

// eventRequest is the body for creating and updating events.
type eventRequest struct {
	Title       string       `json:"title"`
	Description nulls.String `json:"description"`
	Date        string       `json:"date"`
	StartTime   string       `json:"start_time"`
	EndTime     string       `json:"end_time"`
	Location    nulls.String `json:"location"`
	Topic       nulls.String `json:"topic"`
	Speaker     nulls.String `json:"speaker"`
}

func (req eventRequest) toEvent() (store.Event, error) {
	date, err := timefmt.ParseDate(req.Date)
	if err != nil {
		return store.Event{}, errors.Wrap(err, "parse date", nil)
	}
	return store.Event{
		Title:       req.Title,
		Description: req.Description,
		Date:        date.Truncate(24 * time.Hour),
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Location:    req.Location,
		Topic:       req.Topic,
		Speaker:     req.Speaker,
	}, nil
}

func (api *API) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := decodeBody(r, &req); err != nil {
		respondErr(api.logger, w, err)
		return
	}
	e, err := req.toEvent()
	if err != nil {
		respondErr(api.logger, w, err)
		return
	}
	created, err := api.store.CreateEvent(r.Context(), e)
	if err != nil {
		respondErr(api.logger, w, errors.Wrap(err, "create event", nil))
		return
	}
	respondJSON(api.logger, w, http.StatusCreated, created)
}

func (api *API) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	id, err := idFromRequest(r)
	if err != nil {
		respondErr(api.logger, w, err)
		return
	}
	var req eventRequest
	if err := decodeBody(r, &req); err != nil {
		respondErr(api.logger, w, err)
		return
	}
	e, err := req.toEvent()
	if err != nil {
		respondErr(api.logger, w, err)
		return
	}
	e.ID = id
	err = api.store.UpdateEvent(r.Context(), e)
	if err != nil {
		respondErr(api.logger, w, errors.Wrap(err, "update event", errors.Details{"event_id": id}))
		return
	}
	updated, err := api.store.EventByID(r.Context(), id)
	if err != nil {
		respondErr(api.logger, w, errors.Wrap(err, "event by id", errors.Details{"event_id": id}))
		return
	}
	respondJSON(api.logger, w, http.StatusOK, updated)
}

func (api *API) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	id, err := idFromRequest(r)
	if err != nil {
		respondErr(api.logger, w, err)
		return
	}
	err = api.store.DeleteEvent(r.Context(), id)
	if err != nil {
		respondErr(api.logger, w, errors.Wrap(err, "delete event", errors.Details{"event_id": id}))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (api *API) handleGetAnnouncements(w http.ResponseWriter, r *http.Request) {
	query, err := queryFromRequest(r)
	if err != nil {
		respondErr(api.logger, w, err)
		return
	}
	announcements, err := api.store.Announcements(r.Context(), query)
	if err != nil {
		respondErr(api.logger, w, errors.Wrap(err, "announcements", nil))
		return
	}
	respondJSON(api.logger, w, http.StatusOK, announcements)
}

type announcementRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (api *API) handlePostAnnouncement(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFromContext(r.Context())
	var req announcementRequest
	if err := decodeBody(r, &req); err != nil {
		respondErr(api.logger, w, err)
		return
	}
	created, err := api.store.PostAnnouncement(r.Context(), store.Announcement{
		Title:  req.Title,
		Body:   req.Body,
		Author: nulls.NewString(session.Name),
	})
	if err != nil {
		respondErr(api.logger, w, errors.Wrap(err, "post announcement", nil))
		return
	}
	respondJSON(api.logger, w, http.StatusCreated, created)
}

func (api *API) handleDeleteAnnouncement(w http.ResponseWriter, r *http.Request) {
	id, err := idFromRequest(r)
	if err != nil {
		respondErr(api.logger, w, err)
		return
	}
	err = api.store.DeleteAnnouncement(r.Context(), id)
	if err != nil {
		respondErr(api.logger, w, errors.Wrap(err, "delete announcement", errors.Details{"announcement_id": id}))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (api *API) handleGetAttendees(w http.ResponseWriter, r *http.Request) {
	query, err := queryFromRequest(r)
	if err != nil {
		respondErr(api.logger, w, err)
		return
	}
	infos, err := api.store.AttendeeInfos(r.Context(), query)
	if err != nil {
		respondErr(api.logger, w, errors.Wrap(err, "attendee infos", nil))
		return
	}
	respondJSON(api.logger, w, http.StatusOK, infos)
}

type attendeeInfoRequest struct {
	Name    string       `json:"name"`
	Company nulls.String `json:"company"`
	Role    nulls.String `json:"role"`
	Bio     nulls.String `json:"bio"`
}

func (api *API) handlePutMyAttendeeInfo(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFromContext(r.Context())
	var req attendeeInfoRequest
	if err := decodeBody(r, &req); err != nil {
		respondErr(api.logger, w, err)
		return
	}
	info, err := api.store.UpsertAttendeeInfo(r.Context(), store.AttendeeInfo{
		AccountID: session.AccountID,
		Name:      req.Name,
		Company:   req.Company,
		Role:      req.Role,
		Bio:       req.Bio,
	})
	if err != nil {
		respondErr(api.logger, w, errors.Wrap(err, "upsert attendee info", nil))
		return
	}
	respondJSON(api.logger, w, http.StatusOK, info)
}

// handleGetContacts lists contacts. Admins see all of them, others only their
// own ones.
func (api *API) handleGetContacts(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFromContext(r.Context())
	query, err := queryFromRequest(r)
	if err != nil {
		respondErr(api.logger, w, err)
		return
	}
	if !session.IsAdmin {
		query.Where = goqu.Ex{"account_id": session.AccountID.String()}
	}
	contacts, err := api.store.ContactInfos(r.Context(), query)
	if err != nil {
		respondErr(api.logger, w, errors.Wrap(err, "contact infos", nil))
		return
	}
	respondJSON(api.logger, w, http.StatusOK, contacts)
}

type contactInfoRequest struct {
	Name    string       `json:"name"`
	Email   string       `json:"email"`
	Phone   nulls.String `json:"phone"`
	Message nulls.String `json:"message"`
}

func (api *API) handlePostContact(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFromContext(r.Context())
	var req contactInfoRequest
	if err := decodeBody(r, &req); err != nil {
		respondErr(api.logger, w, err)
		return
	}
	created, err := api.store.CreateContactInfo(r.Context(), store.ContactInfo{
		AccountID: session.AccountID,
		Name:      req.Name,
		Email:     req.Email,
		Phone:     req.Phone,
		Message:   req.Message,
	})
	if err != nil {
		respondErr(api.logger, w, errors.Wrap(err, "create contact info", nil))
		return
	}
	respondJSON(api.logger, w, http.StatusCreated, created)
}

func (api *API) handleGetProfiles(w http.ResponseWriter, r *http.Request) {
	query, err := queryFromRequest(r)
	if err != nil {
		respondErr(api.logger, w, err)
		return
	}
	profiles, err := api.store.Profiles(r.Context(), query)
	if err != nil {
		respondErr(api.logger, w, errors.Wrap(err, "profiles", nil))
		return
	}
	respondJSON(api.logger, w, http.StatusOK, profiles)
}

type profileRequest struct {
	DisplayName string       `json:"display_name"`
	AvatarURL   nulls.String `json:"avatar_url"`
}

func (api *API) handlePutMyProfile(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFromContext(r.Context())
	var req profileRequest
	if err := decodeBody(r, &req); err != nil {
		respondErr(api.logger, w, err)
		return
	}
	profile, err := api.store.UpsertProfile(r.Context(), store.Profile{
		AccountID:   session.AccountID,
		DisplayName: req.DisplayName,
		AvatarURL:   req.AvatarURL,
	})
	if err != nil {
		respondErr(api.logger, w, errors.Wrap(err, "upsert profile", nil))
		return
	}
	respondJSON(api.logger, w, http.StatusOK, profile)
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

// accountResponse is the public representation of store.Account.
type accountResponse struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}

func (api *API) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeBody(r, &req); err != nil {
		respondErr(api.logger, w, err)
		return
	}
	account, err := api.auth.SignUp(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		respondErr(api.logger, w, errors.Wrap(err, "sign up", nil))
		return
	}
	respondJSON(api.logger, w, http.StatusCreated, accountResponse{
		ID:        account.ID,
		Email:     account.Email,
		Name:      account.Name,
		IsAdmin:   account.IsAdmin,
		CreatedAt: account.CreatedAt,
	})
}

func (api *API) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeBody(r, &req); err != nil {
		respondErr(api.logger, w, err)
		return
	}
	session, err := api.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		respondErr(api.logger, w, errors.Wrap(err, "sign in", nil))
		return
	}
	respondJSON(api.logger, w, http.StatusOK, session)
}

func (api *API) handleSignOut(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFromContext(r.Context())
	err := api.auth.SignOut(r.Context(), session.Token)
	if err != nil {
		respondErr(api.logger, w, errors.Wrap(err, "sign out", nil))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type pushTokenRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

// handleRegisterPushToken stores a push token. If the request carries a valid
// session, the token is linked to the account.
func (api *API) handleRegisterPushToken(w http.ResponseWriter, r *http.Request) {
	var req pushTokenRequest
	if err := decodeBody(r, &req); err != nil {
		respondErr(api.logger, w, err)
		return
	}
	token := store.PushToken{
		Token:    req.Token,
		Platform: req.Platform,
	}
	if sessionToken := bearerToken(r); sessionToken != "" {
		session, err := api.auth.Session(r.Context(), sessionToken)
		if err != nil {
			respondErr(api.logger, w, errors.Wrap(err, "session", nil))
			return
		}
		token.AccountID = uuid.NullUUID{UUID: session.AccountID, Valid: true}
	}
	registered, err := api.store.RegisterPushToken(r.Context(), token)
	if err != nil {
		respondErr(api.logger, w, errors.Wrap(err, "register push token", nil))
		return
	}
	respondJSON(api.logger, w, http.StatusCreated, registered)
}

func (api *API) handleGetPresence(w http.ResponseWriter, _ *http.Request) {
	respondJSON(api.logger, w, http.StatusOK, event.PresenceCountsEvent{
		Counts: api.presence.Counts(),
		Total:  api.presence.Total(),
	})
}

type formattedResponse struct {
	Value     string `json:"value"`
	Formatted string `json:"formatted"`
}

func (api *API) handleFormatTime(w http.ResponseWriter, r *http.Request) {
	value := r.URL.Query().Get(queryParamValue)
	formatted, err := timefmt.FormatTime(value)
	if err != nil {
		respondErr(api.logger, w, errors.Wrap(err, "format time", nil))
		return
	}
	respondJSON(api.logger, w, http.StatusOK, formattedResponse{Value: value, Formatted: formatted})
}

func (api *API) handleFormatDate(w http.ResponseWriter, r *http.Request) {
	value := r.URL.Query().Get(queryParamValue)
	formatted, err := timefmt.FormatDate(value)
	if err != nil {
		respondErr(api.logger, w, errors.Wrap(err, "format date", nil))
		return
	}
	respondJSON(api.logger, w, http.StatusOK, formattedResponse{Value: value, Formatted: formatted})
}

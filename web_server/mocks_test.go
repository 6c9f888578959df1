package web_server

import (
	"context"
	"github.com/google/uuid"
	"github.com/lefinal/confcomp-server/auth"
	"github.com/lefinal/confcomp-server/event"
	"github.com/lefinal/confcomp-server/store"
	"github.com/stretchr/testify/mock"
)

// storeMock mocks Store.
type storeMock struct {
	mock.Mock
}

func (m *storeMock) Events(ctx context.Context, query store.Query) ([]store.Event, error) {
	args := m.Called(ctx, query)
	return args.Get(0).([]store.Event), args.Error(1)
}

func (m *storeMock) EventByID(ctx context.Context, eventID uuid.UUID) (store.Event, error) {
	args := m.Called(ctx, eventID)
	return args.Get(0).(store.Event), args.Error(1)
}

func (m *storeMock) CreateEvent(ctx context.Context, e store.Event) (store.Event, error) {
	args := m.Called(ctx, e)
	return args.Get(0).(store.Event), args.Error(1)
}

func (m *storeMock) UpdateEvent(ctx context.Context, e store.Event) error {
	return m.Called(ctx, e).Error(0)
}

func (m *storeMock) DeleteEvent(ctx context.Context, eventID uuid.UUID) error {
	return m.Called(ctx, eventID).Error(0)
}

func (m *storeMock) Announcements(ctx context.Context, query store.Query) ([]store.Announcement, error) {
	args := m.Called(ctx, query)
	return args.Get(0).([]store.Announcement), args.Error(1)
}

func (m *storeMock) PostAnnouncement(ctx context.Context, a store.Announcement) (store.Announcement, error) {
	args := m.Called(ctx, a)
	return args.Get(0).(store.Announcement), args.Error(1)
}

func (m *storeMock) DeleteAnnouncement(ctx context.Context, announcementID uuid.UUID) error {
	return m.Called(ctx, announcementID).Error(0)
}

func (m *storeMock) AttendeeInfos(ctx context.Context, query store.Query) ([]store.AttendeeInfo, error) {
	args := m.Called(ctx, query)
	return args.Get(0).([]store.AttendeeInfo), args.Error(1)
}

func (m *storeMock) UpsertAttendeeInfo(ctx context.Context, info store.AttendeeInfo) (store.AttendeeInfo, error) {
	args := m.Called(ctx, info)
	return args.Get(0).(store.AttendeeInfo), args.Error(1)
}

func (m *storeMock) ContactInfos(ctx context.Context, query store.Query) ([]store.ContactInfo, error) {
	args := m.Called(ctx, query)
	return args.Get(0).([]store.ContactInfo), args.Error(1)
}

func (m *storeMock) CreateContactInfo(ctx context.Context, c store.ContactInfo) (store.ContactInfo, error) {
	args := m.Called(ctx, c)
	return args.Get(0).(store.ContactInfo), args.Error(1)
}

func (m *storeMock) Profiles(ctx context.Context, query store.Query) ([]store.Profile, error) {
	args := m.Called(ctx, query)
	return args.Get(0).([]store.Profile), args.Error(1)
}

func (m *storeMock) UpsertProfile(ctx context.Context, p store.Profile) (store.Profile, error) {
	args := m.Called(ctx, p)
	return args.Get(0).(store.Profile), args.Error(1)
}

func (m *storeMock) RegisterPushToken(ctx context.Context, t store.PushToken) (store.PushToken, error) {
	args := m.Called(ctx, t)
	return args.Get(0).(store.PushToken), args.Error(1)
}

// authMock mocks Auth.
type authMock struct {
	mock.Mock
}

func (m *authMock) SignUp(ctx context.Context, email string, password string, name string) (store.Account, error) {
	args := m.Called(ctx, email, password, name)
	return args.Get(0).(store.Account), args.Error(1)
}

func (m *authMock) SignIn(ctx context.Context, email string, password string) (auth.Session, error) {
	args := m.Called(ctx, email, password)
	return args.Get(0).(auth.Session), args.Error(1)
}

func (m *authMock) Session(ctx context.Context, token string) (auth.Session, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(auth.Session), args.Error(1)
}

func (m *authMock) SignOut(ctx context.Context, token string) error {
	return m.Called(ctx, token).Error(0)
}

// agendaStub provides fixed agenda results.
type agendaStub struct {
	days   []event.AgendaDay
	err    error
	events []store.Event
	// requestedDate is the date passed to the last Agenda call.
	requestedDate string
}

func (a *agendaStub) Agenda(date string) ([]event.AgendaDay, error) {
	a.requestedDate = date
	return a.days, a.err
}

func (a *agendaStub) Events() []store.Event {
	return a.events
}

// presenceStub provides fixed counts.
type presenceStub struct {
	counts map[string]int
}

func (p *presenceStub) Counts() map[string]int {
	return p.counts
}

func (p *presenceStub) Total() int {
	total := 0
	for _, count := range p.counts {
		total += count
	}
	return total
}

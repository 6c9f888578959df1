package remindersvc

import (
	"context"
	"github.com/gobuffalo/nulls"
	"github.com/google/uuid"
	"github.com/lefinal/confcomp-server/errors"
	"github.com/lefinal/confcomp-server/event"
	"github.com/lefinal/confcomp-server/portal"
	"github.com/lefinal/confcomp-server/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"testing"
	"time"
)

const timeout = 3 * time.Second

// eventSourceStub provides fixed events.
type eventSourceStub struct {
	events []store.Event
}

func (s *eventSourceStub) Events() []store.Event {
	return s.events
}

// storeStub mocks Store.
type storeStub struct {
	mock.Mock
}

func (stub *storeStub) PushTokens(ctx context.Context, query store.Query) ([]store.PushToken, error) {
	args := stub.Called(ctx, query)
	return args.Get(0).([]store.PushToken), args.Error(1)
}

func TestNewService_defaults(t *testing.T) {
	s, err := NewService(zap.NewNop(), &portal.Stub{}, Config{}, &eventSourceStub{}, &storeStub{})
	require.NoError(t, err, "should not fail")
	assert.Equal(t, DefaultSchedule, s.config.Schedule)
	assert.Equal(t, DefaultLeadTime, s.config.LeadTime)
	assert.Equal(t, time.UTC, s.config.Location)
}

func TestNewService_invalidSchedule(t *testing.T) {
	_, err := NewService(zap.NewNop(), &portal.Stub{}, Config{Schedule: "every now and then"}, &eventSourceStub{}, &storeStub{})
	assert.True(t, errors.HasCode(err, errors.ErrBadRequest), "should fail with bad request")
}

// reminderSuite tests Service.
type reminderSuite struct {
	suite.Suite
	ctx        context.Context
	cancel     context.CancelFunc
	portalStub *portal.Stub
	store      *storeStub
	events     *eventSourceStub
	service    *Service
	now        time.Time
	soon       store.Event
	later      store.Event
	past       store.Event
	tomorrow   store.Event
}

func (suite *reminderSuite) SetupTest() {
	suite.ctx, suite.cancel = context.WithTimeout(context.Background(), timeout)
	suite.portalStub = &portal.Stub{}
	suite.store = &storeStub{}
	suite.events = &eventSourceStub{}
	var err error
	suite.service, err = NewService(zap.NewNop(), suite.portalStub, Config{LeadTime: 15 * time.Minute},
		suite.events, suite.store)
	suite.Require().NoError(err, "should not fail")
	suite.now = time.Date(2025, 8, 13, 8, 50, 0, 0, time.UTC)
	suite.service.now = func() time.Time { return suite.now }
	day := time.Date(2025, 8, 13, 0, 0, 0, 0, time.UTC)
	suite.soon = store.Event{ID: uuid.New(), Title: "Keynote", Date: day, StartTime: "09:00", EndTime: "10:00",
		Location: nulls.NewString("Main Hall")}
	suite.later = store.Event{ID: uuid.New(), Title: "Lunch", Date: day, StartTime: "12:00", EndTime: "13:00"}
	suite.past = store.Event{ID: uuid.New(), Title: "Breakfast", Date: day, StartTime: "08:00", EndTime: "08:45"}
	suite.tomorrow = store.Event{ID: uuid.New(), Title: "Closing", Date: day.AddDate(0, 0, 1), StartTime: "09:00",
		EndTime: "10:00"}
	suite.events.events = []store.Event{suite.soon, suite.later, suite.past, suite.tomorrow}
}

func (suite *reminderSuite) TearDownTest() {
	suite.cancel()
}

func (suite *reminderSuite) TestUpcoming() {
	upcoming := suite.service.upcoming(suite.now)
	suite.Require().Len(upcoming, 1, "should only find soon starting event")
	suite.Equal(suite.soon.ID, upcoming[0].ID)
}

func (suite *reminderSuite) TestRemindOnce() {
	suite.store.On("PushTokens", suite.ctx, store.Query{}).
		Return([]store.PushToken{{Token: "t1"}, {Token: "t2"}}, nil).Once()
	suite.portalStub.On("Publish", suite.ctx, topicReminder, event.SessionReminderEvent{
		EventID:     suite.soon.ID.String(),
		Title:       "Keynote",
		DisplayTime: "9:00 AM - 10:00 AM",
		Location:    "Main Hall",
		PushTokens:  []string{"t1", "t2"},
	}).Once()
	defer suite.store.AssertExpectations(suite.T())
	defer suite.portalStub.AssertExpectations(suite.T())
	suite.service.remind(suite.ctx)
	// Second run should not remind again.
	suite.service.remind(suite.ctx)
}

func (suite *reminderSuite) TestNothingUpcoming() {
	suite.now = time.Date(2025, 8, 13, 20, 0, 0, 0, time.UTC)
	suite.service.remind(suite.ctx)
	suite.store.AssertNotCalled(suite.T(), "PushTokens", mock.Anything, mock.Anything)
	suite.portalStub.AssertNotCalled(suite.T(), "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func (suite *reminderSuite) TestPushTokensFail() {
	suite.store.On("PushTokens", suite.ctx, store.Query{}).
		Return([]store.PushToken(nil), errors.NewInternalError("sad life", nil)).Once()
	suite.service.remind(suite.ctx)
	suite.portalStub.AssertNotCalled(suite.T(), "Publish", mock.Anything, mock.Anything, mock.Anything)
	suite.Len(suite.service.upcoming(suite.now), 1, "should retry with next run")
}

func (suite *reminderSuite) TestTimeZone() {
	loc := time.FixedZone("conference", 2*60*60)
	suite.service.config.Location = loc
	// 06:50 UTC is 08:50 at the conference.
	suite.now = time.Date(2025, 8, 13, 6, 50, 0, 0, time.UTC)
	upcoming := suite.service.upcoming(suite.now)
	suite.Require().Len(upcoming, 1, "should use conference time zone")
	suite.Equal(suite.soon.ID, upcoming[0].ID)
}

func (suite *reminderSuite) TestRunStops() {
	runCtx, cancelRun := context.WithCancel(suite.ctx)
	done := make(chan error)
	go func() {
		done <- suite.service.Run(runCtx)
	}()
	cancelRun()
	select {
	case <-suite.ctx.Done():
		suite.Fail("timeout", "timeout while waiting for run to stop")
	case err := <-done:
		suite.NoError(err, "should not fail")
	}
}

func TestService(t *testing.T) {
	suite.Run(t, new(reminderSuite))
}

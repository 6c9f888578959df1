package presencesvc

import (
	"context"
	"github.com/lefinal/confcomp-server/event"
	"github.com/lefinal/confcomp-server/portal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"sync"
	"testing"
	"time"
)

const timeout = 3 * time.Second

func TestNewService(t *testing.T) {
	logger := zap.New(zapcore.NewNopCore())
	portalStub := &portal.Stub{}
	s := NewService(logger, portalStub)
	require.NotNil(t, s, "should not be nil")
	assert.Equal(t, logger, s.logger, "should set correct logger")
	assert.Equal(t, portalStub, s.portal, "should set correct portal")
	assert.Empty(t, s.Counts(), "should start without clients")
}

func TestNormalizePlatform(t *testing.T) {
	assert.Equal(t, "ios", normalizePlatform(" iOS "))
	assert.Equal(t, unknownPlatform, normalizePlatform(""))
}

// presenceServiceSuite tests Service.
type presenceServiceSuite struct {
	suite.Suite
	portalStub *portal.Stub
	service    *Service
}

func (suite *presenceServiceSuite) SetupTest() {
	suite.portalStub = &portal.Stub{}
	suite.service = NewService(zap.New(zapcore.NewNopCore()), suite.portalStub)
}

// runUntil runs the service and waits until the context is canceled.
func (suite *presenceServiceSuite) runUntil(timeout context.Context, cancel context.CancelFunc) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := suite.service.Run(timeout)
		suite.Nil(err, "should not fail")
	}()
	// Await all.
	go func() {
		wg.Wait()
		cancel()
	}()
	<-timeout.Done()
	suite.Equal(context.Canceled, timeout.Err(), "should not time out")
	wg.Wait()
}

func (suite *presenceServiceSuite) testSubscribeOnRun(topic portal.Topic) {
	timeout, cancel := context.WithTimeout(context.Background(), timeout)
	suite.portalStub.On("Subscribe", mock.Anything, topic).
		Run(func(_ mock.Arguments) { cancel() }).
		Return(portal.NewSelfClosingMockNewsletter(timeout)).Once()
	suite.portalStub.On("Subscribe", mock.Anything, mock.Anything).
		Return(portal.NewSelfClosingMockNewsletter(timeout))
	suite.portalStub.On("Publish", mock.Anything, mock.Anything, mock.Anything)
	defer suite.portalStub.AssertExpectations(suite.T())
	suite.runUntil(timeout, cancel)
}

// TestSubscribeReportOnRun assures that we subscribe to report topic.
func (suite *presenceServiceSuite) TestSubscribeReportOnRun() {
	suite.testSubscribeOnRun(topicReport)
}

// TestSubscribeJoinOnRun assures that we subscribe to join topic.
func (suite *presenceServiceSuite) TestSubscribeJoinOnRun() {
	suite.testSubscribeOnRun(topicJoin)
}

// TestSubscribeLeaveOnRun assures that we subscribe to leave topic.
func (suite *presenceServiceSuite) TestSubscribeLeaveOnRun() {
	suite.testSubscribeOnRun(topicLeave)
}

// TestRequestReportAfterRunSetup assures that we request a report after
// having made all subscriptions.
func (suite *presenceServiceSuite) TestRequestReportAfterRunSetup() {
	timeout, cancel := context.WithTimeout(context.Background(), timeout)
	publishCallMade := atomic.NewBool(false)
	suite.portalStub.On("Subscribe", mock.Anything, mock.Anything).
		Run(func(_ mock.Arguments) {
			suite.False(publishCallMade.Load(), "should finish subscriptions before publishing")
		}).
		Return(portal.NewSelfClosingMockNewsletter(timeout))
	suite.portalStub.On("Publish", mock.Anything, topicReport, event.EmptyEvent{}).
		Run(func(_ mock.Arguments) {
			publishCallMade.Store(true)
			cancel()
		}).Once()
	defer suite.portalStub.AssertExpectations(suite.T())
	suite.runUntil(timeout, cancel)
}

// TestHandleJoinAndLeave tests handling of join and leave events from other
// instances.
func (suite *presenceServiceSuite) TestHandleJoinAndLeave() {
	var wg sync.WaitGroup
	timeout, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	runCtx, cancelRun := context.WithCancel(timeout)
	joinReceive := make(chan event.Event[any])
	leaveReceive := make(chan event.Event[any])
	suite.portalStub.On("Subscribe", mock.Anything, topicJoin).
		Return(portal.NewSelfClosingReceivingMockNewsletter(runCtx, joinReceive)).Once()
	suite.portalStub.On("Subscribe", mock.Anything, topicLeave).
		Return(portal.NewSelfClosingReceivingMockNewsletter(runCtx, leaveReceive)).Once()
	suite.portalStub.On("Subscribe", mock.Anything, topicReport).
		Return(portal.NewSelfClosingMockNewsletter(runCtx)).Once()
	suite.portalStub.On("Publish", mock.Anything, topicReport, mock.Anything).Once()
	countsPublished := make(chan event.PresenceCountsEvent, 16)
	suite.portalStub.On("Publish", mock.Anything, topicCounts, mock.Anything).
		Run(func(args mock.Arguments) {
			countsPublished <- args.Get(2).(event.PresenceCountsEvent)
		})
	defer suite.portalStub.AssertExpectations(suite.T())
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := suite.service.Run(runCtx)
		suite.Nil(err, "should not fail")
	}()
	send := func(c chan event.Event[any], payload any) {
		select {
		case <-timeout.Done():
			suite.Fail("timeout", "timeout while sending")
		case c <- event.Event[any]{Payload: payload}:
		}
	}
	awaitCounts := func() event.PresenceCountsEvent {
		select {
		case <-timeout.Done():
			suite.Fail("timeout", "timeout while waiting for counts")
			return event.PresenceCountsEvent{}
		case e := <-countsPublished:
			return e
		}
	}
	send(joinReceive, event.PresenceJoinEvent{ClientID: "a", Platform: "ios"})
	suite.Equal(event.PresenceCountsEvent{Counts: map[string]int{"ios": 1}, Total: 1}, awaitCounts())
	// Repeated join is not counted twice.
	send(joinReceive, event.PresenceJoinEvent{ClientID: "a", Platform: "ios"})
	send(joinReceive, event.PresenceJoinEvent{ClientID: "b", Platform: "web"})
	suite.Equal(event.PresenceCountsEvent{Counts: map[string]int{"ios": 1, "web": 1}, Total: 2}, awaitCounts())
	send(leaveReceive, event.PresenceLeaveEvent{ClientID: "a"})
	suite.Equal(event.PresenceCountsEvent{Counts: map[string]int{"web": 1}, Total: 1}, awaitCounts())
	suite.Equal(1, suite.service.Total(), "should count remaining client")
	cancelRun()
	wg.Wait()
	suite.Empty(suite.service.Counts(), "should forget clients after run")
	suite.Equal(0, suite.service.Total(), "should have zero total after run")
}

// TestReportReannouncesLocalClients assures that local clients are announced
// again when a report is requested.
func (suite *presenceServiceSuite) TestReportReannouncesLocalClients() {
	var wg sync.WaitGroup
	timeout, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	runCtx, cancelRun := context.WithCancel(timeout)
	reportReceive := make(chan event.Event[any])
	suite.portalStub.On("Subscribe", mock.Anything, topicReport).
		Return(portal.NewSelfClosingReceivingMockNewsletter(runCtx, reportReceive)).Once()
	suite.portalStub.On("Subscribe", mock.Anything, mock.Anything).
		Return(portal.NewSelfClosingMockNewsletter(runCtx))
	suite.portalStub.On("Publish", mock.Anything, topicReport, mock.Anything).Once()
	suite.portalStub.On("Publish", mock.Anything, topicCounts, mock.Anything)
	joinsPublished := make(chan event.PresenceJoinEvent, 16)
	suite.portalStub.On("Publish", mock.Anything, topicJoin, mock.Anything).
		Run(func(args mock.Arguments) {
			joinsPublished <- args.Get(2).(event.PresenceJoinEvent)
		})
	defer suite.portalStub.AssertExpectations(suite.T())
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := suite.service.Run(runCtx)
		suite.Nil(err, "should not fail")
	}()
	suite.service.Join(timeout, "local", "Android")
	suite.Equal(event.PresenceJoinEvent{ClientID: "local", Platform: "android"}, <-joinsPublished,
		"should announce join")
	suite.Equal(map[string]int{"android": 1}, suite.service.Counts(), "should count local client")
	select {
	case <-timeout.Done():
		suite.Fail("timeout", "timeout while requesting report")
	case reportReceive <- event.Event[any]{Payload: event.EmptyEvent{}}:
	}
	select {
	case <-timeout.Done():
		suite.Fail("timeout", "timeout while waiting for re-announcement")
	case e := <-joinsPublished:
		suite.Equal("local", e.ClientID, "should re-announce local client")
	}
	cancelRun()
	wg.Wait()
}

func (suite *presenceServiceSuite) TestLocalLeave() {
	suite.portalStub.On("Publish", mock.Anything, mock.Anything, mock.Anything)
	ctx := context.Background()
	suite.service.Join(ctx, "a", "web")
	suite.service.Join(ctx, "b", "web")
	suite.Equal(2, suite.service.Total(), "should count both")
	suite.service.Leave(ctx, "a")
	suite.Equal(map[string]int{"web": 1}, suite.service.Counts(), "should remove left client")
	suite.portalStub.AssertCalled(suite.T(), "Publish", mock.Anything, topicLeave, event.PresenceLeaveEvent{ClientID: "a"})
}

func TestService(t *testing.T) {
	suite.Run(t, new(presenceServiceSuite))
}

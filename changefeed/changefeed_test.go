package changefeed

import (
	"context"
	"github.com/lefinal/confcomp-server/event"
	"github.com/lefinal/confcomp-server/portal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"testing"
	"time"
)

const timeout = 3 * time.Second

func TestTopic(t *testing.T) {
	assert.Equal(t, portal.Topic("confcomp/changes/events"), Topic("events"))
}

func TestPublisher_NotifyChange(t *testing.T) {
	timeout, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	now := time.Date(2025, 8, 13, 9, 0, 0, 0, time.UTC)
	p := &portal.Stub{}
	defer p.AssertExpectations(t)
	p.On("Publish", timeout, Topic("events"), event.TableChangeEvent{
		Table:     "events",
		Operation: event.OperationUpdate,
		RowID:     "abc",
		At:        now,
	}).Once()
	publisher := NewPublisher(p)
	publisher.now = func() time.Time { return now }
	publisher.NotifyChange(timeout, "events", event.OperationUpdate, "abc")
}

// feedSuite tests Feed.
type feedSuite struct {
	suite.Suite
	ctx     context.Context
	cancel  context.CancelFunc
	portal  *portal.Stub
	publish chan event.Event[any]
}

func (suite *feedSuite) SetupTest() {
	suite.ctx, suite.cancel = context.WithTimeout(context.Background(), timeout)
	suite.portal = &portal.Stub{}
	suite.publish = make(chan event.Event[any])
	suite.portal.On("Subscribe", mock.Anything, Topic("events")).
		Return(portal.NewSelfClosingReceivingMockNewsletter(suite.ctx, suite.publish)).Once()
}

func (suite *feedSuite) TearDownTest() {
	suite.cancel()
}

func (suite *feedSuite) send(e event.TableChangeEvent) {
	select {
	case <-suite.ctx.Done():
	case suite.publish <- event.Event[any]{Payload: e}:
	}
}

func (suite *feedSuite) receive(newsletter *portal.Newsletter[event.TableChangeEvent]) event.TableChangeEvent {
	select {
	case <-suite.ctx.Done():
		suite.FailNow("timeout", "timeout while waiting for change")
	case e, more := <-newsletter.Receive:
		suite.Require().True(more, "newsletter should not be closed")
		return e.Payload
	}
	return event.TableChangeEvent{}
}

func (suite *feedSuite) TestForwardAll() {
	feed := NewFeed(zap.NewNop(), suite.portal)
	newsletter := feed.Subscribe(suite.ctx, "events-1", "events")
	defer newsletter.Unsubscribe()
	for _, op := range event.AllOperations {
		change := event.TableChangeEvent{Table: "events", Operation: op, RowID: "a"}
		go suite.send(change)
		suite.Equal(change, suite.receive(newsletter), "should forward change")
	}
}

func (suite *feedSuite) TestFilterOperations() {
	feed := NewFeed(zap.NewNop(), suite.portal, event.OperationDelete)
	newsletter := feed.Subscribe(suite.ctx, "events-1", "events")
	defer newsletter.Unsubscribe()
	go func() {
		suite.send(event.TableChangeEvent{Table: "events", Operation: event.OperationInsert, RowID: "a"})
		suite.send(event.TableChangeEvent{Table: "events", Operation: event.OperationUpdate, RowID: "b"})
		suite.send(event.TableChangeEvent{Table: "events", Operation: event.OperationDelete, RowID: "c"})
	}()
	suite.Equal("c", suite.receive(newsletter).RowID, "should only forward deletes")
}

func (suite *feedSuite) TestFilterForeignTable() {
	feed := NewFeed(zap.NewNop(), suite.portal)
	newsletter := feed.Subscribe(suite.ctx, "events-1", "events")
	defer newsletter.Unsubscribe()
	go func() {
		suite.send(event.TableChangeEvent{Table: "contact_info", Operation: event.OperationInsert, RowID: "a"})
		suite.send(event.TableChangeEvent{Table: "events", Operation: event.OperationInsert, RowID: "b"})
	}()
	suite.Equal("b", suite.receive(newsletter).RowID, "should skip foreign table")
}

func (suite *feedSuite) TestChannels() {
	feed := NewFeed(zap.NewNop(), suite.portal)
	newsletter := feed.Subscribe(suite.ctx, "events-1", "events")
	suite.Equal([]string{"events-1"}, feed.ActiveChannels(), "should register channel")
	newsletter.Unsubscribe()
	// Wait until closed.
	for range newsletter.Receive {
	}
	suite.Eventually(func() bool {
		return len(feed.ActiveChannels()) == 0
	}, timeout, 10*time.Millisecond, "should remove channel")
}

func (suite *feedSuite) TestCloseOnContextDone() {
	feed := NewFeed(zap.NewNop(), suite.portal)
	newsletter := feed.Subscribe(suite.ctx, "events-1", "events")
	suite.cancel()
	for range newsletter.Receive {
	}
}

func TestFeed(t *testing.T) {
	suite.Run(t, new(feedSuite))
}

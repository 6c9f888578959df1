package portal

import (
	"context"
	"github.com/eclipse/paho.golang/paho"
	"github.com/lefinal/confcomp-server/errors"
	"github.com/lefinal/confcomp-server/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"sync"
	"testing"
)

// mqttKioskStub mocks mqttKiosk.
type mqttKioskStub struct {
	mock.Mock
}

func (stub *mqttKioskStub) Subscribe(ctx context.Context, s *paho.Subscribe) (*paho.Suback, error) {
	args := stub.Called(ctx, s)
	var subAck *paho.Suback
	subAck, _ = args.Get(0).(*paho.Suback)
	return subAck, args.Error(1)
}

func (stub *mqttKioskStub) Unsubscribe(ctx context.Context, u *paho.Unsubscribe) (*paho.Unsuback, error) {
	args := stub.Called(ctx, u)
	var unSubAck *paho.Unsuback
	unSubAck, _ = args.Get(0).(*paho.Unsuback)
	return unSubAck, args.Error(1)
}

// mqttInboundRouterStub mocks mqttInboundRouter.
type mqttInboundRouterStub struct {
	mock.Mock
}

func (s *mqttInboundRouterStub) RegisterHandler(topic string, handler paho.MessageHandler) {
	s.Called(topic, handler)
}

func (s *mqttInboundRouterStub) UnregisterHandler(topic string) {
	s.Called(topic)
}

func TestRouter_new(t *testing.T) {
	router := newRouter(zap.New(zapcore.NewNopCore()), &mqttInboundRouterStub{})
	assert.NotNil(t, router.registeredHandlers, "should have initialized handlers")
	assert.Nil(t, router.kiosk, "should not be connected")
}

// routerSuite tests router.
type routerSuite struct {
	suite.Suite
	router  *router
	kiosk   *mqttKioskStub
	inbound *mqttInboundRouterStub
}

func (suite *routerSuite) SetupTest() {
	suite.kiosk = &mqttKioskStub{}
	suite.inbound = &mqttInboundRouterStub{}
	suite.router = newRouter(zap.New(zapcore.NewNopCore()), suite.inbound)
}

// awaitUnregister returns a channel that is closed when UnregisterHandler was
// called for the given topic.
func (suite *routerSuite) awaitUnregister(topic string) <-chan struct{} {
	unregistered := make(chan struct{})
	suite.inbound.On("UnregisterHandler", topic).Run(func(_ mock.Arguments) {
		close(unregistered)
	}).Once()
	return unregistered
}

// TestNoSubsWhileDisconnected expects the router to register a handler without
// subscribing at the MQTT server.
func (suite *routerSuite) TestNoSubsWhileDisconnected() {
	suite.inbound.On("RegisterHandler", "cats", mock.Anything).Once()
	unregistered := suite.awaitUnregister("cats")
	defer suite.inbound.AssertExpectations(suite.T())
	defer suite.kiosk.AssertExpectations(suite.T())
	timeout, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	lifetime, cancelLifetime := context.WithCancel(timeout)
	forward := make(chan event.Event[any])
	suite.router.subscribe(lifetime, "cats", forward)
	cancelLifetime()
	select {
	case <-timeout.Done():
		suite.Fail("timeout", "should unregister handler")
	case <-unregistered:
	}
}

// TestSubscribeAtKiosk assures that topics are subscribed at the MQTT server
// when connected and unsubscribed when the last subscription is done.
func (suite *routerSuite) TestSubscribeAtKiosk() {
	suite.router.kiosk = suite.kiosk
	suite.inbound.On("RegisterHandler", "cats", mock.Anything).Once()
	unregistered := suite.awaitUnregister("cats")
	suite.kiosk.On("Subscribe", mock.Anything, &paho.Subscribe{
		Subscriptions: map[string]paho.SubscribeOptions{"cats": {QoS: mqttQOS}},
	}).Return(&paho.Suback{}, nil).Once()
	suite.kiosk.On("Unsubscribe", mock.Anything, &paho.Unsubscribe{Topics: []string{"cats"}}).
		Return(&paho.Unsuback{}, nil).Once()
	defer suite.inbound.AssertExpectations(suite.T())
	defer suite.kiosk.AssertExpectations(suite.T())
	timeout, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	lifetime1, cancelLifetime1 := context.WithCancel(timeout)
	lifetime2, cancelLifetime2 := context.WithCancel(timeout)
	suite.router.subscribe(lifetime1, "cats", make(chan event.Event[any]))
	suite.router.subscribe(lifetime2, "cats", make(chan event.Event[any]))
	cancelLifetime1()
	cancelLifetime2()
	select {
	case <-timeout.Done():
		suite.Fail("timeout", "should unregister handler")
	case <-unregistered:
	}
}

// TestSubscribeAtKioskFail assures that failing subscriptions at the MQTT
// server are only logged.
func (suite *routerSuite) TestSubscribeAtKioskFail() {
	suite.router.kiosk = suite.kiosk
	suite.inbound.On("RegisterHandler", "cats", mock.Anything).Once()
	suite.kiosk.On("Subscribe", mock.Anything, mock.Anything).
		Return(nil, errors.NewInternalError("sad life", nil)).Once()
	suite.inbound.On("UnregisterHandler", "cats").Maybe()
	suite.kiosk.On("Unsubscribe", mock.Anything, mock.Anything).Return(&paho.Unsuback{}, nil).Maybe()
	defer suite.inbound.AssertExpectations(suite.T())
	defer suite.kiosk.AssertExpectations(suite.T())
	timeout, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	suite.NotPanics(func() {
		suite.router.subscribe(timeout, "cats", make(chan event.Event[any]))
	})
}

// TestSetKioskRenews assures that all registered topics are subscribed when
// the connection is (re-)established.
func (suite *routerSuite) TestSetKioskRenews() {
	suite.inbound.On("RegisterHandler", mock.Anything, mock.Anything)
	suite.kiosk.On("Subscribe", mock.Anything, &paho.Subscribe{
		Subscriptions: map[string]paho.SubscribeOptions{
			"cats": {QoS: mqttQOS},
			"dogs": {QoS: mqttQOS},
		},
	}).Return(&paho.Suback{}, nil).Once()
	suite.inbound.On("UnregisterHandler", mock.Anything).Maybe()
	suite.kiosk.On("Unsubscribe", mock.Anything, mock.Anything).Return(&paho.Unsuback{}, nil).Maybe()
	defer suite.kiosk.AssertExpectations(suite.T())
	timeout, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	suite.router.subscribe(timeout, "cats", make(chan event.Event[any]))
	suite.router.subscribe(timeout, "dogs", make(chan event.Event[any]))
	suite.router.setKiosk(timeout, suite.kiosk)
	suite.Equal(suite.kiosk, suite.router.kiosk, "should set kiosk")
}

// TestForwardToAll assures that a received message is forwarded to all
// subscriptions for the topic.
func (suite *routerSuite) TestForwardToAll() {
	var handler paho.MessageHandler
	suite.inbound.On("RegisterHandler", "cats", mock.Anything).Run(func(args mock.Arguments) {
		handler = args.Get(1).(paho.MessageHandler)
	}).Once()
	suite.inbound.On("UnregisterHandler", "cats").Maybe()
	timeout, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	forward1 := make(chan event.Event[any])
	forward2 := make(chan event.Event[any])
	suite.router.subscribe(timeout, "cats", forward1)
	suite.router.subscribe(timeout, "cats", forward2)
	suite.Require().NotNil(handler, "should register handler")
	toPublish := &paho.Publish{Topic: "cats"}
	go handler(toPublish)
	var wg sync.WaitGroup
	for _, forward := range []chan event.Event[any]{forward1, forward2} {
		wg.Add(1)
		go func(forward chan event.Event[any]) {
			defer wg.Done()
			select {
			case <-timeout.Done():
				suite.Fail("timeout", "should forward message")
			case got := <-forward:
				suite.Equal(toPublish, got.Publish, "should forward correct message")
			}
		}(forward)
	}
	wg.Wait()
}

func TestRouter(t *testing.T) {
	suite.Run(t, new(routerSuite))
}

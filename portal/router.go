package portal

import (
	"context"
	"github.com/eclipse/paho.golang/paho"
	"github.com/lefinal/confcomp-server/errors"
	"github.com/lefinal/confcomp-server/event"
	"go.uber.org/zap"
	"sync"
	"time"
)

// kioskTimeout is the timeout for subscribing and unsubscribing at the MQTT
// server.
const kioskTimeout = 5 * time.Second

// mqttInboundRouter abstracts paho.Router with only stuff that is needed for
// router.
type mqttInboundRouter interface {
	RegisterHandler(topic string, handler paho.MessageHandler)
	UnregisterHandler(topic string)
}

// mqttKiosk subscribes and unsubscribes topics at the MQTT server.
type mqttKiosk interface {
	Subscribe(ctx context.Context, s *paho.Subscribe) (*paho.Suback, error)
	Unsubscribe(ctx context.Context, u *paho.Unsubscribe) (*paho.Unsuback, error)
}

// subscription is a container for the lifetime context.Context and the channel
// to forward the received paho.Publish message to.
type subscription struct {
	lifetime context.Context
	forward  chan<- event.Event[any]
}

// registeredHandler is a container for subscriptions to serve.
type registeredHandler struct {
	// subscriptions contains all active subscriptions that are served by the
	// handler.
	subscriptions map[*subscription]struct{}
	// subscriptionsMutex locks subscriptions.
	subscriptionsMutex sync.RWMutex
}

// Handler returns a paho.MessageHandler that forwards to all subscriptions for
// the handler. The read lock is held until forwarding is done, so that
// forward-channels are not closed while sending.
func (handler *registeredHandler) Handler() paho.MessageHandler {
	return func(publish *paho.Publish) {
		// Forward to all listeners.
		var allForwarded sync.WaitGroup
		handler.subscriptionsMutex.RLock()
		defer handler.subscriptionsMutex.RUnlock()
		for sub := range handler.subscriptions {
			allForwarded.Add(1)
			go func(sub *subscription) {
				defer allForwarded.Done()
				select {
				case <-sub.lifetime.Done():
				case sub.forward <- event.Event[any]{Publish: publish}:
				}
			}(sub)
		}
		allForwarded.Wait()
	}
}

// router is used for multiplexing MQTT subscriptions and forwarding received
// messages according to them.
type router struct {
	logger *zap.Logger
	// inbound is the actual router that performs the matching.
	inbound mqttInboundRouter
	// kiosk is used for subscribing at the MQTT server. It is nil while not
	// connected.
	kiosk mqttKiosk
	// registeredHandlers holds all handlers by subscribed topics.
	registeredHandlers map[Topic]*registeredHandler
	// registeredHandlersMutex locks registeredHandlers and kiosk.
	registeredHandlersMutex sync.Mutex
}

func newRouter(logger *zap.Logger, inbound mqttInboundRouter) *router {
	return &router{
		logger:             logger,
		inbound:            inbound,
		registeredHandlers: make(map[Topic]*registeredHandler),
	}
}

// setKiosk sets the mqttKiosk to use and subscribes all topics with registered
// handlers. A nil mqttKiosk marks the router as disconnected.
func (router *router) setKiosk(ctx context.Context, kiosk mqttKiosk) {
	router.registeredHandlersMutex.Lock()
	defer router.registeredHandlersMutex.Unlock()
	router.kiosk = kiosk
	if kiosk == nil || len(router.registeredHandlers) == 0 {
		return
	}
	subscriptions := make(map[string]paho.SubscribeOptions, len(router.registeredHandlers))
	for topic := range router.registeredHandlers {
		subscriptions[string(topic)] = paho.SubscribeOptions{QoS: mqttQOS}
	}
	timeout, cancel := context.WithTimeout(ctx, kioskTimeout)
	defer cancel()
	_, err := kiosk.Subscribe(timeout, &paho.Subscribe{Subscriptions: subscriptions})
	if err != nil {
		errors.Log(router.logger, errors.FromErr("renew subscriptions at mqtt server", errors.ErrCommunication, err,
			errors.Details{"topics": len(subscriptions)}))
		return
	}
	router.logger.Debug("renewed subscriptions", zap.Int("topics", len(subscriptions)))
}

// subscribe for the given Topic and forward messages to the given channel until
// the context.Context is done.
func (router *router) subscribe(lifetime context.Context, topic Topic, forward chan<- event.Event[any]) {
	router.registeredHandlersMutex.Lock()
	defer router.registeredHandlersMutex.Unlock()
	// Check if already existing.
	handlerRef, ok := router.registeredHandlers[topic]
	if !ok {
		handlerRef = &registeredHandler{subscriptions: make(map[*subscription]struct{})}
		router.registeredHandlers[topic] = handlerRef
		// Subscribe MQTT topic.
		router.inbound.RegisterHandler(string(topic), handlerRef.Handler())
		router.subscribeAtKiosk(topic)
		router.logger.Debug("subscribed to topic", zap.Any("topic", topic))
	}
	// Add subscription.
	sub := &subscription{
		lifetime: lifetime,
		forward:  forward,
	}
	handlerRef.subscriptionsMutex.Lock()
	handlerRef.subscriptions[sub] = struct{}{}
	handlerRef.subscriptionsMutex.Unlock()
	// Unsubscribe when lifetime done.
	go func() {
		<-lifetime.Done()
		router.unsubscribe(topic, sub)
	}()
}

// subscribeAtKiosk subscribes the given Topic at the MQTT server if connected.
// The caller must hold registeredHandlersMutex.
func (router *router) subscribeAtKiosk(topic Topic) {
	if router.kiosk == nil {
		return
	}
	timeout, cancel := context.WithTimeout(context.Background(), kioskTimeout)
	defer cancel()
	_, err := router.kiosk.Subscribe(timeout, &paho.Subscribe{
		Subscriptions: map[string]paho.SubscribeOptions{string(topic): {QoS: mqttQOS}},
	})
	if err != nil {
		errors.Log(router.logger, errors.FromErr("subscribe at mqtt server", errors.ErrCommunication, err,
			errors.Details{"topic": topic}))
	}
}

// unsubscribe the given subscription for the Topic. Only router should call this!
func (router *router) unsubscribe(topic Topic, sub *subscription) {
	router.registeredHandlersMutex.Lock()
	defer router.registeredHandlersMutex.Unlock()
	// Get handler.
	handler, ok := router.registeredHandlers[topic]
	if !ok {
		errors.Log(router.logger, errors.NewInternalError("unsubscribe called for unknown registered handler",
			errors.Details{"topic": topic}))
		return
	}
	// Remove subscription.
	handler.subscriptionsMutex.Lock()
	defer handler.subscriptionsMutex.Unlock()
	if _, ok := handler.subscriptions[sub]; !ok {
		errors.Log(router.logger, errors.NewInternalError("unsubscribe with unknown subscription for handler",
			errors.Details{"topic": topic}))
		return
	}
	delete(handler.subscriptions, sub)
	close(sub.forward)
	// Check if subscriptions left as then we do not need to unregister the handler.
	if len(handler.subscriptions) > 0 {
		return
	}
	// Unregister handler.
	delete(router.registeredHandlers, topic)
	router.inbound.UnregisterHandler(string(topic))
	if router.kiosk != nil {
		timeout, cancel := context.WithTimeout(context.Background(), kioskTimeout)
		defer cancel()
		_, err := router.kiosk.Unsubscribe(timeout, &paho.Unsubscribe{Topics: []string{string(topic)}})
		if err != nil {
			errors.Log(router.logger, errors.FromErr("unsubscribe at mqtt server", errors.ErrCommunication, err,
				errors.Details{"topic": topic}))
		}
	}
	router.logger.Debug("unsubscribed from topic", zap.Any("topic", topic))
}

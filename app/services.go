package app

import (
	"context"
	"fmt"
	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/lefinal/confcomp-server/agenda"
	"github.com/lefinal/confcomp-server/agendasvc"
	"github.com/lefinal/confcomp-server/auth"
	"github.com/lefinal/confcomp-server/changefeed"
	"github.com/lefinal/confcomp-server/debugstatssvc"
	"github.com/lefinal/confcomp-server/errors"
	"github.com/lefinal/confcomp-server/logging"
	"github.com/lefinal/confcomp-server/logpublishsvc"
	"github.com/lefinal/confcomp-server/portal"
	"github.com/lefinal/confcomp-server/presencesvc"
	"github.com/lefinal/confcomp-server/remindersvc"
	"github.com/lefinal/confcomp-server/service"
	"github.com/lefinal/confcomp-server/store"
	"github.com/lefinal/confcomp-server/web_server"
	"github.com/lefinal/confcomp-server/ws"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"time"
)

// wsTables are the tables websocket clients may receive changes for.
var wsTables = []string{
	store.TableEvents,
	store.TableTestAnnouncements,
	store.TableAttendeeInfo,
	store.TableTestProfiles,
}

type services map[string]service.Service

// portalBaseService opens the portal.Base.
type portalBaseService struct {
	base portal.Base
}

func (s portalBaseService) Run(ctx context.Context) error {
	return s.base.Open(ctx)
}

func createServices(appConfig Config, logger *zap.Logger, db *pgxpool.Pool, redisClient redis.UniversalClient,
	logEntriesIn <-chan logging.LogEntry) (services, error) {
	services := make(services)
	location, err := time.LoadLocation(appConfig.Timezone)
	if err != nil {
		return nil, errors.NewBadRequestErr("load timezone", err, errors.Details{"timezone": appConfig.Timezone})
	}
	// Portal. Its logs are not published in order to avoid publish loops.
	portalBase, err := portal.NewBase(logger.Named("portal").With(logging.NoPublish()), portal.Config{
		MQTTAddr: appConfig.MQTT.Addr,
		ClientID: appConfig.MQTT.ClientID,
	})
	if err != nil {
		return nil, errors.Wrap(err, "new portal base", nil)
	}
	services["portal"] = portalBaseService{base: portalBase}
	// Persistence.
	changePublisher := changefeed.NewPublisher(portalBase.NewPortal("change-publisher"))
	mall := store.NewMall(logger.Named("mall"), db, changePublisher)
	feed := changefeed.NewFeed(logger.Named("change-feed"), portalBase.NewPortal("change-feed"))
	// Presence.
	presence := presencesvc.NewService(logger.Named("presence"), portalBase.NewPortal("presence"))
	services["presence"] = presence
	// Agenda.
	agendaService := agendasvc.NewService(logger.Named("agenda"), portalBase.NewPortal("agenda"), mall, feed,
		agenda.NewLayouter(appConfig.Agenda.GroupingMode()))
	services["agenda"] = agendaService
	// Reminders.
	if appConfig.Reminders.Enabled {
		reminders, err := remindersvc.NewService(logger.Named("reminders"), portalBase.NewPortal("reminders"),
			remindersvc.Config{
				Schedule: appConfig.Reminders.Schedule,
				LeadTime: appConfig.Reminders.LeadTime,
				Location: location,
			}, agendaService, mall)
		if err != nil {
			return nil, errors.Wrap(err, "new reminder service", nil)
		}
		services["reminders"] = reminders
	}
	// Websocket hub.
	hub := ws.NewHub(logger.Named("ws"), presence, feed, wsTables)
	services["ws-hub"] = hub
	// Web server.
	authService := auth.NewService(logger.Named("auth"), auth.Config{
		SessionTTL:  appConfig.Auth.SessionTTL,
		BcryptCost:  appConfig.Auth.BcryptCost,
		AdminEmails: appConfig.Auth.AdminEmails,
	}, mall, auth.NewRedisSessionStore(redisClient))
	webServer, err := web_server.NewWebServer(logger.Named("web-server"), web_server.Config{
		ServeAddr:      appConfig.ServeAddr,
		WriteTimeout:   web_server.DefaultWriteTimeout,
		ReadTimeout:    web_server.DefaultReadTimeout,
		AllowedOrigins: appConfig.AllowedOrigins,
	})
	if err != nil {
		return nil, errors.Wrap(err, "new web server", nil)
	}
	webServer.PopulateRoutes(web_server.NewAPI(logger.Named("api"), web_server.APIConfig{
		CalendarName: appConfig.Agenda.CalendarName,
		Location:     location,
	}, mall, authService, agendaService, presence), hub)
	services["web-server"] = webServer
	// Debug stats service.
	services["debug-stats"] = debugstatssvc.NewService(logger.Named("debug-stats"), debugstatssvc.Config{
		IsEnabled: appConfig.Log.SystemDebugStatsInterval > 0,
		Interval:  appConfig.Log.SystemDebugStatsInterval,
	}, presence, agendaService, hub, feed)
	// Log publishing service.
	services["log-publish"] = logpublishsvc.NewService(logger.Named("log-publish").With(logging.NoPublish()),
		portalBase.NewPortal("log-publish"), logEntriesIn)
	return services, nil
}

func (s services) run(ctx context.Context, logger *zap.Logger) error {
	wg, lifetime := errgroup.WithContext(ctx)
	// Run each.
	for name, serviceToRun := range s {
		// Copy values.
		name, serviceToRun := name, serviceToRun
		wg.Go(func() error {
			logger.Debug(fmt.Sprintf("service %s up", name))
			defer logger.Debug(fmt.Sprintf("service %s down", name))
			if err := serviceToRun.Run(lifetime); err != nil {
				return errors.Wrap(err, "run service", errors.Details{"service_name": name})
			}
			return nil
		})
	}
	return wg.Wait()
}

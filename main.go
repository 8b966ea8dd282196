package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pitabwire/frame"
	"github.com/sirupsen/logrus"

	"github.com/devwanji/Muranga-marketplace2/config"
	"github.com/devwanji/Muranga-marketplace2/service/business"
	"github.com/devwanji/Muranga-marketplace2/service/coreapi"
	"github.com/devwanji/Muranga-marketplace2/service/events"
	"github.com/devwanji/Muranga-marketplace2/service/handlers"
	"github.com/devwanji/Muranga-marketplace2/service/models"
	"github.com/devwanji/Muranga-marketplace2/service/poller"
	"github.com/devwanji/Muranga-marketplace2/service/repository"
	"github.com/devwanji/Muranga-marketplace2/service/router"
)

const natsProbeAttempts = 5

func main() {
	serviceName := "service_subscription_payments"
	ctx := context.Background()

	subscriptionConfig, err := frame.ConfigFromEnv[config.SubscriptionConfig]()
	if err != nil {
		fmt.Printf("could not load config: %v\n", err)
	}
	ctx, service := frame.NewServiceWithContext(ctx, serviceName, frame.WithConfig(&subscriptionConfig))
	defer service.Stop(ctx)

	logger := service.Log(ctx).WithField("type", "main")
	logger.Info("starting service...")

	serviceOptions := []frame.Option{frame.WithDatastore()}
	service.Init(ctx, serviceOptions...)

	if subscriptionConfig.DoDatabaseMigrate() {
		err = service.MigrateDatastore(ctx, subscriptionConfig.GetDatabaseMigrationPath(), models.AllModels()...)
		if err != nil {
			logger.WithError(err).Fatal("could not migrate successfully")
		}
		return
	}

	if err = subscriptionConfig.Validate(); err != nil {
		logger.WithError(err).Fatal("configuration is incomplete")
	}

	db := service.DB(ctx, false)
	if db == nil {
		logger.WithField("DATABASE_URL", os.Getenv("DATABASE_URL")).Fatal("database connection is nil, check DATABASE_URL")
		return
	}
	if err = db.AutoMigrate(models.AllModels()...); err != nil {
		logger.WithError(err).Fatal("could not auto-migrate database tables")
	}

	dbProvider := repository.DBProvider(service.DB)
	stores := business.Stores{
		Payments:      repository.NewPaymentRepository(ctx, dbProvider),
		Subscriptions: repository.NewSubscriptionRepository(ctx, dbProvider),
		Plans:         repository.NewPlanRepository(ctx, dbProvider),
		Businesses:    repository.NewBusinessRepository(ctx, dbProvider),
	}

	if subscriptionConfig.SeedPlans {
		seeded, seedErr := stores.Plans.SeedDefaults(ctx)
		if seedErr != nil {
			logger.WithError(seedErr).Fatal("could not seed subscription plans")
		}
		if seeded > 0 {
			logger.WithField("plans", seeded).Info("seeded default subscription plans")
		}
	}

	var tokens coreapi.TokenCache = coreapi.NewMemoryTokenCache()
	if subscriptionConfig.RedisURL != "" {
		redisTokens, redisErr := coreapi.NewRedisTokenCache(subscriptionConfig.RedisURL)
		if redisErr != nil {
			logger.WithError(redisErr).Fatal("could not connect token cache to redis")
		}
		defer func() { _ = redisTokens.Close() }()
		tokens = redisTokens
	}

	gateway := coreapi.New(
		subscriptionConfig.MpesaConsumerKey,
		subscriptionConfig.MpesaConsumerSecret,
		subscriptionConfig.MpesaShortCode,
		subscriptionConfig.MpesaPassKey,
		subscriptionConfig.GetMpesaBaseURL(),
		tokens,
	)

	eventsTopic := subscriptionConfig.SubscriptionEventsTopic
	notify := func(ctx context.Context, activation *business.SubscriptionActivated) error {
		return service.Publish(ctx, eventsTopic, activation)
	}

	engine, err := business.NewReconciliationEngine(ctx, service.Log(ctx), dbProvider, stores, notify)
	if err != nil {
		logger.WithError(err).Fatal("could not create reconciliation engine")
	}

	payments, err := business.NewPaymentBusiness(ctx, service.Log(ctx), gateway, stores, business.PaymentSettings{
		CallbackURL:      subscriptionConfig.MpesaCallbackURL,
		AccountReference: subscriptionConfig.MpesaAccountReference,
	})
	if err != nil {
		logger.WithError(err).Fatal("could not create payment business")
	}

	coordinator, err := poller.NewCoordinator(service.Log(ctx), stores.Payments, gateway, engine,
		subscriptionConfig.PollInterval, subscriptionConfig.PollMaxAttempts)
	if err != nil {
		logger.WithError(err).Fatal("could not create status coordinator")
	}

	if subscriptionConfig.SweepInterval > 0 {
		sweeper := poller.NewSweeper(service.Log(ctx), stores.Payments, coordinator,
			subscriptionConfig.SweepInterval, subscriptionConfig.SweepStaleAfter)
		go sweeper.Run(ctx)
	}

	server := &handlers.Server{
		Log:         service.Log(ctx),
		Payments:    payments,
		Coordinator: coordinator,
		EmitCallback: func(ctx context.Context, envelope *models.StkCallbackEnvelope) error {
			return service.Emit(ctx, events.StkCallbackReceivedName, envelope)
		},
		JwtSecret: []byte(subscriptionConfig.JwtSecret),
	}
	if len(server.JwtSecret) == 0 {
		logger.Warn("JWT_SECRET is not set, /subscription/check will reject every request")
	}

	serviceOptions = append(serviceOptions,
		frame.WithHTTPHandler(router.NewRouter(server, subscriptionConfig.APIPrefix)),
		frame.WithRegisterEvents(&events.StkCallbackReceived{Log: service.Log(ctx), Engine: engine}),
		frame.WithRegisterPublisher(eventsTopic, resolveEventsURL(logger, subscriptionConfig.SubscriptionEventsURL, eventsTopic)),
	)

	service.Init(ctx, serviceOptions...)

	logger.WithField("server http port", subscriptionConfig.HTTPServerPort).
		WithField("api prefix", subscriptionConfig.APIPrefix).
		Info("Initiating server operations")

	err = service.Run(ctx, fmt.Sprintf(":%s", strings.TrimPrefix(subscriptionConfig.HTTPServerPort, ":")))
	if err != nil {
		logger.WithError(err).Fatal("could not run Server")
	}
}

// resolveEventsURL keeps a nats:// publisher only when the server answers, otherwise activations stay in memory.
func resolveEventsURL(logger *logrus.Entry, eventsURL, topic string) string {
	if !strings.HasPrefix(eventsURL, "nats://") {
		return eventsURL
	}

	for i := range natsProbeAttempts {
		nc, err := nats.Connect(eventsURL, nats.Timeout(2*time.Second))
		if err != nil {
			logger.WithError(err).WithField("attempt", i+1).Warn("failed to connect to nats, retrying after delay")
			time.Sleep(2 * time.Second)
			continue
		}
		nc.Close()
		logger.WithField("topic", topic).Info("connected to nats for subscription events")
		return eventsURL
	}

	logger.Warn("nats unreachable, falling back to in-memory subscription events")
	return "mem://" + topic
}

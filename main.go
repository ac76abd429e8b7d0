package main

import (
	"context"
	"log"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"

	"ticketflow/config"
	"ticketflow/handlers"
	"ticketflow/internal/gateway"
	"ticketflow/internal/gateway/sandbox"
	"ticketflow/internal/gateway/yespay"
	_ "ticketflow/migrations"
	"ticketflow/monitoring"
	"ticketflow/services"
	"ticketflow/store"
	"ticketflow/utils"
)

func main() {
	app := pocketbase.New()

	cfg := config.LoadConfig()

	redisClient := utils.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	defer redisClient.Close()

	ctx := context.Background()

	registry := gateway.NewRegistry(gateway.NewFactory())
	if err := registerGateway(ctx, registry, cfg); err != nil {
		log.Fatal(err)
	}
	primary, err := registry.Primary()
	if err != nil {
		log.Fatal(err)
	}

	var notifier services.Notifier = services.NopNotifier{}
	if cfg.PubNubPublishKey != "" && cfg.PubNubSubscribeKey != "" {
		notifier = services.NewPubNubNotifier(cfg.PubNubPublishKey, cfg.PubNubSubscribeKey, "ticketflow-server")
	}

	monitor := monitoring.NewMonitor(redisClient)

	st := store.New(app)
	signer := services.NewTicketSigner(cfg.TicketSigningKey)

	inventoryService := services.NewInventoryService(redisClient, st)
	paymentService := services.NewPaymentService(st, primary, notifier, monitor, cfg.GatewayTimeout)
	ticketService := services.NewTicketService(st, st, signer)
	bookingService := services.NewBookingService(st, paymentService, inventoryService, ticketService, notifier, monitor)
	checkinService := services.NewCheckinService(st, st, st, signer, monitor,
		cfg.EarlyEntryWindow, cfg.CheckinGracePeriod)
	reconciler := services.NewReconciler(paymentService, bookingService, st,
		cfg.ReconcileInterval, cfg.PaymentTimeout)

	// Push-feed providers report settlements out of band, alongside
	// the webhook path.
	callbacks := make(chan *gateway.CallbackEvent, 64)
	primary.SetCallbackChannel(callbacks)
	go paymentService.ConsumeCallbacks(callbacks)

	paymentHandler := handlers.NewPaymentHandler(app, paymentService, primary)
	bookingHandler := handlers.NewBookingHandler(app, bookingService, ticketService)
	checkinHandler := handlers.NewCheckinHandler(app, checkinService)

	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		// Payment endpoints
		e.Router.POST("/api/payments", paymentHandler.InitiatePayment)
		e.Router.GET("/api/payments/{paymentId}", paymentHandler.GetPayment)
		e.Router.POST("/api/payments/{paymentId}/refund", paymentHandler.RefundPayment)

		// Gateway webhook (signature-verified, no session)
		e.Router.POST("/api/webhooks/gateway", paymentHandler.GatewayWebhook)

		// Booking endpoints
		e.Router.GET("/api/bookings/{bookingId}", bookingHandler.GetBooking)
		e.Router.GET("/api/bookings", bookingHandler.GetBookingHistory)
		e.Router.POST("/api/bookings/{bookingId}/cancel", bookingHandler.CancelBooking)

		// Gate check-in
		e.Router.POST("/api/checkin/validate", checkinHandler.ValidateTicket)

		if cfg.Environment == "development" {
			e.Router.POST("/api/test/simulate-payment", paymentHandler.SimulatePayment)
		}

		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(503, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(200, map[string]string{"status": "healthy"})
		})

		// The reconciler needs the database, so it starts with the
		// server rather than with main.
		reconciler.Start(context.Background())

		if cfg.EnableMetrics {
			monitoring.StartMetricsServer(cfg.MetricsPort)
		}

		log.Println("Server routes registered")

		return e.Next()
	})

	app.OnTerminate().BindFunc(func(e *core.TerminateEvent) error {
		log.Println("Shutting down, draining workers...")
		reconciler.Stop()
		monitor.Stop()
		if err := registry.Close(context.Background()); err != nil {
			log.Printf("closing gateways: %v", err)
		}
		return e.Next()
	})

	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
}

// registerGateway wires the configured provider. The sandbox needs no
// credentials and is the development default.
func registerGateway(ctx context.Context, registry *gateway.Registry, cfg *config.Config) error {
	switch gateway.Provider(cfg.GatewayProvider) {
	case gateway.ProviderYesPay:
		return registry.Register(ctx, gateway.ProviderYesPay, &yespay.Config{
			MerchantID:  cfg.YesPayMerchantID,
			CCy:         cfg.YesPayCurrency,
			PNSubKey:    cfg.YesPayPNSubKey,
			PNSubSecret: cfg.YesPayPNSubSecret,
			PNUUID:      cfg.YesPayPNUUID,
			PNChannel:   cfg.YesPayPNChannel,
			PNCipherKey: cfg.YesPayPNCipherKey,
			BaseURL:     cfg.YesPayBaseURL,
			PartnerID:   cfg.YesPayPartnerID,
			ClientID:    cfg.YesPayClientID,
			ClientKey:   cfg.YesPayClientKey,
			HMACKey:     cfg.YesPayHMACKey,
		})
	default:
		return registry.Register(ctx, gateway.ProviderSandbox, &sandbox.Config{
			WebhookSecret: cfg.WebhookSecret,
		})
	}
}

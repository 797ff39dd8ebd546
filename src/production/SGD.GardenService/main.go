package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	container "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Container"
	"gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.GardenService/client"
	"gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.GardenService/controllers"
	"gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.GardenService/gateway"
	"gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.GardenService/health"
	implementation "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Repository/Implementation"

	// Services
	"gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.GardenService/implementation/ai"
	authService "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.GardenService/implementation/auth"
	"gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.GardenService/implementation/automation"
	"gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.GardenService/implementation/command"
	"gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.GardenService/implementation/device"
	jwt "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.GardenService/implementation/jwt"
	"gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.GardenService/implementation/notification"
	"gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.GardenService/implementation/state"
	"gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.GardenService/implementation/telemetry"
	"gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.GardenService/implementation/threshold"
	"gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.GardenService/implementation/weather"
	"gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.GardenService/middleware"
	api_models "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Models/api"
)

func main() {
	ctr, err := container.NewContainer()
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize container: %v", err))
	}
	defer ctr.Shutdown()

	logger := ctr.GetLogger()
	config := ctr.GetConfig()
	logger.Info("Starting Garden Service")
	for _, w := range config.Warnings() {
		logger.Warn(w)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := ctr.InitializeDatabase(ctx); err != nil {
		logger.FatalWithError(err, "Failed to initialize database")
	}

	db, err := ctr.GetDatabase()
	if err != nil {
		logger.FatalWithError(err, "Failed to get database connection")
	}
	redisClient, err := ctr.GetRedis()
	if err != nil {
		logger.FatalWithError(err, "Failed to connect to Redis")
	}
	telemetryColl, err := ctr.GetTelemetryCollection()
	if err != nil {
		logger.FatalWithError(err, "Failed to get telemetry collection")
	}

	// Create repositories
	deviceRepo := implementation.NewPostgresDeviceRepository(db)
	thresholdRepo := implementation.NewPostgresThresholdRepository(db)
	telemetryRepo := implementation.NewMongoTelemetryRepository(telemetryColl)
	stateStore := implementation.NewRedisStateStore(redisClient, config.Redis.StateTTL)

	// Core services
	hub := notification.NewHub(config.CORS.AllowedOrigins, logger)
	mailer := notification.NewMailer(config.Mail, logger)
	stateService := state.NewService(stateStore, hub, logger)
	deviceService := device.NewService(deviceRepo, stateService, logger)
	telemetryService := telemetry.NewService(telemetryRepo, deviceRepo, config.Telemetry, logger)

	mqttGateway := gateway.New(config.MQTT, stateService, telemetryService, nil, logger)
	commandService := command.NewService(mqttGateway, stateService, logger)
	thresholdService := threshold.NewService(thresholdRepo, commandService, stateService, logger)
	mqttGateway.SetAutomator(thresholdService)

	weatherService := weather.NewService(config.Weather, client.NewJSONClient("weather", config.Weather.Timeout), logger)
	aiService := ai.NewService(
		client.NewJSONClient("ai", config.AI.Timeout, client.WithRetries(0, 0)),
		config.AI.ServiceURL,
		config.Weather.DefaultLocation,
		stateService,
		weatherService,
		commandService,
		mailer,
		logger,
	)

	scheduler, err := automation.NewScheduler(config.Automation, deviceService, aiService, stateService, logger)
	if err != nil {
		logger.FatalWithError(err, "Failed to create scheduler")
	}

	// Auth
	jwtService := jwt.NewService(api_models.Config{
		SecretKey:            config.Auth.JWTSecretKey,
		AccessTokenDuration:  config.Auth.AccessTokenDuration,
		RefreshTokenDuration: config.Auth.RefreshTokenDuration,
		Issuer:               config.Auth.JWTIssuer,
	})
	authMiddlewareInstance := middleware.NewAuthMiddleware(jwtService, config.Auth.Enabled, middleware.DefaultConfig())

	healthChecker := ctr.GetHealthChecker()
	healthChecker.Register("mqtt", health.ConnectedCheck(mqttGateway.IsConnected))

	// Start background workers before the broker starts delivering
	telemetryService.Start(context.Background())
	if err := mqttGateway.Start(); err != nil {
		logger.FatalWithError(err, "Failed to connect to MQTT broker")
	}
	scheduler.Start()

	// Initialize Gin router
	if err := controllers.RegisterValidators(); err != nil {
		logger.FatalWithError(err, "Failed to register validators")
	}
	router := gin.New()
	router.Use(requestid.New())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.RequestMetrics())
	router.Use(gin.Recovery())

	corsConfig := cors.Config{
		AllowOrigins:     config.CORS.AllowedOrigins,
		AllowMethods:     config.CORS.AllowedMethods,
		AllowHeaders:     config.CORS.AllowedHeaders,
		ExposeHeaders:    config.CORS.ExposedHeaders,
		AllowCredentials: config.CORS.AllowCredentials,
		MaxAge:           time.Duration(config.CORS.MaxAge) * time.Second,
	}
	router.Use(cors.New(corsConfig))

	api := router.Group("/api/v1")
	// login stays mounted with auth disabled; it only works once an operator password exists
	var authServiceInstance *authService.AuthService
	if config.Auth.Enabled || config.Auth.Admin.Password != "" {
		authServiceInstance, err = authService.NewAuthService(config.Auth.Admin, jwtService)
		if err != nil {
			logger.FatalWithError(err, "Failed to initialize auth service")
		}
	}
	controllers.NewAuthController(authServiceInstance, config.Auth.RefreshTokenDuration, config.Auth.SecureCookies, logger).
		RegisterRoutes(api, authMiddlewareInstance)
	controllers.NewDeviceController(deviceService, stateService, telemetryService, commandService, logger, authMiddlewareInstance).RegisterRoutes(api)
	controllers.NewThresholdController(thresholdService, logger, authMiddlewareInstance).RegisterRoutes(api)
	controllers.NewAIController(aiService, mailer, logger, authMiddlewareInstance).RegisterRoutes(api)
	controllers.NewStreamController(hub, logger).RegisterRoutes(router)
	controllers.NewHealthController(healthChecker).RegisterRoutes(router)

	port := config.Server.Port
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  config.Server.ReadTimeout,
		WriteTimeout: config.Server.WriteTimeout,
		IdleTimeout:  config.Server.IdleTimeout,
	}

	go func() {
		logger.Info("HTTP server starting on port " + port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.FatalWithError(err, "Failed to start HTTP server")
		}
	}()

	logger.Info("Garden service running... press Ctrl+C to stop")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.ErrorWithError(err, "Server forced to shutdown")
	}

	// Stop producers before the consumers they feed
	scheduler.Stop()
	thresholdService.Stop()
	mqttGateway.Stop()
	telemetryService.Stop()
	hub.Close()
}

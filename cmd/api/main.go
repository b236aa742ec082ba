package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/oakridge/school-admin/identity-access-service/internal/adapters/handler"
	"github.com/oakridge/school-admin/identity-access-service/internal/adapters/identity"
	"github.com/oakridge/school-admin/identity-access-service/internal/adapters/middleware"
	"github.com/oakridge/school-admin/identity-access-service/internal/adapters/repository"
	"github.com/oakridge/school-admin/identity-access-service/internal/adapters/sessionstore"
	"github.com/oakridge/school-admin/identity-access-service/internal/config"
	"github.com/oakridge/school-admin/identity-access-service/internal/core/domain"
	"github.com/oakridge/school-admin/identity-access-service/internal/core/ports"
	"github.com/oakridge/school-admin/identity-access-service/internal/core/services"
)

func main() {

	cfg := config.Load()
	ctx := context.Background()

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddress,
		Password: cfg.RedisPassword,
		DB:       0,
	})

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	log.Println("Authenticated with Redis successfully")

	directory := repository.NewRoleDirectoryRepository(db)
	credentials := repository.NewCredentialRepository(db)

	var google *identity.GoogleProvider
	var federated ports.FederatedFlowStarter
	if cfg.GoogleClientID != "" {
		google, err = identity.NewGoogleProvider(ctx, identity.GoogleConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		})
		if err != nil {
			log.Fatalf("failed to initialize google provider: %v", err)
		}
		federated = google
		log.Println("Federated sign-in enabled")
	} else {
		log.Println("Federated sign-in disabled: GOOGLE_CLIENT_ID not set")
	}

	provider := identity.NewProvider(credentials, credentials, google)
	store := sessionstore.NewRedisStore(redisClient)
	registry := services.NewRegistry(provider, directory, store)

	// Route provider-initiated state changes (remote sign-outs, refreshes)
	// to the sessions they concern.
	go registry.Run(ctx, provider)
	flow := services.NewRegistrationFlow()
	usernames := services.NewUsernameChecker(directory)

	tokens := middleware.NewTokenIssuer(cfg.JWTPrivateKey)
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWTPublicKey, registry)

	authHandler := handler.NewAuthHandler(registry, federated, flow, tokens)
	registrationHandler := handler.NewRegistrationHandler(registry, flow, tokens)
	directoryHandler := handler.NewDirectoryHandler(directory, usernames)
	healthHandler := handler.NewHealthHandler(db, redisClient)

	adminRoles := []domain.Role{domain.RoleSuperAdmin, domain.RoleAdmin}

	mux := http.NewServeMux()

	// Health endpoints (OpenShift compatible)
	mux.HandleFunc("/health", healthHandler.Health)
	mux.HandleFunc("/health/ready", healthHandler.Ready)
	mux.HandleFunc("/health/live", healthHandler.Health)

	mux.Handle("/metrics", promhttp.Handler())

	// Sign-in endpoints
	mux.HandleFunc("/login", authHandler.Login)
	mux.HandleFunc("/auth/google/url", authHandler.GoogleURL)
	mux.HandleFunc("/auth/google/callback", authHandler.GoogleCallback)

	// Registration completion requires a valid session token but no role:
	// the caller is a pending principal that has not picked one yet.
	mux.HandleFunc("/register/options", registrationHandler.Options)
	mux.HandleFunc("/register/complete", authMiddleware.WithSession(registrationHandler.Complete))
	mux.HandleFunc("/register/abandon", authMiddleware.WithSession(registrationHandler.Abandon))

	mux.HandleFunc("/session", authMiddleware.WithSession(authHandler.CurrentSession))
	mux.HandleFunc("/logout", authMiddleware.WithSession(authHandler.Logout))

	// Username checks run unauthenticated so the registration form can
	// validate before a role record exists.
	mux.HandleFunc("/directory/username/check", directoryHandler.CheckUsername)
	mux.HandleFunc("/directory/username/suggest", directoryHandler.SuggestUsernames)

	// Directory administration
	mux.HandleFunc("/directory/users", authMiddleware.RequireRole(adminRoles, directoryHandler.ListUsers))
	mux.HandleFunc("/directory/users/update", authMiddleware.RequireRole(adminRoles, directoryHandler.UpdateUser))
	mux.HandleFunc("/directory/users/delete", authMiddleware.RequireRole(adminRoles, directoryHandler.DeleteUser))

	cors := middleware.CORSMiddleware(cfg.AllowedOrigins)

	log.Printf("Starting server on :%s", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, cors(mux)); err != nil {
		log.Fatalf("Could not start server: %s\n", err)
	}
}

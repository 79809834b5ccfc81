package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"djtunez-api/api"
	"djtunez-api/identity"
	"djtunez-api/payments"
	"djtunez-api/storage"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	ctx := context.Background()

	projectID := os.Getenv("GOOGLE_CLOUD_PROJECT")
	databaseURL := os.Getenv("FIREBASE_DATABASE_URL")
	if databaseURL == "" && projectID != "" {
		databaseURL = fmt.Sprintf("https://%s-default-rtdb.firebaseio.com", projectID)
	}
	if projectID == "" || databaseURL == "" {
		log.Fatal("missing database config")
	}
	credsFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")

	store, err := storage.New(ctx, storage.Config{
		ProjectID:       projectID,
		DatabaseURL:     databaseURL,
		CredentialsFile: credsFile,
	})
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	secretKey := os.Getenv("STRIPE_SECRET_KEY")
	webhookSecret := os.Getenv("STRIPE_WEBHOOK_SECRET")
	if secretKey == "" || webhookSecret == "" {
		log.Fatal("missing Stripe config")
	}
	stripe := payments.New(secretKey, webhookSecret)

	idp, err := buildIdentity(ctx, projectID, credsFile)
	if err != nil {
		log.Fatalf("identity: %v", err)
	}

	var apiStore api.Storage = store
	var deduper api.Deduper
	if redisConn := os.Getenv("REDIS_CONNECTION_STRING"); redisConn != "" {
		rc := redis.NewClient(parseRedisOptions(redisConn))
		ttl := 72 * time.Hour
		if v := os.Getenv("WEBHOOK_DEDUPE_TTL"); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 {
				log.Fatalf("invalid WEBHOOK_DEDUPE_TTL: %v", err)
			}
			ttl = d
		}
		deduper = api.NewRedisDeduper(rc, ttl)

		cacheTTL := 30 * time.Second
		if v := os.Getenv("READ_CACHE_TTL"); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d < 0 {
				log.Fatalf("invalid READ_CACHE_TTL: %v", err)
			}
			cacheTTL = d
		}
		if cacheTTL > 0 {
			apiStore = storage.NewCache(store, rc, cacheTTL)
		}
	} else {
		log.Warn("no Redis configured, redelivered payment webhooks will duplicate queue entries")
	}

	timeout := 15 * time.Second
	if v := os.Getenv("REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			log.Fatalf("invalid REQUEST_TIMEOUT: %v", err)
		}
		timeout = d
	}

	e := echo.New()
	e.Use(middleware.CORSWithConfig(corsConfig()))

	logger := log.New()
	api.Register(e, apiStore, idp, stripe, deduper, logger, timeout)

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("PORT"); ok {
		listenAddr = ":" + val
	}

	e.Logger.Fatal(e.Start(listenAddr))
}

// buildIdentity selects the identity provider. LOCAL_AUTH_MODE switches to
// offline verification for development: hs256 against a shared secret, jwks
// against an arbitrary JWKS endpoint.
func buildIdentity(ctx context.Context, projectID, credsFile string) (api.Identity, error) {
	switch mode := strings.ToLower(os.Getenv("LOCAL_AUTH_MODE")); mode {
	case "":
		return identity.NewFirebase(ctx, identity.Config{
			ProjectID:       projectID,
			CredentialsFile: credsFile,
		})
	case "hs256":
		secret := os.Getenv("LOCAL_AUTH_SHARED_SECRET")
		if secret == "" {
			log.Fatal("LOCAL_AUTH_SHARED_SECRET must be set when LOCAL_AUTH_MODE=hs256")
		}
		return identity.NewLocalHS256([]byte(secret), os.Getenv("LOCAL_AUTH_AUDIENCE"), os.Getenv("LOCAL_AUTH_ISSUER")), nil
	case "jwks":
		jwksURL := os.Getenv("LOCAL_AUTH_JWKS_URL")
		if jwksURL == "" {
			log.Fatal("LOCAL_AUTH_JWKS_URL must be set when LOCAL_AUTH_MODE=jwks")
		}
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
		if err != nil {
			return nil, err
		}
		return identity.NewLocalJWKS(jwks, os.Getenv("LOCAL_AUTH_AUDIENCE"), os.Getenv("LOCAL_AUTH_ISSUER")), nil
	default:
		log.Fatal("unsupported LOCAL_AUTH_MODE value")
		return nil, nil
	}
}

// parseRedisOptions accepts either a redis URL or the comma-separated
// host,password=...,ssl=true form used by hosted caches.
func parseRedisOptions(conn string) *redis.Options {
	opts, err := redis.ParseURL(conn)
	if err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts = &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}

// corsConfig allows everything in development and an explicit origin
// allowlist in production.
func corsConfig() middleware.CORSConfig {
	cfg := middleware.CORSConfig{
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowOrigins = strings.Split(origins, ",")
	} else {
		cfg.AllowOrigins = []string{"*"}
	}
	return cfg
}

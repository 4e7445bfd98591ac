package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"chat-service/configs"
	"chat-service/internal/conversation"
	"chat-service/internal/idem"
	"chat-service/internal/kafka"
	"chat-service/internal/media"
	"chat-service/internal/message"
	"chat-service/internal/migrate"
	"chat-service/internal/ratelimit"
	"chat-service/internal/realtime"
	"chat-service/internal/redisx"
	"chat-service/internal/shared/db"
	"chat-service/internal/shared/httpx"
	"chat-service/internal/user"
)

func initOTEL(ctx context.Context) func(context.Context) error {
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		endpoint = "otel-collector:4318"
	}
	exp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure())
	if err != nil {
		log.Fatalf("otel exporter: %v", err)
	}
	res, _ := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName("chat-service"),
		attribute.String("deployment.environment", os.Getenv("ENV")),
	))
	ratio := 1.0
	if s := os.Getenv("OTEL_TRACES_SAMPLER_ARG"); s != "" {
		if f, e := strconv.ParseFloat(s, 64); e == nil && f >= 0 && f <= 1 {
			ratio = f
		}
	}
	tp := trace.NewTracerProvider(
		trace.WithSampler(trace.ParentBased(trace.TraceIDRatioBased(ratio))),
		trace.WithBatcher(exp),
		trace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	return tp.Shutdown
}

func main() {
	ctx := context.Background()
	shutdown := initOTEL(ctx)
	defer func() {
		c, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		_ = shutdown(c)
	}()

	cfg := configs.LoadConfig()

	// Postgres
	store := db.Open(cfg.DSN())

	// Redis
	rds := redisx.NewClient(cfg.RedisAddr())
	defer rds.Close()

	// Kafka producer
	kWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer kWriter.Close()

	// Media client
	mediaCli := media.New(cfg.MediaServiceURL)

	if cfg.AutoMigrate {
		if err := migrate.AutoMigrateAll(store); err != nil {
			log.Fatalf("migrate: %v", err)
		}
	}

	// Live fan-out
	router := realtime.NewRouter()
	dispatcher := realtime.NewDispatcher(router)
	presence := realtime.NewPresence(user.NewRepository(store))

	// Wire repos & services
	userRepo := user.NewRepository(store)
	convRepo := conversation.NewRepository(store)
	msgRepo := message.NewRepository(store)

	convSvc := conversation.NewService(convRepo, userRepo, msgRepo, dispatcher)
	msgSvc := message.NewService(msgRepo, convRepo, userRepo, dispatcher, kWriter)

	ch := conversation.NewHandler(convSvc)
	mh := message.NewHandler(msgSvc, mediaCli, idem.New(rds))
	socket := realtime.NewSocketHandler(router, presence, convSvc)
	limiter := ratelimit.New(rds)

	// HTTP
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("GET /ws", socket)

	protect := func(pattern string, h http.Handler) {
		mux.Handle(pattern, httpx.AuthMiddleware(h))
	}

	// Conversations
	protect("POST /conversations", httpx.Wrap(ch.Direct))
	protect("GET /conversations", httpx.Wrap(ch.List))
	protect("POST /conversations/group", httpx.Wrap(ch.CreateGroup))
	protect("PUT /conversations/{id}/read", httpx.Wrap(ch.MarkRead))
	protect("PUT /conversations/{id}/rename", httpx.Wrap(ch.Rename))
	protect("PUT /conversations/group/add", httpx.Wrap(ch.AddMember))
	protect("PUT /conversations/group/remove", httpx.Wrap(ch.RemoveMember))
	protect("PUT /conversations/group/leave", httpx.Wrap(ch.Leave))

	// Messages
	protect("POST /messages", limiter.LimitHTTP(60, time.Minute, httpx.Wrap(mh.Send)))
	protect("POST /messages/upload", httpx.Wrap(mh.UploadAndSend))
	protect("GET /messages/{conversation_id}", httpx.Wrap(mh.List))
	protect("POST /messages/{conversation_id}/seen", httpx.Wrap(mh.MarkSeen))

	// Health/info
	protect("GET /whoami", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid, err := httpx.UserFromCtx(r)
		if err != nil {
			httpx.WriteJSON(w, map[string]any{"error": err.Error()}, http.StatusUnauthorized)
			return
		}
		httpx.WriteJSON(w, map[string]any{"user_id": uid}, http.StatusOK)
	}))

	srv := &http.Server{
		Addr:              cfg.AppPort,
		Handler:           otelhttp.NewHandler(mux, "http.server"),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}
	log.Printf("chat-service listening on %s", cfg.AppPort)
	log.Fatal(srv.ListenAndServe())
}

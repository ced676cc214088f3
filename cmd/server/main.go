package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"supportdesk/internal/auth"
	"supportdesk/internal/canned"
	"supportdesk/internal/db"
	myMiddleware "supportdesk/internal/middleware"
	"supportdesk/internal/ratelimit"
	"supportdesk/internal/realtime"
	"supportdesk/internal/ticket"
)

func main() {
	// 1. Config & Flags
	addr := flag.String("addr", ":8080", "http service address")
	flag.Parse()

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		log.Fatal("❌ DB_DSN is not set")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("❌ JWT_SECRET is not set")
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	// 2. Connect to Database (Platform Layer)
	database, err := db.NewDatabase(dsn)
	if err != nil {
		log.Fatalf("❌ Failed to connect to DB: %v", err)
	}
	log.Println("✅ Connected to PostgreSQL")

	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}
	log.Println("✅ Database Schema Initialized")

	// 3. Connect to Redis (Platform Layer)
	redisClient := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		log.Fatalf("❌ Failed to connect to Redis: %v", err)
	}
	log.Println("✅ Connected to Redis")

	// 4. Auth
	authRepo := auth.NewRepository(database.Conn)
	authService := auth.NewService(authRepo, jwtSecret)
	authHandler := auth.NewHandler(authService)
	authMiddleware := myMiddleware.NewAuthMiddleware(authService)

	// 5. Realtime push channel + dashboard feed
	bus := realtime.NewBus(redisClient)
	hub := realtime.NewHub(bus)
	go hub.Run()

	// One send limiter per authenticated user, shared across all of that
	// user's open conversations.
	limiters := ratelimit.NewRegistry(ratelimit.MessageMax, ratelimit.MessageWindow)

	// 6. Tickets
	ticketRepo := ticket.NewRepository(database.Conn)
	ticketHandler := ticket.NewHandler(ticketRepo, realtime.NewNotifier(bus), limiters)
	wsHandler := realtime.NewHandler(hub, bus, ticketRepo, limiters)

	// 7. Canned responses (seeded on first run)
	cannedRepo := canned.NewRepository(database.Conn)
	if err := cannedRepo.Seed(context.Background()); err != nil {
		log.Fatalf("❌ Canned response seeding failed: %v", err)
	}
	cannedHandler := canned.NewHandler(cannedRepo)

	// 8. Routes
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Public Routes
	r.Post("/register", authHandler.Register)
	r.Post("/login", authHandler.Login)

	// Protected Routes (Require JWT)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)

		r.Get("/api/agents/search", authHandler.SearchAgents)

		r.Post("/api/tickets", ticketHandler.Create)
		r.Get("/api/tickets", ticketHandler.List)
		r.Get("/api/tickets/{id}", ticketHandler.Get)
		r.Post("/api/tickets/{id}/messages", ticketHandler.SendMessage)
		r.Patch("/api/tickets/{id}/status", ticketHandler.UpdateStatus)
		r.Post("/api/tickets/{id}/read", ticketHandler.MarkRead)
		r.Get("/api/stats", ticketHandler.Stats)

		r.Get("/api/canned", cannedHandler.List)
		r.Get("/api/canned/shortcut/{shortcut}", cannedHandler.GetByShortcut)
		r.Post("/api/canned", cannedHandler.Create)
		r.Put("/api/canned/{id}", cannedHandler.Update)
		r.Delete("/api/canned/{id}", cannedHandler.Delete)

		// WebSocket (Real-time)
		r.Get("/ws/dashboard", wsHandler.ServeDashboard)
		r.Get("/ws/tickets/{id}", wsHandler.ServeTicket)
	})

	log.Printf("🚀 Server starting on %s", *addr)
	if err := http.ListenAndServe(*addr, r); err != nil {
		log.Fatal(err)
	}
}

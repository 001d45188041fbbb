package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"training-portal/internal/admin"
	"training-portal/internal/auth"
	"training-portal/internal/config"
	"training-portal/internal/domain"
	"training-portal/internal/guide"
	"training-portal/internal/infra/local"
	"training-portal/internal/infra/memory"
	pgstore "training-portal/internal/infra/postgres"
	rediscache "training-portal/internal/infra/redis"
	"training-portal/internal/quiz"
	transport "training-portal/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the training portal server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	sessionTTL := config.TTLDuration(cfg.Auth.SessionTTL, time.Hour)
	issuer := cfg.Auth.Issuer
	if issuer == "" {
		issuer = "training-portal"
	}
	sessions := local.NewSessionService(cfg.Auth.JWTSecret, issuer, sessionTTL)

	cacheTTL := config.TTLDuration(cfg.Quiz.CacheTTL, 10*time.Minute)

	var (
		profiles      auth.ProfileStore
		userDirectory admin.UserDirectory
		grants        quiz.GrantStore
		results       quiz.ResultStore
		resultsReader admin.ResultsReader
		guides        guide.GuideStore
		progress      guide.ProgressStore
		loader        memory.QuestionLoader
	)
	if pool != nil {
		if err := sessions.Persist(ctx, pgstore.NewCredentialStore(pool)); err != nil {
			return err
		}
		pgProfiles := pgstore.NewProfileStore(pool)
		profiles, userDirectory = pgProfiles, pgProfiles
		grants = pgstore.NewGrantStore(pool)
		pgResults := pgstore.NewResultStore(pool)
		results, resultsReader = pgResults, pgResults
		guides = pgstore.NewGuideStore(pool)
		progress = pgstore.NewProgressStore(pool)
		loader = pgstore.NewQuestionLoader(pool)
	} else {
		memProfiles := memory.NewProfileStore()
		profiles, userDirectory = memProfiles, memProfiles
		memGrants := memory.NewGrantStore()
		grants = memGrants
		memResults := memory.NewResultStore()
		results, resultsReader = memResults, memResults
		guides = memory.NewGuideStore(sampleGuides(), sampleGuideQuestions())
		progress = memory.NewProgressStore()
		loader = memory.NewStaticQuestionLoader(sampleQuizQuestions())
		seedDemoData(ctx, sessions, memProfiles, memGrants)
	}

	var questionRepo quiz.QuestionRepository
	if redisClient != nil {
		questionRepo = rediscache.NewQuestionCache(redisClient, loader, cacheTTL, "quiz")
	} else {
		questionRepo = memory.NewQuestionRepository(loader, cacheTTL)
	}

	manager := auth.NewManager(sessions, profiles, config.TTLDuration(cfg.Auth.BootstrapWait, 3*time.Second))
	manager.Start()
	manager.Bootstrap(ctx)
	defer manager.Close()

	certs := memory.NewCertificateGenerator(cfg.Certificates.BaseURL)
	quizService := quiz.NewService(grants, questionRepo, results, certs)
	guideService := guide.NewService(guides, progress)
	adminService := admin.NewService(userDirectory, resultsReader, sessions)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      transport.NewServer(manager, quizService, guideService, adminService).Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting training portal on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// seedDemoData provisions a demo account and a one-shot quiz grant for the
// in-memory mode, where no provisioning CLI applies.
func seedDemoData(ctx context.Context, sessions *local.SessionService, profiles *memory.ProfileStore, grants *memory.GrantStore) {
	subjectID, err := sessions.Register("demo@example.com", "Demo123!")
	if err != nil {
		log.Printf("seed demo account: %v", err)
		return
	}
	now := time.Now()
	profile := domain.DefaultProfile(subjectID, "demo@example.com", now)
	profile.Role = domain.RoleAdmin
	profile.PasswordChangeRequired = false
	if err := profiles.UpsertProfile(ctx, profile); err != nil {
		log.Printf("seed demo profile: %v", err)
	}
	if _, err := grants.CreateGrant(ctx, domain.QuizAccessGrant{
		QuizID:     "quiz-1",
		Token:      "demo-token",
		Expiration: now.Add(24 * time.Hour),
		CreatedAt:  now,
	}); err != nil {
		log.Printf("seed demo grant: %v", err)
	}
	log.Printf("demo mode: account demo@example.com, quiz token demo-token")
}

// sampleQuizQuestions provides a minimal question set; the postgres loader
// replaces this in production.
func sampleQuizQuestions() map[string][]domain.Question {
	return map[string][]domain.Question{
		"quiz-1": {
			{
				ID:      "q1",
				Content: "Which option is correct?",
				Type:    domain.QuestionSingleSelect,
				Options: []domain.Option{
					{ID: "o1", Text: "Wrong", DisplayOrder: 1},
					{ID: "o2", Text: "Right", Correct: true, DisplayOrder: 2},
					{ID: "o3", Text: "Also wrong", DisplayOrder: 3},
				},
			},
			{
				ID:      "q2",
				Content: "Check all that apply",
				Type:    domain.QuestionMultiSelect,
				Options: []domain.Option{
					{ID: "o1", Text: "Yes", Correct: true, DisplayOrder: 1},
					{ID: "o2", Text: "No", DisplayOrder: 2},
					{ID: "o3", Text: "Yes too", Correct: true, DisplayOrder: 3},
				},
			},
		},
	}
}

func sampleGuides() map[string]domain.StudyGuide {
	now := time.Now()
	return map[string]domain.StudyGuide{
		"guide-1": {
			ID:          "guide-1",
			Title:       "Getting Started",
			Description: "Introductory material",
			Category:    "basics",
			Status:      domain.GuidePublished,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
	}
}

func sampleGuideQuestions() map[string][]domain.Question {
	return map[string][]domain.Question{
		"guide-1": {
			{
				ID:       "g1q1",
				Content:  "True or false: practice helps",
				Type:     domain.QuestionTrueFalse,
				Category: "basics",
				Options: []domain.Option{
					{ID: "o1", Text: "True", Correct: true, DisplayOrder: 1},
					{ID: "o2", Text: "False", DisplayOrder: 2},
				},
			},
		},
	}
}

// Package main implements the smartsched server: it turns chat messages
// into confirmed Google Calendar events.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/smartsched/internal/profile"
	"github.com/hrygo/smartsched/plugin/calendar/google"
	"github.com/hrygo/smartsched/plugin/nlp/datetime"
	"github.com/hrygo/smartsched/plugin/nlp/extract"
	"github.com/hrygo/smartsched/server/ai"
	"github.com/hrygo/smartsched/server/router/webhook"
	"github.com/hrygo/smartsched/server/service/confirmation"
	"github.com/hrygo/smartsched/server/service/schedule"
	"github.com/hrygo/smartsched/store/cache"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "smartsched",
	Short: "Schedule extraction and calendar registration server",
	Long: `smartsched listens for chat messages, extracts schedule information
from Japanese natural language, checks Google Calendar for conflicts and
registers confirmed events.`,
	Version: version,
	RunE:    run,
}

func init() {
	rootCmd.Flags().String("mode", "dev", `server mode: "prod", "dev" or "demo"`)
	rootCmd.Flags().String("addr", "", "binding address")
	rootCmd.Flags().Int("port", 8230, "binding port")
	rootCmd.Flags().String("data", "", "data directory for stored credentials")

	if err := viper.BindPFlags(rootCmd.Flags()); err != nil {
		panic(err)
	}
	viper.SetEnvPrefix("smartsched")
	viper.AutomaticEnv()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(_ *cobra.Command, _ []string) error {
	prof := &profile.Profile{
		Mode:    viper.GetString("mode"),
		Addr:    viper.GetString("addr"),
		Port:    viper.GetInt("port"),
		Data:    viper.GetString("data"),
		Version: version,
	}
	prof.FromEnv()
	if err := prof.Validate(); err != nil {
		return err
	}

	loc, err := prof.Location()
	if err != nil {
		return err
	}

	// Session store
	sessions := cache.NewMemoryStore(cache.DefaultConfig())
	defer sessions.Close()

	// Extraction pipeline
	resolver := datetime.NewResolver(loc)
	rule := extract.NewRuleBasedExtractor(resolver)
	var llm extract.Extractor
	if prof.IsAIEnabled() {
		provider, err := ai.NewProvider(&ai.Config{
			BaseURL:   prof.AIBaseURL,
			APIKey:    prof.AIAPIKey,
			ChatModel: prof.AIModel,
		})
		if err != nil {
			return err
		}
		llm = extract.NewLLMExtractor(provider, loc)
	} else {
		slog.Warn("AI extraction disabled, rule-based extraction only")
	}
	pipeline := extract.NewPipeline(extract.Config{
		AcceptThreshold:   prof.AcceptThreshold,
		FallbackThreshold: prof.FallbackThreshold,
		MaxDescriptionLen: 1000,
	}, llm, rule, loc)

	// Calendar
	credentials, err := google.NewFileCredentialStore(filepath.Join(prof.Data, "credentials"))
	if err != nil {
		return err
	}
	gcal := google.NewClient(google.Config{
		ClientID:     prof.GoogleClientID,
		ClientSecret: prof.GoogleClientSecret,
		RedirectURL:  prof.GoogleRedirectURL,
	}, credentials)

	// Scheduling services
	checker := schedule.NewAvailabilityChecker(gcal)
	slots := schedule.NewSlotFinder(gcal, schedule.SlotConfig{
		OnNoSlotFound: schedule.NoSlotPolicy(prof.SlotPolicy),
	})
	flow := confirmation.NewFlow(confirmation.Config{
		MinConfidence: prof.MinConfidence,
		SessionTTL:    prof.SessionTTL,
		Location:      loc,
	}, pipeline, checker, slots, gcal, sessions)

	// HTTP boundary
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	webhook.NewRouter(flow, logNotifier{}, gcal).RegisterRoutes(e.Group("/api/v1"))

	addr := fmt.Sprintf("%s:%d", prof.Addr, prof.Port)
	go func() {
		slog.Info("smartsched started",
			"version", version, "mode", prof.Mode, "addr", addr, "timezone", prof.Timezone)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("server stopped", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(ctx)
}

// logNotifier writes replies to the log. Messaging-platform adapters
// (Slack, LINE) replace it in their deployments.
type logNotifier struct{}

func (logNotifier) Send(_ context.Context, to confirmation.Sender, reply confirmation.Reply) error {
	slog.Info("reply",
		"user_id", to.UserID, "channel_id", to.ChannelID,
		"registered", reply.Registered, "text", reply.Text)
	return nil
}

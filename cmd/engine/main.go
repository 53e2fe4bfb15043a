// Command engine runs a headless review session: it joins a project,
// subscribes to its push channel, and logs live review activity. Useful
// for debugging a deployment or driving a kiosk display.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"screenroom/engine/internal/api"
	"screenroom/engine/internal/app"
	"screenroom/engine/internal/config"
	"screenroom/engine/internal/push"
	"screenroom/engine/internal/tree"
)

// logViewer satisfies the viewer capability surface by logging what a
// real media viewer would do.
type logViewer struct{}

func (logViewer) Seek(seconds float64) { log.Printf("viewer: seek to %.2fs", seconds) }
func (logViewer) Pause()               { log.Printf("viewer: pause") }
func (logViewer) Resume()              { log.Printf("viewer: resume") }
func (logViewer) RestoreCamera(pose string) {
	log.Printf("viewer: restore camera %s", pose)
}
func (logViewer) ResetCamera() { log.Printf("viewer: reset camera") }

type logNotifier struct{}

func (logNotifier) Notify(message string) { log.Printf("notice: %s", message) }

func main() {
	// .env is a development convenience; absence is fine.
	_ = godotenv.Load()
	cfg := config.Load()
	ctx := context.Background()

	if cfg.ProjectID == 0 {
		log.Fatalf("SCREENROOM_PROJECT_ID is required")
	}

	var client *api.Client
	if strings.TrimSpace(cfg.ClientToken) != "" {
		log.Printf("Joining as guest %q via client token", cfg.GuestName)
		client = api.NewGuestClient(cfg.APIBaseURL, cfg.ClientToken, cfg.GuestName)
	} else {
		client = api.NewClient(cfg.APIBaseURL, cfg.APIToken)
	}

	var transport push.Transport
	switch cfg.PushBackend {
	case "redis":
		log.Printf("Using Redis push transport")
		redisTransport, err := push.NewRedisTransport(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisTransport.Close()
		transport = redisTransport
	default:
		log.Printf("Using WebSocket push transport")
		transport = push.NewWSTransport(cfg.PushWSURL)
	}

	service := app.NewService(client, push.NewBridge(transport), logViewer{}, logNotifier{}, cfg.ShareBaseURL)
	if err := service.OpenProject(ctx, cfg.ProjectID); err != nil {
		log.Fatalf("open project failed: %v", err)
	}
	defer service.CloseProject()

	project := service.Project()
	log.Printf("Joined %q (%s), %d version(s)", project.Name, project.Status, len(project.Versions))
	for _, cm := range service.Comments(tree.FilterAll) {
		log.Printf("comment %d @%.2fs: %s (%d replies)", cm.ID, cm.Timestamp, cm.Content, len(cm.Replies))
	}
	if link := service.ClientReviewLink(); link != "" {
		log.Printf("Client review link: %s", link)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("Shutting down")
}

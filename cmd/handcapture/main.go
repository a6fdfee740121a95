package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/ayusman/handcapture/internal/app"
	"github.com/ayusman/handcapture/internal/config"
	"github.com/ayusman/handcapture/internal/server"
	"github.com/ayusman/handcapture/internal/session"
	"github.com/ayusman/handcapture/internal/store"
	"github.com/ayusman/handcapture/internal/tray"
)

func main() {
	fmt.Println("HandCapture - Hand Gesture Photo Capture")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	st, err := store.New(cfg.DBPath())
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer st.Close()

	sessionCfg := session.DefaultConfig()
	sessionCfg.Detector = cfg.Detector

	a := app.New(app.Config{
		Store:    st,
		HookDir:  cfg.HookDir,
		CameraID: cfg.CameraID,
		Session:  sessionCfg,
	})
	if err := a.DiscoverHooks(); err != nil {
		log.Printf("Failed to discover hooks: %v", err)
	}

	events := server.NewEventsHandler()
	a.Subscribe(events.Publish)
	landmarks := server.NewLandmarksHandler()
	a.SubscribeLandmarks(landmarks.Publish)

	staticDir := cfg.StaticDir
	if staticDir == "" {
		staticDir = findWebDir(cfg.DataDir)
	}
	if staticDir != "" {
		fmt.Printf("Serving static files from: %s\n", staticDir)
	}

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: server.New(server.Config{
			StaticDir: staticDir,
			Store:     st,
			Capture:   a,
			Events:    events,
			Landmarks: landmarks,
		}),
	}

	go func() {
		fmt.Printf("Starting server on %s\n", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Server shutdown: %v", err)
		}
		a.Shutdown()
	}

	if cfg.Tray {
		t := tray.New()
		a.Subscribe(func(snap session.Snapshot) {
			t.SetState(snap.Open, snap.Message())
		})
		t.OnCapture(a.SetOpen)
		t.OnPhotos(func() { openBrowser(localURL(cfg.Addr) + "/api/photos") })
		t.OnQuit(shutdown)

		go func() {
			waitForSignal()
			shutdown()
			os.Exit(0)
		}()

		// systray must own the main thread.
		t.Run()
		return
	}

	waitForSignal()
	shutdown()
}

func waitForSignal() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and <data>/web.
// Returns the first existing directory or empty string if none found.
func findWebDir(dataDir string) string {
	candidates := []string{"web", "../web", "../../web", filepath.Join(dataDir, "web")}
	for _, p := range candidates {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}
	return ""
}

// localURL turns a listen address into a URL for the local browser.
func localURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://localhost:8080"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		log.Printf("Failed to open browser: %v", err)
	}
}

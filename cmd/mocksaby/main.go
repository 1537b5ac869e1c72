// Package main implements a standalone mock Saby CRM server for E2E testing.
package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sabyx/saby-crm-relay/internal/testutil/mocksaby"
)

func getPort() string {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
	}
	return port
}

// runHealthCheck probes the local server over HTTP. Returns 0 on success,
// 1 on failure. Used by container HEALTHCHECK.
func runHealthCheck() int {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://localhost:" + getPort() + "/admin/state")
	if err != nil {
		return 1
	}
	//nolint:errcheck
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 1
	}
	return 0
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "health" {
		os.Exit(runHealthCheck())
	}

	port := getPort()
	server := mocksaby.New()

	// A default theme so relayed smoke tests work out of the box
	server.AddTheme("Test", 1, 1)

	httpServer := &http.Server{
		Addr:    ":" + port,
		Handler: server.Handler(),
	}

	done := make(chan bool)
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		log.Println("Shutting down mocksaby server...")
		//nolint:errcheck
		httpServer.Close()
		close(done)
	}()

	log.Printf("mocksaby listening on :%s", port)
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("HTTP server error: %v", err)
	}

	<-done
	log.Println("mocksaby stopped")
}

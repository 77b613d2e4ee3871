// Command demo-backend is a minimal upstream service for exercising the
// gateway locally: POST a route pointing at it, then dispatch through the
// gateway and watch the echoed requests.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

var (
	address = flag.String("address", ":9000", "Listen address")
	name    = flag.String("name", "demo", "Service name reported in responses")
	flaky   = flag.Bool("flaky", false, "Answer every third request with 500 to exercise circuit breaking")
)

type echoResponse struct {
	Service string      `json:"service"`
	Method  string      `json:"method"`
	Path    string      `json:"path"`
	Query   string      `json:"query,omitempty"`
	Headers http.Header `json:"headers"`
}

func main() {
	flag.Parse()

	var requests int
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "up", "service": *name})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		requests++
		if *flaky && requests%3 == 0 {
			http.Error(w, "simulated failure", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(echoResponse{
			Service: *name,
			Method:  r.Method,
			Path:    r.URL.Path,
			Query:   r.URL.RawQuery,
			Headers: r.Header,
		})
	})

	srv := &http.Server{
		Addr:         *address,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("demo backend %q listening on %s", *name, *address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
}

// A local stand-in for the mail.tm API: domains, account creation, token
// issue and a canned inbox. The -limit-every flag makes every Nth account
// creation return 429 so the governor path can be exercised end to end.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"sync/atomic"
	"time"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	limitEvery := flag.Int("limit-every", 0, "respond 429 to every Nth account creation (0 disables)")
	flag.Parse()

	var creations atomic.Int64

	mux := http.NewServeMux()

	mux.HandleFunc("GET /domains", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"hydra:member": []map[string]any{
				{"domain": "mail.tm"},
				{"domain": "indigobook.com"},
			},
		})
	})

	mux.HandleFunc("POST /accounts", func(w http.ResponseWriter, r *http.Request) {
		n := creations.Add(1)
		if *limitEvery > 0 && n%int64(*limitEvery) == 0 {
			writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"detail": "Too Many Requests",
			})
			return
		}
		var body struct {
			Address string `json:"address"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, http.StatusCreated, map[string]any{
			"id":      fmt.Sprintf("acc_%d", n),
			"address": body.Address,
		})
	})

	mux.HandleFunc("POST /token", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"token": fmt.Sprintf("mock_token_%08x", rand.Int63()),
		})
	})

	mux.HandleFunc("GET /messages", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"hydra:member": []map[string]any{
				{
					"id":      "msg_1",
					"from":    map[string]any{"address": "noreply@example.com", "name": "Example"},
					"subject": "Test message",
					"intro":   "This one is filtered out downstream.",
				},
				{
					"id":        "msg_2",
					"from":      map[string]any{"address": "alerts@realmail.tm", "name": "Alerts"},
					"subject":   "Welcome",
					"intro":     "Your account is ready.",
					"seen":      false,
					"createdAt": time.Now().UTC().Format(time.RFC3339),
				},
			},
		})
	})

	mux.HandleFunc("GET /messages/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"id":      r.PathValue("id"),
			"from":    map[string]any{"address": "alerts@realmail.tm", "name": "Alerts"},
			"subject": "Welcome",
			"text":    "Your account is ready.",
			"html":    []string{"<p>Your account is ready.</p>"},
		})
	})

	server := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Printf("mock mailbox provider listening on %s", *addr)
	log.Fatal(server.ListenAndServe())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

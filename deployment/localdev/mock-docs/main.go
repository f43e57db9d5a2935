// Command mock-docs serves canned runbooks for local development. Point the
// engine at it with AUTOPILOT_RUNBOOKS_BASE_URL=http://localhost:8090.
package main

import (
	"log"
	"net/http"
	"strings"
)

var runbooks = map[string]string{
	"checkout-service": `Checkout service incident response.
1. Check recent deploys; rollback if a deploy landed within the last hour.
2. If CPU or memory is saturated, scale up replicas before anything else.
3. If the cache layer is degraded, disable the cache-integration feature flag.`,
	"payments-prod": `Payments incident response. All mitigations require on-call approval.
1. Roll back the most recent deploy if errors correlate with a release.
2. Never scale down during an active incident.`,
}

func main() {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/runbooks/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		service := strings.TrimPrefix(r.URL.Path, "/runbooks/")
		runbook, ok := runbooks[service]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(runbook))
	})

	addr := ":8090"
	log.Printf("mock docs service listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal(err)
	}
}

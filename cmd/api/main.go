package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.temporal.io/sdk/client"

	"verifyengine/internal/config"
	"verifyengine/internal/gateway"
	"verifyengine/internal/metrics"
	"verifyengine/internal/model"
	"verifyengine/internal/tokenstore"
	"verifyengine/internal/verifierstore"
)

type startMethodReq struct {
	Method model.VerificationMethod `json:"method"`
	Class  model.SubjectClass       `json:"class"`
	Params map[string]any           `json:"params"`
}

type codeEnteredReq struct {
	Method model.VerificationMethod `json:"method"`
	Class  model.SubjectClass       `json:"class"`
	Code   string                   `json:"code"`
}

type verifierConfirmReq struct {
	Token      string         `json:"token"`
	VerifierID string         `json:"verifierId"`
	Evidence   map[string]any `json:"evidence"`
}

type communityAttestReq struct {
	Class      model.SubjectClass `json:"class"`
	AttestorID string              `json:"attestorId"`
	Text       string              `json:"text"`
}

type revokeReq struct {
	Method model.VerificationMethod `json:"method"`
	Class  model.SubjectClass       `json:"class"`
	ActorID string                  `json:"actorId"`
	Reason  string                  `json:"reason"`
}

func main() {
	cfg := config.Load()

	tc, err := client.Dial(client.Options{HostPort: cfg.TemporalHostPort})
	if err != nil {
		log.Fatalf("unable to create Temporal client: %v", err)
	}
	defer tc.Close()

	// The api and worker processes are separate deployments that must
	// see the same token and verifier-record state, so both stores are
	// backed by the shared Redis/Postgres instances rather than
	// process-local memory (the worker wires the same backends in
	// cmd/worker/main.go).
	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("unable to open postgres: %v", err)
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	m := metrics.New()
	gw := &gateway.Gateway{
		Client:       tc,
		TaskQueue:    cfg.TaskQueue,
		Tokens:       tokenstore.NewRedisStore(rdb),
		Verifiers:    verifierstore.NewPostgresStore(db),
		Metrics:      m,
		PollInterval: cfg.GatewayPollEvery,
	}

	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())

	// Start a verification method for a subject.
	r.Post("/subjects/{subjectId}/methods/start", func(w http.ResponseWriter, r *http.Request) {
		subjectID := chi.URLParam(r, "subjectId")
		var req startMethodReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Method == "" {
			http.Error(w, `invalid body: {"method":"...","class":"individual","params":{}}`, http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
		defer cancel()

		res, err := gw.StartMethod(ctx, subjectID, req.Class, req.Method, req.Params)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, res)
	})

	// Relay a caller's code guess into their active Code-Challenge run.
	r.Post("/subjects/{subjectId}/methods/code", func(w http.ResponseWriter, r *http.Request) {
		subjectID := chi.URLParam(r, "subjectId")
		var req codeEnteredReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
			http.Error(w, `invalid body: {"method":"...","class":"individual","code":"..."}`, http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
		defer cancel()

		res, err := gw.CodeEntered(ctx, subjectID, req.Class, req.Method, req.Code)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, res)
	})

	// A verifier scans a subject's QR token and confirms in person.
	r.Post("/verifiers/confirm", func(w http.ResponseWriter, r *http.Request) {
		var req verifierConfirmReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" || req.VerifierID == "" {
			http.Error(w, `invalid body: {"token":"...","verifierId":"...","evidence":{}}`, http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
		defer cancel()

		res, err := gw.VerifierConfirm(ctx, req.Token, req.VerifierID, req.Evidence)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, res)
	})

	// A community member attests about a subject.
	r.Post("/subjects/{subjectId}/attestations", func(w http.ResponseWriter, r *http.Request) {
		subjectID := chi.URLParam(r, "subjectId")
		var req communityAttestReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AttestorID == "" {
			http.Error(w, `invalid body: {"class":"individual","attestorId":"...","text":"..."}`, http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
		defer cancel()

		res, err := gw.CommunityAttest(ctx, subjectID, req.Class, req.AttestorID, req.Text)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, res)
	})

	// Withdraw a completed method, either by the subject or an
	// authorized verifier acting on their behalf.
	r.Post("/subjects/{subjectId}/methods/revoke", func(w http.ResponseWriter, r *http.Request) {
		subjectID := chi.URLParam(r, "subjectId")
		var req revokeReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Method == "" || req.ActorID == "" {
			http.Error(w, `invalid body: {"method":"...","class":"individual","actorId":"...","reason":"..."}`, http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
		defer cancel()

		res, err := gw.Revoke(ctx, subjectID, req.Class, req.Method, req.ActorID, req.Reason)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, res)
	})

	// Cancel a subject's in-flight protocol run for a method.
	r.Post("/subjects/{subjectId}/methods/{method}/cancel", func(w http.ResponseWriter, r *http.Request) {
		subjectID := chi.URLParam(r, "subjectId")
		method := model.VerificationMethod(chi.URLParam(r, "method"))
		class := model.SubjectClass(r.URL.Query().Get("class"))

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := gw.CancelMethod(ctx, subjectID, class, method); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{"ok": true})
	})

	// Aggregate status: score, level, completed methods, and next level
	// progress, fetched concurrently.
	r.Get("/subjects/{subjectId}/status", func(w http.ResponseWriter, r *http.Request) {
		subjectID := chi.URLParam(r, "subjectId")

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		st, err := gw.Status(ctx, subjectID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, st)
	})

	r.Get("/subjects/{subjectId}/methods/{method}", func(w http.ResponseWriter, r *http.Request) {
		subjectID := chi.URLParam(r, "subjectId")
		method := model.VerificationMethod(chi.URLParam(r, "method"))

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		res, err := gw.MethodStatus(ctx, subjectID, method)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, res)
	})

	log.Printf("api listening on %s\n", cfg.HTTPAddr)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, r))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

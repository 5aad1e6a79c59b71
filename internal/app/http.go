package app

import (
	"net/http"

	"github.com/fasthttp/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"collabchat/pkg/api"
	"collabchat/pkg/auth"
	"collabchat/pkg/logger"
	"collabchat/pkg/store"
)

var upgrader = websocket.FastHTTPUpgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// origin policy is enforced by the fronting gateway
	CheckOrigin: func(ctx *fasthttp.RequestCtx) bool { return true },
}

// setupHTTPHandlers assembles the net/http surface that rides behind the
// fasthttp adaptor: REST API, docs, metrics and health probes.
func (a *App) setupHTTPHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", healthzHandler)
	mux.HandleFunc("/readyz", a.readyzHandler)
	mux.Handle("/v1/", api.Router(a.limiter))
	mux.Handle("/docs/", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))
	mux.Handle("/openapi.yaml", http.FileServer(http.Dir("./docs")))
	mux.Handle("/metrics", promhttp.Handler())
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !store.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"not ready"}`))
		return
	}
	ver := a.version
	if ver == "" {
		ver = "dev"
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok","version":"` + ver + `"}`))
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// wsHandler upgrades a live connection. The identity headers are the same
// ones the REST middleware trusts.
func (a *App) wsHandler(ctx *fasthttp.RequestCtx) {
	id, err := auth.FromHeaders(func(k string) string {
		return string(ctx.Request.Header.Peek(k))
	})
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusForbidden)
		ctx.SetBodyString(`{"error":"missing or invalid identity headers"}`)
		return
	}
	upErr := upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
		a.hub.NewClient(conn, id.ParticipantID).Serve()
	})
	if upErr != nil {
		logger.Warn("ws_upgrade_failed", "participant", id.ParticipantID, "err", upErr)
	}
}

// startHTTP builds the combined fasthttp handler, starts the server in a
// goroutine and returns a channel carrying any fatal server error.
func (a *App) startHTTP() <-chan error {
	mux := http.NewServeMux()
	a.setupHTTPHandlers(mux)
	restHandler := fasthttpadaptor.NewFastHTTPHandler(mux)

	a.srv = &fasthttp.Server{
		Name: "collabchat",
		Handler: func(ctx *fasthttp.RequestCtx) {
			if string(ctx.Path()) == "/ws" {
				a.wsHandler(ctx)
				return
			}
			restHandler(ctx)
		},
	}

	errCh := make(chan error, 1)
	go func() {
		cert := a.cfg.Server.TLS.CertFile
		key := a.cfg.Server.TLS.KeyFile
		if cert != "" && key != "" {
			errCh <- a.srv.ListenAndServeTLS(a.addr, cert, key)
		} else {
			errCh <- a.srv.ListenAndServe(a.addr)
		}
	}()
	return errCh
}

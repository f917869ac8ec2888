// Package web serves a minimal live dashboard: finished measurements
// are pushed to connected browsers over a websocket.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"cmodel/internal/pipeline"
)

// WebServer hosts the dashboard and its websocket feed.
type WebServer struct {
	port     int
	upgrader websocket.Upgrader
	hub      *Hub
	pipe     *pipeline.Pipeline
	log      *slog.Logger
}

type jobMessage struct {
	ID         string `json:"ID"`
	Type       string `json:"Type"`
	BundlePath string `json:"BundlePath"`
}

type resultMessage struct {
	Job      jobMessage `json:"Job"`
	Measured int        `json:"Measured"`
	Failed   int        `json:"Failed"`
	Error    string     `json:"Error,omitempty"`
}

// Hub fans broadcast payloads out to connected clients.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
}

// NewWebServer creates the dashboard server.
func NewWebServer(port int, pipe *pipeline.Pipeline, log *slog.Logger) *WebServer {
	hub := &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
	}
	return &WebServer{
		port: port,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for development
			},
		},
		hub:  hub,
		pipe: pipe,
		log:  log,
	}
}

// Start runs the dashboard until ctx is cancelled.
func (ws *WebServer) Start(ctx context.Context) error {
	go ws.hub.run(ctx)
	go ws.forwardResults(ctx)

	router := mux.NewRouter()
	router.HandleFunc("/", ws.handleDashboard).Methods("GET")
	router.HandleFunc("/ws", ws.handleWebSocket).Methods("GET")

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", ws.port),
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		server.Shutdown(context.Background())
	}()

	ws.log.Info("dashboard starting", "port", ws.port)
	err := server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// forwardResults pushes finished pipeline jobs into the hub.
func (ws *WebServer) forwardResults(ctx context.Context) {
	results, unsub := ws.pipe.Subscribe()
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case res, ok := <-results:
			if !ok {
				return
			}
			msg := resultMessage{
				Job:      jobMessage{ID: res.Job.ID, Type: string(res.Job.Type), BundlePath: res.Job.BundlePath},
				Measured: res.Measured,
				Failed:   res.Failed,
			}
			if res.Error != nil {
				msg.Error = res.Error.Error()
			}
			payload, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			select {
			case ws.hub.broadcast <- payload:
			default:
			}
		}
	}
}

func (h *Hub) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			return
		case conn := <-h.register:
			h.clients[conn] = true
		case conn := <-h.unregister:
			if h.clients[conn] {
				delete(h.clients, conn)
				conn.Close()
			}
		case payload := <-h.broadcast:
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					delete(h.clients, conn)
					conn.Close()
				}
			}
		}
	}
}

func (ws *WebServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	ws.hub.register <- conn

	// drain client messages so pings are answered; the feed is
	// one-directional
	go func() {
		defer func() { ws.hub.unregister <- conn }()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (ws *WebServer) handleDashboard(w http.ResponseWriter, r *http.Request) {
	const tmpl = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<title>CModel Measurements</title>
<style>
body { font-family: monospace; background: #0f172a; color: #f8fafc; margin: 2rem; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #475569; padding: 0.4rem 0.8rem; text-align: right; }
th { background: #1e293b; }
.failed { color: #ef4444; }
</style>
</head>
<body>
<h1>CModel live measurements</h1>
<table>
<thead><tr><th>job</th><th>bundle</th><th>measured</th><th>failed</th></tr></thead>
<tbody id="rows"></tbody>
</table>
<script>
const ws = new WebSocket("ws://" + location.host + "/ws");
ws.onmessage = (ev) => {
    const res = JSON.parse(ev.data);
    const tr = document.createElement("tr");
    const failed = res.Failed > 0 ? ' class="failed"' : "";
    tr.innerHTML = "<td>" + res.Job.ID + "</td><td>" + res.Job.BundlePath +
        "</td><td>" + res.Measured + "</td><td" + failed + ">" + res.Failed + "</td>";
    document.getElementById("rows").prepend(tr);
};
</script>
</body>
</html>`
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(tmpl))
}

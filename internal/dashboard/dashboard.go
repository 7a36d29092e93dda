// Package dashboard provides live serving oversight for the prediction
// service. It serves a web page summarising model and throughput state and
// streams every issued prediction to connected browsers over WebSocket.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/leungkcofficial/detect-pd/internal/ml"
)

// Summary is one snapshot of serving state for the dashboard.
type Summary struct {
	Timestamp         time.Time        `json:"timestamp"`
	Status            string           `json:"status"`
	DefaultModel      string           `json:"defaultModel"`
	ModelVersion      string           `json:"modelVersion"`
	TotalPredictions  uint64           `json:"totalPredictions"`
	ErrorRate         float64          `json:"errorRate"`
	AvgLatencyMs      float64          `json:"avgLatencyMs"`
	UptimeSeconds     float64          `json:"uptimeSeconds"`
	StoredPredictions int              `json:"storedPredictions"`
	Models            []ml.ModelStatus `json:"models"`
}

// History is the optional stored-history view behind /api/recent.
// *storage.Store satisfies it.
type History interface {
	Recent(ctx context.Context, n int) ([]ml.Prediction, error)
	Count(ctx context.Context) (int, error)
}

// event is the WebSocket envelope; Type is "summary" or "prediction".
type event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub fans serving state out to connected browsers. It implements the
// serving layer's Feed interface, so every issued prediction reaches the
// live view without the request path ever blocking on a slow client.
type Hub struct {
	predictor *ml.Predictor
	registry  *ml.Registry
	history   History
	server    *http.Server
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex
	broadcast chan event
	stop      chan struct{}
	isRunning bool
	mu        sync.RWMutex
}

// NewHub creates a dashboard hub on the specified port. The history view is
// optional and attaches through WithHistory before Start.
func NewHub(port int, predictor *ml.Predictor, registry *ml.Registry) *Hub {
	h := &Hub{
		predictor: predictor,
		registry:  registry,
		upgrader:  websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan event, 100),
		stop:      make(chan struct{}),
	}

	r := mux.NewRouter()
	r.HandleFunc("/", h.handleIndex).Methods("GET")
	r.HandleFunc("/api/summary", h.handleSummary).Methods("GET")
	r.HandleFunc("/api/recent", h.handleRecent).Methods("GET")
	r.HandleFunc("/ws", h.handleWebSocket).Methods("GET")

	h.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return h
}

// WithHistory adds the stored-prediction view.
func (h *Hub) WithHistory(history History) *Hub {
	h.history = history
	return h
}

// Start starts the dashboard server and its broadcast loops.
func (h *Hub) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.isRunning {
		return fmt.Errorf("dashboard is already running")
	}

	go h.summaryCollector()
	go h.clientBroadcaster()

	go func() {
		log.Info().
			Str("address", h.server.Addr).
			Msg("Starting dashboard server")

		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Dashboard server failed")
		}
	}()

	h.isRunning = true
	return nil
}

// Stop shuts the dashboard down and disconnects all clients.
func (h *Hub) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.isRunning {
		return nil
	}

	close(h.stop)

	h.clientsMu.Lock()
	for client := range h.clients {
		client.Close()
	}
	h.clients = make(map[*websocket.Conn]bool)
	h.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := h.server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown dashboard server")
		return err
	}

	h.isRunning = false
	log.Info().Msg("Dashboard stopped")
	return nil
}

// Publish queues a prediction for broadcast. It never blocks: when the hub
// is saturated the update is dropped rather than stalling the caller.
func (h *Hub) Publish(p *ml.Prediction) {
	select {
	case h.broadcast <- event{Type: "prediction", Data: p}:
	default:
		// Hub saturated, drop this update.
	}
}

// summaryCollector pushes a state snapshot to clients every few seconds.
func (h *Hub) summaryCollector() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			select {
			case h.broadcast <- event{Type: "summary", Data: h.collectSummary()}:
			default:
				// Channel full, skip this update.
			}
		case <-h.stop:
			return
		}
	}
}

// clientBroadcaster forwards queued events to all connected clients.
func (h *Hub) clientBroadcaster() {
	for {
		select {
		case ev := <-h.broadcast:
			h.broadcastToClients(ev)
		case <-h.stop:
			return
		}
	}
}

func (h *Hub) collectSummary() Summary {
	hs := h.predictor.Health()
	sum := Summary{
		Timestamp:        time.Now(),
		Status:           hs.Status,
		DefaultModel:     h.predictor.DefaultModel(),
		ModelVersion:     hs.ModelVersion,
		TotalPredictions: hs.TotalPredictions,
		ErrorRate:        hs.ErrorRate,
		AvgLatencyMs:     hs.AvgLatencyMs,
		UptimeSeconds:    hs.UptimeSeconds,
		Models:           h.registry.Status(),
	}

	if h.history != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if n, err := h.history.Count(ctx); err == nil {
			sum.StoredPredictions = n
		}
	}

	return sum
}

func (h *Hub) broadcastToClients(ev event) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal dashboard event")
		return
	}

	for client := range h.clients {
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			client.Close()
			delete(h.clients, client)
		}
	}
}

func (h *Hub) handleSummary(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.collectSummary())
}

func (h *Hub) handleRecent(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if h.history == nil {
		json.NewEncoder(w).Encode([]ml.Prediction{})
		return
	}

	n := 20
	if v := r.URL.Query().Get("n"); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 && i <= 200 {
			n = i
		}
	}

	preds, err := h.history.Recent(r.Context(), n)
	if err != nil {
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	if preds == nil {
		preds = []ml.Prediction{}
	}
	json.NewEncoder(w).Encode(preds)
}

// handleWebSocket upgrades the connection and streams events until the
// client goes away.
func (h *Hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()

	h.clientsMu.Lock()
	h.clients[conn] = true
	h.clientsMu.Unlock()

	// Send the current state so the page renders before the first tick.
	if data, err := json.Marshal(event{Type: "summary", Data: h.collectSummary()}); err == nil {
		conn.WriteMessage(websocket.TextMessage, data)
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.clientsMu.Lock()
	delete(h.clients, conn)
	h.clientsMu.Unlock()
}

// handleIndex serves the dashboard HTML page.
func (h *Hub) handleIndex(w http.ResponseWriter, r *http.Request) {
	tmpl := `
<!DOCTYPE html>
<html>
<head>
    <title>Detect-PD Serving Dashboard</title>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        body { font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif; margin: 0; padding: 20px; background-color: #f5f5f5; }
        .container { max-width: 1200px; margin: 0 auto; }
        .header { background: linear-gradient(135deg, #1f6f8b 0%, #265077 100%); color: white; padding: 20px; border-radius: 10px; margin-bottom: 20px; }
        .header h1 { margin: 0; font-size: 2em; text-align: center; }
        .status-bar { display: flex; justify-content: space-between; align-items: center; background: white; padding: 15px; border-radius: 8px; margin-bottom: 20px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        .status-indicator { display: flex; align-items: center; font-weight: bold; }
        .status-dot { width: 12px; height: 12px; border-radius: 50%; margin-right: 8px; }
        .status-healthy { background-color: #28a745; }
        .status-degraded { background-color: #ffc107; }
        .status-unhealthy { background-color: #dc3545; }
        .grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(300px, 1fr)); gap: 20px; }
        .card { background: white; border-radius: 10px; padding: 20px; box-shadow: 0 4px 6px rgba(0,0,0,0.1); }
        .card h3 { margin-top: 0; color: #333; border-bottom: 2px solid #eee; padding-bottom: 10px; }
        .metric { display: flex; justify-content: space-between; padding: 8px 0; border-bottom: 1px solid #eee; }
        .metric:last-child { border-bottom: none; }
        .metric-label { font-weight: 500; color: #666; }
        .metric-value { font-weight: bold; color: #333; }
        .wide { grid-column: 1 / -1; }
        table { width: 100%; border-collapse: collapse; margin-top: 10px; }
        th, td { text-align: left; padding: 8px; border-bottom: 1px solid #eee; font-size: 0.9em; }
        th { background-color: #f8f9fa; font-weight: 600; }
        .ok { color: #28a745; font-weight: bold; }
        .bad { color: #dc3545; font-weight: bold; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Detect-PD Serving Dashboard</h1>
        </div>

        <div class="status-bar">
            <div class="status-indicator">
                <div class="status-dot" id="service-status"></div>
                <span id="service-status-text">Checking...</span>
            </div>
            <div class="status-indicator">
                <span id="last-update">Last Updated: --</span>
            </div>
        </div>

        <div class="grid">
            <div class="card">
                <h3>Service</h3>
                <div class="metric">
                    <span class="metric-label">Default Model</span>
                    <span class="metric-value" id="default-model">--</span>
                </div>
                <div class="metric">
                    <span class="metric-label">Model Version</span>
                    <span class="metric-value" id="model-version">--</span>
                </div>
                <div class="metric">
                    <span class="metric-label">Uptime</span>
                    <span class="metric-value" id="uptime">--</span>
                </div>
            </div>

            <div class="card">
                <h3>Throughput</h3>
                <div class="metric">
                    <span class="metric-label">Total Predictions</span>
                    <span class="metric-value" id="total-predictions">0</span>
                </div>
                <div class="metric">
                    <span class="metric-label">Error Rate</span>
                    <span class="metric-value" id="error-rate">0.00%</span>
                </div>
                <div class="metric">
                    <span class="metric-label">Avg Latency</span>
                    <span class="metric-value" id="avg-latency">0.00 ms</span>
                </div>
                <div class="metric">
                    <span class="metric-label">Stored History</span>
                    <span class="metric-value" id="stored-predictions">0</span>
                </div>
            </div>

            <div class="card wide">
                <h3>Models</h3>
                <table>
                    <thead>
                        <tr><th>Name</th><th>Version</th><th>Loaded</th><th>Classes</th><th>Trees</th><th>Calibrated</th></tr>
                    </thead>
                    <tbody id="models-table-body">
                        <tr><td colspan="6" style="text-align: center; color: #666;">No models configured</td></tr>
                    </tbody>
                </table>
            </div>

            <div class="card wide">
                <h3>Live Predictions</h3>
                <table>
                    <thead>
                        <tr><th>Time</th><th>Model</th><th>Class</th><th>Probability</th><th>Latency</th></tr>
                    </thead>
                    <tbody id="live-table-body">
                        <tr><td colspan="5" style="text-align: center; color: #666;">Waiting for predictions</td></tr>
                    </tbody>
                </table>
            </div>
        </div>
    </div>

    <script>
        const ws = new WebSocket('ws://' + location.host + '/ws');
        let liveRows = 0;

        ws.onmessage = function(event) {
            const msg = JSON.parse(event.data);
            if (msg.type === 'summary') {
                updateSummary(msg.data);
            } else if (msg.type === 'prediction') {
                appendPrediction(msg.data);
            }
        };

        ws.onclose = function() {
            setTimeout(() => location.reload(), 5000);
        };

        function updateSummary(data) {
            document.getElementById('last-update').textContent = 'Last Updated: ' + new Date(data.timestamp).toLocaleTimeString();

            const dot = document.getElementById('service-status');
            dot.className = 'status-dot status-' + data.status;
            document.getElementById('service-status-text').textContent = data.status.charAt(0).toUpperCase() + data.status.slice(1);

            document.getElementById('default-model').textContent = data.defaultModel;
            document.getElementById('model-version').textContent = data.modelVersion || '--';
            document.getElementById('uptime').textContent = formatUptime(data.uptimeSeconds);

            document.getElementById('total-predictions').textContent = data.totalPredictions;
            document.getElementById('error-rate').textContent = (data.errorRate * 100).toFixed(2) + '%';
            document.getElementById('avg-latency').textContent = data.avgLatencyMs.toFixed(2) + ' ms';
            document.getElementById('stored-predictions').textContent = data.storedPredictions;

            updateModelsTable(data.models || []);
        }

        function updateModelsTable(models) {
            const tbody = document.getElementById('models-table-body');
            tbody.innerHTML = '';
            if (models.length === 0) {
                tbody.innerHTML = '<tr><td colspan="6" style="text-align: center; color: #666;">No models configured</td></tr>';
                return;
            }
            for (const m of models) {
                const row = document.createElement('tr');
                row.innerHTML = '<td>' + m.name + '</td>' +
                    '<td>' + (m.version || '--') + '</td>' +
                    '<td class="' + (m.loaded ? 'ok' : 'bad') + '">' + (m.loaded ? 'yes' : 'no') + '</td>' +
                    '<td>' + (m.classes || '--') + '</td>' +
                    '<td>' + (m.trees || '--') + '</td>' +
                    '<td>' + (m.calibrated ? 'yes' : 'no') + '</td>';
                tbody.appendChild(row);
            }
        }

        function appendPrediction(p) {
            const tbody = document.getElementById('live-table-body');
            if (liveRows === 0) {
                tbody.innerHTML = '';
            }
            const row = document.createElement('tr');
            const prob = p.result ? p.result.probabilities[p.result.pred_class] : 0;
            row.innerHTML = '<td>' + new Date(p.timestamp).toLocaleTimeString() + '</td>' +
                '<td>' + p.model + '</td>' +
                '<td>' + (p.result ? p.result.pred_class : '--') + '</td>' +
                '<td>' + (prob * 100).toFixed(1) + '%</td>' +
                '<td>' + p.latency_ms.toFixed(2) + ' ms</td>';
            tbody.insertBefore(row, tbody.firstChild);
            liveRows++;
            while (tbody.rows.length > 20) {
                tbody.deleteRow(tbody.rows.length - 1);
            }
        }

        function formatUptime(seconds) {
            const h = Math.floor(seconds / 3600);
            const m = Math.floor((seconds % 3600) / 60);
            return h + 'h ' + m + 'm';
        }
    </script>
</body>
</html>
`

	t, err := template.New("dashboard").Parse(tmpl)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html")
	t.Execute(w, nil)
}

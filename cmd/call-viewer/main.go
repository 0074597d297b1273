// Command call-viewer follows screening calls live. It consumes the turn and
// summary topics from Kafka and relays every event to browsers over a
// websocket.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"ai-screening-call-service/internal/models"
)

// envelope is the union of turn and summary events as seen by the browser.
type envelope struct {
	EventType string              `json:"eventType"`
	SessionID string              `json:"sessionId"`
	Turn      *models.TurnEvent   `json:"turn,omitempty"`
	Summary   *models.CallSummary `json:"summary,omitempty"`
}

// Hub manages WebSocket connections
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan envelope
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	logger     zerolog.Logger
}

func newHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan envelope, 100),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		logger:     logger,
	}
}

func (h *Hub) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for conn := range h.clients {
				conn.Close()
			}
			return

		case conn := <-h.register:
			h.clients[conn] = true
			h.logger.Info().Int("clients", len(h.clients)).Msg("Client connected")

		case conn := <-h.unregister:
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			h.logger.Info().Int("clients", len(h.clients)).Msg("Client disconnected")

		case ev := <-h.broadcast:
			for conn := range h.clients {
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteJSON(ev); err != nil {
					h.logger.Warn().Err(err).Msg("Write error")
					conn.Close()
					delete(h.clients, conn)
				}
			}
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local dev
	},
}

func wsHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.logger.Warn().Err(err).Msg("WebSocket upgrade error")
			return
		}
		hub.register <- conn

		// Drain reads so close frames are noticed
		go func() {
			defer func() { hub.unregister <- conn }()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}

// decode turns a Kafka record into an envelope, using the eventType header
// set by the publisher and falling back to the payload field.
func decode(msg kafka.Message) (envelope, error) {
	eventType := ""
	for _, h := range msg.Headers {
		if h.Key == "eventType" {
			eventType = string(h.Value)
		}
	}
	if eventType == "" {
		var probe struct {
			EventType string `json:"eventType"`
		}
		if err := json.Unmarshal(msg.Value, &probe); err != nil {
			return envelope{}, err
		}
		eventType = probe.EventType
	}

	ev := envelope{EventType: eventType}
	switch eventType {
	case models.EventTypeTurn:
		var t models.TurnEvent
		if err := json.Unmarshal(msg.Value, &t); err != nil {
			return envelope{}, err
		}
		ev.SessionID, ev.Turn = t.SessionID, &t
	case models.EventTypeSummary:
		var s models.CallSummary
		if err := json.Unmarshal(msg.Value, &s); err != nil {
			return envelope{}, err
		}
		ev.SessionID, ev.Summary = s.SessionID, &s
	default:
		ev.SessionID = string(msg.Key)
	}
	return ev, nil
}

func consumeKafka(ctx context.Context, hub *Hub, brokers []string, topic string, since time.Duration) {
	logger := hub.logger.With().Str("topic", topic).Logger()

	// Partition reader without a consumer group so several viewers can run
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   brokers,
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer reader.Close()

	if err := reader.SetOffsetAt(ctx, time.Now().Add(-since)); err != nil {
		logger.Warn().Err(err).Msg("Could not rewind, reading from the latest offset")
	}
	logger.Info().Dur("since", since).Msg("Consuming")

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn().Err(err).Msg("Kafka read error")
			time.Sleep(time.Second)
			continue
		}

		ev, err := decode(msg)
		if err != nil {
			logger.Warn().Err(err).Int64("offset", msg.Offset).Msg("Undecodable event")
			continue
		}
		logger.Debug().Str("eventType", ev.EventType).Str("sessionId", ev.SessionID).Msg("Received")

		select {
		case hub.broadcast <- ev:
		case <-ctx.Done():
			return
		}
	}
}

const page = `<!doctype html>
<html><head><meta charset="utf-8"><title>Screening calls</title>
<style>body{font-family:sans-serif;margin:2em}pre{background:#f4f4f4;padding:.5em}</style></head>
<body><h1>Screening calls</h1><div id="log"></div>
<script>
const log = document.getElementById("log");
const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
ws.onmessage = (m) => {
  const ev = JSON.parse(m.data);
  const el = document.createElement("pre");
  if (ev.turn) {
    const r = ev.turn.record;
    el.textContent = ev.sessionId + " #" + ev.turn.sequence + " [" + r.category + "] " + r.transcript;
  } else if (ev.summary) {
    el.textContent = ev.sessionId + " ended: " + ev.summary.outcome + " (" + ev.summary.questionsAnswered + "/" + ev.summary.scriptLength + ")";
  } else {
    el.textContent = m.data;
  }
  log.prepend(el);
};
</script></body></html>`

func main() {
	port := flag.String("port", "8081", "HTTP server port")
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topicTurn := flag.String("topic-turn", "screening.turn", "Turn event topic")
	topicSummary := flag.String("topic-summary", "screening.summary", "Call summary topic")
	since := flag.Duration("since", time.Hour, "Replay events newer than this")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := newHub(logger)
	go hub.run(ctx)

	brokerList := strings.Split(*brokers, ",")
	var wg sync.WaitGroup
	for _, topic := range []string{*topicTurn, *topicSummary} {
		wg.Add(1)
		go func(topic string) {
			defer wg.Done()
			consumeKafka(ctx, hub, brokerList, topic, *since)
		}(topic)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	})
	mux.HandleFunc("/ws", wsHandler(hub))

	srv := &http.Server{Addr: ":" + *port, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	logger.Info().Str("addr", "http://localhost:"+*port).Strs("topics", []string{*topicTurn, *topicSummary}).Msg("Call viewer starting")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("Server error")
	}
	wg.Wait()
}

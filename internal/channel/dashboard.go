package channel

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/lumilinkco/mochi/internal/bus"
	"github.com/lumilinkco/mochi/internal/config"
)

//go:embed static
var staticFiles embed.FS

const (
	dashboardChannelName = "dashboard"
	statsPushInterval    = 10 * time.Second
)

type wsMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Stats   any    `json:"stats,omitempty"`
}

type wsClient struct {
	conn *websocket.Conn
	id   string
}

// StatsFunc returns the current stats payload pushed to dashboard
// clients on a fixed interval.
type StatsFunc func() any

// DashboardChannel serves the web dashboard: a chat websocket plus a
// periodic memory-stats feed.
type DashboardChannel struct {
	BaseChannel
	port    int
	stats   StatsFunc
	server  *http.Server
	clients sync.Map
	nextID  atomic.Int64
	cancel  context.CancelFunc
}

func NewDashboardChannel(cfg config.DashboardConfig, gwCfg config.GatewayConfig, b *bus.MessageBus, stats StatsFunc) (*DashboardChannel, error) {
	port := gwCfg.Port
	if port == 0 {
		port = config.DefaultPort
	}
	return &DashboardChannel{
		BaseChannel: NewBaseChannel(dashboardChannelName, b, cfg.AllowFrom),
		port:        port,
		stats:       stats,
	}, nil
}

func (d *DashboardChannel) Start(ctx context.Context) error {
	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return fmt.Errorf("embed static fs: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.FS(staticFS)))
	mux.HandleFunc("/ws", d.handleWS)

	d.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", d.port),
		Handler: mux,
	}

	ctx, d.cancel = context.WithCancel(ctx)

	go func() {
		log.Printf("[dashboard] listening on :%d", d.port)
		if err := d.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[dashboard] server error: %v", err)
		}
	}()

	if d.stats != nil {
		go d.pushStats(ctx)
	}

	return nil
}

func (d *DashboardChannel) pushStats(ctx context.Context) {
	ticker := time.NewTicker(statsPushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			data, err := json.Marshal(wsMessage{Type: "stats", Stats: d.stats()})
			if err != nil {
				continue
			}
			d.broadcast(data)
		case <-ctx.Done():
			return
		}
	}
}

func (d *DashboardChannel) handleWS(wr http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(wr, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("[dashboard] websocket accept error: %v", err)
		return
	}

	clientID := fmt.Sprintf("dashboard-%d", d.nextID.Add(1))
	client := &wsClient{conn: conn, id: clientID}
	d.clients.Store(clientID, client)
	log.Printf("[dashboard] client connected: %s", clientID)

	defer func() {
		d.clients.Delete(clientID)
		conn.CloseNow()
		log.Printf("[dashboard] client disconnected: %s", clientID)
	}()

	for {
		_, data, err := conn.Read(r.Context())
		if err != nil {
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		if msg.Type != "message" || msg.Content == "" {
			continue
		}

		if !d.IsAllowed(clientID) {
			log.Printf("[dashboard] rejected message from %s", clientID)
			continue
		}

		d.bus.Inbound <- bus.InboundMessage{
			Channel:   dashboardChannelName,
			SenderID:  clientID,
			ChatID:    clientID,
			Content:   msg.Content,
			Timestamp: time.Now(),
		}
	}
}

func (d *DashboardChannel) Send(msg bus.OutboundMessage) error {
	data, err := json.Marshal(wsMessage{
		Type:    "message",
		Content: msg.Content,
	})
	if err != nil {
		return err
	}

	client, ok := d.clients.Load(msg.ChatID)
	if !ok {
		// Broadcast to all clients if no specific target
		d.broadcast(data)
		return nil
	}

	c := client.(*wsClient)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (d *DashboardChannel) broadcast(data []byte) {
	d.clients.Range(func(_, value any) bool {
		c := value.(*wsClient)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = c.conn.Write(ctx, websocket.MessageText, data)
		cancel()
		return true
	})
}

func (d *DashboardChannel) Stop() error {
	if d.cancel != nil {
		d.cancel()
	}
	if d.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.server.Shutdown(ctx); err != nil {
			log.Printf("[dashboard] shutdown error: %v", err)
		}
	}
	d.clients.Range(func(_, value any) bool {
		c := value.(*wsClient)
		c.conn.CloseNow()
		return true
	})
	log.Printf("[dashboard] stopped")
	return nil
}

package gateway

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/lumilinkco/mochi/internal/bus"
	"github.com/lumilinkco/mochi/internal/channel"
	"github.com/lumilinkco/mochi/internal/command"
	"github.com/lumilinkco/mochi/internal/config"
	"github.com/lumilinkco/mochi/internal/cron"
	"github.com/lumilinkco/mochi/internal/lookup"
	"github.com/lumilinkco/mochi/internal/memory"
	"github.com/lumilinkco/mochi/internal/persona"
	"github.com/lumilinkco/mochi/internal/responder"
	"github.com/lumilinkco/mochi/internal/store"
)

const (
	cleanupJobName     = "__internal:memory:cleanup"
	threadSweepJobName = "__internal:memory:thread-sweep"
	promotionJobName   = "__internal:memory:promotion"
)

// Options customize gateway construction for tests.
type Options struct {
	LLMClient  responder.LLMClient
	SignalChan chan os.Signal
}

type Gateway struct {
	cfg *config.Config
	bus *bus.MessageBus

	store     *memory.Store
	threads   *memory.ThreadManager
	promoter  *memory.Scheduler
	assembler *memory.Assembler
	signals   *signalTracker

	db        *store.Engine
	persona   *persona.Tracker
	responder *responder.Responder
	commands  *command.Registry
	cron      *cron.Service
	channels  *channel.ChannelManager

	signalChan chan os.Signal
}

// New creates a Gateway with default options.
func New(cfg *config.Config) (*Gateway, error) {
	return NewWithOptions(cfg, Options{})
}

// NewWithOptions creates a Gateway with custom options for testing.
func NewWithOptions(cfg *config.Config, opts Options) (*Gateway, error) {
	g := &Gateway{cfg: cfg, signalChan: opts.SignalChan}

	g.bus = bus.NewMessageBus(config.DefaultBufSize, cfg.Gateway.OutboundRate, cfg.Gateway.OutboundBurst)

	// Message log and thread archive live in sqlite
	dbPath := strings.TrimSpace(cfg.Memory.DBPath)
	if dbPath == "" {
		dbPath = filepath.Join(config.ConfigDir(), "data", "mochi.db")
	}
	engine, err := store.NewEngine(dbPath)
	if err != nil {
		return nil, fmt.Errorf("create store engine: %w", err)
	}
	g.db = engine

	// Persona and rapport tracking
	personaPath := strings.TrimSpace(cfg.Persona.Path)
	if personaPath == "" {
		personaPath = filepath.Join(config.ConfigDir(), "persona.yaml")
	}
	tracker, err := persona.Load(personaPath)
	if err != nil {
		_ = engine.Close()
		return nil, fmt.Errorf("load persona: %w", err)
	}
	g.persona = tracker

	// Tiered conversational memory
	clock := memory.SystemClock()
	g.store = memory.NewStore(clock)
	g.threads = memory.NewThreadManager(g.store, engine, clock)
	g.promoter = memory.NewScheduler(g.store, tracker)
	g.assembler = memory.NewAssembler(g.store, g.threads, g.promoter, clock)
	g.signals = newSignalTracker(clock)

	// LLM responder
	llm := opts.LLMClient
	if llm == nil {
		llm, err = responder.NewAnthropicClient(cfg.Provider, cfg.Bot.Model, cfg.Bot.MaxTokens)
		if err != nil {
			_ = engine.Close()
			return nil, fmt.Errorf("create llm client: %w", err)
		}
	}
	g.responder = responder.New(llm, tracker.Describe())

	// Cron: maintenance jobs plus user reminders
	g.cron = cron.NewService(filepath.Join(config.ConfigDir(), "data", "cron", "jobs.json"))
	g.cron.OnJob = g.handleJob

	// Commands
	lookupClient, err := lookup.NewClient(cfg.Lookup)
	if err != nil {
		_ = engine.Close()
		return nil, fmt.Errorf("create lookup client: %w", err)
	}
	g.commands = command.NewRegistry(cfg.Bot.CommandPrefix)
	command.RegisterBuiltins(g.commands, command.Deps{
		Memory: g.store,
		Lookup: lookupClient,
		Clock:  clock,
		Remind: g.scheduleReminder,
	})

	// Channels, with the dashboard fed live memory stats
	chMgr, err := channel.NewChannelManager(cfg.Channels, cfg.Gateway, g.bus, func() any {
		return g.store.Stats()
	})
	if err != nil {
		_ = engine.Close()
		return nil, fmt.Errorf("create channel manager: %w", err)
	}
	g.channels = chMgr

	return g, nil
}

func (g *Gateway) scheduleReminder(_ context.Context, channelName, chatID string, in time.Duration, text string) (string, error) {
	job, err := g.cron.AddJob("reminder:"+uuid.NewString()[:8],
		cron.Schedule{Kind: "at", AtMs: time.Now().Add(in).UnixMilli()},
		cron.Payload{Kind: "reminder", Channel: channelName, ChatID: chatID, Message: text})
	if err != nil {
		return "", err
	}
	return job.ID, nil
}

// handleJob executes one scheduled job: internal memory maintenance or
// a user reminder.
func (g *Gateway) handleJob(job cron.CronJob) (string, error) {
	switch job.Name {
	case cleanupJobName:
		g.store.Cleanup()
		return "cleanup done", nil
	case threadSweepJobName:
		evicted := g.threads.Sweep()
		return fmt.Sprintf("swept %d threads", len(evicted)), nil
	case promotionJobName:
		moved := g.promoter.RunCycle()
		return fmt.Sprintf("promoted %d entries", moved), nil
	}

	if job.Payload.Kind == "reminder" {
		g.bus.Outbound <- bus.OutboundMessage{
			Channel: job.Payload.Channel,
			ChatID:  job.Payload.ChatID,
			Content: "reminder: " + job.Payload.Message,
		}
		return "delivered", nil
	}

	return "", fmt.Errorf("unknown job %s", job.Name)
}

func (g *Gateway) ensureMaintenanceJobs() error {
	jobs := []struct {
		name string
		expr string
	}{
		{cleanupJobName, g.cfg.Schedules.Cleanup},
		{threadSweepJobName, g.cfg.Schedules.ThreadSweep},
		{promotionJobName, g.cfg.Schedules.Promotion},
	}
	for _, j := range jobs {
		if g.cron.HasJob(j.name) {
			continue
		}
		if _, err := g.cron.AddJob(j.name, cron.Schedule{Kind: "cron", Expr: j.expr}, cron.Payload{Kind: "maintenance"}); err != nil {
			return err
		}
	}
	return nil
}

func (g *Gateway) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go g.bus.DispatchOutbound(ctx)

	if err := g.channels.StartAll(ctx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}
	log.Printf("[gateway] channels started: %v", g.channels.EnabledChannels())

	if err := g.cron.Start(ctx); err != nil {
		log.Printf("[gateway] cron start warning: %v", err)
	}
	if err := g.ensureMaintenanceJobs(); err != nil {
		log.Printf("[gateway] ensure maintenance jobs warning: %v", err)
	}

	go g.processLoop(ctx)

	log.Printf("[gateway] running on %s:%d", g.cfg.Gateway.Host, g.cfg.Gateway.Port)

	sigCh := g.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	}
	<-sigCh

	log.Printf("[gateway] shutting down...")
	return g.Shutdown()
}

func (g *Gateway) processLoop(ctx context.Context) {
	for {
		select {
		case msg := <-g.bus.Inbound:
			g.handleInbound(ctx, msg)
		case <-ctx.Done():
			return
		}
	}
}

func (g *Gateway) handleInbound(ctx context.Context, msg bus.InboundMessage) {
	log.Printf("[gateway] inbound from %s/%s: %s", msg.Channel, msg.SenderID, truncate(msg.Content, 80))

	g.signals.Observe(msg.Channel)

	if err := g.db.AppendMessage(store.Message{
		Channel:  msg.Channel,
		ChatID:   msg.ChatID,
		SenderID: msg.SenderID,
		Role:     "user",
		Content:  msg.Content,
	}); err != nil {
		log.Printf("[gateway] log message warning: %v", err)
	}

	name, args, isCommand := g.commands.Parse(msg.Content)

	msgType := classifyMessage(msg.Content, g.persona.Name(), isCommand)

	thread := g.threads.GetOrCreate(msg.Channel, msg.SenderID)
	g.threads.Update(thread, msg.Content, map[string]any{"role": "user", "type": msgType})

	// Every inbound message lands unscoped; the promotion cycle decides
	// what deserves a longer-lived tier.
	g.store.Add(memory.TierUnscoped, "msg:"+uuid.NewString()[:8], msg.Content, memory.EntryContext{
		Type:      msgType,
		Channel:   msg.Channel,
		User:      msg.SenderID,
		Content:   msg.Content,
		Timestamp: time.Now(),
	})

	g.persona.RecordInteraction(msg.SenderID, time.Now())

	var reply string
	if isCommand {
		out, handled, err := g.commands.Dispatch(ctx, command.Request{
			Channel: msg.Channel,
			Sender:  msg.SenderID,
			ChatID:  msg.ChatID,
			Name:    name,
			Args:    args,
		})
		switch {
		case err != nil:
			log.Printf("[gateway] command error: %v", err)
			reply = "something went wrong with that command."
		case handled:
			reply = out
		default:
			// Unknown command falls through to the conversational path
			reply = g.converse(ctx, msg)
		}
	} else {
		reply = g.converse(ctx, msg)
	}

	if reply == "" {
		return
	}

	g.threads.Update(thread, reply, map[string]any{"role": "assistant", "type": "response"})
	if err := g.db.AppendMessage(store.Message{
		Channel:  msg.Channel,
		ChatID:   msg.ChatID,
		SenderID: g.persona.Name(),
		Role:     "assistant",
		Content:  reply,
	}); err != nil {
		log.Printf("[gateway] log reply warning: %v", err)
	}
	g.persona.SaveQuiet()

	g.bus.Outbound <- bus.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Content: reply,
	}
}

func (g *Gateway) converse(ctx context.Context, msg bus.InboundMessage) string {
	snap := g.assembler.Build(msg.Channel, msg.SenderID, msg.Content, g.signals.Snapshot(msg.Channel))
	reply, err := g.responder.Reply(ctx, snap, msg.Content)
	if err != nil {
		log.Printf("[gateway] responder error: %v", err)
		return "sorry, I tripped over my own thoughts there."
	}
	return reply
}

func classifyMessage(content, botName string, isCommand bool) string {
	if isCommand {
		return "command"
	}
	if botName != "" && strings.Contains(strings.ToLower(content), strings.ToLower(botName)) {
		return "mention"
	}
	return "chat"
}

// Stats exposes memory tier counts for status reporting.
func (g *Gateway) Stats() memory.StoreStats {
	return g.store.Stats()
}

func (g *Gateway) Shutdown() error {
	g.cron.Stop()
	_ = g.channels.StopAll()
	if err := g.persona.Save(); err != nil {
		log.Printf("[gateway] save persona warning: %v", err)
	}
	if err := g.db.Close(); err != nil {
		log.Printf("[gateway] close store warning: %v", err)
	}
	log.Printf("[gateway] shutdown complete")
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

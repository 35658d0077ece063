package embeddednats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"datacatalog/pkg/shared"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// RandomPort asks the server to pick a free port.
const RandomPort = server.RANDOM_PORT

type Config struct {
	Port            int
	DataDir         string
	MaxMemory       int64
	MaxFileStore    int64
	JetStreamDomain string
}

type EmbeddedNATS struct {
	server  *server.Server
	nc      *nats.Conn
	js      nats.JetStreamContext
	config  *Config
	streams map[string]*StreamConfig
}

type StreamConfig struct {
	Name            string
	Subjects        []string
	Retention       nats.RetentionPolicy
	MaxMsgs         int64
	MaxBytes        int64
	MaxAge          time.Duration
	MaxMsgSize      int32
	Replicas        int
	DuplicateWindow time.Duration
	AllowDirect     bool
	DiscardPolicy   nats.DiscardPolicy
}

func DefaultConfig() *Config {
	return &Config{
		Port:            4222,
		DataDir:         "./data/nats",
		MaxMemory:       64 * 1024 * 1024,  // 64MB
		MaxFileStore:    512 * 1024 * 1024, // 512MB
		JetStreamDomain: "catalog",
	}
}

func New(cfg *Config) (*EmbeddedNATS, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	return &EmbeddedNATS{
		config:  cfg,
		streams: make(map[string]*StreamConfig),
	}, nil
}

func (en *EmbeddedNATS) Start() error {
	opts := &server.Options{
		Port:               en.config.Port,
		JetStream:          true,
		StoreDir:           en.config.DataDir,
		JetStreamMaxMemory: en.config.MaxMemory,
		JetStreamMaxStore:  en.config.MaxFileStore,
		NoSigs:             true,
	}
	if en.config.JetStreamDomain != "" {
		opts.JetStreamDomain = en.config.JetStreamDomain
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return fmt.Errorf("failed to create NATS server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(10 * time.Second) {
		ns.Shutdown()
		return fmt.Errorf("NATS server not ready for connections")
	}

	en.server = ns

	if err := en.connect(); err != nil {
		return fmt.Errorf("failed to connect to embedded NATS: %w", err)
	}

	log.Info("Embedded NATS server started", "url", ns.ClientURL())
	return nil
}

func (en *EmbeddedNATS) connect() error {
	nc, err := nats.Connect(en.server.ClientURL(),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Error("NATS error", "err", err)
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("NATS disconnected", "err", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info("NATS reconnected")
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	en.nc = nc
	en.js = js
	return nil
}

func (en *EmbeddedNATS) AddStream(streamConfig *StreamConfig) error {
	if en.js == nil {
		return fmt.Errorf("JetStream not initialized")
	}

	config := &nats.StreamConfig{
		Name:        streamConfig.Name,
		Subjects:    streamConfig.Subjects,
		Retention:   streamConfig.Retention,
		MaxMsgs:     streamConfig.MaxMsgs,
		MaxBytes:    streamConfig.MaxBytes,
		MaxAge:      streamConfig.MaxAge,
		MaxMsgSize:  streamConfig.MaxMsgSize,
		Replicas:    streamConfig.Replicas,
		Duplicates:  streamConfig.DuplicateWindow,
		AllowDirect: streamConfig.AllowDirect,
		Discard:     streamConfig.DiscardPolicy,
	}

	if _, err := en.js.StreamInfo(streamConfig.Name); err == nil {
		if _, err := en.js.UpdateStream(config); err != nil {
			return fmt.Errorf("failed to update stream %s: %w", streamConfig.Name, err)
		}
		log.Debug("Updated existing stream", "stream", streamConfig.Name)
	} else {
		if _, err := en.js.AddStream(config); err != nil {
			return fmt.Errorf("failed to add stream %s: %w", streamConfig.Name, err)
		}
		log.Info("Created stream", "stream", streamConfig.Name, "subjects", streamConfig.Subjects)
	}

	en.streams[streamConfig.Name] = streamConfig
	return nil
}

// CreateCatalogStreams declares the activity stream and the durable
// consumer the activity recorder binds to.
func (en *EmbeddedNATS) CreateCatalogStreams() error {
	activity := StreamConfig{
		Name:            shared.StreamActivity,
		Subjects:        []string{shared.SubjectActivityAll},
		Retention:       nats.WorkQueuePolicy, // each activity is recorded once
		MaxMsgs:         100000,
		MaxBytes:        128 * 1024 * 1024, // 128MB
		MaxAge:          7 * 24 * time.Hour,
		MaxMsgSize:      1024 * 1024, // package snapshots can be large
		Replicas:        1,
		DuplicateWindow: 2 * time.Minute,
		AllowDirect:     true,
		DiscardPolicy:   nats.DiscardOld,
	}
	if err := en.AddStream(&activity); err != nil {
		return err
	}

	return en.CreateDurableConsumer(shared.StreamActivity, shared.ConsumerActivityRecorder, shared.SubjectActivityAll)
}

func (en *EmbeddedNATS) PublishWithDedup(subject string, data []byte, msgID string) error {
	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, msgID)

	if _, err := en.js.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// PublishActivity publishes ev on its activity subject, filling in the
// subject, timestamp and source when unset.
func (en *EmbeddedNATS) PublishActivity(ctx context.Context, ev *shared.Event) error {
	if ev.ID == "" {
		return fmt.Errorf("activity event requires an id")
	}
	if ev.Subject == "" {
		ev.Subject = shared.ActivitySubject(ev.Type)
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if ev.Source == "" {
		ev.Source = shared.EventSource
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode activity: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return en.PublishWithDedup(ev.Subject, data, ev.ID)
}

func (en *EmbeddedNATS) CreateDurableConsumer(streamName, consumerName string, filterSubject string) error {
	config := &nats.ConsumerConfig{
		Durable:       consumerName,
		FilterSubject: filterSubject,
		AckPolicy:     nats.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		MaxAckPending: 1000,
		DeliverPolicy: nats.DeliverAllPolicy,
		ReplayPolicy:  nats.ReplayInstantPolicy,
	}

	if _, err := en.js.ConsumerInfo(streamName, consumerName); err == nil {
		log.Debug("Durable consumer already exists", "consumer", consumerName, "stream", streamName)
		return nil
	}

	if _, err := en.js.AddConsumer(streamName, config); err != nil {
		return fmt.Errorf("failed to create consumer %s: %w", consumerName, err)
	}

	log.Info("Created durable consumer", "consumer", consumerName, "stream", streamName)
	return nil
}

func (en *EmbeddedNATS) Connection() *nats.Conn {
	return en.nc
}

func (en *EmbeddedNATS) JetStream() nats.JetStreamContext {
	return en.js
}

// ClientURL is the address clients connect to.
func (en *EmbeddedNATS) ClientURL() string {
	if en.server == nil {
		return ""
	}
	return en.server.ClientURL()
}

func (en *EmbeddedNATS) Shutdown(ctx context.Context) error {
	if en.nc != nil {
		en.nc.Close()
	}

	if en.server != nil {
		en.server.Shutdown()
		en.server.WaitForShutdown()
	}

	return nil
}

func (en *EmbeddedNATS) HealthCheck() error {
	if en.nc == nil {
		return fmt.Errorf("NATS connection not initialized")
	}

	if !en.nc.IsConnected() {
		return fmt.Errorf("NATS not connected")
	}

	if en.server != nil && !en.server.Running() {
		return fmt.Errorf("NATS server not running")
	}

	return nil
}

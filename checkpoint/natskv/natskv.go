// Package natskv provides a checkpoint.Store on a NATS JetStream key/value
// bucket. An embedded NATS server can be started for single-node setups.
package natskv

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hupe1980/agentswarm/checkpoint"
	"github.com/hupe1980/agentswarm/core"
	"github.com/hupe1980/agentswarm/logging"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// DefaultBucket is the KV bucket used when none is configured.
const DefaultBucket = "AGENTSWARM_CHECKPOINTS"

// Options configure a Store.
type Options struct {
	Bucket      string
	Description string
	// TTL expires conversations that were not saved for this long. Zero keeps
	// them forever.
	TTL     time.Duration
	Storage nats.StorageType
	Logger  logging.Logger
}

// Store keeps one KV entry per conversation, holding the JSON encoded state.
type Store struct {
	kv     nats.KeyValue
	conn   *nats.Conn
	logger logging.Logger
}

// New creates a store on an existing JetStream context, creating the bucket
// when it does not exist yet.
func New(js nats.JetStreamContext, optFns ...func(o *Options)) (*Store, error) {
	opts := Options{
		Bucket:      DefaultBucket,
		Description: "agentswarm conversation checkpoints",
		Storage:     nats.FileStorage,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)

	kv, err := js.KeyValue(opts.Bucket)
	if err != nil {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:      opts.Bucket,
			Description: opts.Description,
			TTL:         opts.TTL,
			Storage:     opts.Storage,
			Replicas:    1,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create checkpoint bucket: %w", err)
		}
		opts.Logger.Info("checkpoint.bucket.created", "bucket", opts.Bucket)
	}

	return &Store{kv: kv, logger: opts.Logger}, nil
}

// Connect dials url and creates a store that owns the connection.
func Connect(url string, optFns ...func(o *Options)) (*Store, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	s, err := New(js, optFns...)
	if err != nil {
		conn.Close()
		return nil, err
	}
	s.conn = conn

	return s, nil
}

// Close closes the connection when the store owns it.
func (s *Store) Close() error {
	if s.conn != nil {
		s.conn.Close()
	}
	return nil
}

// key maps a conversation id onto the KV key alphabet.
func key(conversationID string) string {
	return "c." + base64.RawURLEncoding.EncodeToString([]byte(conversationID))
}

func conversationID(k string) (string, bool) {
	if len(k) < 2 || k[:2] != "c." {
		return "", false
	}
	b, err := base64.RawURLEncoding.DecodeString(k[2:])
	if err != nil {
		return "", false
	}
	return string(b), true
}

// Load implements checkpoint.Store.
func (s *Store) Load(ctx context.Context, conversationID string) (*core.ConversationState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entry, err := s.kv.Get(key(conversationID))
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return nil, checkpoint.ErrNotFound
		}
		return nil, fmt.Errorf("load %s: %w", conversationID, err)
	}

	return checkpoint.Decode(entry.Value())
}

// Save implements checkpoint.Store.
func (s *Store) Save(ctx context.Context, conversationID string, state *core.ConversationState) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := checkpoint.Encode(state)
	if err != nil {
		return err
	}

	rev, err := s.kv.Put(key(conversationID), data)
	if err != nil {
		return fmt.Errorf("save %s: %w", conversationID, err)
	}

	s.logger.Debug("checkpoint.saved", "conversation_id", conversationID, "revision", rev, "bytes", len(data))

	return nil
}

// List implements checkpoint.Lister.
func (s *Store) List(context.Context) ([]string, error) {
	keys, err := s.kv.Keys()
	if err != nil {
		if errors.Is(err, nats.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list keys: %w", err)
	}

	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		if id, ok := conversationID(k); ok {
			ids = append(ids, id)
		}
	}

	return ids, nil
}

// Delete implements checkpoint.Deleter.
func (s *Store) Delete(_ context.Context, conversationID string) error {
	if err := s.kv.Delete(key(conversationID)); err != nil && !errors.Is(err, nats.ErrKeyNotFound) {
		return fmt.Errorf("delete %s: %w", conversationID, err)
	}
	return nil
}

// Server is an embedded, JetStream enabled NATS server.
type Server struct {
	ns *natsserver.Server
}

// StartServer runs an embedded NATS server storing JetStream data in dir.
// Port -1 picks a random free port.
func StartServer(dir string, port int) (*Server, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create nats data dir: %w", err)
	}

	ns, err := natsserver.NewServer(&natsserver.Options{
		Host:      "127.0.0.1",
		Port:      port,
		NoLog:     true,
		NoSigs:    true,
		JetStream: true,
		StoreDir:  dir,
	})
	if err != nil {
		return nil, fmt.Errorf("create nats server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("nats server not ready")
	}

	return &Server{ns: ns}, nil
}

// ClientURL returns the URL clients should dial.
func (s *Server) ClientURL() string { return s.ns.ClientURL() }

// Close shuts the server down and waits for it.
func (s *Server) Close() {
	s.ns.Shutdown()
	s.ns.WaitForShutdown()
}

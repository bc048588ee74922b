package source

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/specialistvlad/assetgrid/internal/ctxlog"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

const (
	// FetchEvent is emitted with {"id", "key"} to request a resource.
	FetchEvent = "asset:fetch"
	// replyPrefix + request id names the event carrying the reply.
	replyPrefix = "asset:"

	connectTimeout = 15 * time.Second
)

// SocketIOConfig describes how to reach the asset server.
type SocketIOConfig struct {
	URL                string
	Namespace          string
	InsecureSkipVerify bool
}

// socketConn is the part of *socket.Socket a fetch uses.
type socketConn interface {
	Connected() bool
	Emit(ev string, args ...any) error
	Once(ev types.EventName, listeners ...types.Listener) error
	RemoveAllListeners(ev types.EventName) bool
	Disconnect() *socket.Socket
}

var _ socketConn = (*socket.Socket)(nil)

// SocketIO requests resources from a socket.io server. Each fetch emits
// FetchEvent and waits for the reply on "asset:<id>".
type SocketIO struct {
	io     socketConn
	logger *slog.Logger
}

// DialSocketIO connects to the server and waits for the connection to be
// acknowledged.
func DialSocketIO(ctx context.Context, cfg SocketIOConfig) (*SocketIO, error) {
	logger := ctxlog.FromContext(ctx).With("source", "socketio", "url", cfg.URL)
	logger.Info("Connecting to asset server...")

	parsedURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	opts := socket.DefaultOptions()
	opts.SetPath(parsedURL.Path)
	if cfg.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "/"
	}

	connectChan := make(chan error, 1)
	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(namespace, opts)

	io.Once(types.EventName("connect"), func(...any) {
		logger.Info("Connected to asset server.", "sid", io.Id())
		connectChan <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err := errors.New("connect_error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		connectChan <- err
	})

	io.Connect()

	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		return &SocketIO{io: io, logger: logger.With("sid", io.Id())}, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection: %w", ctx.Err())
	case <-time.After(connectTimeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", connectTimeout)
	}
}

type reply struct {
	data []byte
	err  error
}

// Fetch requests key and waits for the server's reply or ctx.
func (s *SocketIO) Fetch(ctx context.Context, key string) ([]byte, error) {
	if !s.io.Connected() {
		return nil, fmt.Errorf("socket.io client is not connected")
	}

	id := uuid.NewString()
	event := types.EventName(replyPrefix + id)
	done := make(chan reply, 1)
	if err := s.io.Once(event, func(args ...any) {
		var payload any
		if len(args) > 0 {
			payload = args[0]
		}
		data, err := decodeReply(payload)
		done <- reply{data: data, err: err}
	}); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", key, err)
	}

	s.logger.Debug("Requesting asset.", "key", key, "request_id", id)
	if err := s.io.Emit(FetchEvent, map[string]any{"id": id, "key": key}); err != nil {
		s.io.RemoveAllListeners(event)
		return nil, fmt.Errorf("fetch %s: %w", key, err)
	}

	select {
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("fetch %s: %w", key, r.err)
		}
		return r.data, nil
	case <-ctx.Done():
		// The reply may never come; drop its listener so it does not pile up.
		s.io.RemoveAllListeners(event)
		return nil, fmt.Errorf("fetch %s: %w", key, ctx.Err())
	}
}

// Close disconnects from the server.
func (s *SocketIO) Close() error {
	s.logger.Info("Disconnecting from asset server.")
	s.io.Disconnect()
	return nil
}

// decodeReply unpacks a reply payload of the form {"data": ...} or
// {"error": "..."}. String data with a "base64:" prefix is decoded; other
// strings are returned verbatim.
func decodeReply(payload any) ([]byte, error) {
	m, ok := payload.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("malformed reply of type %T", payload)
	}
	if e, ok := m["error"]; ok && e != nil {
		return nil, fmt.Errorf("server: %v", e)
	}
	switch data := m["data"].(type) {
	case []byte:
		return data, nil
	case string:
		if enc, ok := strings.CutPrefix(data, "base64:"); ok {
			b, err := base64.StdEncoding.DecodeString(enc)
			if err != nil {
				return nil, fmt.Errorf("malformed base64 data: %w", err)
			}
			return b, nil
		}
		return []byte(data), nil
	case interface{ Bytes() []byte }:
		return data.Bytes(), nil
	case nil:
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("unsupported data of type %T", data)
	}
}

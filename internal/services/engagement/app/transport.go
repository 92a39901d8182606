package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	apperrors "github.com/Yureshka02/multimodal-student-engagement/internal/platform/errors"
	"github.com/Yureshka02/multimodal-student-engagement/internal/services/engagement/session"
)

const (
	maxFramePayloadBytes   = 4 << 20
	maxDecodeErrorsPerConn = 3

	defaultMaxEventsPerSecond = 120
)

type handlerOptions struct {
	allowedOrigins     []string
	maxEventsPerSecond int
	writeTimeout       time.Duration
}

type createSessionResponse struct {
	Code string `json:"code"`
}

func newHandler(r *relay, opts handlerOptions) http.Handler {
	if opts.maxEventsPerSecond <= 0 {
		opts.maxEventsPerSecond = defaultMaxEventsPerSecond
	}
	origins := newOriginPolicy(opts.allowedOrigins)

	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	mux.HandleFunc("POST /api/session/create", func(w http.ResponseWriter, _ *http.Request) {
		s, err := r.registry.Create()
		if err != nil {
			log.Printf("engagement: create session failed: %v", err)
			http.Error(w, "could not create session", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(createSessionResponse{Code: s.Code()})
	})

	mux.HandleFunc("DELETE /api/session/{code}", func(w http.ResponseWriter, req *http.Request) {
		r.registry.Remove(session.NormalizeCode(req.PathValue("code")))
		w.WriteHeader(http.StatusNoContent)
	})

	wsServer := websocket.Server{
		Handshake: func(config *websocket.Config, req *http.Request) error {
			origin, err := websocket.Origin(config, req)
			if err != nil {
				return err
			}
			config.Origin = origin
			if !origins.allows(origin) {
				return fmt.Errorf("origin %v is not allowed", origin)
			}
			return nil
		},
		Handler: func(conn *websocket.Conn) {
			handleWSConn(conn, r, opts)
		},
	}

	mux.HandleFunc("/ws", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		wsServer.ServeHTTP(w, req)
	})

	return withCORS(mux, origins)
}

type originPolicy struct {
	allowed map[string]struct{}
}

func newOriginPolicy(origins []string) originPolicy {
	allowed := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin != "" {
			allowed[strings.ToLower(origin)] = struct{}{}
		}
	}
	return originPolicy{allowed: allowed}
}

func (p originPolicy) open() bool {
	return len(p.allowed) == 0
}

func (p originPolicy) allows(origin *url.URL) bool {
	if p.open() {
		return true
	}
	if origin == nil {
		return false
	}
	return p.allowsRaw(origin.Scheme + "://" + origin.Host)
}

func (p originPolicy) allowsRaw(origin string) bool {
	if p.open() {
		return true
	}
	_, ok := p.allowed[strings.ToLower(strings.TrimRight(origin, "/"))]
	return ok
}

func withCORS(next http.Handler, origins originPolicy) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		origin := req.Header.Get("Origin")
		switch {
		case origins.open():
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && origins.allowsRaw(origin):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		if req.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, req)
	})
}

func handleWSConn(conn *websocket.Conn, r *relay, opts handlerOptions) {
	defer func() {
		_ = conn.Close()
	}()
	conn.MaxPayloadBytes = maxFramePayloadBytes + 1024

	connID := session.ConnID(uuid.NewString())
	peer := newWSPeer(connID, conn, opts.writeTimeout)
	r.peers.add(peer)
	defer r.disconnect(connID)

	ctx := context.Background()
	if request := conn.Request(); request != nil {
		ctx = context.WithoutCancel(request.Context())
	}

	windowStart := time.Now()
	eventsInWindow := 0
	decodeErrors := 0

	for {
		var message []byte
		if err := websocket.Message.Receive(conn, &message); err != nil {
			if errors.Is(err, websocket.ErrFrameTooLarge) {
				_ = writeWSError(peer, "", apperrors.CodeInvalidArgument, "payload too large")
				continue
			}
			if !errors.Is(err, io.EOF) {
				log.Printf("engagement: websocket read failed conn=%s err=%v", connID, err)
			}
			return
		}

		var frame wsFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			decodeErrors++
			_ = writeWSError(peer, "", apperrors.CodeInvalidArgument, "invalid frame payload")
			if decodeErrors >= maxDecodeErrorsPerConn {
				log.Printf("engagement: closing connection after repeated decode errors conn=%s", connID)
				return
			}
			continue
		}
		decodeErrors = 0

		if len(frame.Payload) > maxFramePayloadBytes {
			_ = writeWSError(peer, frame.RequestID, apperrors.CodeInvalidArgument, "payload too large")
			continue
		}

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			eventsInWindow = 0
		}
		eventsInWindow++
		if eventsInWindow > opts.maxEventsPerSecond {
			log.Printf("engagement: rate limit exceeded conn=%s", connID)
			_ = writeWSError(peer, frame.RequestID, apperrors.CodeResourceExhausted, "rate limit exceeded")
			return
		}

		switch frame.Type {
		case frameTypeJoin:
			r.join(peer, frame)
		case frameTypeFrame:
			r.frame(ctx, connID, frame.Payload)
		case frameTypePose:
			r.poseFeatures(ctx, connID, frame.Payload)
		case frameTypeMouse:
			r.mouse(ctx, connID, frame.Payload)
		default:
			_ = writeWSError(peer, frame.RequestID, apperrors.CodeInvalidArgument, "unsupported frame type")
		}
	}
}

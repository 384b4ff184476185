package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MeKo-Tech/lotlens/internal/intake"
	"github.com/MeKo-Tech/lotlens/internal/orchestrator"
	"github.com/MeKo-Tech/lotlens/internal/processor"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// origin policy is enforced by CORS on the HTTP routes
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WebSocketProcessRequest is one upload sent over the socket. Data is the
// raw file, base64 encoded in JSON.
type WebSocketProcessRequest struct {
	Filename     string `json:"filename"`
	Data         []byte `json:"data"`
	IsAdditional bool   `json:"is_additional"`
	Session      string `json:"session,omitempty"`
}

// WebSocketProcessResponse is a progress or completion frame.
type WebSocketProcessResponse struct {
	Type      string   `json:"type"`
	Status    string   `json:"status"` // "processing", "completed", "error"
	Stage     string   `json:"stage,omitempty"`
	Progress  float64  `json:"progress,omitempty"`
	Images    []string `json:"images,omitempty"`
	Session   string   `json:"session,omitempty"`
	Error     string   `json:"error,omitempty"`
	RequestID string   `json:"request_id,omitempty"`
}

// WebSocketConnWriter is an interface for writing WebSocket messages.
type WebSocketConnWriter interface {
	WriteMessage(messageType int, data []byte) error
}

const wsResponseType = "process_response"

// processImagesWebSocketHandler upgrades the connection and serves uploads
// until the client goes away.
func (s *Server) processImagesWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	slog.Info("WebSocket connection established", "remote_addr", r.RemoteAddr)

	if s.maxUploadMB > 0 {
		// base64 inflates by 4/3, plus room for the JSON envelope
		conn.SetReadLimit(s.maxUploadMB<<20*4/3 + 4096)
	}
	s.handleWebSocketConnection(r, conn)
}

func (s *Server) handleWebSocketConnection(r *http.Request, conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
					return
				}
			}
		}
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Error("WebSocket error", "error", err)
			}
			return
		}
		websocketMessagesTotal.WithLabelValues("received").Inc()

		if messageType == websocket.TextMessage {
			s.handleWebSocketMessage(r, conn, data)
			// processing may outlast the read deadline
			_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		}
	}
}

// handleWebSocketMessage runs one upload and streams its progress.
func (s *Server) handleWebSocketMessage(r *http.Request, conn WebSocketConnWriter, data []byte) {
	var req WebSocketProcessRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.sendWebSocketError(conn, "", "Invalid request")
		return
	}

	role := orchestrator.RoleFromFlag(strconv.FormatBool(req.IsAdditional))
	up := orchestrator.Upload{Name: req.Filename, Role: role}
	if len(req.Data) > 0 {
		up.Body = bytes.NewReader(req.Data)
		uploadSizeBytes.Observe(float64(len(req.Data)))
	}

	var requestID string
	obs := orchestrator.Observer{
		OnStaged: func(st *intake.Staged) {
			requestID = st.ID
			s.sendWebSocketResponse(conn, WebSocketProcessResponse{
				Type: wsResponseType, Status: "processing", Stage: "staged", Progress: 0.2, RequestID: requestID,
			})
		},
		OnInvoke: func(processor.Invocation) {
			s.sendWebSocketResponse(conn, WebSocketProcessResponse{
				Type: wsResponseType, Status: "processing", Stage: "invoking", Progress: 0.4, RequestID: requestID,
			})
		},
	}

	ctx, cancel := s.requestContext(r.Context())
	defer cancel()
	res, err := s.processor.ProcessObserved(ctx, up, obs)

	status, body := s.uploadOutcome(role, req.Session, res, err)
	if status != http.StatusOK {
		msg := orchestrator.GenericFailureMessage
		if errors.Is(err, orchestrator.ErrMissingFile) {
			msg = missingFileMessage
		}
		s.sendWebSocketError(conn, requestID, msg)
		return
	}

	resp := body.(ProcessResponse)
	s.sendWebSocketResponse(conn, WebSocketProcessResponse{
		Type:      wsResponseType,
		Status:    "completed",
		Progress:  1.0,
		Images:    resp.Images,
		Session:   resp.Session,
		RequestID: requestID,
	})
}

func (s *Server) sendWebSocketResponse(conn WebSocketConnWriter, resp WebSocketProcessResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		slog.Error("Failed to marshal WebSocket response", "error", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Debug("Failed to send WebSocket message", "error", err)
		return
	}
	websocketMessagesTotal.WithLabelValues("sent").Inc()
}

func (s *Server) sendWebSocketError(conn WebSocketConnWriter, requestID, message string) {
	s.sendWebSocketResponse(conn, WebSocketProcessResponse{
		Type:      wsResponseType,
		Status:    "error",
		Error:     message,
		RequestID: requestID,
	})
}

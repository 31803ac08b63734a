package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"postureserver/internal/apperror"
	"postureserver/internal/config"
	"postureserver/internal/dto"
	"postureserver/internal/logger"
	"postureserver/internal/middleware"
	"postureserver/internal/model"
	"postureserver/internal/service"
	"postureserver/internal/service/websocket"

	gorilla "github.com/gorilla/websocket"
)

const connectedGreeting = "Connected to posture analysis server"

// newUpgrader builds an upgrader accepting the configured CORS origins.
func newUpgrader(cfg *config.Config) gorilla.Upgrader {
	return gorilla.Upgrader{
		ReadBufferSize:  64 << 10,
		WriteBufferSize: 64 << 10,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || middleware.OriginAllowed(cfg.CORSOrigins, origin)
		},
	}
}

// StreamHandler handles GET /ws. Every analyze_webcam_frame event gets exactly
// one posture_analysis or error event back, in request order.
func StreamHandler(manager *service.Manager, hub *websocket.HubService, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	upgrader := newUpgrader(cfg)

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("WebSocket upgrade error: %v", err)
			return
		}

		// The request context ends with the handler; the client context is
		// cancelled on disconnect or shutdown instead.
		client := hub.Register(context.Background(), conn)
		session := service.NewStreamSession(client.ID)
		defer manager.CloseStreamSession(session)

		client.Send(websocket.Message(dto.EventConnected, dto.ConnectedMessage{
			Data:     connectedGreeting,
			ClientID: client.ID,
		}))

		client.Serve(func(ctx context.Context, c *websocket.Client, msg dto.StreamMessage) dto.StreamMessage {
			if msg.Event != dto.EventAnalyzeFrame {
				session.Fail()
				return websocket.ErrorMessage("unknown event: " + msg.Event)
			}

			var req dto.FrameRequest
			if err := json.Unmarshal(msg.Data, &req); err != nil {
				session.Fail()
				return websocket.ErrorMessage("invalid frame payload: " + err.Error())
			}

			posture, _ := dto.ParsePostureType(req.PostureType)
			result, err := manager.AnalyzeEncodedFrame(ctx, req.Image, posture, model.SourceStream)
			if err != nil {
				session.Fail()
				logger.Warning("Client %s frame failed: %v", c.ID, err)
				return websocket.ErrorMessage(apperror.Message(err))
			}

			session.Record(result)
			return websocket.Message(dto.EventPostureAnalysis, result)
		})
	}
}

package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"

	"github.com/go-chi/chi"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"webcam-streamer/configs"
	"webcam-streamer/internal/session"
)

type WebrtcRepository struct {
	title         string
	service       *StreamerService
	relayService  *StreamerService // nil unless a relay source is configured
	upgrader      websocket.Upgrader
	indexTemplate *template.Template
	logger        *slog.Logger
}

func NewWebrtcRepository(title string, service, relayService *StreamerService, envs *configs.EnvVariables, logger *slog.Logger) *WebrtcRepository {
	indexHTML, err := os.ReadFile(filepath.Join(envs.StaticDir, "index.html"))
	if err != nil {
		panic(err)
	}
	indexTemplate := template.Must(template.New("").Parse(string(indexHTML)))

	return &WebrtcRepository{
		title:        title,
		service:      service,
		relayService: relayService,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		indexTemplate: indexTemplate,
		logger:        logger,
	}
}

func (wr *WebrtcRepository) RegisterRoutes(r chi.Router) {
	r.Get("/", wr.index)
	r.Post("/offer", wr.offer)
	r.HandleFunc("/websocket", wr.websocketHandler)
	r.Handle("/metrics", promhttp.Handler())

	if wr.relayService != nil {
		r.Post("/relay", wr.relayOffer)
	}
}

func (wr *WebrtcRepository) index(w http.ResponseWriter, r *http.Request) {
	if err := wr.indexTemplate.Execute(w, struct{ Title string }{wr.title}); err != nil {
		wr.logger.Error("rendering index page", "err", err)
	}
}

func (wr *WebrtcRepository) offer(w http.ResponseWriter, r *http.Request) {
	wr.answerOffer(w, r, wr.service)
}

func (wr *WebrtcRepository) relayOffer(w http.ResponseWriter, r *http.Request) {
	wr.answerOffer(w, r, wr.relayService)
}

// answerOffer is the whole HTTP signaling exchange: decode the remote
// offer, negotiate a session, return the local answer. Any failure is
// reported to the peer as a server error and leaves no session behind.
func (wr *WebrtcRepository) answerOffer(w http.ResponseWriter, r *http.Request, service *StreamerService) {
	offer, err := decodeSessionDescription(r.Body)
	if err != nil {
		wr.logger.Error("rejecting offer", "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	_, answer, err := service.Negotiate(offer, NegotiateOptions{})
	if err != nil {
		wr.logger.Error("negotiation failed", "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(sessionDescription{
		SDP:  answer.SDP,
		Type: answer.Type.String(),
	}); err != nil {
		wr.logger.Error("writing answer", "err", err)
	}
}

func decodeSessionDescription(body io.Reader) (webrtc.SessionDescription, error) {
	var payload sessionDescription
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("decode session description: %w", err)
	}
	if payload.SDP == "" {
		return webrtc.SessionDescription{}, errors.New("session description is missing sdp")
	}
	if payload.Type != "offer" {
		return webrtc.SessionDescription{}, fmt.Errorf("unsupported session description type %q", payload.Type)
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: payload.SDP}, nil
}

// websocketHandler is the trickle-ICE signaling transport: the client
// sends its offer over the socket, the answer comes back on it, and
// both sides trickle candidates until the connection is up.
func (wr *WebrtcRepository) websocketHandler(w http.ResponseWriter, r *http.Request) {
	unsafeConn, err := wr.upgrader.Upgrade(w, r, nil)
	if err != nil {
		wr.logger.Error("websocket upgrade failed", "err", err)
		return
	}

	conn := &threadSafeWriter{Conn: unsafeConn}
	defer conn.Close()

	var sess *session.Session

	message := &websocketMessage{}
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			wr.logger.Debug("websocket closed", "err", err)
			return
		}
		if err := json.Unmarshal(raw, message); err != nil {
			wr.logger.Error("malformed websocket message", "err", err)
			return
		}

		switch message.Event {
		case "offer":
			if sess != nil {
				wr.logger.Error("duplicate offer on websocket")
				return
			}

			offer, err := decodeSessionDescription(strings.NewReader(message.Data))
			if err != nil {
				_ = conn.WriteJSON(&websocketMessage{Event: "error", Data: err.Error()})
				return
			}

			newSess, answer, err := wr.service.Negotiate(offer, NegotiateOptions{
				Trickle: true,
				OnICECandidate: func(candidate *webrtc.ICECandidate) {
					if candidate == nil {
						return
					}
					candidateJSON, err := json.Marshal(candidate.ToJSON())
					if err != nil {
						wr.logger.Error("marshaling candidate", "err", err)
						return
					}
					if err := conn.WriteJSON(&websocketMessage{Event: "candidate", Data: string(candidateJSON)}); err != nil {
						wr.logger.Error("trickling candidate", "err", err)
					}
				},
			})
			if err != nil {
				wr.logger.Error("negotiation failed", "err", err)
				_ = conn.WriteJSON(&websocketMessage{Event: "error", Data: err.Error()})
				return
			}
			sess = newSess

			answerJSON, err := json.Marshal(sessionDescription{SDP: answer.SDP, Type: answer.Type.String()})
			if err != nil {
				wr.logger.Error("marshaling answer", "err", err)
				return
			}
			if err := conn.WriteJSON(&websocketMessage{Event: "answer", Data: string(answerJSON)}); err != nil {
				wr.logger.Error("writing answer", "err", err)
				return
			}

		case "candidate":
			if sess == nil {
				continue
			}
			candidate := webrtc.ICECandidateInit{}
			if err := json.Unmarshal([]byte(message.Data), &candidate); err != nil {
				wr.logger.Error("malformed candidate", "err", err)
				return
			}
			if err := sess.AddICECandidate(candidate); err != nil {
				wr.logger.Error("applying candidate", "err", err)
				return
			}
		}
	}
}

// threadSafeWriter makes gorilla websocket writes safe against the
// candidate callback racing the handler loop.
type threadSafeWriter struct {
	*websocket.Conn
	sync.Mutex
}

func (t *threadSafeWriter) WriteJSON(v interface{}) error {
	t.Lock()
	defer t.Unlock()

	return t.Conn.WriteJSON(v)
}

// Package web serves the pose feed and diagnostics over HTTP.
//
// Scene publishers stream poses over a websocket at /api/ws, one JSON object per
// message, and receive the latest tracker state in return. /api/arms and
// /api/state expose the same diagnostics for polling clients.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/theaterbots/lightarm/pkg/pose"
	"github.com/theaterbots/lightarm/pkg/robot"
	"github.com/theaterbots/lightarm/pkg/tracker"
)

// StateSource provides the latest tracker state.
type StateSource interface {
	Latest() tracker.State
}

// PoseUpdate is one pose message from a scene publisher. HPR is optional and
// in degrees. Remove drops the entity instead.
type PoseUpdate struct {
	Entity string      `json:"entity"`
	Pos    [3]float64  `json:"pos"`
	HPR    *[3]float64 `json:"hpr,omitempty"`
	Pin    bool        `json:"pin,omitempty"`
	Remove bool        `json:"remove,omitempty"`
}

// PoseStatus is a position plus heading, pitch and roll in degrees.
type PoseStatus struct {
	Pos [3]float64 `json:"pos"`
	HPR [3]float64 `json:"hpr"`
}

func poseStatus(p pose.Pose) PoseStatus {
	return PoseStatus{
		Pos: [3]float64{p.Position.X, p.Position.Y, p.Position.Z},
		HPR: p.HPR(),
	}
}

// ArmStatus describes one arm for diagnostics. Pose is nil while the arm's
// entity has no current pose.
type ArmStatus struct {
	ID             string       `json:"id"`
	Entity         string       `json:"entity"`
	BaseChannel    int          `json:"base_channel"`
	ForearmChannel int          `json:"forearm_channel"`
	Joints         robot.Joints `json:"joints"`
	Pose           *PoseStatus  `json:"pose,omitempty"`
}

// Server handles the HTTP API.
type Server struct {
	arms     []*robot.Arm
	store    *pose.Store
	states   StateSource
	logger   *zap.Logger
	interval time.Duration
}

// DefaultPushInterval is how often websocket clients receive the tracker state.
const DefaultPushInterval = 100 * time.Millisecond

// NewServer creates a server. states may be nil when no tracker runs.
func NewServer(arms []*robot.Arm, store *pose.Store, states StateSource, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		arms:     arms,
		store:    store,
		states:   states,
		logger:   logger,
		interval: DefaultPushInterval,
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Router returns the API routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/arms", s.ArmsHandler).Methods(http.MethodGet)
	api.HandleFunc("/state", s.StateHandler).Methods(http.MethodGet)
	api.HandleFunc("/poses", s.PosesHandler).Methods(http.MethodGet)
	api.HandleFunc("/poses", s.PoseUpdateHandler).Methods(http.MethodPost)
	api.HandleFunc("/ws", s.PoseSocketHandler)
	return r
}

// ListenAndServe serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Handler:      s.Router(),
		Addr:         addr,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("encode response", zap.Error(err))
	}
}

// Arms returns the diagnostics of every arm.
func (s *Server) Arms() []ArmStatus {
	out := make([]ArmStatus, 0, len(s.arms))
	for _, arm := range s.arms {
		status := ArmStatus{
			ID:             arm.ID,
			Entity:         arm.Entity,
			BaseChannel:    arm.BaseChannel,
			ForearmChannel: arm.ForearmChannel(),
			Joints:         arm.Joints(),
		}
		if p, err := s.store.Pose(arm.Entity); err == nil {
			ps := poseStatus(p)
			status.Pose = &ps
		}
		out = append(out, status)
	}
	return out
}

func (s *Server) ArmsHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.Arms())
}

func (s *Server) StateHandler(w http.ResponseWriter, r *http.Request) {
	if s.states == nil {
		http.Error(w, "tracker not running", http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, s.states.Latest())
}

// PosesHandler lists the pose of every known entity that is not stale.
func (s *Server) PosesHandler(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]PoseStatus)
	for entity := range s.store.Entities() {
		p, err := s.store.Pose(entity)
		if err != nil {
			continue
		}
		out[entity] = poseStatus(p)
	}
	s.writeJSON(w, out)
}

func (s *Server) PoseUpdateHandler(w http.ResponseWriter, r *http.Request) {
	var u PoseUpdate
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.Apply(u); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Apply stores one pose update.
func (s *Server) Apply(u PoseUpdate) error {
	if u.Entity == "" {
		return fmt.Errorf("pose update without entity")
	}
	if u.Remove {
		s.store.Remove(u.Entity)
		return nil
	}

	p := pose.At(u.Pos[0], u.Pos[1], u.Pos[2])
	if u.HPR != nil {
		p.Orientation = pose.FromHPR(u.HPR[0], u.HPR[1], u.HPR[2])
	}
	if u.Pin {
		s.store.Pin(u.Entity, p)
	} else {
		s.store.Set(u.Entity, p)
	}
	return nil
}

// PoseSocketHandler reads pose updates and pushes the tracker state back.
func (s *Server) PoseSocketHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade", zap.Error(err))
		return
	}
	defer conn.Close()
	s.logger.Debug("pose feed connected", zap.String("remote", r.RemoteAddr))

	// Read and apply incoming poses
	go func() {
		defer cancel()
		for {
			var u PoseUpdate
			if err := conn.ReadJSON(&u); err != nil {
				return
			}
			if err := s.Apply(u); err != nil {
				s.logger.Debug("bad pose update", zap.Error(err))
			}
		}
	}()

	if s.states == nil {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteJSON(s.states.Latest()); err != nil {
				s.logger.Debug("pose feed write", zap.Error(err))
				return
			}
		}
	}
}

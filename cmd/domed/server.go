package main

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ashdome-obs/domed/dome"
	"github.com/ashdome-obs/domed/internal/config"
)

// Server exposes the dome operations over HTTP and pushes status snapshots
// to websocket clients whenever the arbiter publishes new state.
type Server struct {
	dome *dome.Dome
	log  *zap.SugaredLogger

	controlIPs   map[string]bool
	telescopeIPs map[string]bool

	statusMu   sync.RWMutex
	statusCond *sync.Cond
	status     dome.Snapshot
}

func NewServer(d *dome.Dome, cfg *config.Config, log *zap.SugaredLogger) *Server {
	s := &Server{
		dome:         d,
		log:          log,
		controlIPs:   ipSet(cfg.ControlIPs),
		telescopeIPs: ipSet(cfg.TelescopeIPs),
		status:       d.Status(),
	}
	s.statusCond = sync.NewCond(s.statusMu.RLocker())
	d.OnStatus(s.statusCallback)
	return s
}

func ipSet(addrs []string) map[string]bool {
	set := make(map[string]bool, len(addrs))
	for _, addr := range addrs {
		set[addr] = true
	}
	return set
}

func (s *Server) statusCallback(snap dome.Snapshot) {
	s.statusMu.Lock()
	s.status = snap
	s.statusCond.Broadcast()
	s.statusMu.Unlock()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// command is the request body shared by the POST handlers. Only the fields
// relevant to each route are read.
type command struct {
	Blocking bool    `json:"blocking"`
	Override bool    `json:"override"`
	Azimuth  float64 `json:"azimuth"`
	Altitude float64 `json:"altitude"`
	RA       float64 `json:"ra"`
	Dec      float64 `json:"dec"`
	Tracking bool    `json:"tracking"`
	Enabled  bool    `json:"enabled"`
	Timeout  float64 `json:"timeout"`
}

type result struct {
	CommandStatus dome.CommandStatus `json:"command_status"`
	Message       string             `json:"message"`
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/ping", s.handlePing).Methods("GET")
	api.HandleFunc("/ws", s.handleStatusSocket).Methods("GET")

	control := func(path string, h func(command) dome.CommandStatus) {
		api.HandleFunc(path, s.authorized(s.controlIPs, h)).Methods("POST")
	}
	telescope := func(path string, h func(command) dome.CommandStatus) {
		api.HandleFunc(path, s.authorized(s.telescopeIPs, h)).Methods("POST")
	}

	control("/initialize", func(command) dome.CommandStatus { return s.dome.Initialize() })
	control("/shutdown", func(command) dome.CommandStatus { return s.dome.Shutdown() })
	control("/shutter/open", func(c command) dome.CommandStatus { return s.dome.OpenShutter(c.Blocking, c.Override) })
	control("/shutter/close", func(c command) dome.CommandStatus { return s.dome.CloseShutter(c.Blocking, c.Override) })
	control("/shutter/stop", func(command) dome.CommandStatus { return s.dome.StopShutter() })
	control("/azimuth/stop", func(command) dome.CommandStatus { return s.dome.StopAzimuth() })
	control("/azimuth/home", func(c command) dome.CommandStatus { return s.dome.HomeAzimuth(c.Blocking) })
	control("/azimuth/park", func(c command) dome.CommandStatus { return s.dome.Park(c.Blocking) })
	control("/azimuth/slew", func(c command) dome.CommandStatus { return s.dome.SlewAzimuth(c.Azimuth, c.Blocking) })
	control("/azimuth/track", func(c command) dome.CommandStatus { return s.dome.TrackRADec(c.RA, c.Dec, c.Blocking) })
	control("/follow", func(c command) dome.CommandStatus { return s.dome.SetFollowMode(c.Enabled) })
	control("/engineering", func(c command) dome.CommandStatus { return s.dome.SetEngineeringMode(c.Enabled) })
	control("/heartbeat", func(c command) dome.CommandStatus { return s.dome.SetHeartbeatTimer(c.Timeout) })

	telescope("/telescope/radec", func(c command) dome.CommandStatus {
		return s.dome.NotifyTelescopeRADec(c.RA, c.Dec, c.Tracking)
	})
	telescope("/telescope/altaz", func(c command) dome.CommandStatus {
		return s.dome.NotifyTelescopeAltAz(c.Altitude, c.Azimuth)
	})
	telescope("/telescope/stopped", func(command) dome.CommandStatus { return s.dome.NotifyTelescopeStopped() })
	telescope("/telescope/parked", func(command) dome.CommandStatus { return s.dome.NotifyTelescopeParked() })
	return r
}

func callerIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) authorized(allowed map[string]bool, h func(command) dome.CommandStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowed[callerIP(r)] {
			s.log.Warnf("refusing %s from unauthorised %s", r.URL.Path, r.RemoteAddr)
			writeResult(w, dome.InvalidControlIP)
			return
		}
		var c command
		// An empty body means all-default arguments.
		if err := json.NewDecoder(r.Body).Decode(&c); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeResult(w, h(c))
	}
}

func writeResult(w http.ResponseWriter, status dome.CommandStatus) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result{CommandStatus: status, Message: status.Message()})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.dome.Status()); err != nil {
		s.log.Errorf("encoding status: %v", err)
	}
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeResult(w, s.dome.Ping())
}

// handleStatusSocket pushes a snapshot to the client on every state publish.
func (s *Server) handleStatusSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("upgrading status socket: %v", err)
		return
	}
	closed := make(chan struct{})

	// Drain incoming messages so pings are handled and a dropped client is
	// noticed.
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				conn.Close()
				return
			}
		}
	}()

	send := func(snap dome.Snapshot) bool {
		if err := conn.WriteJSON(snap); err != nil {
			conn.Close()
			return false
		}
		return true
	}

	s.statusMu.RLock()
	snap := s.status
	s.statusMu.RUnlock()
	if !send(snap) {
		return
	}

	for {
		select {
		case <-closed:
			return
		default:
		}
		s.statusMu.RLock()
		s.statusCond.Wait()
		snap := s.status
		s.statusMu.RUnlock()
		if !send(snap) {
			return
		}
	}
}

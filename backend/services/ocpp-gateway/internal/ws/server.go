package ws

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"ocppgateway/backend/services/ocpp-gateway/internal/ocpp"
	"ocppgateway/backend/services/ocpp-gateway/internal/ocpp/protocol"
)

// StationLifecycle creates and drops per-station state alongside the socket.
type StationLifecycle interface {
	RegisterStation(identity string, version protocol.Version) uint64
	RemoveStation(identity string, generation uint64) bool
}

// ServerConfig controls subprotocol negotiation and per-connection options.
type ServerConfig struct {
	Subprotocols    []protocol.Version
	DefaultProtocol protocol.Version
	Connection      Options
}

// Server upgrades HTTP connections to WebSockets for OCPP.
type Server struct {
	manager  *Manager
	stations StationLifecycle
	handler  CallHandler
	journal  ocpp.Journal
	cfg      ServerConfig
	logger   *zap.Logger
	upgrader websocket.Upgrader
	locks    *identityLocks
}

// NewServer builds ws server. journal may be nil.
func NewServer(manager *Manager, stations StationLifecycle, handler CallHandler, journal ocpp.Journal, cfg ServerConfig, logger *zap.Logger) *Server {
	if len(cfg.Subprotocols) == 0 {
		cfg.Subprotocols = []protocol.Version{protocol.Version21, protocol.Version201, protocol.Version16}
	}
	if cfg.DefaultProtocol == "" {
		cfg.DefaultProtocol = protocol.Version16
	}
	return &Server{
		manager:  manager,
		stations: stations,
		handler:  handler,
		journal:  journal,
		cfg:      cfg,
		logger:   logger,
		locks:    newIdentityLocks(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleWS is HTTP handler for /ocpp/{identity}.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	identity := stationIdentity(r.URL.Path)
	if identity == "" {
		http.Error(w, "station identity is required", http.StatusBadRequest)
		return
	}

	version, ok := s.negotiate(websocket.Subprotocols(r))
	if !ok {
		s.logger.Warn("refusing station with unsupported subprotocol",
			zap.String("station_id", identity),
			zap.Strings("offered", websocket.Subprotocols(r)),
		)
		http.Error(w, "unsupported subprotocol", http.StatusBadRequest)
		return
	}

	var header http.Header
	if len(websocket.Subprotocols(r)) > 0 {
		header = http.Header{"Sec-Websocket-Protocol": []string{version.String()}}
	}
	conn, err := s.upgrader.Upgrade(w, r, header)
	if err != nil {
		s.logger.Error("websocket upgrade failed", zap.String("station_id", identity), zap.Error(err))
		return
	}

	var generation uint64
	connection := NewConnection(identity, version, conn, s.handler, s.journal, s.cfg.Connection, s.logger, func(c *Connection) {
		s.unregister(identity, c, generation)
		s.logger.Info("station disconnected", zap.String("station_id", identity))
	})
	generation = s.register(identity, version, connection)

	go connection.Start()
	s.logger.Info("station connected",
		zap.String("station_id", identity),
		zap.String("protocol", version.String()),
	)
}

// register creates the store record and the registry entry as one step per identity,
// so the newest registry session always owns the newest record generation.
func (s *Server) register(identity string, version protocol.Version, session Session) uint64 {
	unlock := s.locks.lock(identity)
	defer unlock()
	generation := s.stations.RegisterStation(identity, version)
	s.manager.Register(identity, session, version)
	return generation
}

// unregister is the inverse of register. A replaced session finds neither its entry
// nor its generation and leaves the replacement alone.
func (s *Server) unregister(identity string, session Session, generation uint64) {
	unlock := s.locks.lock(identity)
	defer unlock()
	s.manager.UnregisterSession(identity, session)
	s.stations.RemoveStation(identity, generation)
}

// negotiate picks the first configured version the station offers. A station that
// offers nothing gets the default version.
func (s *Server) negotiate(offered []string) (protocol.Version, bool) {
	if len(offered) == 0 {
		return s.cfg.DefaultProtocol, true
	}
	for _, supported := range s.cfg.Subprotocols {
		for _, candidate := range offered {
			if strings.EqualFold(strings.TrimSpace(candidate), supported.String()) {
				return supported, true
			}
		}
	}
	return "", false
}

func stationIdentity(path string) string {
	path = strings.TrimRight(path, "/")
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return strings.TrimSpace(path)
	}
	segment := strings.TrimSpace(path[idx+1:])
	if segment == "ocpp" {
		return ""
	}
	return segment
}

package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/Billy-Davies-2/dartsync/internal/logger"
	"github.com/Billy-Davies-2/dartsync/internal/session"
)

// ServiceName is the health service name reported for the match.
const ServiceName = "dartsync.Match"

// Match is what the health server watches.
type Match interface {
	Healthy() bool
	Subscribe() chan *session.State
	Unsubscribe(ch chan *session.State)
}

// Server reports match liveness over the standard gRPC health protocol.
// The overall ("") service is SERVING while the process is up; ServiceName
// follows the match.
type Server struct {
	health *health.Server
	match  Match
}

// NewServer creates a new gRPC health server
func NewServer(match Match) *Server {
	s := &Server{
		health: health.NewServer(),
		match:  match,
	}
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.update()
	return s
}

// Register attaches the health and reflection services to g.
func (s *Server) Register(g *grpc.Server) {
	healthpb.RegisterHealthServer(g, s.health)
	reflection.Register(g)
}

// Run follows match state changes until ctx is done or the session stops
// publishing, then marks every service NOT_SERVING.
func (s *Server) Run(ctx context.Context) {
	states := s.match.Subscribe()
	defer s.match.Unsubscribe(states)

	for {
		select {
		case _, ok := <-states:
			if !ok {
				s.health.Shutdown()
				return
			}
			s.update()
		case <-ctx.Done():
			logger.Debug("gRPC: Health watcher stopped")
			s.health.Shutdown()
			return
		}
	}
}

func (s *Server) update() {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if s.match.Healthy() {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
}

package server

import "google.golang.org/grpc"

// Registrar attaches one service to the gRPC server. Every service package
// under internal/service exposes one built from the AppContext.
type Registrar interface {
	Register(s *grpc.Server)
}

// RegistrarFunc lets a plain function act as a Registrar, e.g. for a
// one-off service in tests.
type RegistrarFunc func(s *grpc.Server)

func (f RegistrarFunc) Register(s *grpc.Server) { f(s) }

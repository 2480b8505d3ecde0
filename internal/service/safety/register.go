package safety

import (
	"google.golang.org/grpc"

	"github.com/oggyb/muzz-matching/internal/app"
)

// Registrar ties the Safety service into the gRPC server
type Registrar struct {
	appCtx *app.AppContext
}

func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

func (r *Registrar) Register(s *grpc.Server) {
	s.RegisterService(&ServiceDesc, NewSafetyService(r.appCtx))
}

package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc/status"

	svcErr "github.com/oggyb/muzz-matching/internal/errors"
)

// writeError replies with {"error": {"kind", "message"}} and the status
// the gRPC API would use for the same error.
func (h *Handler) writeError(c *gin.Context, err error) {
	code := svcErr.HTTPStatus(err)
	kind := string(svcErr.KindOf(err))
	msg := "internal error"
	if kind != "" {
		st, _ := status.FromError(svcErr.Map(err))
		msg = st.Message()
	}
	if kind == "" {
		kind = "INTERNAL"
	}
	if code >= http.StatusInternalServerError {
		h.appCtx.Logger.ErrorContext(c.Request.Context(), "request failed", "route", c.FullPath(), "err", err)
	}
	c.AbortWithStatusJSON(code, gin.H{"error": gin.H{"kind": kind, "message": msg}})
}

func (h *Handler) badRequest(c *gin.Context, err error) {
	h.writeError(c, svcErr.Validation("%v", err))
}

package handlers

import (
	"net/http"

	"github.com/kisansetu/voicecore/pkg/core"
	"github.com/kisansetu/voicecore/pkg/gateway/apierror"
	"github.com/kisansetu/voicecore/pkg/gateway/mw"
)

type NotFoundHandler struct{}

func (h NotFoundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	apierror.WriteCore(w, http.StatusNotFound, &core.Error{
		Type:      core.ErrNotFound,
		Message:   "not found",
		RequestID: reqID,
	})
}

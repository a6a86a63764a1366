package httpapi

import (
	"errors"
	"net/http"

	"github.com/browsergrid/gridcore/internal/distributor"
	"github.com/browsergrid/gridcore/internal/gridtypes"
)

// WriteError maps a known error kind (plus distributor.NoSuchNode, the
// one handler-local error kind that isn't in gridtypes) to its HTTP
// status and writes a JSON body of the form {"error": "..."}. An
// unrecognized error is a 500.
func WriteError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var unauthorized *gridtypes.UnauthorizedSecret
	var noSuchSession *gridtypes.NoSuchSession
	var sessionExists *gridtypes.SessionExists
	var timeout *gridtypes.Timeout
	var noSuchNode *distributor.NoSuchNode

	switch {
	case errors.As(err, &unauthorized):
		status = http.StatusUnauthorized
	case errors.As(err, &noSuchSession):
		status = http.StatusNotFound
	case errors.As(err, &sessionExists):
		status = http.StatusConflict
	case errors.As(err, &timeout):
		status = http.StatusGatewayTimeout
	case errors.As(err, &noSuchNode):
		status = http.StatusNotFound
	}

	gridtypes.WriteJSON(w, status, map[string]string{"error": err.Error()})
}

package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/types"
)

// maxJSONBody caps JSON and protobuf request bodies; every JSON request
// is a handful of short fields.
const maxJSONBody = 4096

// decodeBody decodes a JSON body into v. A protobuf body is accepted as a
// google.protobuf.Struct carrying the same fields.
func decodeBody(r *http.Request, v any) error {
	if isProtobuf(r) {
		var msg structpb.Struct
		if err := readProto(r, &msg); err != nil {
			return err
		}
		return structToJSON(&msg, v)
	}

	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, types.ErrorBody{Error: types.ErrorDetail{Code: code, Message: message}})
}

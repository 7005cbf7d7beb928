package response

import (
	"encoding/json"
	"net/http"
)

// APIResponse is the envelope every REST reply uses. Meta carries values that
// describe the data without belonging to it, such as unread counters or
// paging cursors.
type APIResponse struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Data    interface{}            `json:"data,omitempty"`
	Meta    map[string]interface{} `json:"meta,omitempty"`
}

func JSON(w http.ResponseWriter, status int, data interface{}) {
	write(w, status, APIResponse{
		Status: "success",
		Data:   data,
	})
}

// JSONWithMeta replies with data plus side-band values in the meta block
func JSONWithMeta(w http.ResponseWriter, status int, data interface{}, meta map[string]interface{}) {
	write(w, status, APIResponse{
		Status: "success",
		Data:   data,
		Meta:   meta,
	})
}

func Error(w http.ResponseWriter, status int, msg string) {
	write(w, status, APIResponse{
		Status:  "error",
		Message: msg,
	})
}

func write(w http.ResponseWriter, status int, resp APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

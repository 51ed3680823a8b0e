package njoy

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
)

func setHeaders(req *http.Request, token, reqID string, hasBody bool) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// parseDetail pulls the human message out of an error body. The API answers
// {"detail": "..."} for business errors and {"detail": [{"msg": ...}]} for
// request validation errors.
func parseDetail(body []byte) string {
	var reply struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &reply); err != nil {
		return ""
	}
	if len(reply.Detail) > 0 {
		var s string
		if err := json.Unmarshal(reply.Detail, &s); err == nil {
			return strings.TrimSpace(s)
		}
		var items []struct {
			Msg string `json:"msg"`
		}
		if err := json.Unmarshal(reply.Detail, &items); err == nil {
			msgs := make([]string, 0, len(items))
			for _, it := range items {
				if it.Msg != "" {
					msgs = append(msgs, it.Msg)
				}
			}
			return strings.Join(msgs, "; ")
		}
	}
	return strings.TrimSpace(reply.Message)
}

func pathEscape(s string) string {
	return url.PathEscape(strings.TrimSpace(s))
}

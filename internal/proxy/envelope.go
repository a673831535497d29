package proxy

import (
	"encoding/json"

	"github.com/kaptinlin/jsonrepair"
)

// safeEnvelope guards against a slightly malformed upstream JSON
// envelope before gjson/sjson are asked to look inside it. This is
// separate from, and never a substitute for, the healer's own
// schema-aware repair of the model's generated content: it only
// protects the proxy's own field lookups on the outer response body.
func safeEnvelope(body []byte) []byte {
	if len(body) == 0 {
		return []byte("{}")
	}

	if json.Valid(body) {
		return body
	}

	repaired, err := jsonrepair.JSONRepair(string(body))
	if err == nil && json.Valid([]byte(repaired)) {
		return []byte(repaired)
	}

	return []byte("{}")
}

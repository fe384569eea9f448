package convert

import (
	"encoding/json"

	"mercator-hq/jupiter/pkg/core"
)

// WarningsHeader is the HTTP header name carrying a request's
// conversion warnings.
const WarningsHeader = "X-LLM-Gateway-Warnings"

// EncodeWarningsHeader JSON-encodes a warnings list for the
// X-LLM-Gateway-Warnings response header. Returns "" when there is
// nothing to report, so callers can skip setting the header entirely.
func EncodeWarningsHeader(warnings core.Warnings) string {
	if len(warnings) == 0 {
		return ""
	}
	b, err := json.Marshal(warnings)
	if err != nil {
		return ""
	}
	return string(b)
}

package reminder

import "strings"

// Response is the interpretation of a patient reply.
type Response string

const (
	ResponseConfirmed Response = "confirmed"
	ResponseCancelled Response = "cancelled"
	ResponseUnknown   Response = "unknown"
)

var confirmKeywords = []string{
	"sim", "s", "yes", "y", "confirmo", "confirmar", "ok", "confirmado", "✅",
}

var cancelKeywords = []string{
	"não", "nao", "n", "no", "cancelar", "cancelado", "❌",
}

// Classify interprets a patient reply by keyword containment on the
// lowercased body. Confirmation keywords are checked first, so a message
// matching both sets counts as confirmed.
func Classify(body string) Response {
	lower := strings.ToLower(body)
	for _, kw := range confirmKeywords {
		if strings.Contains(lower, kw) {
			return ResponseConfirmed
		}
	}
	for _, kw := range cancelKeywords {
		if strings.Contains(lower, kw) {
			return ResponseCancelled
		}
	}
	return ResponseUnknown
}

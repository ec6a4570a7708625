// internal/game/utils.go
package game

import (
	"encoding/json"

	"github.com/sirupsen/logrus"
)

// encodeMessage marshals a BroadcastMessage into JSON bytes.
// Logs a warning and returns empty JSON "{}" on marshalling error.
func encodeMessage(msg BroadcastMessage) []byte {
	data, err := json.Marshal(msg)
	if err != nil {
		logrus.WithField("event", msg.Kind).WithError(err).Warn("Failed to marshal broadcast message")
		return []byte("{}")
	}
	return data
}

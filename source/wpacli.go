package source

import (
	"strconv"
	"strings"
	"time"
)

var wpaStates = [...]State{
	StateDisconnected,
	StateInterfaceDisabled,
	StateInactive,
	StateScanning,
	StateAuthenticating,
	StateAssociating,
	StateAssociated,
	StateFourWayHandshake,
	StateGroupHandshake,
	StateCompleted,
}

// ParseWpaCliEvent converts a wpa_cli event line, with or without its
// "<N>" priority prefix, into a StateChange.
func ParseWpaCliEvent(line string) (StateChange, bool) {
	i := strings.Index(line, "CTRL-EVENT-")
	if i < 0 {
		return StateChange{}, false
	}
	line = line[i:]
	now := time.Now()

	switch {
	case strings.HasPrefix(line, "CTRL-EVENT-STATE-CHANGE"):
		v, ok := field(line, "state")
		if !ok {
			return StateChange{}, false
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n >= len(wpaStates) {
			return StateChange{}, false
		}
		sc := StateChange{State: wpaStates[n], Time: now}
		if j := strings.Index(line, " SSID="); j >= 0 {
			sc.Target = DecodeSSID(line[j+len(" SSID="):])
		}
		return sc, true

	case strings.HasPrefix(line, "CTRL-EVENT-CONNECTED"):
		return StateChange{State: StateCompleted, Connected: true, Time: now}, true

	case strings.HasPrefix(line, "CTRL-EVENT-SSID-TEMP-DISABLED"):
		if reason, _ := field(line, "reason"); reason != "WRONG_KEY" {
			return StateChange{}, false
		}
		sc := StateChange{AuthFailed: true, Time: now}
		if ssid, ok := quotedField(line, "ssid="); ok {
			sc.Target = DecodeSSID(ssid)
		}
		return sc, true
	}
	return StateChange{}, false
}

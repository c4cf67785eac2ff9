package router

// Routing modes.
const (
	ModeAuto  = "auto"
	ModeLocal = "local"
	ModeCloud = "cloud"
)

// Config is the routing configuration. It is swapped atomically as a
// whole record so one scoring decision always sees one consistent
// configuration.
type Config struct {
	Mode        string `json:"mode"` // auto, local or cloud
	Threshold   int    `json:"threshold"`
	PrivacyMode bool   `json:"privacyMode"`
}

// ExecutorStatus tracks executor availability.
type ExecutorStatus struct {
	LocalLoaded    bool `json:"localLoaded"`
	CloudAvailable bool `json:"cloudAvailable"`
}

// DecideRoute picks the executor for a task. It is a pure function of
// the task flags, the complexity, the config and the executor status at
// the moment of dispatch. Rules apply in order, first match wins:
//
//  1. privacy forces local, unconditionally; with no local executor the
//     task fails at dispatch rather than being rerouted
//  2. realtime prefers local when a model is loaded
//  3. manual local / cloud modes, falling back to the other side when
//     their executor is missing
//  4. auto mode compares complexity against the threshold
func DecideRoute(t *Task, cfg Config, status ExecutorStatus) Route {
	if t.Privacy {
		return RouteLocal
	}
	if t.Realtime && status.LocalLoaded {
		return RouteLocal
	}

	switch cfg.Mode {
	case ModeLocal:
		if status.LocalLoaded {
			return RouteLocal
		}
		return RouteCloud
	case ModeCloud:
		if status.CloudAvailable {
			return RouteCloud
		}
		return RouteLocal
	}

	if t.Complexity >= cfg.Threshold {
		if status.CloudAvailable {
			return RouteCloud
		}
		return RouteLocal
	}
	if status.LocalLoaded {
		return RouteLocal
	}
	return RouteCloud
}

package session

// State is the position of a Session in its lifecycle.
type State int

const (
	Locked State = iota
	Unlocking
	Unlocked
	Stale
	Refreshing
	Failed
)

func (s State) String() string {
	switch s {
	case Locked:
		return "locked"
	case Unlocking:
		return "unlocking"
	case Unlocked:
		return "unlocked"
	case Stale:
		return "stale"
	case Refreshing:
		return "refreshing"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// holdsSecrets reports whether key material is in memory in this state.
func (s State) holdsSecrets() bool {
	return s == Unlocked || s == Stale || s == Refreshing
}

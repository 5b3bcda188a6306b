package runloop

// ID names the role of an event loop. The set of roles is fixed: one loop
// per role, created once at startup.
type ID int

const (
	// Main wraps the process main thread; its lifecycle is driven
	// externally via RunSingleCycle or RunToCompletion.
	Main ID = iota
	// Logic runs game/UI logic and typically owns the interpreter lock.
	Logic
	// Audio runs audio processing.
	Audio
	// Assets runs asset loading.
	Assets
	// BGDynamics runs background physics.
	BGDynamics
	// NetworkWrite runs outgoing network writes.
	NetworkWrite
	// Stdin watches standard input.
	Stdin
)

// String returns the role name.
func (id ID) String() string {
	switch id {
	case Main:
		return "main"
	case Logic:
		return "logic"
	case Audio:
		return "audio"
	case Assets:
		return "assets"
	case BGDynamics:
		return "bgdynamics"
	case NetworkWrite:
		return "networkwrite"
	case Stdin:
		return "stdin"
	default:
		return "unknown"
	}
}

// Source selects how a loop gets its thread.
type Source int

const (
	// SpawnThread launches a dedicated OS thread owned by the loop.
	SpawnThread Source = iota
	// WrapCurrentThread adopts the calling thread; the loop owns no thread
	// and its lifecycle is driven by the caller.
	WrapCurrentThread
)

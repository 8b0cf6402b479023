package eventbus

// Topics published by the client core. UI layers subscribe to re-render
// instead of polling shared state.
const (
	// Session lifecycle
	EventSessionState  = "session:state"
	EventSessionLogin  = "session:login"
	EventSessionLogout = "session:logout"

	// Cart synchronization
	EventCartReplaced = "cart:replaced"
)

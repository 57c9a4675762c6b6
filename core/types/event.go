package types

// Event is a typed record emitted while applying a state transition. The
// attribute map holds the observable audit fields (asset, amount, actor,
// timestamp) in string form.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

package bus

import "strings"

// Source tags where a script event originated. Only server-originated events
// are trusted as placeholder requests.
type Source string

const (
	SourceServer      Source = "Server"
	SourceEntity      Source = "Entity"
	SourceBlock       Source = "Block"
	SourceNPCDialogue Source = "NPCDialogue"
)

// Event is a single message delivered by the host event bus.
// ID is the channel name in "<namespace>:<rest>" form.
type Event struct {
	ID      string
	Message string
	Source  Source
}

// Namespace returns the part of the event id before the first ':'.
func (e Event) Namespace() string { return NamespaceOf(e.ID) }

// NamespaceOf returns the namespace portion of a channel name.
func NamespaceOf(id string) string {
	ns, _, _ := strings.Cut(id, ":")
	return ns
}

// Filter narrows a subscription to a set of namespaces.
// An empty filter matches every event.
type Filter struct {
	Namespaces []string
}

// Match reports whether the channel id belongs to one of the filter namespaces.
func (f Filter) Match(id string) bool {
	if len(f.Namespaces) == 0 {
		return true
	}

	ns := NamespaceOf(id)
	for _, n := range f.Namespaces {
		if n == ns {
			return true
		}
	}

	return false
}

package connectivity

type subscription struct {
	id       int
	listener func(bool)
}

// listenerSet keeps subscriptions in subscription order. Callers hold their
// own lock around every method.
type listenerSet struct {
	entries []subscription
	nextID  int
}

func (l *listenerSet) add(listener func(bool)) int {
	id := l.nextID
	l.nextID++
	l.entries = append(l.entries, subscription{id: id, listener: listener})
	return id
}

func (l *listenerSet) remove(id int) {
	for i, entry := range l.entries {
		if entry.id == id {
			l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
			return
		}
	}
}

func (l *listenerSet) snapshot() []func(bool) {
	out := make([]func(bool), 0, len(l.entries))
	for _, entry := range l.entries {
		out = append(out, entry.listener)
	}
	return out
}

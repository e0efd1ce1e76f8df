package timeline

// View is a consumer-side mirror of a List, rebuilt from snapshots and
// upserts. Upserts older than what the view already holds are dropped, so
// redelivered or reordered events cannot roll a message back.
type View struct {
	Version  uint64
	Messages []Message
	index    map[MessageID]int
}

// ApplySnapshot replaces the view when the snapshot is not older than it.
func (v *View) ApplySnapshot(s Snapshot) bool {
	if s.Version < v.Version {
		return false
	}
	v.Version = s.Version
	v.Messages = append([]Message(nil), s.Messages...)
	v.index = make(map[MessageID]int, len(v.Messages))
	for i, m := range v.Messages {
		v.index[m.ID] = i
	}
	return true
}

// Apply inserts or replaces the upserted message.
func (v *View) Apply(u Upsert) bool {
	if v.index == nil {
		v.index = map[MessageID]int{}
	}
	if i, ok := v.index[u.Message.ID]; ok {
		if v.Messages[i].Version >= u.Message.Version {
			return false
		}
		v.Messages[i] = u.Message
	} else {
		if u.Version <= v.Version {
			// belongs to a list that was reset in the meantime
			return false
		}
		v.index[u.Message.ID] = len(v.Messages)
		v.Messages = append(v.Messages, u.Message)
	}
	if u.Version > v.Version {
		v.Version = u.Version
	}
	return true
}

package event

// DebounceState remembers the timestamp of the last accepted DisplayChanged
// event. The zero value has seen nothing yet.
type DebounceState struct {
	last  uint32
	valid bool
}

// Last returns the remembered timestamp and whether one has been recorded.
func (s DebounceState) Last() (uint32, bool) {
	return s.last, s.valid
}

// Accept reports whether ev should trigger a dispatch and returns the state
// to carry forward.
//
// Device changes are always accepted; there is no per-device identity to
// compare. Display changes are accepted only when their timestamp differs
// from the last accepted one, since the server may repeat a notification
// for a single topology change. Errors and unrecognized packets are never
// accepted.
func Accept(ev Classified, st DebounceState) (bool, DebounceState) {
	switch ev.Kind {
	case DeviceChanged:
		return true, st
	case DisplayChanged:
		if st.valid && st.last == ev.Timestamp {
			return false, st
		}
		return true, DebounceState{last: ev.Timestamp, valid: true}
	default:
		return false, st
	}
}

package state

import "strings"

type storedFlag struct {
	Set bool
}

func pauseKey(module string) []byte {
	return prefixedKey(pausePrefix, []byte(strings.ToLower(strings.TrimSpace(module))))
}

// IsPaused reports whether module has been paused. A read failure reports
// not paused.
func (m *Manager) IsPaused(module string) bool {
	var flag storedFlag
	ok, err := m.KVGet(pauseKey(module), &flag)
	if err != nil || !ok {
		return false
	}
	return flag.Set
}

// SetPaused toggles the pause flag of module.
func (m *Manager) SetPaused(module string, paused bool) error {
	if !paused {
		return m.KVDelete(pauseKey(module))
	}
	return m.KVPut(pauseKey(module), storedFlag{Set: true})
}

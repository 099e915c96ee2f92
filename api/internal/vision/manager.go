package vision

import "sync"

// Manager keeps a per-chat backend choice with a shared default.
type Manager struct {
	def Client
	m   sync.Map // chatID -> Client
}

func NewManager(defaultClient Client) *Manager {
	return &Manager{def: defaultClient}
}

func (m *Manager) Get(chatID int64) Client {
	if v, ok := m.m.Load(chatID); ok {
		return v.(Client)
	}
	return m.def
}

func (m *Manager) Set(chatID int64, c Client) {
	m.m.Store(chatID, c)
}

func (m *Manager) Reset(chatID int64) {
	m.m.Delete(chatID)
}

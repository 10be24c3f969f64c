package service

// MockUUIDGenerator returns a fixed sequence of IDs for deterministic tests
type MockUUIDGenerator struct {
	uuids     []string
	callCount int
}

func NewMockUUIDGenerator(uuids ...string) *MockUUIDGenerator {
	return &MockUUIDGenerator{uuids: uuids}
}

func (m *MockUUIDGenerator) NewString() string {
	if m.callCount < len(m.uuids) {
		uuid := m.uuids[m.callCount]
		m.callCount++
		return uuid
	}
	return "default-uuid"
}

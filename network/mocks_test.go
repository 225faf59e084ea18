package network

import (
	"github.com/stretchr/testify/mock"
)

// --- Connection ---

type MockConnection struct {
	mock.Mock
}

func (m *MockConnection) Close(errCode string) {
	m.Called(errCode)
}

func (m *MockConnection) Write(data []byte) error {
	args := m.Called(data)
	return args.Error(0)
}

func (m *MockConnection) Read() ([]byte, error) {
	args := m.Called()
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockConnection) Ping() error {
	args := m.Called()
	return args.Error(0)
}

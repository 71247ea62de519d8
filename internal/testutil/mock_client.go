//go:build !production

package testutil

import (
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/palemoky/werewolf/internal/protocol"
)

// MockSession 实现 transport.Session 的 mock
type MockSession struct {
	mock.Mock
}

func (m *MockSession) UserID() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockSession) Username() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockSession) SendMessage(msg *protocol.Message) {
	m.Called(msg)
}

// SimpleSession 记录收到的消息，不使用 testify（用于只关心输出的测试）
type SimpleSession struct {
	ID   string
	Name string

	mu       sync.Mutex
	Messages []*protocol.Message
}

func (s *SimpleSession) UserID() string   { return s.ID }
func (s *SimpleSession) Username() string { return s.Name }

func (s *SimpleSession) SendMessage(msg *protocol.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Messages = append(s.Messages, msg)
}

// Last 最后一条消息，没有时返回 nil
func (s *SimpleSession) Last() *protocol.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Messages) == 0 {
		return nil
	}
	return s.Messages[len(s.Messages)-1]
}

// OfType 指定类型的全部消息
func (s *SimpleSession) OfType(t protocol.MessageType) []*protocol.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*protocol.Message
	for _, m := range s.Messages {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

// Reset 清空已记录的消息
func (s *SimpleSession) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Messages = nil
}

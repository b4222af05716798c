package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MockRunner records executed commands and returns canned responses.
// Shared by adapter and applier tests.
type MockRunner struct {
	mu sync.Mutex

	// Responses maps a command prefix (joined by spaces) to its output.
	Responses map[string]string
	// Errors maps a command prefix to an error to return.
	Errors map[string]error
	// Commands is every command line executed, in order.
	Commands []string
}

func NewMockRunner() *MockRunner {
	return &MockRunner{
		Responses: make(map[string]string),
		Errors:    make(map[string]error),
	}
}

func (m *MockRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	line := strings.Join(append([]string{name}, args...), " ")

	m.mu.Lock()
	m.Commands = append(m.Commands, line)
	m.mu.Unlock()

	for prefix, err := range m.Errors {
		if strings.HasPrefix(line, prefix) {
			return []byte(fmt.Sprintf("mock error for %q", line)), err
		}
	}
	for prefix, out := range m.Responses {
		if strings.HasPrefix(line, prefix) {
			return []byte(out), nil
		}
	}
	return nil, nil
}

// Ran reports whether any executed command line starts with prefix.
func (m *MockRunner) Ran(prefix string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.Commands {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

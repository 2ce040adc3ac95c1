package accounts

import (
	"context"
	"slices"
	"sync"

	"github.com/vladislavdragonenkov/orders/internal/domain"
)

// MockDirectory — конфигурируемая заглушка справочника аккаунтов для локального запуска и тестов.
type MockDirectory struct {
	mu sync.Mutex

	// Accounts отдаются любому вызывающему, если для его Subject нет записи в BySubject.
	Accounts  []domain.Account
	BySubject map[string][]domain.Account
	Err       error

	calls int
}

// NewMockDirectory возвращает заглушку с заданным набором аккаунтов.
func NewMockDirectory(accounts ...domain.Account) *MockDirectory {
	return &MockDirectory{Accounts: accounts}
}

// ListAccounts возвращает заранее настроенные аккаунты и считает вызовы.
func (m *MockDirectory) ListAccounts(_ context.Context, caller domain.Caller) ([]domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.Err != nil {
		return nil, m.Err
	}
	if accounts, ok := m.BySubject[caller.Subject]; ok {
		return slices.Clone(accounts), nil
	}
	return slices.Clone(m.Accounts), nil
}

// SetAccounts атомарно подменяет набор аккаунтов.
func (m *MockDirectory) SetAccounts(accounts ...domain.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Accounts = accounts
}

// SetErr задаёт ошибку для последующих вызовов.
func (m *MockDirectory) SetErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = err
}

// Calls возвращает число обращений к справочнику.
func (m *MockDirectory) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

var _ domain.AccountDirectory = (*MockDirectory)(nil)

package assistant

import (
	"context"
	"sync"

	"github.com/autocrm-inc/autocrm/internal/application/clientstate"
	"github.com/autocrm-inc/autocrm/internal/domain/knowledge"
	"github.com/autocrm-inc/autocrm/internal/domain/message"
	"github.com/autocrm-inc/autocrm/internal/shared/query"
)

type mockMessageCreator struct {
	mu         sync.Mutex
	CreateFunc func(ctx context.Context, m message.Message) error
	created    []message.Message
}

func (m *mockMessageCreator) Create(ctx context.Context, msg message.Message) error {
	if m.CreateFunc != nil {
		if err := m.CreateFunc(ctx, msg); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.created = append(m.created, msg)
	m.mu.Unlock()
	return nil
}

type mockPipeline struct {
	RespondFunc func(ctx context.Context, text string) (string, error)
	calls       int
}

func (m *mockPipeline) Respond(ctx context.Context, text string) (string, error) {
	m.calls++
	return m.RespondFunc(ctx, text)
}

type askCall struct {
	System string
	Prompt string
}

type mockCompleter struct {
	AskFunc func(ctx context.Context, system, prompt string) (string, error)
	calls   []askCall
}

func (m *mockCompleter) Ask(ctx context.Context, system, prompt string) (string, error) {
	m.calls = append(m.calls, askCall{System: system, Prompt: prompt})
	return m.AskFunc(ctx, system, prompt)
}

type mockKnowledge struct {
	SearchKnowledgeFunc func(ctx context.Context, q string, k int) ([]knowledge.Chunk, error)
}

func (m *mockKnowledge) SearchKnowledge(ctx context.Context, q string, k int) ([]knowledge.Chunk, error) {
	return m.SearchKnowledgeFunc(ctx, q, k)
}

type mockTools struct {
	SearchTicketsFunc func(ctx context.Context, q string) string
	SearchUsersFunc   func(ctx context.Context, q string) string
}

func (m *mockTools) SearchTickets(ctx context.Context, q string) string {
	return m.SearchTicketsFunc(ctx, q)
}

func (m *mockTools) SearchUsers(ctx context.Context, q string) string {
	return m.SearchUsersFunc(ctx, q)
}

type mockTable[T clientstate.Entity] struct {
	ListFunc   func(ctx context.Context, q query.Query) ([]T, error)
	InsertFunc func(ctx context.Context, v T) (T, error)
}

func (m *mockTable[T]) Name() string {
	return "mock"
}

func (m *mockTable[T]) List(ctx context.Context, q query.Query) ([]T, error) {
	return m.ListFunc(ctx, q)
}

func (m *mockTable[T]) Get(context.Context, string) (T, error) {
	var zero T
	return zero, nil
}

func (m *mockTable[T]) Insert(ctx context.Context, v T) (T, error) {
	return m.InsertFunc(ctx, v)
}

func (m *mockTable[T]) Update(context.Context, string, map[string]any) (T, error) {
	var zero T
	return zero, nil
}

func (m *mockTable[T]) Delete(context.Context, string) error {
	return nil
}

package clientstate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/autocrm-inc/autocrm/internal/domain/audit"
	"github.com/autocrm-inc/autocrm/internal/domain/changefeed"
	"github.com/autocrm-inc/autocrm/internal/domain/knowledge"
	"github.com/autocrm-inc/autocrm/internal/domain/message"
	"github.com/autocrm-inc/autocrm/internal/domain/note"
	"github.com/autocrm-inc/autocrm/internal/domain/template"
	"github.com/autocrm-inc/autocrm/internal/domain/ticket"
	"github.com/autocrm-inc/autocrm/internal/domain/user"
	"github.com/autocrm-inc/autocrm/internal/shared/logger"
	"github.com/autocrm-inc/autocrm/internal/shared/query"
)

var ErrSessionClosed = errors.New("session closed")

// Backend is the data interface of every entity kind a session holds.
type Backend struct {
	Tickets        Table[ticket.Ticket]
	Notes          Table[note.InternalNote]
	DirectMessages Table[message.DirectMessage]
	Messages       Table[message.Message]
	AuditLogs      Table[audit.AuditLog]
	Users          Table[user.User]
	Templates      Table[template.Template]
	Articles       Table[knowledge.Article]
}

func (b Backend) validate() error {
	switch {
	case b.Tickets == nil, b.Notes == nil, b.DirectMessages == nil, b.Messages == nil,
		b.AuditLogs == nil, b.Users == nil, b.Templates == nil, b.Articles == nil:
		return fmt.Errorf("backend is missing a table")
	}
	return nil
}

type SessionConfig struct {
	// UserID is the signed in user; direct messages and templates are
	// scoped to it.
	UserID             string
	TicketDeletePolicy DeletePolicy
	SearchMode         query.SearchMode
	ReconnectMin       time.Duration
	ReconnectMax       time.Duration
	Metrics            Metrics
}

// Session owns the stores of one user and the subscriptions feeding them.
// Each Watch call replaces the previous subscription of the same scope.
type Session struct {
	cfg  SessionConfig
	feed changefeed.Subscriber
	log  logger.Interface

	Tickets        *Store[ticket.Ticket]
	Notes          *Store[note.InternalNote]
	DirectMessages *Store[message.DirectMessage]
	// Messages holds one store per direct message id.
	Messages  *Partition[message.Message]
	AuditLogs *Store[audit.AuditLog]
	Users     *Store[user.User]
	Templates *Store[template.Template]
	Articles  *Store[knowledge.Article]

	mu     sync.Mutex
	subs   map[string]io.Closer
	closed bool
}

func NewSession(backend Backend, feed changefeed.Subscriber, cfg SessionConfig, log logger.Interface) (*Session, error) {
	if err := backend.validate(); err != nil {
		return nil, err
	}
	if feed == nil {
		return nil, fmt.Errorf("change feed is required")
	}
	if cfg.UserID == "" {
		return nil, fmt.Errorf("session user id is required")
	}
	if cfg.TicketDeletePolicy == "" {
		cfg.TicketDeletePolicy = DeleteIgnore
	}
	if log == nil {
		log = logger.NewNop()
	}
	log = log.Named("clientstate").With("user_id", cfg.UserID)

	opts := func(policy DeletePolicy, searchColumn string) StoreOptions {
		return StoreOptions{
			DeletePolicy: policy,
			SearchColumn: searchColumn,
			SearchMode:   cfg.SearchMode,
			Metrics:      cfg.Metrics,
			Logger:       log,
		}
	}

	s := &Session{
		cfg:            cfg,
		feed:           feed,
		log:            log,
		Tickets:        NewStore(backend.Tickets, opts(cfg.TicketDeletePolicy, "title")),
		Notes:          NewStore(backend.Notes, opts(DeleteApply, "note_content")),
		DirectMessages: NewStore(backend.DirectMessages, opts(DeleteApply, "")),
		AuditLogs:      NewStore(backend.AuditLogs, opts(DeleteApply, "table_name")),
		Users:          NewStore(backend.Users, opts(DeleteApply, "email")),
		Templates:      NewStore(backend.Templates, opts(DeleteApply, "name")),
		Articles:       NewStore(backend.Articles, opts(DeleteApply, "title")),
		subs:           make(map[string]io.Closer),
	}
	s.Messages = NewPartition(func(string) *Store[message.Message] {
		return NewStore(backend.Messages, opts(DeleteApply, "content"))
	})
	return s, nil
}

func (s *Session) UserID() string {
	return s.cfg.UserID
}

func (s *Session) subscriptionConfig(search string, scope []query.Condition, anyOf []query.Condition, reqs ...changefeed.Request) SubscriptionConfig {
	return SubscriptionConfig{
		Requests:     reqs,
		Scope:        scope,
		AnyOf:        anyOf,
		Search:       search,
		ReconnectMin: s.cfg.ReconnectMin,
		ReconnectMax: s.cfg.ReconnectMax,
	}
}

// swap installs sub under key, closing whatever was there.
func (s *Session) swap(key string, sub io.Closer) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = sub.Close()
		return ErrSessionClosed
	}
	old := s.subs[key]
	s.subs[key] = sub
	s.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	return nil
}

func (s *Session) unwatch(key string) {
	s.mu.Lock()
	old := s.subs[key]
	delete(s.subs, key)
	s.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
}

func (s *Session) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	return nil
}

func watch[T Entity](ctx context.Context, s *Session, key string, store *Store[T], cfg SubscriptionConfig) (*Subscription[T], error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	// The previous subscription must stop before the store is rescoped.
	s.unwatch(key)
	sub, err := Subscribe(ctx, store, s.feed, cfg, s.log)
	if err != nil {
		return nil, err
	}
	if err := s.swap(key, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// WatchTickets follows every ticket change. A non-blank search instead
// loads the matching tickets once.
func (s *Session) WatchTickets(ctx context.Context, search string) (*Subscription[ticket.Ticket], error) {
	return watch(ctx, s, "tickets", s.Tickets,
		s.subscriptionConfig(search, nil, nil, changefeed.Request{Table: ticket.Table}))
}

// WatchNotes follows the internal notes of one ticket.
func (s *Session) WatchNotes(ctx context.Context, ticketID string) (*Subscription[note.InternalNote], error) {
	if ticketID == "" {
		return nil, fmt.Errorf("ticket id is required")
	}
	return watch(ctx, s, "notes", s.Notes, s.subscriptionConfig("",
		[]query.Condition{{Column: "ticket_id", Value: ticketID}}, nil,
		changefeed.Request{Table: note.Table, Filter: changefeed.Eq("ticket_id", ticketID)},
	))
}

// WatchDirectMessages follows the conversations the user takes part in.
// The feed cannot express "sender or recipient", so it is two INSERT
// subscriptions merged into one store.
func (s *Session) WatchDirectMessages(ctx context.Context) (*Subscription[message.DirectMessage], error) {
	me := s.cfg.UserID
	inserts := []changefeed.Operation{changefeed.OperationInsert}
	return watch(ctx, s, "direct_messages", s.DirectMessages, s.subscriptionConfig("",
		nil,
		[]query.Condition{{Column: "sender_id", Value: me}, {Column: "recipient_id", Value: me}},
		changefeed.Request{Table: message.DirectMessageTable, Operations: inserts, Filter: changefeed.Eq("sender_id", me)},
		changefeed.Request{Table: message.DirectMessageTable, Operations: inserts, Filter: changefeed.Eq("recipient_id", me)},
	))
}

// WatchMessages follows the messages of one conversation into its own
// store in Messages.
func (s *Session) WatchMessages(ctx context.Context, directMessageID string) (*Subscription[message.Message], error) {
	if directMessageID == "" {
		return nil, fmt.Errorf("direct message id is required")
	}
	return watch(ctx, s, "messages:"+directMessageID, s.Messages.Get(directMessageID), s.subscriptionConfig("",
		[]query.Condition{{Column: "direct_message_id", Value: directMessageID}}, nil,
		changefeed.Request{
			Table: message.Table,
			Operations: []changefeed.Operation{
				changefeed.OperationInsert, changefeed.OperationUpdate, changefeed.OperationDelete,
			},
			Filter: changefeed.Eq("direct_message_id", directMessageID),
		},
	))
}

// UnwatchMessages stops following a conversation and drops its store.
func (s *Session) UnwatchMessages(directMessageID string) {
	s.unwatch("messages:" + directMessageID)
	s.Messages.Drop(directMessageID)
}

// WatchAuditLogs follows new audit rows. A non-blank search instead loads
// the matching rows once.
func (s *Session) WatchAuditLogs(ctx context.Context, search string) (*Subscription[audit.AuditLog], error) {
	return watch(ctx, s, "audit_logs", s.AuditLogs, s.subscriptionConfig(search, nil, nil,
		changefeed.Request{Table: audit.Table, Operations: []changefeed.Operation{changefeed.OperationInsert}},
	))
}

func (s *Session) WatchUsers(ctx context.Context, search string) (*Subscription[user.User], error) {
	return watch(ctx, s, "users", s.Users,
		s.subscriptionConfig(search, nil, nil, changefeed.Request{Table: user.Table}))
}

// WatchTemplates follows the templates owned by the user.
func (s *Session) WatchTemplates(ctx context.Context) (*Subscription[template.Template], error) {
	me := s.cfg.UserID
	return watch(ctx, s, "templates", s.Templates, s.subscriptionConfig("",
		[]query.Condition{{Column: "user_id", Value: me}}, nil,
		changefeed.Request{Table: template.Table, Filter: changefeed.Eq("user_id", me)},
	))
}

func (s *Session) WatchArticles(ctx context.Context, search string) (*Subscription[knowledge.Article], error) {
	return watch(ctx, s, "articles", s.Articles,
		s.subscriptionConfig(search, nil, nil, changefeed.Request{Table: knowledge.Table}))
}

// Close ends every subscription. The stores keep their last state.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	var errs []error
	for _, sub := range subs {
		if err := sub.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.log.Infow("session closed", "subscriptions", len(subs))
	return errors.Join(errs...)
}

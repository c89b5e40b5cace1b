package repository

import (
	"gorm.io/gorm"

	"github.com/autocrm-inc/autocrm/internal/application/clientstate"
	"github.com/autocrm-inc/autocrm/internal/domain/audit"
	"github.com/autocrm-inc/autocrm/internal/domain/changefeed"
	"github.com/autocrm-inc/autocrm/internal/domain/knowledge"
	"github.com/autocrm-inc/autocrm/internal/domain/message"
	"github.com/autocrm-inc/autocrm/internal/domain/note"
	"github.com/autocrm-inc/autocrm/internal/domain/template"
	"github.com/autocrm-inc/autocrm/internal/domain/ticket"
	"github.com/autocrm-inc/autocrm/internal/domain/user"
	"github.com/autocrm-inc/autocrm/internal/infrastructure/persistence/mappers"
	"github.com/autocrm-inc/autocrm/internal/infrastructure/persistence/models"
	db "github.com/autocrm-inc/autocrm/internal/shared/db"
	"github.com/autocrm-inc/autocrm/internal/shared/logger"
)

var (
	TicketSpec = TableSpec{
		Name:      ticket.Table,
		Singular:  "ticket",
		Columns:   db.NewColumns("id", "title", "description", "status", "priority", "customer_id", "created_at", "updated_at"),
		Updatable: db.NewColumns("title", "description", "status", "priority", "customer_id"),
		Audited:   true,
	}
	NoteSpec = TableSpec{
		Name:      note.Table,
		Singular:  "note",
		Columns:   db.NewColumns("id", "ticket_id", "user_id", "note_content", "created_at"),
		Updatable: db.NewColumns("note_content"),
		Audited:   true,
	}
	DirectMessageSpec = TableSpec{
		Name:      message.DirectMessageTable,
		Singular:  "conversation",
		Columns:   db.NewColumns("id", "sender_id", "recipient_id", "created_at"),
		Updatable: db.NewColumns(),
		Audited:   true,
	}
	MessageSpec = TableSpec{
		Name:      message.Table,
		Singular:  "message",
		Columns:   db.NewColumns("id", "sender_id", "direct_message_id", "channel_id", "content", "created_at", "updated_at"),
		Updatable: db.NewColumns("content"),
		Audited:   true,
	}
	AuditLogSpec = TableSpec{
		Name:         audit.Table,
		Singular:     "audit log",
		Columns:      db.NewColumns("id", "table_name", "operation", "changed_at", "changed_by"),
		Updatable:    db.NewColumns(),
		DefaultOrder: "changed_at DESC",
		ReadOnly:     true,
	}
	UserSpec = TableSpec{
		Name:      user.Table,
		Singular:  "user",
		Columns:   db.NewColumns("id", "email", "role", "created_at"),
		Updatable: db.NewColumns("email", "role"),
		Audited:   true,
	}
	TemplateSpec = TableSpec{
		Name:      template.Table,
		Singular:  "template",
		Columns:   db.NewColumns("id", "name", "category", "user_id", "created_at"),
		Updatable: db.NewColumns("name", "content", "category"),
		Audited:   true,
	}
	ArticleSpec = TableSpec{
		Name:     knowledge.Table,
		Singular: "article",
		Columns:  db.NewColumns("id", "title", "category", "author_id", "version", "published", "created_at", "updated_at"),
		Updatable: db.NewColumns("title", "category", "tags", "version", "published",
			"file_path", "content_type", "size_bytes", "chunk_count"),
		Audited: true,
	}
)

// Tables holds the concrete repository of every entity.
type Tables struct {
	Tickets        *Table[ticket.Ticket, models.TicketModel]
	Notes          *Table[note.InternalNote, models.InternalNoteModel]
	DirectMessages *Table[message.DirectMessage, models.DirectMessageModel]
	Messages       *Table[message.Message, models.MessageModel]
	AuditLogs      *Table[audit.AuditLog, models.AuditLogModel]
	Users          *Table[user.User, models.UserModel]
	Templates      *Table[template.Template, models.TemplateModel]
	Articles       *Table[knowledge.Article, models.ArticleModel]
}

// NewTables builds every repository over gdb. publisher may be nil, see
// NewTable.
func NewTables(gdb *gorm.DB, publisher changefeed.Publisher, log logger.Interface) *Tables {
	return &Tables{
		Tickets:        NewTable[ticket.Ticket, models.TicketModel](gdb, mappers.NewTicketMapper(), TicketSpec, publisher, log),
		Notes:          NewTable[note.InternalNote, models.InternalNoteModel](gdb, mappers.NewNoteMapper(), NoteSpec, publisher, log),
		DirectMessages: NewTable[message.DirectMessage, models.DirectMessageModel](gdb, mappers.NewDirectMessageMapper(), DirectMessageSpec, publisher, log),
		Messages:       NewTable[message.Message, models.MessageModel](gdb, mappers.NewMessageMapper(), MessageSpec, publisher, log),
		AuditLogs:      NewTable[audit.AuditLog, models.AuditLogModel](gdb, mappers.NewAuditLogMapper(), AuditLogSpec, publisher, log),
		Users:          NewTable[user.User, models.UserModel](gdb, mappers.NewUserMapper(), UserSpec, publisher, log),
		Templates:      NewTable[template.Template, models.TemplateModel](gdb, mappers.NewTemplateMapper(), TemplateSpec, publisher, log),
		Articles:       NewTable[knowledge.Article, models.ArticleModel](gdb, mappers.NewArticleMapper(), ArticleSpec, publisher, log),
	}
}

// Backend exposes the tables through the client state data interface.
func (t *Tables) Backend() clientstate.Backend {
	return clientstate.Backend{
		Tickets:        t.Tickets,
		Notes:          t.Notes,
		DirectMessages: t.DirectMessages,
		Messages:       t.Messages,
		AuditLogs:      t.AuditLogs,
		Users:          t.Users,
		Templates:      t.Templates,
		Articles:       t.Articles,
	}
}

// AllModels lists every persistence model, for AutoMigrate in tests and
// the sqlite schema.
func AllModels() []any {
	return []any{
		&models.TicketModel{},
		&models.InternalNoteModel{},
		&models.DirectMessageModel{},
		&models.MessageModel{},
		&models.AuditLogModel{},
		&models.UserModel{},
		&models.TemplateModel{},
		&models.ArticleModel{},
	}
}

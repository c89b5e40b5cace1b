package mappers

import (
	"github.com/autocrm-inc/autocrm/internal/domain/message"
	"github.com/autocrm-inc/autocrm/internal/infrastructure/persistence/models"
)

type DirectMessageMapper struct{}

func NewDirectMessageMapper() *DirectMessageMapper {
	return &DirectMessageMapper{}
}

func (m *DirectMessageMapper) ToModel(d message.DirectMessage) *models.DirectMessageModel {
	return &models.DirectMessageModel{
		ID:          d.ID,
		SenderID:    d.SenderID,
		RecipientID: d.RecipientID,
		CreatedAt:   d.CreatedAt,
	}
}

func (m *DirectMessageMapper) ToDomain(model *models.DirectMessageModel) (message.DirectMessage, error) {
	return message.DirectMessage{
		ID:          model.ID,
		SenderID:    model.SenderID,
		RecipientID: model.RecipientID,
		CreatedAt:   model.CreatedAt.UTC(),
	}, nil
}

type MessageMapper struct{}

func NewMessageMapper() *MessageMapper {
	return &MessageMapper{}
}

func (m *MessageMapper) ToModel(msg message.Message) *models.MessageModel {
	return &models.MessageModel{
		ID:              msg.ID,
		SenderID:        msg.SenderID,
		DirectMessageID: nonEmpty(msg.DirectMessageID),
		ChannelID:       nonEmpty(msg.ChannelID),
		Content:         msg.Content,
		CreatedAt:       msg.CreatedAt,
		UpdatedAt:       msg.UpdatedAt,
	}
}

func (m *MessageMapper) ToDomain(model *models.MessageModel) (message.Message, error) {
	return message.Message{
		ID:              model.ID,
		SenderID:        model.SenderID,
		DirectMessageID: model.DirectMessageID,
		ChannelID:       model.ChannelID,
		Content:         model.Content,
		CreatedAt:       model.CreatedAt.UTC(),
		UpdatedAt:       model.UpdatedAt.UTC(),
	}, nil
}

// nonEmpty stores "" as NULL so optional foreign keys stay unset.
func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	v := *s
	return &v
}

package message

type CreateConversationRequest struct {
	RecipientID string `json:"recipient_id" binding:"required,uuid"`
}

type SendMessageRequest struct {
	Content string `json:"content" binding:"required,max=10000"`
}

type UpdateMessageRequest struct {
	Content string `json:"content" binding:"required,max=10000"`
}

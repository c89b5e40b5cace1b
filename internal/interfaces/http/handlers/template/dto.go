package template

type CreateTemplateRequest struct {
	Name     string `json:"name" binding:"required,max=100"`
	Content  string `json:"content" binding:"required,max=10000"`
	Category string `json:"category" binding:"omitempty,oneof=support sales general"`
}

type UpdateTemplateRequest struct {
	Name     *string `json:"name" binding:"omitempty,min=1,max=100"`
	Content  *string `json:"content" binding:"omitempty,max=10000"`
	Category *string `json:"category" binding:"omitempty,oneof=support sales general"`
}

// Patch lists the columns the request sets.
func (r UpdateTemplateRequest) Patch() map[string]any {
	patch := make(map[string]any, 3)
	if r.Name != nil {
		patch["name"] = *r.Name
	}
	if r.Content != nil {
		patch["content"] = *r.Content
	}
	if r.Category != nil {
		patch["category"] = *r.Category
	}
	return patch
}

type ExpandRequest struct {
	Text string `json:"text" binding:"required"`
}

type ExpandResponse struct {
	Text     string `json:"text"`
	Expanded bool   `json:"expanded"`
}

type FillRequest struct {
	Variables map[string]string `json:"variables"`
}

type FillResponse struct {
	Content string   `json:"content"`
	Missing []string `json:"missing"`
}

// TemplateResponse adds the shortcut and placeholder names to a template.
type TemplateResponse struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Content      string   `json:"content"`
	Category     string   `json:"category"`
	UserID       string   `json:"user_id"`
	Shortcut     string   `json:"shortcut"`
	Placeholders []string `json:"placeholders"`
	CreatedAt    string   `json:"created_at"`
}

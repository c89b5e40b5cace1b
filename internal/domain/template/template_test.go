package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTemplate(t *testing.T) {
	tpl, err := NewTemplate(" Refund Policy ", "Hi {name}", "", "u-1")
	require.NoError(t, err)
	assert.Equal(t, "Refund Policy", tpl.Name)
	assert.Equal(t, CategoryGeneral, tpl.Category)

	_, err = NewTemplate("x", "y", "marketing", "u-1")
	assert.ErrorContains(t, err, "invalid template category")
	_, err = NewTemplate("", "y", "", "u-1")
	assert.ErrorContains(t, err, "name is required")
}

func TestShortcut(t *testing.T) {
	tpl := Template{Name: "Refund  Policy\tEU"}
	assert.Equal(t, "refundpolicyeu", tpl.Shortcut())
}

func TestPlaceholdersAndFill(t *testing.T) {
	tpl := Template{Content: "Hi {name}, ticket {ticket} is {status}. Thanks {name}!"}

	assert.Equal(t, []string{"name", "ticket", "status"}, tpl.Placeholders())

	out, missing := tpl.Fill(map[string]string{"name": "Ana", "ticket": "#42"})
	assert.Equal(t, "Hi Ana, ticket #42 is {status}. Thanks Ana!", out)
	assert.Equal(t, []string{"status"}, missing)
}

func TestExpandShortcut(t *testing.T) {
	templates := []Template{
		{Name: "Greeting", Content: "Hello {name}, thanks for reaching out."},
		{Name: "Refund Policy", Content: "Refunds take 5 days."},
	}

	tests := []struct {
		name     string
		text     string
		want     string
		expanded bool
	}{
		{name: "whole note", text: ".greeting", want: "Hello {name}, thanks for reaching out.", expanded: true},
		{name: "after text", text: "Note: .refundpolicy", want: "Note: Refunds take 5 days.", expanded: true},
		{name: "case insensitive", text: ".RefundPolicy", want: "Refunds take 5 days.", expanded: true},
		{name: "unknown shortcut", text: ".nothing", want: ".nothing"},
		{name: "bare dot", text: "end.", want: "end."},
		{name: "not last word", text: ".greeting please", want: ".greeting please"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExpandShortcut(tt.text, templates)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.expanded, ok)
		})
	}
}

package email

import (
	"strings"
	"testing"
)

func TestServiceIsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected bool
	}{
		{
			name:     "empty config",
			config:   Config{},
			expected: false,
		},
		{
			name: "missing host",
			config: Config{
				Port: "587",
				From: "test@example.com",
			},
			expected: false,
		},
		{
			name: "missing port",
			config: Config{
				Host: "smtp.example.com",
				From: "test@example.com",
			},
			expected: false,
		},
		{
			name: "missing from",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
			},
			expected: false,
		},
		{
			name: "fully configured",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
				From: "test@example.com",
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.config)
			if svc.IsConfigured() != tt.expected {
				t.Errorf("IsConfigured() = %v, want %v", svc.IsConfigured(), tt.expected)
			}
		})
	}
}

func TestRenderNotificationTemplate(t *testing.T) {
	data := NotificationData{
		AppName:  "NexTicket",
		UserName: "Carla",
		Message:  `O status do seu chamado foi alterado para: Resolvido`,
		TicketID: "TK-1A2B3C",
	}

	html, err := renderTemplate(notificationEmailTemplate, data)
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}

	if !strings.Contains(html, "NexTicket") {
		t.Error("template should contain app name")
	}
	if !strings.Contains(html, "Carla") {
		t.Error("template should contain user name")
	}
	if !strings.Contains(html, "Resolvido") {
		t.Error("template should contain the notification message")
	}
	if !strings.Contains(html, "#TK-1A2B3C") {
		t.Error("template should reference the ticket")
	}
}

func TestRenderNotificationTemplateWithoutTicket(t *testing.T) {
	data := NotificationData{
		AppName:  "NexTicket",
		UserName: "Rafael",
		Message:  "Sua conta foi atualizada.",
	}

	html, err := renderTemplate(notificationEmailTemplate, data)
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}
	if strings.Contains(html, "Chamado:") {
		t.Error("template should omit the ticket line when there is no ticket")
	}
}

package ai

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestExtractJSONStripsProse(t *testing.T) {
	raw, err := extractJSON("Claro! Aqui está:\n```json\n{\"summary\": \"ok\"}\n```")
	if err != nil {
		t.Fatalf("extractJSON failed: %v", err)
	}
	if raw != `{"summary": "ok"}` {
		t.Fatalf("unexpected extraction: %q", raw)
	}
	if !json.Valid([]byte(raw)) {
		t.Fatal("extracted text must be valid JSON")
	}
}

func TestExtractJSONRejectsProseOnly(t *testing.T) {
	if _, err := extractJSON("desculpe, não posso ajudar"); err == nil {
		t.Fatal("expected extraction to fail without an object")
	}
}

func TestValidateTicketAnalysis(t *testing.T) {
	good := TicketAnalysis{
		SuggestedPriority: "HIGH",
		SuggestedCategory: "Hardware",
		Sentiment:         "NEGATIVE",
		Summary:           "Impressora do financeiro parou",
		SuggestedReply:    "Olá! Já estamos verificando.",
	}
	if err := validateTicketAnalysis(good); err != nil {
		t.Fatalf("valid analysis rejected: %v", err)
	}

	bad := good
	bad.SuggestedPriority = "CRITICAL"
	if err := validateTicketAnalysis(bad); err == nil {
		t.Fatal("priority outside the closed enum must be rejected")
	}

	bad = good
	bad.Sentiment = "ANGRY"
	if err := validateTicketAnalysis(bad); err == nil {
		t.Fatal("sentiment outside the closed enum must be rejected")
	}

	bad = good
	bad.Summary = ""
	if err := validateTicketAnalysis(bad); err == nil {
		t.Fatal("empty summary must be rejected")
	}
}

func TestValidateFinanceAnalysis(t *testing.T) {
	good := FinanceAnalysis{
		IsExpensive:     true,
		SavingsTip:      "Compare planos anuais.",
		CategoryInsight: "Utilities costumam subir no verão.",
		SentimentLabel:  "Warning",
	}
	if err := validateFinanceAnalysis(good); err != nil {
		t.Fatalf("valid analysis rejected: %v", err)
	}

	bad := good
	bad.SentimentLabel = "Terrible"
	if err := validateFinanceAnalysis(bad); err == nil {
		t.Fatal("label outside the closed enum must be rejected")
	}
}

func TestPromptsEmbedRecordFields(t *testing.T) {
	p := ticketPrompt("VPN caiu", "Ninguém acessa o ERP desde cedo")
	for _, want := range []string{"VPN caiu", "ERP", "suggestedPriority", "LOW|MEDIUM|HIGH|URGENT"} {
		if !strings.Contains(p, want) {
			t.Errorf("ticket prompt missing %q", want)
		}
	}

	b := billPrompt("Conta de luz", 412.50, "UTILITIES")
	for _, want := range []string{"Conta de luz", "412.50", "UTILITIES", "sentimentLabel"} {
		if !strings.Contains(b, want) {
			t.Errorf("bill prompt missing %q", want)
		}
	}
}

// Package ai integrates the hosted model that suggests ticket triage
// fields and bill spending insights. The integration is strictly best
// effort: any transport, parse, or schema failure means "no suggestion"
// and the record stays fully usable without AI content.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// TicketAnalysis is the triage suggestion cached into a ticket's
// ai_analysis field.
type TicketAnalysis struct {
	SuggestedPriority string `json:"suggestedPriority"`
	SuggestedCategory string `json:"suggestedCategory"`
	Sentiment         string `json:"sentiment"`
	Summary           string `json:"summary"`
	SuggestedReply    string `json:"suggestedReply"`
}

// FinanceAnalysis is the spending insight cached into a bill's
// ai_analysis field.
type FinanceAnalysis struct {
	IsExpensive     bool   `json:"isExpensive"`
	SavingsTip      string `json:"savingsTip"`
	CategoryInsight string `json:"categoryInsight"`
	SentimentLabel  string `json:"sentimentLabel"`
}

var ticketPriorities = map[string]bool{
	"LOW": true, "MEDIUM": true, "HIGH": true, "URGENT": true,
}

var ticketSentiments = map[string]bool{
	"NEGATIVE": true, "NEUTRAL": true, "POSITIVE": true,
}

var financeSentiments = map[string]bool{
	"Good": true, "Warning": true, "Bad": true,
}

// Classifier sends one request per analysis. No retries, no streaming.
type Classifier struct {
	client anthropic.Client
	model  string
}

func NewClassifier(apiKey, model string) *Classifier {
	return &Classifier{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// AnalyzeTicket suggests triage fields from the ticket's free text.
func (c *Classifier) AnalyzeTicket(ctx context.Context, title, description string) (*TicketAnalysis, error) {
	raw, err := c.complete(ctx, ticketPrompt(title, description))
	if err != nil {
		return nil, err
	}

	var analysis TicketAnalysis
	if err := json.Unmarshal([]byte(raw), &analysis); err != nil {
		return nil, fmt.Errorf("decode ticket analysis: %w", err)
	}
	if err := validateTicketAnalysis(analysis); err != nil {
		return nil, err
	}
	return &analysis, nil
}

// AnalyzeBill produces a spending insight for one expense.
func (c *Classifier) AnalyzeBill(ctx context.Context, title string, amount float64, category string) (*FinanceAnalysis, error) {
	raw, err := c.complete(ctx, billPrompt(title, amount, category))
	if err != nil {
		return nil, err
	}

	var analysis FinanceAnalysis
	if err := json.Unmarshal([]byte(raw), &analysis); err != nil {
		return nil, fmt.Errorf("decode finance analysis: %w", err)
	}
	if err := validateFinanceAnalysis(analysis); err != nil {
		return nil, err
	}
	return &analysis, nil
}

func (c *Classifier) complete(ctx context.Context, prompt string) (string, error) {
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("model call: %w", err)
	}
	if len(msg.Content) == 0 {
		return "", fmt.Errorf("empty model response")
	}

	raw, err := extractJSON(msg.Content[0].Text)
	if err != nil {
		return "", err
	}
	if !json.Valid([]byte(raw)) {
		return "", fmt.Errorf("response does not contain valid JSON")
	}
	return raw, nil
}

func ticketPrompt(title, description string) string {
	return fmt.Sprintf(`Atue como um analista de suporte técnico sênior.
Analise este chamado:
Título: %q
Descrição: %q

Retorne APENAS um objeto JSON com este formato exato:
{
  "suggestedPriority": "<LOW|MEDIUM|HIGH|URGENT>",
  "suggestedCategory": "<uma categoria curta, ex: Hardware, Software, Rede, Acesso>",
  "sentiment": "<NEGATIVE|NEUTRAL|POSITIVE>",
  "summary": "<resumo de uma frase do problema>",
  "suggestedReply": "<primeira resposta sugerida ao solicitante, em português, cordial e objetiva>"
}

Sem markdown, sem explicações, somente o JSON.`, title, description)
}

func billPrompt(title string, amount float64, category string) string {
	return fmt.Sprintf(`Atue como um consultor financeiro pessoal focado em economia doméstica.
Analise esta despesa:
Item: %q
Valor: R$ %.2f
Categoria: %s

Retorne APENAS um objeto JSON com este formato exato:
{
  "isExpensive": <true se o valor parecer alto para o item na média de mercado no Brasil>,
  "savingsTip": "<uma dica prática e curta de como economizar nisso>",
  "categoryInsight": "<um comentário sobre gastos nessa categoria>",
  "sentimentLabel": "<Good|Warning|Bad>"
}

Sem markdown, sem explicações, somente o JSON.`, title, amount, category)
}

func validateTicketAnalysis(a TicketAnalysis) error {
	if !ticketPriorities[a.SuggestedPriority] {
		return fmt.Errorf("priority %q outside schema", a.SuggestedPriority)
	}
	if !ticketSentiments[a.Sentiment] {
		return fmt.Errorf("sentiment %q outside schema", a.Sentiment)
	}
	if a.Summary == "" {
		return fmt.Errorf("summary missing")
	}
	return nil
}

func validateFinanceAnalysis(a FinanceAnalysis) error {
	if !financeSentiments[a.SentimentLabel] {
		return fmt.Errorf("sentiment label %q outside schema", a.SentimentLabel)
	}
	if a.SavingsTip == "" {
		return fmt.Errorf("savings tip missing")
	}
	return nil
}

// extractJSON finds the first complete JSON object in a string.
func extractJSON(s string) (string, error) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end <= start {
		return "", fmt.Errorf("no JSON object found in response")
	}
	return s[start : end+1], nil
}

package export

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"
)

var templateFuncs = template.FuncMap{
	"formatDate": func(t time.Time) string {
		return t.Format("02/01/2006 15:04")
	},
	"money": func(v float64) string {
		// R$ 1.234,56
		s := fmt.Sprintf("%.2f", v)
		parts := strings.SplitN(s, ".", 2)
		intPart := parts[0]
		var b strings.Builder
		for i, c := range intPart {
			if i > 0 && (len(intPart)-i)%3 == 0 {
				b.WriteByte('.')
			}
			b.WriteRune(c)
		}
		return "R$ " + b.String() + "," + parts[1]
	},
}

var (
	ticketTemplate    = template.Must(template.New("ticket").Funcs(templateFuncs).Parse(ticketReportHTML))
	statementTemplate = template.Must(template.New("statement").Funcs(templateFuncs).Parse(billStatementHTML))
)

// TicketReportData feeds the single-ticket report template.
type TicketReportData struct {
	ID        string
	Title     string
	Requester string
	Status    string
	Priority  string
	Category  string
	CreatedAt time.Time
	UpdatedAt time.Time
	Body      string
	Messages  []TicketReportMessage
}

type TicketReportMessage struct {
	Sender    string
	Text      string
	CreatedAt time.Time
}

// StatementData feeds the monthly bill statement template.
type StatementData struct {
	UserName    string
	MonthLabel  string
	GeneratedAt time.Time
	Lines       []StatementLine
	Total       float64
	TotalPaid   float64
}

type StatementLine struct {
	Title    string
	Category string
	Status   string
	DueDate  string
	Amount   float64
}

func renderTicketReport(data TicketReportData) (string, error) {
	var buf bytes.Buffer
	if err := ticketTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func renderStatement(data StatementData) (string, error) {
	var buf bytes.Buffer
	if err := statementTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const ticketReportHTML = `<!DOCTYPE html>
<html lang="pt-BR">
<head>
<meta charset="UTF-8">
<title>Chamado {{.ID}}</title>
<style>
  body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; color: #222; margin: 0; }
  h1 { font-size: 20px; border-bottom: 2px solid #0066cc; padding-bottom: 8px; }
  .meta { color: #555; font-size: 12px; margin-bottom: 16px; }
  .meta span { margin-right: 16px; }
  .desc { background: #f5f7fa; padding: 12px; border-radius: 4px; white-space: pre-wrap; }
  .msg { border-left: 3px solid #0066cc; padding: 6px 12px; margin: 10px 0; }
  .msg .who { font-weight: 600; font-size: 12px; color: #444; }
</style>
</head>
<body>
  <h1>#{{.ID}} — {{.Title}}</h1>
  <div class="meta">
    <span>Solicitante: {{.Requester}}</span>
    <span>Status: {{.Status}}</span>
    <span>Prioridade: {{.Priority}}</span>
    {{if .Category}}<span>Categoria: {{.Category}}</span>{{end}}
    <span>Aberto em: {{formatDate .CreatedAt}}</span>
  </div>
  <div class="desc">{{.Body}}</div>
  {{if .Messages}}
  <h2>Histórico</h2>
  {{range .Messages}}
  <div class="msg">
    <div class="who">{{.Sender}} — {{formatDate .CreatedAt}}</div>
    <div>{{.Text}}</div>
  </div>
  {{end}}
  {{end}}
</body>
</html>`

const billStatementHTML = `<!DOCTYPE html>
<html lang="pt-BR">
<head>
<meta charset="UTF-8">
<title>Extrato {{.MonthLabel}}</title>
<style>
  body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; color: #222; margin: 0; }
  h1 { font-size: 20px; border-bottom: 2px solid #0066cc; padding-bottom: 8px; }
  .meta { color: #555; font-size: 12px; margin-bottom: 16px; }
  table { width: 100%; border-collapse: collapse; font-size: 13px; }
  th, td { text-align: left; padding: 6px 8px; border-bottom: 1px solid #eee; }
  th { background: #f5f7fa; }
  td.amount, th.amount { text-align: right; }
  .totals { margin-top: 16px; font-size: 14px; }
  .totals strong { display: inline-block; min-width: 140px; }
</style>
</head>
<body>
  <h1>Extrato de contas — {{.MonthLabel}}</h1>
  <div class="meta">{{.UserName}} · gerado em {{formatDate .GeneratedAt}}</div>
  <table>
    <tr><th>Conta</th><th>Categoria</th><th>Status</th><th>Vencimento</th><th class="amount">Valor</th></tr>
    {{range .Lines}}
    <tr>
      <td>{{.Title}}</td>
      <td>{{.Category}}</td>
      <td>{{.Status}}</td>
      <td>{{.DueDate}}</td>
      <td class="amount">{{money .Amount}}</td>
    </tr>
    {{end}}
  </table>
  <div class="totals">
    <div><strong>Total do mês:</strong> {{money .Total}}</div>
    <div><strong>Total pago:</strong> {{money .TotalPaid}}</div>
  </div>
</body>
</html>`

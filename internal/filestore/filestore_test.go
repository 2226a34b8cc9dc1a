package filestore

import "testing"

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"relatorio.pdf", "relatorio.pdf"},
		{"conta de luz (março).pdf", "conta_de_luz__mar_o_.pdf"},
		{"../../etc/passwd", ".._.._etc_passwd"},
		{"", "file"},
		{"çãõ", "___"},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestURLForEscapesKeySegments(t *testing.T) {
	s := &Service{publicURL: "https://files.nexticket.dev"}
	got := s.URLFor(TicketBucket, "TK-1A2B3C/1725000000000_laudo.pdf")
	want := "https://files.nexticket.dev/ticket-attachments/TK-1A2B3C/1725000000000_laudo.pdf"
	if got != want {
		t.Errorf("URLFor() = %q, want %q", got, want)
	}
}

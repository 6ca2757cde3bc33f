package signing

import (
	"bytes"
	"fmt"
	"strings"
	"time"
)

// RenderPDF renders a certificate as a minimal single-page PDF document.
// The document is a presentation derivative: it carries exactly the
// certificate's fields.
func RenderPDF(cert *Certificate) []byte {
	lines := []string{
		"GuardianAI Patch Certificate",
		"",
		"Patch ID:  " + cert.ID,
		"Repo:      " + cert.RepoURL,
		"Signed By: " + cert.Signer,
		"Signed At: " + cert.SignedAt.UTC().Format(time.RFC3339),
	}
	if cert.PRURL != "" {
		lines = append(lines, "PR:        "+cert.PRURL)
	}
	lines = append(lines, "", "Signature:")
	lines = append(lines, wrap(cert.Signature, 64)...)

	var content bytes.Buffer
	content.WriteString("BT\n/F1 12 Tf\n72 770 Td\n16 TL\n")
	for i, line := range lines {
		if i > 0 {
			content.WriteString("T*\n")
		}
		fmt.Fprintf(&content, "(%s) Tj\n", escapePDFText(line))
	}
	content.WriteString("ET")

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 595 842] /Resources << /Font << /F1 4 0 R >> >> /Contents 5 0 R >>",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Courier >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", content.Len(), content.String()),
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xrefStart := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xrefStart)
	return buf.Bytes()
}

func escapePDFText(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "(", `\(`)
	s = strings.ReplaceAll(s, ")", `\)`)
	return s
}

func wrap(s string, width int) []string {
	var out []string
	for len(s) > width {
		out = append(out, s[:width])
		s = s[width:]
	}
	return append(out, s)
}

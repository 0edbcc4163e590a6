package app

import (
	"bufio"
	"regexp"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

var linkRe = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)

// writeSimplePDF renders Markdown as a plain PDF: headings get a larger bold
// font and [text](url) links stay clickable. Text is mapped to the core
// fonts' cp1252 encoding, so characters outside it (emoji) are dropped.
func writeSimplePDF(markdown string, outPath string) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFont("Helvetica", "", 11)
	pdf.AddPage()

	scanner := bufio.NewScanner(strings.NewReader(markdown))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		s := strings.TrimSpace(scanner.Text())
		if s == "" {
			pdf.Ln(4)
			continue
		}
		if strings.HasPrefix(s, "#") {
			level := 0
			for level < len(s) && s[level] == '#' {
				level++
			}
			text := strings.TrimSpace(s[level:])
			if text == "" {
				continue
			}
			size := 16.0
			switch level {
			case 2:
				size = 13
			case 3:
				size = 11.5
			}
			pdf.SetFont("Helvetica", "B", size)
			pdf.CellFormat(0, 8, tr(text), "", 1, "L", false, 0, "")
			pdf.SetFont("Helvetica", "", 11)
			continue
		}
		parts := linkRe.FindAllStringSubmatchIndex(s, -1)
		if len(parts) == 0 {
			pdf.MultiCell(0, 5, tr(s), "", "L", false)
			continue
		}
		pos := 0
		for _, m := range parts {
			if m[0] > pos {
				pdf.Write(5, tr(s[pos:m[0]]))
			}
			pdf.WriteLinkString(5, tr(s[m[2]:m[3]]), s[m[4]:m[5]])
			pos = m[1]
		}
		if pos < len(s) {
			pdf.Write(5, tr(s[pos:]))
		}
		pdf.Ln(6)
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return pdf.OutputFileAndClose(outPath)
}

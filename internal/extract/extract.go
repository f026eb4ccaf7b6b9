// Package extract pulls plain text out of uploaded board documents. Paged
// formats mark page starts with "[Page N]" lines so chunking can attribute
// text to pages later.
package extract

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/lu4p/cat"
	"github.com/xuri/excelize/v2"
)

// SupportedExtensions lists the file types extraction accepts
var SupportedExtensions = []string{".pdf", ".docx", ".doc", ".xlsx", ".xls", ".txt", ".md"}

// IsSupported reports whether a filename has an extractable extension
func IsSupported(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, supported := range SupportedExtensions {
		if ext == supported {
			return true
		}
	}
	return false
}

// ExtractText reads the file at path and returns its plain text. The format
// is chosen by extension.
func ExtractText(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return extractPDF(path)
	case ".xlsx", ".xls":
		return extractWorkbook(path)
	case ".docx", ".doc", ".txt", ".md":
		text, err := cat.File(path)
		if err != nil {
			return "", fmt.Errorf("failed to extract text from %s: %w", filepath.Base(path), err)
		}
		return text, nil
	default:
		return "", fmt.Errorf("unsupported file type: %s", filepath.Ext(path))
	}
}

// extractPDF walks pages in order, prefixing each page's text with a page
// marker
func extractPDF(path string) (string, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}
	defer file.Close()

	var b strings.Builder
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// a single unreadable page should not sink the document
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		b.WriteString(fmt.Sprintf("[Page %d]\n", pageNum))
		b.WriteString(text)
		b.WriteString("\n\n")
	}

	result := strings.TrimSpace(b.String())
	if result == "" {
		return "", fmt.Errorf("pdf contains no extractable text")
	}
	return result, nil
}

// extractWorkbook renders every sheet as tab-separated rows under a sheet
// heading
func extractWorkbook(path string) (string, error) {
	workbook, err := excelize.OpenFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to open workbook: %w", err)
	}
	defer workbook.Close()

	var b strings.Builder
	for _, sheet := range workbook.GetSheetList() {
		rows, err := workbook.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("failed to read sheet %s: %w", sheet, err)
		}
		b.WriteString(fmt.Sprintf("[Sheet: %s]\n", sheet))
		for _, row := range rows {
			line := strings.TrimSpace(strings.Join(row, "\t"))
			if line != "" {
				b.WriteString(line)
				b.WriteString("\n")
			}
		}
		b.WriteString("\n")
	}

	result := strings.TrimSpace(b.String())
	if result == "" {
		return "", fmt.Errorf("workbook contains no extractable text")
	}
	return result, nil
}

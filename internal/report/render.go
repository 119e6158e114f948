package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"html/template"
	"io"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"
)

var csvHeader = []string{
	"Petition", "Count", "Local Salience", "Actual:Expected Salience",
	"UK Total", "State", "Written Response?", "Debated?", "Created", "Topic",
}

// WriteCSV writes rows in the export format of the constituency view
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, r := range rows {
		record := []string{
			r.Action,
			strconv.Itoa(r.Count),
			string(r.Salience.Category),
			formatRatio(r.Salience.Ratio),
			strconv.Itoa(r.UKTotal),
			stateText(r),
			yesNo(r.WrittenResponse),
			yesNo(r.Debated),
			FormatDateUK(r.Created),
			r.Topic,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row %s: %w", r.PetitionID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteMarkdown writes a titled table with humanized counts
func WriteMarkdown(w io.Writer, title string, rows []Row) error {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", escapeMarkdown(title))
	if len(rows) == 0 {
		b.WriteString("No petitions match.\n")
		_, err := io.WriteString(w, b.String())
		return err
	}

	fmt.Fprintf(&b, "%s petitions\n\n", humanize.Comma(int64(len(rows))))
	b.WriteString("| Petition | Count | Local Salience | Ratio | UK Total | Topic | State | Response | Debated | Created |\n")
	b.WriteString("|---|---:|---|---:|---:|---|---|:-:|:-:|---|\n")

	for _, r := range rows {
		action := escapeMarkdown(r.Action)
		if r.URL != "" {
			action = fmt.Sprintf("[%s](%s)", action, r.URL)
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s | %s | %s | %s |\n",
			action,
			humanize.Comma(int64(r.Count)),
			r.Salience.Category,
			formatRatio(r.Salience.Ratio),
			humanize.Comma(int64(r.UKTotal)),
			escapeMarkdown(r.Topic),
			stateText(r),
			tick(r.WrittenResponse),
			tick(r.Debated),
			FormatDateUK(r.Created))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// markdown renders tables; raw HTML in input stays escaped
var markdown = goldmark.New(
	goldmark.WithExtensions(extension.Table),
	goldmark.WithRendererOptions(goldmarkHTML.WithXHTML()),
)

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en-GB">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
{{.Body}}
<p><small>Contains public sector information licensed under the Open Government Licence v3.0.</small></p>
</body>
</html>
`))

// WriteHTML renders the Markdown table as a standalone HTML page
func WriteHTML(w io.Writer, title string, rows []Row) error {
	var md bytes.Buffer
	if err := WriteMarkdown(&md, title, rows); err != nil {
		return err
	}

	var body bytes.Buffer
	if err := markdown.Convert(md.Bytes(), &body); err != nil {
		return fmt.Errorf("render markdown: %w", err)
	}

	return pageTemplate.Execute(w, struct {
		Title string
		Body  template.HTML
	}{Title: title, Body: template.HTML(body.String())}) // #nosec G203 -- goldmark output with unsafe HTML disabled
}

func formatRatio(r float64) string {
	return strconv.FormatFloat(r, 'f', 2, 64)
}

func stateText(r Row) string {
	if r.State == "" {
		return "N/A"
	}
	return string(r.State)
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

func tick(v bool) string {
	if v {
		return "✓"
	}
	return ""
}

var markdownEscaper = strings.NewReplacer("|", `\|`, "\n", " ", "\r", "", "[", `\[`, "]", `\]`)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

package render

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

//go:embed default.css
var defaultCSS string

// PDFRenderer turns a report envelope (JSON) or bare markdown into a PDF.
type PDFRenderer interface {
	Render(ctx context.Context, report string) ([]byte, error)
}

type ChromiumPDFRenderer struct {
	webDir     string
	chromePath string
	timeout    time.Duration
	styleOnce  sync.Once
	styleCSS   string
	styleErr   error
}

func NewChromiumPDFRenderer(webDir string) *ChromiumPDFRenderer {
	return &ChromiumPDFRenderer{
		webDir:     webDir,
		chromePath: detectChromePath(),
		timeout:    30 * time.Second,
	}
}

// pageLayout is a paper size and margin set in inches.
type pageLayout struct {
	width, height            float64
	top, bottom, left, right float64
}

var a4 = pageLayout{width: 8.27, height: 11.69, top: 0.5, bottom: 0.75, left: 0.45, right: 0.45}

const pageFooter = `<div style="width:100%;text-align:center;font-size:9px;color:#666;">` +
	`Detailed Diagnostic Report | Page <span class="pageNumber"></span> of <span class="totalPages"></span></div>`

func (l pageLayout) printParams() *page.PrintToPDFParams {
	return page.PrintToPDF().
		WithPaperWidth(l.width).
		WithPaperHeight(l.height).
		WithMarginTop(l.top).
		WithMarginBottom(l.bottom).
		WithMarginLeft(l.left).
		WithMarginRight(l.right).
		WithPrintBackground(true).
		WithDisplayHeaderFooter(true).
		WithHeaderTemplate(`<div></div>`).
		WithFooterTemplate(pageFooter)
}

func (r *ChromiumPDFRenderer) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if r.chromePath != "" {
		opts = append(opts, chromedp.ExecPath(r.chromePath))
	}
	return opts
}

func (r *ChromiumPDFRenderer) Render(ctx context.Context, report string) ([]byte, error) {
	doc, err := r.BuildHTML(report)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	ctx, cancelAlloc := chromedp.NewExecAllocator(ctx, r.allocatorOptions()...)
	defer cancelAlloc()
	ctx, cancelTab := chromedp.NewContext(ctx)
	defer cancelTab()

	var pdf []byte
	if err := chromedp.Run(ctx, printDocument(doc, a4, &pdf)); err != nil {
		return nil, fmt.Errorf("print pdf: %w", err)
	}
	return pdf, nil
}

// printDocument loads doc into a blank tab and prints it with layout into out.
func printDocument(doc string, layout pageLayout, out *[]byte) chromedp.Tasks {
	return chromedp.Tasks{
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, doc).Do(ctx)
		}),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := layout.printParams().Do(ctx)
			*out = buf
			return err
		}),
	}
}

// BuildHTML accepts either a stored envelope with report_markdown or plain markdown.
func (r *ChromiumPDFRenderer) BuildHTML(report string) (string, error) {
	metaHTML := ""
	badgeHTML := ""
	markdown := report

	var envelope map[string]any
	if json.Unmarshal([]byte(report), &envelope) == nil {
		if s, ok := envelope["report_markdown"].(string); ok && strings.TrimSpace(s) != "" {
			markdown = s
		}
		metaHTML = buildMetaHTML(envelope)
		badgeHTML = buildBadgeHTML(envelope)
	}

	var content strings.Builder
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	if err := md.Convert([]byte(markdown), &content); err != nil {
		return "", fmt.Errorf("markdown convert: %w", err)
	}
	contentHTML := applyPrintLayoutHooks(content.String())

	styleCSS, err := r.loadStyleCSS()
	if err != nil {
		return "", err
	}
	return "<!doctype html><html><head><meta charset='utf-8'><title>Detailed Diagnostic Report</title>" +
		"<style>" + styleCSS + "\n" +
		"html,body,*{-webkit-print-color-adjust:exact !important;print-color-adjust:exact !important;} " +
		`h2[data-page-break-before="true"]{break-before:page;page-break-before:always;} ` +
		"@media print{ @page{size:auto;margin:12mm;} body{background:#fff !important;padding:0;} }" +
		"</style></head><body>" +
		"<div class='pdf-wrap'><section class='report-viewer'><div class='report-header'>" +
		"<div class='report-meta'>" + metaHTML + "</div>" +
		"<div class='report-badges'>" + badgeHTML + "</div>" +
		"</div><div class='report-html'>" + contentHTML + "</div></section></div>" +
		"</body></html>", nil
}

var (
	reAreaSection  = regexp.MustCompile(`(?i)<h2([^>]*)>\s*(2\. Area-wise Observations)\s*</h2>`)
	reSeverityItem = regexp.MustCompile(`<strong>(Low|Moderate|High|Critical)</strong>`)
)

// applyPrintLayoutHooks starts area observations on a fresh page and tints the
// severity level.
func applyPrintLayoutHooks(contentHTML string) string {
	out := reAreaSection.ReplaceAllString(contentHTML, `<h2$1 data-page-break-before="true">$2</h2>`)
	return reSeverityItem.ReplaceAllStringFunc(out, func(m string) string {
		level := reSeverityItem.FindStringSubmatch(m)[1]
		return `<strong class="severity severity-` + strings.ToLower(level) + `">` + level + `</strong>`
	})
}

func (r *ChromiumPDFRenderer) loadStyleCSS() (string, error) {
	r.styleOnce.Do(func() {
		if r.webDir == "" {
			r.styleCSS = defaultCSS
			return
		}
		b, err := os.ReadFile(filepath.Join(r.webDir, "style.css"))
		if errors.Is(err, fs.ErrNotExist) {
			r.styleCSS = defaultCSS
			return
		}
		if err != nil {
			r.styleErr = fmt.Errorf("read style.css: %w", err)
			return
		}
		r.styleCSS = string(b)
	})
	return r.styleCSS, r.styleErr
}

func buildMetaHTML(env map[string]any) string {
	var out strings.Builder
	if id := stringValue(env["id"]); id != "" {
		out.WriteString("<div><strong>Report ID:</strong> " + html.EscapeString(id) + "</div>")
	}
	if created := stringValue(env["created_at"]); created != "" {
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			out.WriteString("<div><strong>Date:</strong> " + html.EscapeString(ts.UTC().Format("January 2, 2006 at 15:04 MST")) + "</div>")
		} else {
			out.WriteString("<div><strong>Date:</strong> " + html.EscapeString(created) + "</div>")
		}
	}
	for _, key := range []string{"inspection", "thermal"} {
		if name := lookupString(env, "documents", key, "path"); name != "" {
			label := strings.ToUpper(key[:1]) + key[1:]
			out.WriteString("<div><strong>" + label + ":</strong> " + html.EscapeString(filepath.Base(name)) + "</div>")
		}
	}
	return out.String()
}

func buildBadgeHTML(env map[string]any) string {
	var out strings.Builder
	if level := lookupString(env, "report", "severity_assessment", "level"); level != "" {
		out.WriteString("<span class='report-badge severity-" + html.EscapeString(strings.ToLower(level)) + "'>Severity: " + html.EscapeString(level) + "</span>")
	}
	if report, ok := env["report"].(map[string]any); ok {
		if conflicts, ok := report["conflicts"].([]any); ok {
			out.WriteString(fmt.Sprintf("<span class='report-badge'>Conflicts: %d</span>", len(conflicts)))
		}
	}
	return out.String()
}

func lookupString(root map[string]any, path ...string) string {
	var cur any = root
	for _, p := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur = m[p]
	}
	return stringValue(cur)
}

func stringValue(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func detectChromePath() string {
	if p := strings.TrimSpace(os.Getenv("CHROME_PATH")); p != "" {
		return p
	}
	candidates := []string{
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/usr/bin/google-chrome",
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

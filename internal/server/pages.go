package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
)

//go:embed templates/*.html
var templateFS embed.FS

type pages struct {
	index   *template.Template
	stream  *template.Template
	status  *template.Template
	message *template.Template

	indexData  indexData
	streamData streamData
}

type indexData struct {
	MaxWidth int
	Ratio    string
}

type streamData struct {
	Delay int
	Ratio string
}

func newPages(opts Options) (*pages, error) {
	t, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	if opts.ImageWidth <= 0 || opts.ImageHeight <= 0 {
		return nil, fmt.Errorf("invalid image size %dx%d", opts.ImageWidth, opts.ImageHeight)
	}

	w, h := float64(opts.ImageWidth), float64(opts.ImageHeight)
	return &pages{
		index:   t.Lookup("index.html"),
		stream:  t.Lookup("stream.html"),
		status:  t.Lookup("status.html"),
		message: t.Lookup("message.html"),
		indexData: indexData{
			MaxWidth: opts.MaximumWidth,
			Ratio:    fmt.Sprintf("%f", 100*h/w),
		},
		streamData: streamData{
			Delay: 1000 / opts.DisplayRate,
			Ratio: fmt.Sprintf("%f", 100*(h*h)/(w*w)),
		},
	}, nil
}

// render executes t into a buffer first so a template error never leaves a
// half-written page.
func render(w http.ResponseWriter, t *template.Template, data any) error {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		http.Error(w, "template error", http.StatusInternalServerError)
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, err := buf.WriteTo(w)
	return err
}

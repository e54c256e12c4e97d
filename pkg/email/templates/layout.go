package templates

import (
	"context"
	"io"

	"github.com/a-h/templ"
)

// layout wraps body in the common email shell with an escaped title.
func layout(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<!DOCTYPE html><html><head><meta charset="utf-8"><title>`+
			templ.EscapeString(title)+
			`</title></head><body style="font-family:Arial,sans-serif;color:#1f2937"><div style="max-width:600px;margin:0 auto;padding:24px">`); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `<p style="color:#6b7280;font-size:12px">IndexNow Studio</p></div></body></html>`)
		return err
	})
}

// paragraphs renders each line as an escaped <p>.
func paragraphs(lines ...string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		for _, line := range lines {
			if line == "" {
				continue
			}
			if _, err := io.WriteString(w, "<p>"+templ.EscapeString(line)+"</p>"); err != nil {
				return err
			}
		}
		return nil
	})
}

// Package templates renders the HTML pages of the converter.
package templates

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/a-h/templ"
)

// FileRow is one stored artifact on the index page.
type FileRow struct {
	Name     string
	Size     int64
	Modified time.Time
}

// HistoryRow is one recent conversion on the index page.
type HistoryRow struct {
	FileName  string
	Succeeded bool
	Detail    string
	When      time.Time
}

// IndexData feeds the index page.
type IndexData struct {
	MaxFileSize int64
	Extensions  []string
	Files       []FileRow
	History     []HistoryRow
}

// Index renders the upload page with stored artifacts and recent history.
func Index(data IndexData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &printer{w: w}

		p.raw(pageHead)
		p.raw(`<main><h1>Battery test data converter</h1>`)
		p.raw(`<section class="card"><h2>Upload cycler logs</h2>`)
		p.raw(`<form id="upload" method="post" action="/upload" enctype="multipart/form-data">`)
		p.rawf(`<input type="file" name="files[]" multiple accept="%s">`, templ.EscapeString(strings.Join(data.Extensions, ",")))
		p.raw(`<button type="submit">Convert</button></form>`)
		p.rawf(`<p class="hint">Up to %s per file. Supported: %s</p>`,
			templ.EscapeString(FormatBytes(data.MaxFileSize)),
			templ.EscapeString(strings.Join(data.Extensions, ", ")))
		p.raw(`<div id="result"></div></section>`)

		p.raw(`<section class="card"><h2>Converted files</h2>`)
		if len(data.Files) == 0 {
			p.raw(`<p class="empty">No converted files yet.</p>`)
		} else {
			p.raw(`<table><thead><tr><th>File</th><th>Size</th><th>Modified</th></tr></thead><tbody>`)
			for _, f := range data.Files {
				href := templ.URL("/download/" + url.PathEscape(f.Name))
				p.rawf(`<tr><td><a href="%s">%s</a></td><td>%s</td><td>%s</td></tr>`,
					templ.EscapeString(string(href)),
					templ.EscapeString(f.Name),
					templ.EscapeString(FormatBytes(f.Size)),
					templ.EscapeString(f.Modified.Format("2006-01-02 15:04")))
			}
			p.raw(`</tbody></table>`)
			p.raw(`<p class="actions"><a class="button" href="/download_all">Download all (zip)</a>`)
			p.raw(`<button id="clear" type="button">Clear files</button></p>`)
		}
		p.raw(`</section>`)

		if len(data.History) > 0 {
			p.raw(`<section class="card"><h2>Recent conversions</h2><ul class="history">`)
			for _, h := range data.History {
				status, class := "failed", "err"
				if h.Succeeded {
					status, class = "ok", "ok"
				}
				p.rawf(`<li class="%s"><span>%s</span> %s <small>%s %s</small></li>`,
					class,
					templ.EscapeString(status),
					templ.EscapeString(h.FileName),
					templ.EscapeString(h.When.Format("2006-01-02 15:04:05")),
					templ.EscapeString(h.Detail))
			}
			p.raw(`</ul></section>`)
		}

		p.raw(`</main>`)
		p.raw(pageScript)
		p.raw(`</body></html>`)
		return p.err
	})
}

// ErrorAlert renders a standalone error page.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &printer{w: w}
		p.raw(pageHead)
		p.rawf(`<main><section class="card error"><h2>%s</h2><p>%s</p><p><small>Error code: %s</small></p>`,
			templ.EscapeString(message),
			templ.EscapeString(action),
			templ.EscapeString(code))
		p.raw(`<p><a href="/">Back</a></p></section></main></body></html>`)
		return p.err
	})
}

// FormatBytes renders a byte count for display.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

// printer stops writing after the first error.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) raw(s string) {
	if p.err != nil {
		return
	}
	_, p.err = io.WriteString(p.w, s)
}

func (p *printer) rawf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

const pageHead = `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Battery test data converter</title>
<style>
body{font-family:system-ui,sans-serif;margin:0;background:#f4f5f7;color:#222}
main{max-width:860px;margin:2rem auto;padding:0 1rem}
.card{background:#fff;border-radius:8px;padding:1rem 1.5rem;margin-bottom:1rem;box-shadow:0 1px 3px rgba(0,0,0,.1)}
table{width:100%;border-collapse:collapse}td,th{padding:.3rem;border-bottom:1px solid #eee;text-align:left}
.hint,.empty{color:#666}.ok span{color:#1a7f37}.err span{color:#cf222e}
.error h2{color:#cf222e}.button,button{padding:.4rem .8rem}
ul.history{list-style:none;padding:0}#result{white-space:pre-wrap}
</style></head><body>`

const pageScript = `<script>
(function(){
  var form=document.getElementById('upload'),out=document.getElementById('result');
  form.addEventListener('submit',function(e){
    e.preventDefault();
    out.textContent='Converting...';
    fetch('/upload',{method:'POST',body:new FormData(form),headers:{'Accept':'application/json'}})
      .then(function(r){return r.json()})
      .then(function(d){
        var lines=[];
        (d.processed_files||[]).forEach(function(f){lines.push(f.original+': '+f.message)});
        (d.errors||[]).forEach(function(m){lines.push(m)});
        if(d.message){lines.push(d.message)}
        out.textContent=lines.join('\n');
        if(d.success){setTimeout(function(){location.reload()},1200)}
      })
      .catch(function(err){out.textContent=String(err)});
  });
  var clear=document.getElementById('clear');
  if(clear){clear.addEventListener('click',function(){
    fetch('/clear',{method:'POST'}).then(function(){location.reload()});
  })}
})();
</script>`

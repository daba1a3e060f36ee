package login

import (
	"html/template"
	"net/http"

	"github.com/dgellow/soporify/internal/log"
)

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>{{.Title}}</title>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <style>
        body { font-family: Arial, sans-serif; margin: 40px; text-align: center; }
        .container { max-width: 600px; margin: 0 auto; }
        .message { padding: 20px; border-radius: 5px; margin: 20px 0; }
        .success { background-color: #e7f6e7; border: 1px solid #b3e6b3; color: #006600; }
        .error { background-color: #ffe7e7; border: 1px solid #ffb3b3; color: #cc0000; }
    </style>
</head>
<body>
    <div class="container">
        <h1>{{.Title}}</h1>
        <div class="message {{.Class}}">
            <p>{{.Message}}</p>
            {{if .Detail}}<p>{{.Detail}}</p>{{end}}
        </div>
    </div>
</body>
</html>`))

type page struct {
	Title   string
	Class   string
	Message string
	Detail  string
}

var (
	successPage = page{
		Title:   "Logged in",
		Class:   "success",
		Message: "soporify is authorized. You can close this window and return to the terminal.",
	}
	failurePage = page{
		Title:   "Login failed",
		Class:   "error",
		Message: "Run soporify login again to retry.",
	}
)

func writePage(w http.ResponseWriter, status int, p page, detail string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'")
	w.WriteHeader(status)

	p.Detail = detail
	if err := pageTemplate.Execute(w, p); err != nil {
		log.LogWarnWithFields("login", "Failed to write page", map[string]any{
			"error": err.Error(),
		})
	}
}

package httpapi

import (
	"bytes"
	"html/template"
)

var (
	editorTemplate = template.Must(template.New("editor").Parse(
		`<form class="editor" method="post" action="{{.Action}}">` +
			`<textarea name="content" rows="30">{{.View.Content}}</textarea>` +
			`<input type="text" name="summary" placeholder="Summary">` +
			`<button type="submit">Save {{.View.Path}}</button>` +
			`</form>`))

	loginTemplate = template.Must(template.New("login").Parse(
		`{{if .ProfileURL}}<p class="session">Signed in as <a href="{{.ProfileURL}}">{{.ProfileURL}}</a> ({{.Role}})</p>` +
			`<form method="post" action="/meta/logout"><button type="submit">Sign out</button></form>` +
			`{{else}}<form class="login" method="post" action="/meta/login">` +
			`<input type="url" name="url" placeholder="https://example.com/" required>` +
			`<input type="hidden" name="redirect_to" value="{{.RedirectTo}}">` +
			`<button type="submit">Sign in</button>` +
			`</form>{{end}}`))
)

func editorFragment(action string, v editView) []byte {
	var buf bytes.Buffer
	_ = editorTemplate.Execute(&buf, struct {
		Action string
		View   editView
	}{action, v})
	return buf.Bytes()
}

func loginFragment(profileURL, role, redirectTo string) []byte {
	var buf bytes.Buffer
	_ = loginTemplate.Execute(&buf, struct {
		ProfileURL string
		Role       string
		RedirectTo string
	}{profileURL, role, redirectTo})
	return buf.Bytes()
}

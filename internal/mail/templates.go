package mail

import (
	"bytes"
	"html/template"
)

type templateData struct {
	BrandName string
	FirstName string
	CTAURL    string
	CTALabel  string
}

func renderTemplate(tpl *template.Template, data templateData) (string, error) {
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const layoutHead = `<!DOCTYPE html>
<html>
<body style="font-family:sans-serif;background:#f5f5f5;padding:20px">
<div style="max-width:600px;margin:0 auto;background:#fff;border-radius:8px;padding:24px">`

const layoutFoot = `  <p style="margin-top:24px">
    <a href="{{.CTAURL}}" style="background:#0ea5e9;color:#fff;padding:10px 18px;text-decoration:none;border-radius:4px">{{.CTALabel}}</a>
  </p>
  <p style="color:#999;font-size:12px">If this wasn't you, you can safely ignore this email.</p>
  <p style="color:#bbb;font-size:11px">{{.BrandName}}</p>
</div>
</body>
</html>`

var verifyEmailTpl = template.Must(template.New("verify-email").Parse(layoutHead + `
  <h2 style="color:#333">Verify your email</h2>
  <p>Thanks for signing up for {{.BrandName}}. Please verify your email address to activate your account.</p>
` + layoutFoot))

var resetPasswordTpl = template.Must(template.New("reset-password").Parse(layoutHead + `
  <h2 style="color:#333">Reset your password</h2>
  <p>We received a request to reset your password. Click below to choose a new password.</p>
` + layoutFoot))

var welcomeTpl = template.Must(template.New("welcome").Parse(layoutHead + `
  <h2 style="color:#333">Welcome{{if .FirstName}}, {{.FirstName}}{{end}} 👋</h2>
  <p>Your email is verified and your account is all set. We're excited to have you on board.</p>
` + layoutFoot))

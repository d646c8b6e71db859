// internal/app/system/mailer/templates.go
package mailer

import (
	"bytes"
	"html/template"
)

// MagicLinkSubject is the subject line of sign-in link emails.
const MagicLinkSubject = "Bienvenido a tu cuenta Osteocenter"

// MagicLinkEmailData contains the data for a sign-in link email.
type MagicLinkEmailData struct {
	AppName   string
	SignInURL string
	ExpiresIn string // e.g. "10 horas"
}

// MagicLinkEmail generates both plain text and HTML versions of a sign-in link email.
func MagicLinkEmail(data MagicLinkEmailData) (textBody, htmlBody string) {
	textBody = "Hola,\n\n" +
		"Usa el siguiente enlace para ingresar a tu cuenta de " + data.AppName + ":\n\n" +
		data.SignInURL + "\n\n" +
		"El enlace vence en " + data.ExpiresIn + " y solo puede usarse una vez.\n\n" +
		"Si no solicitaste este correo, puedes ignorarlo."

	htmlBody = render(layout{
		AppName:   data.AppName,
		Title:     "Ingresa a tu cuenta",
		Intro:     "Haz clic en el botón para ingresar a tu cuenta.",
		ActionURL: data.SignInURL,
		Action:    "Ingresar",
		Note:      "El enlace vence en " + data.ExpiresIn + " y solo puede usarse una vez. Si no solicitaste este correo, puedes ignorarlo.",
	})
	return textBody, htmlBody
}

// InvitationEmailData contains the data for an invitation email.
type InvitationEmailData struct {
	AppName     string
	InviterName string
	Role        string // paciente or doctor
	LoginURL    string
}

// InvitationSubject returns the subject line of an invitation email.
func InvitationSubject(appName string) string {
	return "Te invitaron a " + appName
}

// InvitationEmail generates both plain text and HTML versions of an invitation email.
func InvitationEmail(data InvitationEmailData) (textBody, htmlBody string) {
	textBody = "Hola,\n\n" +
		data.InviterName + " te invitó a " + data.AppName + " como " + data.Role + ".\n\n" +
		"Para aceptar la invitación, ingresa con este correo en:\n" + data.LoginURL + "\n\n" +
		"Si no esperabas esta invitación, puedes ignorar este correo."

	htmlBody = render(layout{
		AppName:   data.AppName,
		Title:     "Tienes una invitación",
		Intro:     data.InviterName + " te invitó a " + data.AppName + " como " + data.Role + ". Ingresa con este correo para aceptarla.",
		ActionURL: data.LoginURL,
		Action:    "Aceptar invitación",
		Note:      "Si no esperabas esta invitación, puedes ignorar este correo.",
	})
	return textBody, htmlBody
}

type layout struct {
	AppName   string
	Title     string
	Intro     string
	ActionURL string
	Action    string
	Note      string
}

func render(l layout) string {
	var buf bytes.Buffer
	if err := layoutTmpl.Execute(&buf, l); err != nil {
		return ""
	}
	return buf.String()
}

var layoutTmpl = template.Must(template.New("layout").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>{{.Title}}</title>
</head>
<body style="margin: 0; padding: 0; font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Arial, sans-serif; background-color: #f4f4f5;">
  <table role="presentation" width="100%" cellspacing="0" cellpadding="0" style="background-color: #f4f4f5;">
    <tr>
      <td align="center" style="padding: 40px 20px;">
        <table role="presentation" width="100%" cellspacing="0" cellpadding="0" style="max-width: 480px; background-color: #ffffff; border-radius: 8px;">
          <tr>
            <td style="padding: 32px 32px 24px 32px; text-align: center; border-bottom: 1px solid #e4e4e7;">
              <h1 style="margin: 0; font-size: 24px; font-weight: 600; color: #18181b;">{{.AppName}}</h1>
            </td>
          </tr>
          <tr>
            <td style="padding: 32px;">
              <h2 style="margin: 0 0 16px 0; font-size: 20px; color: #18181b;">{{.Title}}</h2>
              <p style="margin: 0 0 24px 0; font-size: 15px; line-height: 1.6; color: #52525b;">{{.Intro}}</p>
              <p style="text-align: center; padding: 8px 0 24px 0;">
                <a href="{{.ActionURL}}" style="display: inline-block; padding: 14px 32px; background-color: #292929; color: #ffffff; text-decoration: none; font-weight: 600; border-radius: 6px;">{{.Action}}</a>
              </p>
              <p style="margin: 0; font-size: 14px; line-height: 1.6; color: #71717a;">{{.Note}}</p>
            </td>
          </tr>
          <tr>
            <td style="padding: 24px 32px; background-color: #fafafa; border-top: 1px solid #e4e4e7;">
              <p style="margin: 0; font-size: 12px; color: #a1a1aa; text-align: center; word-break: break-all;">{{.ActionURL}}</p>
            </td>
          </tr>
        </table>
      </td>
    </tr>
  </table>
</body>
</html>`))

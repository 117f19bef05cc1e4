package mail

import (
	"bytes"
	_ "embed"
	"fmt"
	htmltemplate "html/template"
	"sort"
	texttemplate "text/template"

	"gopkg.in/yaml.v3"
)

const (
	TemplateVerifyEmail     = "verify_email"
	TemplatePasswordReset   = "password_reset"
	TemplatePasswordChanged = "password_changed"
)

//go:embed templates.yaml
var catalogue []byte

// TemplateData is what every template may reference.
type TemplateData struct {
	SiteName  string
	Name      string
	Link      string
	ExpiresIn string
}

type templateSource struct {
	Subject string `yaml:"subject"`
	Text    string `yaml:"text"`
	HTML    string `yaml:"html"`
}

type compiled struct {
	subject *texttemplate.Template
	text    *texttemplate.Template
	html    *htmltemplate.Template
}

// Renderer holds the parsed template catalogue.
type Renderer struct {
	templates map[string]compiled
}

// NewRenderer parses the embedded catalogue.
func NewRenderer() (*Renderer, error) {
	return parseCatalogue(catalogue)
}

func parseCatalogue(raw []byte) (*Renderer, error) {
	var src map[string]templateSource
	if err := yaml.Unmarshal(raw, &src); err != nil {
		return nil, fmt.Errorf("parse mail templates: %w", err)
	}
	r := &Renderer{templates: make(map[string]compiled, len(src))}
	for name, s := range src {
		var (
			c   compiled
			err error
		)
		if c.subject, err = texttemplate.New(name + ".subject").Option("missingkey=error").Parse(s.Subject); err != nil {
			return nil, fmt.Errorf("template %s subject: %w", name, err)
		}
		if c.text, err = texttemplate.New(name + ".text").Option("missingkey=error").Parse(s.Text); err != nil {
			return nil, fmt.Errorf("template %s text: %w", name, err)
		}
		if c.html, err = htmltemplate.New(name + ".html").Option("missingkey=error").Parse(s.HTML); err != nil {
			return nil, fmt.Errorf("template %s html: %w", name, err)
		}
		r.templates[name] = c
	}
	return r, nil
}

// Names lists the available templates.
func (r *Renderer) Names() []string {
	out := make([]string, 0, len(r.templates))
	for n := range r.templates {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Render builds the message for template name addressed to to.
func (r *Renderer) Render(name, to string, data TemplateData) (Message, error) {
	c, ok := r.templates[name]
	if !ok {
		return Message{}, fmt.Errorf("unknown mail template %q", name)
	}
	var subject, text, html bytes.Buffer
	if err := c.subject.Execute(&subject, data); err != nil {
		return Message{}, err
	}
	if err := c.text.Execute(&text, data); err != nil {
		return Message{}, err
	}
	if err := c.html.Execute(&html, data); err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: subject.String(), Text: text.String(), HTML: html.String()}, nil
}

package prompt

import (
	"errors"
	"fmt"
	"strings"
	"text/template"

	"boq-estimator/internal/models"
)

// Purpose names the endpoint step a template is written for.
type Purpose string

const (
	PurposeAnalysis Purpose = "analysis"
	PurposeBOQ      Purpose = "boq"
	PurposeTakeOff  Purpose = "takeoff"
	PurposeCosting  Purpose = "costing"
)

var (
	// ErrUnknownTemplate indicates a template ID is not in the catalog.
	ErrUnknownTemplate = errors.New("unknown prompt template")
	// ErrImageRequired indicates an image template was built without an image.
	ErrImageRequired = errors.New("prompt template requires an image")
)

// Data is the input a template renders from.
type Data struct {
	Project Project
	TakeOff string
	Markup  Markup
}

// Template is a named, versioned prompt definition.
type Template struct {
	Name    string
	Version string
	Purpose Purpose
	// System is optional; an empty system text produces no system message.
	System string
	User   string
	// Image marks templates whose user message carries the drawing.
	Image bool

	system *template.Template
	user   *template.Template
}

// ID returns the catalog key "<name>/<version>".
func (t *Template) ID() string {
	return t.Name + "/" + t.Version
}

var funcs = template.FuncMap{
	"percent": Percent,
}

func (t *Template) parse() error {
	if strings.TrimSpace(t.Name) == "" || strings.TrimSpace(t.Version) == "" {
		return errors.New("template name and version must not be empty")
	}
	if strings.TrimSpace(t.User) == "" {
		return fmt.Errorf("template %s: user text must not be empty", t.ID())
	}

	user, err := template.New(t.ID() + "/user").Funcs(funcs).Option("missingkey=error").Parse(t.User)
	if err != nil {
		return fmt.Errorf("template %s: parse user text: %w", t.ID(), err)
	}
	t.user = user

	if strings.TrimSpace(t.System) != "" {
		system, err := template.New(t.ID() + "/system").Funcs(funcs).Option("missingkey=error").Parse(t.System)
		if err != nil {
			return fmt.Errorf("template %s: parse system text: %w", t.ID(), err)
		}
		t.system = system
	}
	return nil
}

// Build renders the message sequence for one call. The system message, when
// present, always precedes the user message; the image follows the user text.
func (t *Template) Build(data Data, img *models.Image) (models.Prompt, error) {
	if t.user == nil {
		if err := t.parse(); err != nil {
			return nil, err
		}
	}
	if t.Image && img == nil {
		return nil, fmt.Errorf("template %s: %w", t.ID(), ErrImageRequired)
	}

	var prompt models.Prompt
	if t.system != nil {
		text, err := render(t.system, data)
		if err != nil {
			return nil, fmt.Errorf("template %s: render system text: %w", t.ID(), err)
		}
		prompt = append(prompt, models.TextMessage(models.RoleSystem, text))
	}

	text, err := render(t.user, data)
	if err != nil {
		return nil, fmt.Errorf("template %s: render user text: %w", t.ID(), err)
	}
	user := models.TextMessage(models.RoleUser, text)
	if t.Image {
		user.Parts = append(user.Parts, models.ImagePart(*img))
	}

	return append(prompt, user), nil
}

func render(tpl *template.Template, data Data) (string, error) {
	var b strings.Builder
	if err := tpl.Execute(&b, data); err != nil {
		return "", err
	}
	return strings.TrimSpace(b.String()), nil
}

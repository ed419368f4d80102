package notify

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var defaultTemplates []byte

// Template names used by the dispatcher.
const (
	TplBookingConfirmed           = "booking_confirmed"
	TplBookingConfirmedStaff      = "booking_confirmed_staff"
	TplSubscriptionConfirmed      = "subscription_confirmed"
	TplSubscriptionConfirmedStaff = "subscription_confirmed_staff"
	TplSubscriptionUpdatedStaff   = "subscription_updated_staff"
	TplSubscriptionCancelled      = "subscription_cancelled"
	TplSubscriptionCancelledStaff = "subscription_cancelled_staff"
	TplSubscriptionUpgraded       = "subscription_upgraded"
	TplSubscriptionUpgradedStaff  = "subscription_upgraded_staff"
	TplAdminAlert                 = "admin_alert"
)

type templateSource struct {
	Subject string `yaml:"subject"`
	Body    string `yaml:"body"`
}

type emailTemplate struct {
	subject *template.Template
	body    *template.Template
}

// Templates holds the parsed subject and body templates keyed by name.
type Templates struct {
	byName map[string]emailTemplate
}

var templateFuncs = template.FuncMap{
	"money": func(d decimal.Decimal) string { return d.StringFixed(2) },
	"date":  func(t time.Time) string { return t.Format("Mon, Jan 2 2006") },
	"datep": func(t *time.Time) string {
		if t == nil {
			return "n/a"
		}
		return t.Format("Mon, Jan 2 2006")
	},
}

// LoadTemplates parses the embedded defaults and, when path is set, overlays
// the templates defined in that file.
func LoadTemplates(path string) (*Templates, error) {
	t := &Templates{byName: map[string]emailTemplate{}}
	if err := t.add(defaultTemplates, "embedded"); err != nil {
		return nil, err
	}
	if strings.TrimSpace(path) == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates %s: %w", path, err)
	}
	if err := t.add(raw, path); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Templates) add(raw []byte, origin string) error {
	var sources map[string]templateSource
	if err := yaml.Unmarshal(raw, &sources); err != nil {
		return fmt.Errorf("parse templates %s: %w", origin, err)
	}
	for name, src := range sources {
		subject, err := template.New(name + ".subject").Funcs(templateFuncs).Parse(src.Subject)
		if err != nil {
			return fmt.Errorf("template %s subject: %w", name, err)
		}
		body, err := template.New(name + ".body").Funcs(templateFuncs).Parse(src.Body)
		if err != nil {
			return fmt.Errorf("template %s body: %w", name, err)
		}
		t.byName[name] = emailTemplate{subject: subject, body: body}
	}
	return nil
}

// Render executes the named template pair.
func (t *Templates) Render(name string, data interface{}) (subject, body string, err error) {
	tpl, ok := t.byName[name]
	if !ok {
		return "", "", fmt.Errorf("unknown template %q", name)
	}
	var buf bytes.Buffer
	if err := tpl.subject.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render %s subject: %w", name, err)
	}
	subject = strings.TrimSpace(buf.String())
	buf.Reset()
	if err := tpl.body.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render %s body: %w", name, err)
	}
	return subject, buf.String(), nil
}

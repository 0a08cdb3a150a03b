package discord

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/bissquit/toplane-coaching/internal/domain"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed onboarding.yaml
var onboardingYAML []byte

const defaultDisplayName = "Champion"

// OnboardingData is the template context for onboarding messages.
type OnboardingData struct {
	Plan          domain.Plan
	CustomerName  string
	CustomerEmail string
	BookingURL    string
	CoachMention  string
}

// DisplayName is the customer name or a generic greeting.
func (d OnboardingData) DisplayName() string {
	if name := strings.TrimSpace(d.CustomerName); name != "" {
		return name
	}
	return defaultDisplayName
}

// PlanName returns the human readable plan name.
func (d OnboardingData) PlanName() string {
	return d.Plan.Name
}

// LifetimeDays is the plan channel lifetime in whole days.
func (d OnboardingData) LifetimeDays() int {
	return int(d.Plan.ChannelLifetime.Hours() / 24)
}

type onboardingFile struct {
	Footer  string `yaml:"footer"`
	Welcome struct {
		Color int                  `yaml:"color"`
		Plans map[string]embedSpec `yaml:"plans"`
	} `yaml:"welcome"`
	NextSteps struct {
		Color int                  `yaml:"color"`
		Title string               `yaml:"title"`
		Plans map[string]embedSpec `yaml:"plans"`
	} `yaml:"next_steps"`
	Info embedSpec `yaml:"info"`
}

type embedSpec struct {
	Title       string      `yaml:"title"`
	Description string      `yaml:"description"`
	Color       int         `yaml:"color"`
	Fields      []fieldSpec `yaml:"fields"`
}

type fieldSpec struct {
	Name            string `yaml:"name"`
	Value           string `yaml:"value"`
	Inline          bool   `yaml:"inline"`
	RequiresBooking bool   `yaml:"requires_booking"`
}

type compiledField struct {
	name            *template.Template
	value           *template.Template
	inline          bool
	requiresBooking bool
}

type compiledEmbed struct {
	title       *template.Template
	description *template.Template
	color       int
	fields      []compiledField
	footer      string
}

// Onboarding renders the messages posted into a new customer channel.
type Onboarding struct {
	welcome   map[domain.PlanID]compiledEmbed
	nextSteps map[domain.PlanID]compiledEmbed
	info      compiledEmbed
}

var titleCaser = cases.Title(language.English)

var funcMap = template.FuncMap{
	"title": titleCaser.String,
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
}

// LoadOnboarding parses the embedded onboarding content.
func LoadOnboarding() (*Onboarding, error) {
	return ParseOnboarding(onboardingYAML)
}

// ParseOnboarding parses onboarding content and checks every plan is covered.
func ParseOnboarding(data []byte) (*Onboarding, error) {
	var file onboardingFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse onboarding: %w", err)
	}

	o := &Onboarding{
		welcome:   make(map[domain.PlanID]compiledEmbed),
		nextSteps: make(map[domain.PlanID]compiledEmbed),
	}

	for _, plan := range domain.Plans() {
		spec, ok := file.Welcome.Plans[string(plan.ID)]
		if !ok {
			return nil, fmt.Errorf("onboarding welcome missing plan %s", plan.ID)
		}
		spec.Color = file.Welcome.Color
		welcome, err := compileEmbed("welcome_"+string(plan.ID), spec, file.Footer)
		if err != nil {
			return nil, err
		}
		o.welcome[plan.ID] = welcome

		spec, ok = file.NextSteps.Plans[string(plan.ID)]
		if !ok {
			return nil, fmt.Errorf("onboarding next_steps missing plan %s", plan.ID)
		}
		if spec.Title == "" {
			spec.Title = file.NextSteps.Title
		}
		spec.Color = file.NextSteps.Color
		next, err := compileEmbed("next_steps_"+string(plan.ID), spec, "")
		if err != nil {
			return nil, err
		}
		o.nextSteps[plan.ID] = next
	}

	info, err := compileEmbed("info", file.Info, "")
	if err != nil {
		return nil, err
	}
	o.info = info

	return o, nil
}

// Render builds the welcome, next steps and information embeds for a plan.
// Fields that need a booking link are dropped when none is configured.
func (o *Onboarding) Render(data OnboardingData) ([]Embed, error) {
	welcome, ok := o.welcome[data.Plan.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownPlan, data.Plan.ID)
	}
	next := o.nextSteps[data.Plan.ID]

	embeds := make([]Embed, 0, 3)
	for _, c := range []compiledEmbed{welcome, next, o.info} {
		embed, err := c.render(data)
		if err != nil {
			return nil, err
		}
		embeds = append(embeds, embed)
	}
	return embeds, nil
}

func compileEmbed(name string, spec embedSpec, footer string) (compiledEmbed, error) {
	c := compiledEmbed{color: spec.Color, footer: footer}

	var err error
	if c.title, err = parse(name+"_title", spec.Title); err != nil {
		return compiledEmbed{}, err
	}
	if c.description, err = parse(name+"_description", spec.Description); err != nil {
		return compiledEmbed{}, err
	}

	for i, f := range spec.Fields {
		field := compiledField{inline: f.Inline, requiresBooking: f.RequiresBooking}
		if field.name, err = parse(fmt.Sprintf("%s_field%d_name", name, i), f.Name); err != nil {
			return compiledEmbed{}, err
		}
		if field.value, err = parse(fmt.Sprintf("%s_field%d_value", name, i), f.Value); err != nil {
			return compiledEmbed{}, err
		}
		c.fields = append(c.fields, field)
	}
	return c, nil
}

func parse(name, text string) (*template.Template, error) {
	tmpl, err := template.New(name).Funcs(funcMap).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", name, err)
	}
	return tmpl, nil
}

func (c compiledEmbed) render(data OnboardingData) (Embed, error) {
	var embed Embed
	var err error

	if embed.Title, err = execute(c.title, data); err != nil {
		return Embed{}, err
	}
	if embed.Description, err = execute(c.description, data); err != nil {
		return Embed{}, err
	}
	embed.Color = c.color
	if c.footer != "" {
		embed.Footer = &EmbedFooter{Text: c.footer}
	}

	for _, f := range c.fields {
		if f.requiresBooking && data.BookingURL == "" {
			continue
		}
		name, err := execute(f.name, data)
		if err != nil {
			return Embed{}, err
		}
		value, err := execute(f.value, data)
		if err != nil {
			return Embed{}, err
		}
		embed.Fields = append(embed.Fields, EmbedField{Name: name, Value: value, Inline: f.inline})
	}

	return embed, nil
}

func execute(tmpl *template.Template, data OnboardingData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template %s: %w", tmpl.Name(), err)
	}
	return strings.TrimSpace(buf.String()), nil
}

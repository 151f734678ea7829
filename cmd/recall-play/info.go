package main

import (
	"fmt"
	"os"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/spf13/cobra"
	"github.com/vsariola/recall"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const infoTemplate = `{{range $i, $u := .Units -}}
{{$i}}. {{$u.Name | default "(unnamed)"}}
   pads: {{$u.InputPads}} in, {{$u.OutputPads}} out
   audio channels: {{$u.AudioChannels}} in, {{outputChannels $u}} out ({{$u.FanOut}})
   abilities: {{scopes $u.Abilities | join ", "}}
{{- range $u.Audio}}
   audio   {{.Name | printf "%-12s"}} {{.Kind}}{{with .Plugin}} ({{.}}){{end}}
{{- end}}
{{- range $u.Input}}
   input   {{.Name | printf "%-12s"}} {{.Kind}}{{with .Plugin}} ({{.}}){{end}}
{{- end}}
{{- range $u.Output}}
   output  {{.Name | printf "%-12s"}} {{.Kind}}{{with .Plugin}} ({{.}}){{end}}
{{- end}}
{{- range $u.Channels}}
   channel {{.Template.Name | printf "%-12s"}} {{.Template.Kind}} at {{.Side}} {{.Pad}}:{{.AudioChannel}}{{if .Override}} override{{end}}
{{- end}}
{{end}}`

var infoCmd = &cobra.Command{
	Use:   "info <setup.yml>",
	Short: "Show the audio units and templates of a setup",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		s, err := loadSetup(args[0])
		if err != nil {
			return err
		}
		for i := range s.Units {
			if err := s.Units[i].Validate(); err != nil {
				return err
			}
		}
		t, err := template.New("info").Funcs(sprig.TxtFuncMap()).Funcs(infoFuncs()).Parse(infoTemplate)
		if err != nil {
			return fmt.Errorf("info template: %w", err)
		}
		return t.Execute(os.Stdout, s)
	},
}

func infoFuncs() template.FuncMap {
	title := cases.Title(language.English)
	return template.FuncMap{
		"scopes": func(m recall.ScopeMask) []string {
			var ret []string
			for s := range m.Scopes {
				ret = append(ret, title.String(s.String()))
			}
			return ret
		},
		"outputChannels": func(u recall.UnitSetup) int {
			return u.OutputChannels()
		},
	}
}

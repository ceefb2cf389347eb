package cloudfile

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"

	sprig "github.com/go-task/slim-sprig/v3"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

type ReadOptions struct {
	// Template parameters, available as .Params
	Params map[string]string
}

type UnmarshalError struct {
	error
	Source string
}

func Read(file string, options ReadOptions) (*Cloudfile, error) {
	buf, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return Parse(string(buf), options)
}

// Parse evaluates source as a template, then decodes and validates the result.
func Parse(source string, options ReadOptions) (*Cloudfile, error) {
	source, err := evaluateTemplate(source, options)
	if err != nil {
		return nil, fmt.Errorf("evaluate template: %w", err)
	}

	var cloudfile Cloudfile
	decoder := yaml.NewDecoder(strings.NewReader(source))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cloudfile); err != nil {
		return nil, UnmarshalError{fmt.Errorf("unmarshal: %w", err), source}
	}
	if err := cloudfile.Validate(); err != nil {
		return nil, UnmarshalError{fmt.Errorf("validate: %w", err), source}
	}

	return &cloudfile, nil
}

type TemplateData struct {
	Env    map[string]string
	Params map[string]string
}

func evaluateTemplate(source string, options ReadOptions) (string, error) {
	tmpl, err := template.New("cloudfile").
		Funcs(sprig.TxtFuncMap()).
		Funcs(template.FuncMap{
			"env": os.Getenv,
		}).
		Option("missingkey=error").
		Parse(source)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	data := TemplateData{
		Env: lo.SliceToMap(os.Environ(), func(item string) (key, value string) {
			key, value, _ = strings.Cut(item, "=")
			return
		}),
		Params: lo.Ternary(options.Params != nil, options.Params, map[string]string{}),
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}

package prompts

import (
	"reflect"
	"strings"
	"testing"
)

func TestRenderSubstitutesAndKeepsUnknown(t *testing.T) {
	e := NewEngine()
	e.Register(&Template{
		Name:    "greeting",
		Content: "Hello {{name}}, welcome to {{place}}.",
	})

	got, err := e.Render("greeting", map[string]string{"name": "Ava"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "Hello Ava, welcome to {{place}}." {
		t.Fatalf("Render = %q", got)
	}

	if _, err := e.Render("missing", nil); err == nil {
		t.Fatal("expected error for unknown template")
	}
}

func TestRegisterInfersVariables(t *testing.T) {
	e := NewEngine()
	e.Register(&Template{
		Name:    "vars",
		Content: "{{a}} then {{b}} then {{a}} again",
	})
	tmpl, err := e.Get("vars")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !reflect.DeepEqual(tmpl.Variables, []string{"a", "b"}) {
		t.Fatalf("variables = %v, want [a b]", tmpl.Variables)
	}
}

func TestDefaultTemplatesPresent(t *testing.T) {
	e := NewEngine()
	for _, name := range []string{
		"scenario_generation",
		"opening_narration",
		"round_resolution",
		"epilogue",
		"opening_image",
	} {
		if _, err := e.Get(name); err != nil {
			t.Fatalf("default template %s missing: %v", name, err)
		}
	}
}

func TestFormatList(t *testing.T) {
	if got := FormatList(nil); got != "(none)" {
		t.Fatalf("FormatList(nil) = %q", got)
	}
	got := FormatList([]string{"first", "second"})
	if got != "1. first\n2. second" {
		t.Fatalf("FormatList = %q", got)
	}
	if strings.HasSuffix(got, "\n") {
		t.Fatal("trailing newline not trimmed")
	}
}

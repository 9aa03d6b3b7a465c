package josh

import "testing"

func TestParseJSHCBasicAssignment(t *testing.T) {
	section, err := ParseJSHC("sim", "growthRate = 0.2\n# a comment\n\nmaxPop = 500\n")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	v, ok := section.Get("growthRate")
	if !ok || v != "0.2" {
		t.Errorf("expected growthRate=0.2, got %q ok=%v", v, ok)
	}
	v, ok = section.Get("maxPop")
	if !ok || v != "500" {
		t.Errorf("expected maxPop=500, got %q ok=%v", v, ok)
	}
}

func TestParseJSHCElseDefault(t *testing.T) {
	section, err := ParseJSHC("sim", "threshold = 10 else 5\n")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	v, ok := section.Get("threshold")
	if !ok || v != "10" {
		t.Errorf("expected the declared value 10, got %q ok=%v", v, ok)
	}
}

func TestParseJSHCMissingEqualsFails(t *testing.T) {
	if _, err := ParseJSHC("sim", "not a valid line\n"); err == nil {
		t.Errorf("expected an error for a line with no '='")
	}
}

func TestConfigSectionGetValueTyped(t *testing.T) {
	section, err := ParseJSHC("sim", "count = 7\nrate = 0.5\nenabled = true\nlabel = hello\n")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if v, ok := section.GetValue("count", KindInt, EmptyUnits); !ok || v.Int() != 7 {
		t.Errorf("expected count=7, got %v ok=%v", v, ok)
	}
	if v, ok := section.GetValue("rate", KindDouble, EmptyUnits); !ok || v.Double() != 0.5 {
		t.Errorf("expected rate=0.5, got %v ok=%v", v, ok)
	}
	if v, ok := section.GetValue("enabled", KindBoolean, EmptyUnits); !ok || !v.Bool() {
		t.Errorf("expected enabled=true, got %v ok=%v", v, ok)
	}
	if v, ok := section.GetValue("label", KindString, EmptyUnits); !ok || v.Str() != "hello" {
		t.Errorf("expected label=hello, got %v ok=%v", v, ok)
	}
}

func TestConfigSectionGetValueMissingPath(t *testing.T) {
	section, _ := ParseJSHC("sim", "count = 7\n")
	if _, ok := section.GetValue("nonexistent", KindInt, EmptyUnits); ok {
		t.Errorf("expected ok=false for a path never declared")
	}
}

func TestConfigLoadAndSection(t *testing.T) {
	c := NewConfig()
	if err := c.Load("sim", "growthRate = 0.2\n"); err != nil {
		t.Fatalf("load: %v", err)
	}
	section, ok := c.Section("sim")
	if !ok {
		t.Fatalf("expected section 'sim' to be registered")
	}
	if v, _ := section.Get("growthRate"); v != "0.2" {
		t.Errorf("expected growthRate=0.2, got %q", v)
	}
	if _, ok := c.Section("nonexistent"); ok {
		t.Errorf("expected no section for an unregistered name")
	}
}

func TestConfigSectionPathsListsEveryDeclaredPath(t *testing.T) {
	section, err := ParseJSHC("sim", "a = 1\nb = 2\n")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	paths := section.Paths()
	if len(paths) != 2 {
		t.Errorf("expected 2 paths, got %d: %v", len(paths), paths)
	}
}

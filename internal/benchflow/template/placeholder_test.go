package template

import (
	"reflect"
	"testing"
)

func TestBindTimeRefs(t *testing.T) {
	refs := BindTimeRefs("run $[[names]] with $[[greeting]] and $[[names]] again")
	want := []string{"names", "greeting"}
	if !reflect.DeepEqual(refs, want) {
		t.Errorf("BindTimeRefs = %v, want %v", refs, want)
	}

	if got := BindTimeRefs("no placeholders ${here}"); got != nil {
		t.Errorf("BindTimeRefs on run-time syntax = %v, want nil", got)
	}
}

func TestRunTimeRefs(t *testing.T) {
	refs := RunTimeRefs("python run.py --greeting ${greeting} --sleeptime ${sleeptime}")
	want := []string{"greeting", "sleeptime"}
	if !reflect.DeepEqual(refs, want) {
		t.Errorf("RunTimeRefs = %v, want %v", refs, want)
	}

	if got := RunTimeRefs("$[[bindtime]] only"); got != nil {
		t.Errorf("RunTimeRefs on bind-time syntax = %v, want nil", got)
	}
}

func TestSubstituteBindTime(t *testing.T) {
	values := map[string]string{"greeting": "Hello", "names": "staged/names.txt"}
	resolve := func(name string) (string, bool) {
		v, ok := values[name]
		return v, ok
	}

	got := SubstituteBindTime("cat $[[names]] | greet $[[greeting]]", resolve)
	if got != "cat staged/names.txt | greet Hello" {
		t.Errorf("SubstituteBindTime = %q", got)
	}

	// Unknown names stay in place for the residual check.
	got = SubstituteBindTime("echo $[[unknown]]", resolve)
	if got != "echo $[[unknown]]" {
		t.Errorf("unknown placeholder should be untouched, got %q", got)
	}
	if !HasBindTimeRef(got) {
		t.Error("HasBindTimeRef should detect the residual placeholder")
	}
}

func TestSubstituteRunTime(t *testing.T) {
	resolve := func(name string) (string, bool) {
		if name == "greeting" {
			return "Hi", true
		}
		return "", false
	}

	got := SubstituteRunTime("say ${greeting} ${twice}", resolve)
	if got != "say Hi ${twice}" {
		t.Errorf("SubstituteRunTime = %q", got)
	}
	if !HasRunTimeRef(got) {
		t.Error("HasRunTimeRef should detect the residual placeholder")
	}
}

func TestIsBindTimePlaceholder(t *testing.T) {
	if name, ok := IsBindTimePlaceholder("$[[names]]"); !ok || name != "names" {
		t.Errorf("IsBindTimePlaceholder($[[names]]) = %q, %v", name, ok)
	}
	if _, ok := IsBindTimePlaceholder("data/$[[names]]"); ok {
		t.Error("partial placeholder string should not match wholesale")
	}
	if _, ok := IsBindTimePlaceholder("literal.txt"); ok {
		t.Error("literal string should not match")
	}
}

func TestPlaceholderNamespacesAreDisjoint(t *testing.T) {
	s := "mix $[[bind]] and ${run}"

	if got := BindTimeRefs(s); !reflect.DeepEqual(got, []string{"bind"}) {
		t.Errorf("BindTimeRefs = %v", got)
	}
	if got := RunTimeRefs(s); !reflect.DeepEqual(got, []string{"run"}) {
		t.Errorf("RunTimeRefs = %v", got)
	}
}

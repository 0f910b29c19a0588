package state

import (
	"reflect"
	"testing"
)

func TestParseKeyValueXMLResponseBlock(t *testing.T) {
	t.Parallel()

	text := `Some preamble the model added.
<response>
<providers>KNOWLEDGE, OPENSCHOLAR</providers>
<actions>REPLY</actions>
</response>`

	got := ParseKeyValueXML(text)
	if got == nil {
		t.Fatal("expected parsed map, got nil")
	}
	if !reflect.DeepEqual(got["providers"], []string{"KNOWLEDGE", "OPENSCHOLAR"}) {
		t.Fatalf("unexpected providers: %#v", got["providers"])
	}
	if !reflect.DeepEqual(got["actions"], []string{"REPLY"}) {
		t.Fatalf("unexpected actions: %#v", got["actions"])
	}
}

func TestParseKeyValueXMLEmptyLists(t *testing.T) {
	t.Parallel()

	got := ParseKeyValueXML("<response><providers></providers><actions></actions></response>")
	if got == nil {
		t.Fatal("expected parsed map, got nil")
	}
	if actions, ok := got["actions"].([]string); !ok || len(actions) != 0 {
		t.Fatalf("expected empty actions list, got %#v", got["actions"])
	}
}

func TestParseKeyValueXMLFallbackBlock(t *testing.T) {
	t.Parallel()

	got := ParseKeyValueXML("<actions>HYPOTHESIS</actions>\n<providers></providers>")
	if got == nil {
		t.Fatal("expected naked tag pairs to parse")
	}
	if !reflect.DeepEqual(got["actions"], []string{"HYPOTHESIS"}) {
		t.Fatalf("unexpected actions: %#v", got["actions"])
	}
}

func TestParseKeyValueXMLEntitiesAndScalars(t *testing.T) {
	t.Parallel()

	got := ParseKeyValueXML("<response><thought>a &amp; b &lt;ok&gt;</thought><simple>TRUE</simple></response>")
	if got["thought"] != "a & b <ok>" {
		t.Fatalf("entities not unescaped: %#v", got["thought"])
	}
	if got["simple"] != true {
		t.Fatalf("simple flag not parsed: %#v", got["simple"])
	}
}

func TestParseKeyValueXMLMismatchedTagsSkipped(t *testing.T) {
	t.Parallel()

	got := ParseKeyValueXML("<response><actions>REPLY</providers><thought>t</thought></response>")
	if got == nil {
		t.Fatal("expected remaining pairs to parse")
	}
	if _, exists := got["actions"]; exists {
		t.Fatalf("mismatched pair should be dropped: %#v", got)
	}
	if got["thought"] != "t" {
		t.Fatalf("well-formed pair should survive: %#v", got)
	}
}

func TestParseKeyValueXMLNothingParseable(t *testing.T) {
	t.Parallel()

	for _, text := range []string{"", "plain prose, no tags", "<response></response>"} {
		if got := ParseKeyValueXML(text); got != nil {
			t.Fatalf("ParseKeyValueXML(%q) = %#v, want nil", text, got)
		}
	}
}

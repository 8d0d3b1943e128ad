package flowfile

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ormasoftchile/flowsim/pkg/graph"
	"github.com/ormasoftchile/flowsim/pkg/validate"
)

func TestLoad_FormatsAgree(t *testing.T) {
	want, err := Load("../../testdata/flows/age.json")
	if err != nil {
		t.Fatalf("Load json: %v", err)
	}
	if want.Name != "age-check" || len(want.Nodes) != 5 || len(want.Edges) != 4 {
		t.Fatalf("json document = %+v", want)
	}
	if want.Edges[0].Branch != graph.BranchNone {
		t.Errorf("null sourceHandle should decode as no branch, got %q", want.Edges[0].Branch)
	}

	for _, name := range []string{"age.yaml", "age.hcl"} {
		got, err := Load("../../testdata/flows/" + name)
		if err != nil {
			t.Errorf("Load %s: %v", name, err)
			continue
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("%s differs from age.json (-json +%s):\n%s", name, name, diff)
		}
	}
}

func TestLoad_Graph(t *testing.T) {
	doc, err := Load("../../testdata/flows/age.yaml")
	if err != nil {
		t.Fatal(err)
	}
	g := doc.Graph()
	if g.Name() != "age-check" {
		t.Errorf("name = %q", g.Name())
	}
	if res := validate.Validate(g); !res.IsValid {
		t.Errorf("age flow invalid: %v", res.Errors)
	}
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		file  string
		phase string
		path  string
	}{
		{"unknown-fields.yaml", "structural", ""},
		{"bad-kind.json", "semantic", "nodes/0/type"},
		{"bad-branch.hcl", "semantic", "edges/0/sourceHandle"},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			_, err := Load("../../testdata/flows/invalid/" + tt.file)
			var le *LoadError
			if !errors.As(err, &le) {
				t.Fatalf("err = %v, want *LoadError", err)
			}
			if !strings.HasSuffix(le.File, tt.file) {
				t.Errorf("file = %q", le.File)
			}
			found := false
			for _, p := range le.Problems {
				if p.Phase == tt.phase && p.Path == tt.path {
					found = true
				}
			}
			if !found {
				t.Errorf("no %s problem at %q in %v", tt.phase, tt.path, le.Problems)
			}
		})
	}
}

func TestLoad_UnsupportedFormat(t *testing.T) {
	if _, err := Load("flow.txt"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("err = %v, want ErrUnsupportedFormat", err)
	}
	if err := Save(filepath.Join(t.TempDir(), "flow.xml"), &Document{}); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("save err = %v, want ErrUnsupportedFormat", err)
	}
}

func sampleGraph() graph.Graph {
	return graph.New([]graph.Node{
		{ID: "start", Kind: graph.KindStart, Data: graph.Data{Label: "Begin"}},
		{ID: "check", Kind: graph.KindCondition, Position: graph.Position{Y: 150}, Data: graph.Data{Expression: "${region} == 'EU'"}},
		{ID: "fn", Kind: graph.KindFunction, Position: graph.Position{X: -150, Y: 300}, Data: graph.Data{Body: "x = 1\nreturn x + 1"}},
		{ID: "eu", Kind: graph.KindEnd, Position: graph.Position{X: -150, Y: 450}, Data: graph.Data{LinkTarget: "EuropeRule", Label: graph.LinkLabel("EuropeRule")}},
		{ID: "other", Kind: graph.KindEnd, Position: graph.Position{X: 150, Y: 300}, Data: graph.Data{Label: "Other"}},
	}, []graph.Edge{
		{ID: "e1", Source: "start", Target: "check"},
		{ID: "e2", Source: "check", Target: "fn", Branch: graph.BranchTrue},
		{ID: "e3", Source: "fn", Target: "eu"},
		{ID: "e4", Source: "check", Target: "other", Branch: graph.BranchFalse},
	}, graph.WithName("regions"))
}

func TestSave_RoundTrip(t *testing.T) {
	g := sampleGraph()
	res := validate.Validate(g)
	doc := New(g, &res)
	dir := t.TempDir()

	for _, ext := range []string{".json", ".yaml", ".hcl"} {
		t.Run(ext, func(t *testing.T) {
			path := filepath.Join(dir, "regions"+ext)
			if err := Save(path, doc); err != nil {
				t.Fatalf("Save: %v", err)
			}
			got, err := Load(path)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			want := *doc
			if ext == ".hcl" {
				want.Validation = nil
			}
			if diff := cmp.Diff(&want, got); diff != "" {
				t.Errorf("round trip (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNew_EmbedsValidation(t *testing.T) {
	g := sampleGraph().RemoveEdge("e4")
	res := validate.Validate(g)
	doc := New(g, &res)
	if doc.Version != Version || doc.CreatedAt.IsZero() {
		t.Errorf("doc header = %q %v", doc.Version, doc.CreatedAt)
	}
	if doc.Validation == nil || doc.Validation.IsValid {
		t.Errorf("validation = %+v, want an invalid result", doc.Validation)
	}
	if problems := ValidateDocument(doc); len(problems) != 0 {
		t.Errorf("problems = %v", problems)
	}
}

func TestGenerateFlowJSONSchema(t *testing.T) {
	data, err := GenerateFlowJSONSchema()
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{schemaID, `"condition"`, `"sourceHandle"`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("schema missing %s", want)
		}
	}
}

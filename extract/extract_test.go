package extract

import (
	"testing"

	"github.com/use-agent/tcees/models"
)

func TestPick(t *testing.T) {
	a, b := Node{Text: "a"}, Node{Text: "b"}
	tests := []struct {
		name   string
		nodes  []Node
		nth    int
		want   Node
		status Status
	}{
		{"none", nil, 0, Node{}, Missing},
		{"single", []Node{a}, 0, a, Found},
		{"single expected, several found", []Node{a, b}, 0, Node{}, Ambiguous},
		{"list index", []Node{a, b}, 2, b, Found},
		{"list too short", []Node{a}, 2, Node{}, Short},
		{"list empty", nil, 3, Node{}, Missing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, status := Pick(tt.nodes, tt.nth)
			if status != tt.status || got != tt.want {
				t.Errorf("Pick = (%+v, %s), want (%+v, %s)", got, status, tt.want, tt.status)
			}
		})
	}
}

func TestSignature(t *testing.T) {
	fields := []string{"a", "b", "c", "d"}
	sig, resolved := Signature(fields, map[string]string{
		"a": models.StatusOK,
		"b": models.StatusFailed,
		"d": "",
	})
	if sig != "10??" || resolved != 2 {
		t.Errorf("Signature = (%q, %d), want (\"10??\", 2)", sig, resolved)
	}
}

func TestCompileSelectors(t *testing.T) {
	if err := CompileSelectors([]string{"#validacoes-arquivo div.d-inline-block", `input[type="file"]`}); err != nil {
		t.Errorf("valid selectors rejected: %v", err)
	}
	if err := CompileSelectors([]string{"div[["}); err == nil {
		t.Error("invalid selector accepted")
	}
	defer func() {
		if recover() == nil {
			t.Error("MustCompileSelectors did not panic")
		}
	}()
	MustCompileSelectors("div[[")
}

const page = `<html><head><title>t</title><script>var x = 1;</script></head><body>
<div id="validacoes-arquivo">
  <div class="row text-center">
    <div class="d-inline-block"><i class="fa fa-check text-success"></i></div>
    <div class="d-inline-block"><i class="fa fa-close text-danger"></i> Não assinado</div>
  </div>
</div>
<p id="valor">  R$   1.500,00 </p>
</body></html>`

func TestDocument_Query(t *testing.T) {
	doc, err := Parse(page)
	if err != nil {
		t.Fatal(err)
	}

	cells, err := doc.Query("#validacoes-arquivo div.d-inline-block")
	if err != nil {
		t.Fatal(err)
	}
	if len(cells) != 2 {
		t.Fatalf("got %d cells, want 2", len(cells))
	}
	if got := cells[1].Text; got != "Não assinado" {
		t.Errorf("cell text = %q", got)
	}
	if got := cells[0].Value(models.SourceHTML); got != `<i class="fa fa-check text-success"></i>` {
		t.Errorf("cell html = %q", got)
	}

	valor, _ := doc.Query("#valor")
	if n, status := Pick(valor, 0); status != Found || n.Text != "R$ 1.500,00" {
		t.Errorf("Pick(#valor) = (%+v, %s)", n, status)
	}

	if !doc.Has("#valor") || doc.Has("#nope") {
		t.Error("Has returned the wrong answer")
	}
	if _, err := doc.Query("div[["); err == nil {
		t.Error("invalid selector accepted")
	}
}

func TestDocument_Text(t *testing.T) {
	doc, err := Parse(page)
	if err != nil {
		t.Fatal(err)
	}
	want := "Não assinado R$ 1.500,00"
	if got := doc.Text(); got != want {
		t.Errorf("Text() = %q, want %q", got, want)
	}
	// Text must not alter the document.
	if nodes, _ := doc.Query("script"); len(nodes) != 1 {
		t.Errorf("script removed from the document")
	}
}

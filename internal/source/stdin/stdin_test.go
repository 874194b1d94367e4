package stdin

import (
	"io/ioutil"
	"strings"
	"testing"

	"github.com/anjor/palprime/internal/source"
)

func TestSingleUse(t *testing.T) {
	src, errs := NewSource([]string{"stdin"}, &source.PpConfig{})
	if len(errs) != 0 {
		t.Fatal(errs)
	}
	src.(*stdinSource).in = strings.NewReader("digits")

	rc, err := src.Open(7)
	if err != nil {
		t.Fatal(err)
	}
	if b, _ := ioutil.ReadAll(rc); string(b) != "digits" {
		t.Errorf("read %q", b)
	}
	if _, err := src.Open(8); err == nil {
		t.Error("second open should fail")
	}
	if src.Locate(7) != "-" {
		t.Errorf("Locate() = %s", src.Locate(7))
	}
}

func TestArgs(t *testing.T) {
	if _, errs := NewSource([]string{"stdin", "--x"}, nil); len(errs) == 0 {
		t.Error("expected an error for sub-options")
	}
	if _, errs := NewSource([]string{"stdin"}, &source.PpConfig{Location: "/tmp/x"}); len(errs) == 0 {
		t.Error("expected an error for a location")
	}
}

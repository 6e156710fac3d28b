package theme

import (
	"bytes"
	"strings"
	"testing"
)

func TestBannerPlainHasNoEscapes(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf, true)
	if strings.Contains(buf.String(), "\033[") {
		t.Fatalf("plain banner contains color codes: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "relational tables") {
		t.Fatalf("unexpected banner %q", buf.String())
	}
	if !strings.Contains(Banner(false), cyan) {
		t.Fatal("colored banner lacks color codes")
	}
}

package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain", "hello   world", "hello world"},
		{"paragraphs", "<p>One</p><p>Two</p>", "One Two"},
		{"entities", "<b>Tom &amp; Jerry</b>", "Tom & Jerry"},
		{"script dropped", "<p>ok</p><script>alert(1)</script>", "ok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripHTML(tt.in))
		})
	}
}

func TestCleanContentRemovesConsentBoilerplate(t *testing.T) {
	in := "<p>Début.</p><div>Ce contenu est bloqué car vous n'avez pas accepté les cookies. Gérer mes choix</div><p>Fin.</p>"
	assert.Equal(t, "Début. Fin.", CleanContent(in))
}

func TestNormalizeQuotes(t *testing.T) {
	assert.Equal(t, "'a' 'b' 'c'", NormalizeQuotes("\"a\" “b” «c»"))
}

func TestDecodeEntities(t *testing.T) {
	assert.Equal(t, "l'été & co", DecodeEntities("  l&#039;été &amp; co "))
	assert.Equal(t, "a'b", DecodeEntities("a&#0039;b"))
	assert.Equal(t, "a\nb", DecodeEntities("a\x00\n\x07b"))
}

func TestStripPrefixes(t *testing.T) {
	prefixes := []string{"Actualité : ", "Bon plan : "}
	assert.Equal(t, "Nouveau processeur", StripPrefixes("Actualité : Nouveau processeur", prefixes))
	assert.Equal(t, "Sans préfixe", StripPrefixes("Sans préfixe", prefixes))
	assert.Equal(t, "x", StripPrefixes("x", nil))
}

func TestHead(t *testing.T) {
	assert.Equal(t, "éé", Head("ééé", 2))
	assert.Equal(t, "abc", Head("abc", 10))
	assert.Equal(t, "", Head("abc", 0))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hell…", TruncateEnd("hello world", 5))
	assert.Equal(t, "short", TruncateEnd("short", 5))
	assert.Equal(t, "…", TruncateEnd("hello", 1))

	assert.Equal(t, "ht…om", TruncateMiddle("https://example.com", 5))
	assert.Equal(t, "abc", TruncateMiddle("abc", 3))
	assert.Equal(t, "", TruncateMiddle("abc", 0))
}

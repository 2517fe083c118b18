package oracle

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pders01/newsroom/internal/textutil"
)

// Prompt holds what is sent for one candidate.
type Prompt struct {
	Title         string
	Content       string
	ContextTitles []string
}

// Render formats the user message. Content is cut to budget characters and
// prior titles are numbered from 1.
func (p Prompt) Render(budget int, language string) string {
	if language == "" {
		language = "français"
	}

	var b strings.Builder
	b.WriteString("Tu es un assistant spécialisé dans l'analyse d'articles d'actualité.\n")
	b.WriteString("Tu réponds uniquement au format JSON demandé.\n\n")

	b.WriteString("=== Article à analyser ===\n")
	fmt.Fprintf(&b, "TITRE: %s\n", p.Title)
	fmt.Fprintf(&b, "CONTENU: %s\n\n", textutil.Head(p.Content, budget))

	if len(p.ContextTitles) > 0 {
		b.WriteString("=== Articles précédents ===\n")
		for i, t := range p.ContextTitles {
			if strings.TrimSpace(t) == "" {
				t = "Sans titre"
			}
			fmt.Fprintf(&b, "%d. %s\n", i+1, t)
		}
		b.WriteString("\n")
	}

	b.WriteString(`=== Critères d'analyse ===
1. SIMILARITÉ
- Vérifier si l'article est similaire à un des articles récents listés
- Un article est considéré comme similaire s'il traite du même sujet principal
- Prendre en compte le titre et le contenu

2. CONTENU COMMERCIAL
- Mots promotionnels: "promo", "promotion", "offre", "soldes", "réduction"
- Symboles monétaires et pourcentages
- Mentions commerciales
- Références temporelles
- VPN et abonnements

3. IMPORTANCE DE L'ARTICLE (0.0 à 10.0)
`)
	fmt.Fprintf(&b, "4. RÉSUMÉ (factuel, très détaillé et précis, en %s)\n", language)
	fmt.Fprintf(&b, "5. TAG principal (1 tag en %s, commençant par une majuscule)\n\n", language)

	b.WriteString(`Répondre EXACTEMENT dans ce format JSON:
{
  "isDouble": true/false,
  "similarArticle": "titre de l'article similaire ou null",
  "similarityReason": "explication courte de la similarité ou null",
  "isCommercial": true/false,
  "significanceScore": <nombre entre 0.0 et 10.0>,
`)
	fmt.Fprintf(&b, "  \"summary\": \"<résumé en %s>\",\n", language)
	b.WriteString("  \"tags\": [\"tag1\"]\n}\n")
	return b.String()
}

// EstimateTokens approximates the token count of s for logging, at about four
// characters per token.
func EstimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	return (n + 3) / 4
}

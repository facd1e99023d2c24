package render

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message keys. The English text doubles as the key.
const (
	msgTitle         = "Resumail — Analysis report"
	msgSummary       = "Overall summary"
	msgNoSummary     = "No summary available."
	msgStats         = "General statistics"
	msgPositive      = "Positive"
	msgNeutral       = "Neutral"
	msgNegative      = "Negative"
	msgOther         = "Other"
	msgTotal         = "Total emails analysed"
	msgHighlights    = "Recurring topics"
	msgNoHighlights  = "No highlights detected."
	msgSubReports    = "Detailed mini-reports"
	msgNoSubReports  = "No sub-reports available."
	msgNoContent     = "No content."
	msgFooter        = "Report generated automatically by"
	msgDateLayout    = "date-layout"
	msgAnonymousUser = "anonymous-viewer"
	msgChartTitle    = "Sentiment breakdown"
	msgChartNoData   = "No classified emails"
)

var supportedLanguages = []language.Tag{language.French, language.English}

var languageMatcher = language.NewMatcher(supportedLanguages)

var labelCatalog = mustCatalog()

func mustCatalog() *catalog.Builder {
	b, err := buildCatalog()
	if err != nil {
		panic(err)
	}
	return b
}

func buildCatalog() (*catalog.Builder, error) {
	b := catalog.NewBuilder(catalog.Fallback(language.French))
	fr := map[string]string{
		msgTitle:         "Resumail — Rapport d’analyse",
		msgSummary:       "Résumé global",
		msgNoSummary:     "Aucun résumé disponible.",
		msgStats:         "Statistiques générales",
		msgPositive:      "Positifs",
		msgNeutral:       "Neutres",
		msgNegative:      "Négatifs",
		msgOther:         "Autres",
		msgTotal:         "Total d’emails analysés",
		msgHighlights:    "Points récurrents",
		msgNoHighlights:  "Aucun point marquant détecté.",
		msgSubReports:    "Mini-rapports détaillés",
		msgNoSubReports:  "Aucun mini-rapport disponible.",
		msgNoContent:     "Aucun contenu.",
		msgFooter:        "Rapport généré automatiquement par",
		msgDateLayout:    "02/01/2006 15:04:05",
		msgAnonymousUser: "—",
		msgChartTitle:    "Répartition des sentiments",
		msgChartNoData:   "Aucun email classé",
	}
	en := map[string]string{
		msgDateLayout:    "Jan 2, 2006 15:04:05",
		msgAnonymousUser: "—",
	}
	for _, key := range []string{
		msgTitle, msgSummary, msgNoSummary, msgStats, msgPositive, msgNeutral, msgNegative, msgOther,
		msgTotal, msgHighlights, msgNoHighlights, msgSubReports, msgNoSubReports, msgNoContent,
		msgFooter, msgChartTitle, msgChartNoData,
	} {
		if _, ok := en[key]; !ok {
			en[key] = key
		}
	}
	for tag, messages := range map[language.Tag]map[string]string{language.French: fr, language.English: en} {
		for key, value := range messages {
			if err := b.SetString(tag, key, value); err != nil {
				return nil, fmt.Errorf("catalog %s %q: %w", tag, key, err)
			}
		}
	}
	return b, nil
}

// Labels holds every fixed string the document needs for one language.
type Labels struct {
	Lang         string
	Title        string
	Summary      string
	NoSummary    string
	Stats        string
	Positive     string
	Neutral      string
	Negative     string
	Other        string
	Total        string
	Highlights   string
	NoHighlights string
	SubReports   string
	NoSubReports string
	NoContent    string
	Footer       string
	DateLayout   string
	Anonymous    string
	ChartTitle   string
	ChartNoData  string
}

// LabelsFor resolves labels for a BCP 47 locale, falling back to French.
func LabelsFor(locale string) Labels {
	tag := matchLanguage(locale)
	p := printerFor(tag)
	base, _ := tag.Base()
	return Labels{
		Lang:         base.String(),
		Title:        p.Sprintf(msgTitle),
		Summary:      p.Sprintf(msgSummary),
		NoSummary:    p.Sprintf(msgNoSummary),
		Stats:        p.Sprintf(msgStats),
		Positive:     p.Sprintf(msgPositive),
		Neutral:      p.Sprintf(msgNeutral),
		Negative:     p.Sprintf(msgNegative),
		Other:        p.Sprintf(msgOther),
		Total:        p.Sprintf(msgTotal),
		Highlights:   p.Sprintf(msgHighlights),
		NoHighlights: p.Sprintf(msgNoHighlights),
		SubReports:   p.Sprintf(msgSubReports),
		NoSubReports: p.Sprintf(msgNoSubReports),
		NoContent:    p.Sprintf(msgNoContent),
		Footer:       p.Sprintf(msgFooter),
		DateLayout:   p.Sprintf(msgDateLayout),
		Anonymous:    p.Sprintf(msgAnonymousUser),
		ChartTitle:   p.Sprintf(msgChartTitle),
		ChartNoData:  p.Sprintf(msgChartNoData),
	}
}

// FormatCount prints n with the digit grouping of the matched locale, e.g.
// "12,345" in English.
func FormatCount(locale string, n int) string {
	return printerFor(matchLanguage(locale)).Sprintf("%d", n)
}

func printerFor(tag language.Tag) *message.Printer {
	return message.NewPrinter(tag, message.Catalog(labelCatalog))
}

func matchLanguage(locale string) language.Tag {
	if locale == "" {
		return language.French
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return language.French
	}
	_, index, confidence := languageMatcher.Match(tag)
	if confidence == language.No {
		return language.French
	}
	return supportedLanguages[index]
}

package prompt

import (
	"text/template"

	"github.com/BestBeo/ChatbotLaw/internal/corpus"
)

// Templates are compiled once at init; a parse failure is a programming
// error and panics at startup rather than at query time.

const sourcesBlock = `{{range .Sources}}{{.Ref}} {{.Title}}{{if .Section}} ({{.Section}}){{end}}:
{{.Text}}

{{end}}`

const defaultBody = `You are a legal assistant. Answer the question using only the legal provisions quoted below. Cite provisions by their bracketed reference, e.g. [1]. If the provisions do not answer the question, say so plainly instead of guessing.

Legal provisions:
` + sourcesBlock + `Question: {{.Question}}

Answer:`

const taxBody = `You are a legal assistant specializing in tax law. Answer the question using only the tax provisions quoted below. Cite provisions by their bracketed reference, e.g. [1]. State applicable rates, deadlines and penalties exactly as written; if the provisions do not answer the question, say so plainly instead of guessing.

Tax provisions:
` + sourcesBlock + `Question: {{.Question}}

Answer:`

const trafficBody = `You are a legal assistant specializing in traffic law. Answer the question using only the traffic provisions quoted below. Cite provisions by their bracketed reference, e.g. [1]. State fines, license penalties and exemptions exactly as written; if the provisions do not answer the question, say so plainly instead of guessing.

Traffic provisions:
` + sourcesBlock + `Question: {{.Question}}

Answer:`

const laborBody = `You are a legal assistant specializing in labor law. Answer the question using only the labor provisions quoted below. Cite provisions by their bracketed reference, e.g. [1]. Distinguish employer and employee obligations where the provisions do; if the provisions do not answer the question, say so plainly instead of guessing.

Labor provisions:
` + sourcesBlock + `Question: {{.Question}}

Answer:`

const civilBody = `You are a legal assistant specializing in civil law. Answer the question using only the civil provisions quoted below. Cite provisions by their bracketed reference, e.g. [1]. If the provisions do not answer the question, say so plainly instead of guessing.

Civil provisions:
` + sourcesBlock + `Question: {{.Question}}

Answer:`

const criminalBody = `You are a legal assistant specializing in criminal law. Answer the question using only the criminal provisions quoted below. Cite provisions by their bracketed reference, e.g. [1]. Never speculate about guilt or sentencing beyond what the provisions state; if they do not answer the question, say so plainly instead of guessing.

Criminal provisions:
` + sourcesBlock + `Question: {{.Question}}

Answer:`

const noContextBody = `You are a legal assistant. No relevant legal provisions were found for the question below. Tell the user that no relevant provisions are available in the corpus and that you cannot answer without them. Do not invent legal content.

Question: {{.Question}}

Answer:`

var (
	defaultTemplate   = template.Must(template.New("default").Parse(defaultBody))
	noContextTemplate = template.Must(template.New("no-context").Parse(noContextBody))

	categoryTemplates = map[string]*template.Template{
		corpus.CategoryTax:      template.Must(template.New(corpus.CategoryTax).Parse(taxBody)),
		corpus.CategoryTraffic:  template.Must(template.New(corpus.CategoryTraffic).Parse(trafficBody)),
		corpus.CategoryLabor:    template.Must(template.New(corpus.CategoryLabor).Parse(laborBody)),
		corpus.CategoryCivil:    template.Must(template.New(corpus.CategoryCivil).Parse(civilBody)),
		corpus.CategoryCriminal: template.Must(template.New(corpus.CategoryCriminal).Parse(criminalBody)),
	}
)

package context

import (
	"bytes"
	"text/template"
)

// TopicPrompt is the system prompt for per-paragraph classification.
// Fields: .ActiveTitle
const TopicPrompt = `You watch a live event transcript one paragraph at a time and flag "hot moments": stretches where a new major subject is being presented.

Rules:
- A new major subject starting (an announcement, a launch, a reveal, a key argument) is a hot moment. Give it a short title.
- If the paragraph continues the subject already being discussed, it is still a hot moment and you must return the same title verbatim.
- Introductions, greetings, thanks, housekeeping, sponsor messages and generic Q&A are not hot moments.
{{- if .ActiveTitle}}
- The subject currently being tracked is titled: "{{.ActiveTitle}}".
{{- end}}

Reply with a single JSON object and nothing else:
{"isHotMoment": true|false, "momentTitle": "title or null", "continuation": true|false}`

// ContinuityPrompt compares two titles. Fields: .Active, .Proposed
const ContinuityPrompt = `Do these two titles from the same live event refer to the same subject?

Title A: {{.Active}}
Title B: {{.Proposed}}

Answer with exactly one word: true or false.`

// CopyPrompt drafts social posts for a finalized moment. Fields: .Title, .Text
const CopyPrompt = `You write social media copy for moments from a live event.

Moment title: {{.Title}}

Transcript of the moment:
{{.Text}}

Write four drafts and reply with a single JSON object and nothing else:
{
  "twitter": ["3 to 5 short posts forming a thread, each under 280 characters"],
  "facebook": "one long-form paragraph in a warm, human voice",
  "linkedin": "a concise professional summary",
  "article": "a small HTML mini-article using <h2>, <p> and <ul> only"
}`

var (
	topicTmpl      = template.Must(template.New("topic").Parse(TopicPrompt))
	continuityTmpl = template.Must(template.New("continuity").Parse(ContinuityPrompt))
	copyTmpl       = template.Must(template.New("copy").Parse(CopyPrompt))
)

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

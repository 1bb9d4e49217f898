package answer

import "encoding/json"

// Providers and proxy layers disagree on the response envelope. The
// shapes seen in the wild:
//
//	{candidates:[{content:{parts:[{text}]}}]}   Gemini
//	[{generated_text}] or {generated_text}      HF text-generation
//	{summary_text} or [{summary_text}]          HF summarization
//	{error:{message}}                           structured provider error
//
// probeShapes tries them in a fixed priority order and returns the
// first match, so adding a shape is a table entry, not a new branch.

// shapeMatcher probes one known response layout. ok is false when the
// body does not have this shape at all.
type shapeMatcher struct {
	name  string
	probe func(body []byte) (res Result, ok bool)
}

var shapeMatchers = []shapeMatcher{
	{"candidates", matchCandidates},
	{"generated_text", matchGeneratedText},
	{"summary_text", matchSummaryText},
	{"provider_error", matchProviderError},
}

// probeShapes classifies a provider response body. An unrecognized
// body is a semantic error, never a retryable one: the transport
// worked, the provider just said something we cannot use.
func probeShapes(body []byte) Result {
	for _, m := range shapeMatchers {
		if res, ok := m.probe(body); ok {
			res.Shape = m.name
			return res
		}
	}
	return Result{
		Status:  StatusProviderError,
		Message: "unrecognized response shape",
		Shape:   "unknown",
	}
}

func matchCandidates(body []byte) (Result, bool) {
	var doc struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return Result{}, false
	}
	if len(doc.Candidates) == 0 || len(doc.Candidates[0].Content.Parts) == 0 {
		return Result{}, false
	}
	return Result{Status: StatusOK, Text: doc.Candidates[0].Content.Parts[0].Text}, true
}

func matchGeneratedText(body []byte) (Result, bool) {
	if text, ok := stringField(body, "generated_text"); ok {
		return Result{Status: StatusOK, Text: text}, true
	}
	return Result{}, false
}

func matchSummaryText(body []byte) (Result, bool) {
	if text, ok := stringField(body, "summary_text"); ok {
		return Result{Status: StatusOK, Text: text}, true
	}
	return Result{}, false
}

// stringField extracts a top-level string field from either a flat
// object or the first element of a list of objects.
func stringField(body []byte, field string) (string, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err == nil {
		return rawString(obj[field])
	}

	var list []map[string]json.RawMessage
	if err := json.Unmarshal(body, &list); err == nil && len(list) > 0 {
		return rawString(list[0][field])
	}
	return "", false
}

func rawString(raw json.RawMessage) (string, bool) {
	if raw == nil {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func matchProviderError(body []byte) (Result, bool) {
	var doc struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &doc); err != nil || doc.Error == nil {
		return Result{}, false
	}

	// {error:{message}} is the structured form; {error:"text"} shows up
	// from thinner proxies.
	var structured struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(doc.Error, &structured); err == nil && structured.Message != "" {
		return Result{Status: StatusProviderError, Message: structured.Message}, true
	}
	if msg, ok := rawString(doc.Error); ok && msg != "" {
		return Result{Status: StatusProviderError, Message: msg}, true
	}
	return Result{Status: StatusProviderError, Message: "provider error"}, true
}

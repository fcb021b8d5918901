// Package prompt implements the prompt compiler (§4.2): it assembles the
// request payload deterministically from intent, context annotations,
// resolved non-opaque inputs, accumulated retry feedback, and an opaque
// attachment, and computes a stable hash of the result.
package prompt

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/stepforge/flowrt/core"
	"github.com/stepforge/flowrt/provider"
)

// Input is one resolved, named parameter value bound to a step invocation.
type Input struct {
	Name   string
	Value  interface{}
	Opaque bool
}

// Request carries everything the compiler needs to build a deterministic
// prompt for one attempt.
type Request struct {
	Intent        string
	Context       []string // declaration order; empty entries are skipped
	Inputs        []Input  // declaration (parameter) order
	RetryFeedback []string // accumulated reasons from prior attempts, in attempt order
	CacheCapable  bool      // true for providers advertising an "ephemeral" cache hint
}

// Compiled is the result of one compilation.
type Compiled struct {
	Messages   []provider.Message
	Attachment []byte // JSON attachment of opaque field values, nil if none
	Hash       string // first 12 hex of SHA-256 over the full logical text
	FullText   string // concatenation of all message content, for hashing/tests
}

// Compile assembles the prompt per §4.2's fixed order. It returns a
// CompileError if any opaque input's name is referenced inside the intent
// or a context annotation — that would leak the raw value into the
// (potentially cached) prompt prefix.
func Compile(req Request) (*Compiled, error) {
	var opaqueNames []string
	for _, in := range req.Inputs {
		if in.Opaque {
			opaqueNames = append(opaqueNames, in.Name)
		}
	}
	sort.Strings(opaqueNames)

	if err := checkOpaqueLeak(req.Intent, req.Context, opaqueNames); err != nil {
		return nil, err
	}

	stable := buildStableBlock(req)
	dynamic := buildDynamicBlock(req, opaqueNames)

	fullText := stable
	if dynamic != "" {
		fullText = stable + "\n" + dynamic
	}

	hash := hashText(fullText)

	attachment, err := buildAttachment(req.Inputs)
	if err != nil {
		return nil, &core.CompileError{Location: "prompt.Compile", Reason: err.Error()}
	}

	var messages []provider.Message
	if req.CacheCapable {
		messages = append(messages, provider.Message{Role: "user", Content: stable, CacheHint: "ephemeral"})
		if dynamic != "" {
			messages = append(messages, provider.Message{Role: "user", Content: dynamic})
		}
	} else {
		messages = append(messages, provider.Message{Role: "user", Content: fullText})
	}

	return &Compiled{Messages: messages, Attachment: attachment, Hash: hash, FullText: fullText}, nil
}

// buildStableBlock renders the portion of the prompt that is a pure
// function of (intent, context, non-opaque inputs) — the part a
// prompt-prefix-caching provider can reuse across retries.
func buildStableBlock(req Request) string {
	var b strings.Builder
	b.WriteString(req.Intent)

	for _, c := range req.Context {
		if c == "" {
			continue
		}
		b.WriteString("\n")
		b.WriteString(c)
	}

	b.WriteString("\nInputs:")
	for _, in := range req.Inputs {
		if in.Opaque {
			continue
		}
		b.WriteString(fmt.Sprintf("\n  %s: %s", in.Name, render(in.Value)))
	}
	return b.String()
}

// buildDynamicBlock renders the retry-feedback section and the opaque
// attachment pointer, both of which vary across attempts (feedback grows
// attempt over attempt; the attachment line is stable in content but is
// kept out of the cached prefix alongside it per §4.2).
func buildDynamicBlock(req Request, opaqueNames []string) string {
	var b strings.Builder
	if len(req.RetryFeedback) > 0 {
		b.WriteString("Previous attempt failed:")
		for _, reason := range req.RetryFeedback {
			b.WriteString(fmt.Sprintf("\n  - %s", reason))
		}
		b.WriteString("\nFix these issues specifically.")
	}
	if len(opaqueNames) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(fmt.Sprintf("See attached data for: %s", strings.Join(opaqueNames, ", ")))
	}
	return b.String()
}

// render formats a scalar as itself and a composite value as a map of its
// public attributes, per §4.2 point 3.
func render(v interface{}) string {
	if v == nil {
		return "null"
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return "null"
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Struct:
		return renderMap(structToMap(rv))
	case reflect.Map:
		m := make(map[string]interface{}, rv.Len())
		for _, k := range rv.MapKeys() {
			m[fmt.Sprintf("%v", k.Interface())] = rv.MapIndex(k).Interface()
		}
		return renderMap(m)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func structToMap(rv reflect.Value) map[string]interface{} {
	t := rv.Type()
	m := make(map[string]interface{}, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" { // unexported
			continue
		}
		m[f.Name] = rv.Field(i).Interface()
	}
	return m
}

func renderMap(m map[string]interface{}) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, m[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// checkOpaqueLeak fails with CompileError if an opaque field name appears
// anywhere inside the intent or any context string (§4.1). The match is a
// plain substring match, not bounded by word boundaries.
func checkOpaqueLeak(intent string, contextLines []string, opaqueNames []string) error {
	if len(opaqueNames) == 0 {
		return nil
	}
	check := func(location, text string) error {
		for _, name := range opaqueNames {
			if containsToken(text, name) {
				return &core.CompileError{
					Location: location,
					Reason:   fmt.Sprintf("opaque field %q referenced in prompt text would leak its raw value into the cached prefix", name),
				}
			}
		}
		return nil
	}
	if err := check("intent", intent); err != nil {
		return err
	}
	for i, c := range contextLines {
		if err := check(fmt.Sprintf("context[%d]", i), c); err != nil {
			return err
		}
	}
	return nil
}

func containsToken(text, token string) bool {
	return strings.Contains(text, token)
}

// buildAttachment JSON-encodes the opaque inputs as name->value, sorted by
// name for determinism, or returns nil if there are none.
func buildAttachment(inputs []Input) ([]byte, error) {
	opaque := map[string]interface{}{}
	for _, in := range inputs {
		if in.Opaque {
			opaque[in.Name] = in.Value
		}
	}
	if len(opaque) == 0 {
		return nil, nil
	}
	return json.Marshal(opaque)
}

func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:12]
}

package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/JonMunkholm/sheetsmith/internal/mapping"
)

// promptSampleRows caps how many sample rows are shown to the model.
const promptSampleRows = 5

// Chatter is the part of Client the suggester needs.
type Chatter interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// Suggester asks a chat model to map columns. Replies are cached per
// distinct request for the life of the Suggester.
type Suggester struct {
	chat    Chatter
	model   string
	pricing Pricing

	mu    sync.Mutex
	cache map[string][]mapping.ColumnMapping
}

var _ mapping.Suggester = (*Suggester)(nil)

// NewSuggester returns a mapping provider backed by chat.
func NewSuggester(chat Chatter, model string) *Suggester {
	return &Suggester{
		chat:    chat,
		model:   model,
		pricing: DefaultPricing,
		cache:   make(map[string][]mapping.ColumnMapping),
	}
}

// Suggest implements mapping.Suggester. The result is returned as the model
// produced it; range and uniqueness checks belong to the mapping engine.
func (s *Suggester) Suggest(ctx context.Context, req mapping.Request) ([]mapping.ColumnMapping, error) {
	prompt, err := buildPrompt(req)
	if err != nil {
		return nil, err
	}
	key := cacheKey(s.model, prompt)

	s.mu.Lock()
	if cached, ok := s.cache[key]; ok {
		s.mu.Unlock()
		mapping.RecordUsage(ctx, mapping.Usage{CachedCalls: 1})
		return append([]mapping.ColumnMapping(nil), cached...), nil
	}
	s.mu.Unlock()

	resp, err := s.chat.Chat(ctx, ChatRequest{
		Model: s.model,
		Messages: []Message{
			{Role: "system", Content: "You are an expert data analyst. Reply with JSON only."},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, err
	}
	mapping.RecordUsage(ctx, mapping.Usage{
		Calls:            1,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		EstimatedCostUSD: s.pricing.Estimate(resp.Usage),
	})

	out, err := parseMappings(resp.Content(), req.Headers)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache[key] = append([]mapping.ColumnMapping(nil), out...)
	s.mu.Unlock()
	return out, nil
}

func buildPrompt(req mapping.Request) (string, error) {
	samples := req.SampleRows
	if len(samples) > promptSampleRows {
		samples = samples[:promptSampleRows]
	}
	sampleJSON, err := json.MarshalIndent(samples, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode sample rows: %w", err)
	}

	fields := make(map[string]string, len(req.Fields))
	for _, f := range req.Fields {
		desc := string(f.Type)
		if f.Description != "" {
			desc += ": " + f.Description
		}
		fields[f.Name] = desc
	}
	fieldJSON, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode target fields: %w", err)
	}
	headerJSON, err := json.Marshal(req.Headers)
	if err != nil {
		return "", fmt.Errorf("encode headers: %w", err)
	}

	businessContext := req.BusinessContext
	if businessContext == "" {
		businessContext = "general"
	}

	var b strings.Builder
	b.WriteString("Map the CSV columns to the target schema.\n\n")
	fmt.Fprintf(&b, "Business Context: %s\n\n", businessContext)
	fmt.Fprintf(&b, "CSV Headers: %s\n\n", headerJSON)
	fmt.Fprintf(&b, "Sample Data (first %d rows):\n%s\n\n", promptSampleRows, sampleJSON)
	fmt.Fprintf(&b, "Target Schema Fields:\n%s\n\n", fieldJSON)
	b.WriteString(`Instructions:
1. Analyze the headers and sample data
2. Map each CSV column to the most appropriate target field, or leave it out
3. Use each target field at most once
4. Provide a confidence score between 0.0 and 1.0 for each mapping
5. Explain your reasoning briefly

Return JSON in this format:
{"mappings": {"csv_column": {"target_field": "field_name", "confidence": 0.95, "reasoning": "Brief explanation"}}}
`)
	return b.String(), nil
}

type reply struct {
	Mappings map[string]struct {
		TargetField string  `json:"target_field"`
		Confidence  float64 `json:"confidence"`
		Reasoning   string  `json:"reasoning"`
	} `json:"mappings"`
}

// parseMappings decodes the model reply. Columns are returned in header
// order, followed by any names the model invented, sorted.
func parseMappings(content string, headers []string) ([]mapping.ColumnMapping, error) {
	var r reply
	if err := json.Unmarshal([]byte(stripFence(content)), &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}

	out := make([]mapping.ColumnMapping, 0, len(r.Mappings))
	seen := make(map[string]bool, len(headers))
	add := func(src string) {
		m, ok := r.Mappings[src]
		if !ok || seen[src] {
			return
		}
		seen[src] = true
		out = append(out, mapping.ColumnMapping{
			SourceColumn: src,
			TargetField:  m.TargetField,
			Confidence:   m.Confidence,
			Reasoning:    m.Reasoning,
		})
	}

	for _, h := range headers {
		add(h)
	}
	var extra []string
	for src := range r.Mappings {
		if !seen[src] {
			extra = append(extra, src)
		}
	}
	sort.Strings(extra)
	for _, src := range extra {
		add(src)
	}
	return out, nil
}

// stripFence removes a surrounding markdown code fence, if any.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func cacheKey(model, prompt string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + prompt))
	return hex.EncodeToString(sum[:])
}

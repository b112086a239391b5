//
// Ensemble Works is pleased to support the open source community by making ensemble available.
//
// Copyright (C) 2025 Ensemble Works.  All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//
//

package auth

import (
	"errors"
	"regexp"
)

// ErrContentBlocked is returned when flagged input cannot be filtered.
var ErrContentBlocked = errors.New("content blocked")

// ContentCheckResult is the outcome of a content-safety pass.
type ContentCheckResult struct {
	// IsFlagged reports whether any pattern matched.
	IsFlagged bool `json:"is_flagged"`
	// Flags lists the names of the patterns that matched.
	Flags []string `json:"flags,omitempty"`
	// SafeToUse reports whether FilteredContent is an acceptable
	// substitute for the original input.
	SafeToUse bool `json:"safe_to_use"`
	// FilteredContent is the input with matches masked out.
	FilteredContent string `json:"filtered_content"`
}

// ContentPattern is one named detection rule.
type ContentPattern struct {
	// Name identifies the rule in result flags.
	Name string
	// Pattern matches the offending content.
	Pattern *regexp.Regexp
	// Replacement masks matches when filtering.
	Replacement string
	// Filterable marks the rule "filter, not reject": matches are
	// masked and the filtered text stays usable. Non-filterable rules
	// block the input outright.
	Filterable bool
}

// DefaultContentPatterns returns the stock PII and credential rules.
// Blocking rules come before filterable ones so masking never hides a
// match from them.
func DefaultContentPatterns() []ContentPattern {
	return []ContentPattern{
		{
			Name:        "credit_card",
			Pattern:     regexp.MustCompile(`\b(?:\d[ \-]?){13,16}\b`),
			Replacement: "[CARD]",
			Filterable:  false,
		},
		{
			Name:        "api_credential",
			Pattern:     regexp.MustCompile(`(?i)(?:api[_\-]?key|secret|token|password)\s*[:=]\s*\S+`),
			Replacement: "[CREDENTIAL]",
			Filterable:  false,
		},
		{
			Name:        "email",
			Pattern:     regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`),
			Replacement: "[EMAIL]",
			Filterable:  true,
		},
		{
			Name:        "phone",
			Pattern:     regexp.MustCompile(`\+?\d[\d\-\s]{8,}\d`),
			Replacement: "[PHONE]",
			Filterable:  true,
		},
	}
}

// ContentFilter runs input through a configured list of patterns.
type ContentFilter struct {
	patterns []ContentPattern
}

// NewContentFilter creates a filter. With no patterns it uses the
// defaults.
func NewContentFilter(patterns ...ContentPattern) *ContentFilter {
	if len(patterns) == 0 {
		patterns = DefaultContentPatterns()
	}
	return &ContentFilter{patterns: patterns}
}

// Check scans the input. The result is safe to use when every matched
// rule is filterable; FilteredContent then carries the masked text.
func (f *ContentFilter) Check(input string) ContentCheckResult {
	result := ContentCheckResult{
		SafeToUse:       true,
		FilteredContent: input,
	}
	for _, p := range f.patterns {
		if !p.Pattern.MatchString(result.FilteredContent) {
			continue
		}
		result.IsFlagged = true
		result.Flags = append(result.Flags, p.Name)
		if !p.Filterable {
			result.SafeToUse = false
			continue
		}
		result.FilteredContent = p.Pattern.ReplaceAllString(result.FilteredContent, p.Replacement)
	}
	if !result.SafeToUse {
		result.FilteredContent = ""
	}
	return result
}
